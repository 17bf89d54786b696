package models

import "time"

// Sequence is a named monotonic counter.
type Sequence struct {
	Name  string `gorm:"type:varchar(64);primaryKey"` // Counter name.
	Value int64  `gorm:"not null;default:0"`          // Last issued value.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last increment time.
}
