package models

import (
	"encoding/json"
	"time"
)

// Setting is a runtime key/value setting with a JSON value.
type Setting struct {
	Key   string          `gorm:"type:varchar(128);primaryKey"` // Setting key.
	Value json.RawMessage `gorm:"type:jsonb"`                   // JSON value.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
