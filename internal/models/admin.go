package models

import (
	"time"

	"gorm.io/datatypes"
)

// Admin is a staff account for the back office.
type Admin struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:varchar(64);not null;uniqueIndex"` // Login name.
	Password string `gorm:"type:text;not null"`                    // Bcrypt hash.

	Permissions  datatypes.JSON `gorm:"type:jsonb"`             // Granted permission keys.
	IsSuperAdmin bool           `gorm:"not null;default:false"` // Bypasses permission checks.
	Active       bool           `gorm:"not null;default:true"`  // Whether the admin can sign in.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
