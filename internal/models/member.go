package models

import "time"

// MemberStatus represents whether a member record is in use.
type MemberStatus int

// MemberStatus constants define member states.
const (
	// MemberStatusActive marks a current member.
	MemberStatusActive MemberStatus = 1
	// MemberStatusInactive marks a member who left the gym.
	MemberStatusInactive MemberStatus = 2
)

// String returns the wire name of the status.
func (s MemberStatus) String() string {
	switch s {
	case MemberStatusActive:
		return "active"
	case MemberStatusInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Member is a registered gym member.
type Member struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MemberCode string `gorm:"type:varchar(32);not null;uniqueIndex"` // Sequential human-facing member number.
	Name       string `gorm:"type:varchar(255);not null"`            // Full name.
	Email      string `gorm:"type:varchar(255);index"`               // Email address for receipts.
	Phone      string `gorm:"type:varchar(32);not null;uniqueIndex"` // Phone number.
	Address    string `gorm:"type:text"`                             // Postal address.
	Gender     string `gorm:"type:varchar(16)"`                      // Self-reported gender.

	DateOfBirth *time.Time // Date of birth.
	JoiningDate time.Time  `gorm:"not null"` // First day at the gym.

	EmergencyContactName  string `gorm:"type:varchar(255)"` // Emergency contact name.
	EmergencyContactPhone string `gorm:"type:varchar(32)"`  // Emergency contact phone.
	HealthNotes           string `gorm:"type:text"`         // Free-form health information.

	MembershipID *uint64 `gorm:"index"` // Current membership period.

	Status MemberStatus `gorm:"not null;default:1"` // Member state.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
