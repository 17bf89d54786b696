package models

import "time"

// Attendance is one gym visit of a member.
type Attendance struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MemberID uint64  `gorm:"not null;index"`      // Visiting member.
	Member   *Member `gorm:"foreignKey:MemberID"` // Member record.

	CheckIn         time.Time  `gorm:"not null;index"` // Arrival time.
	CheckOut        *time.Time // Departure time, nil while the member is in.
	DurationMinutes *int       // Whole minutes between check-in and check-out.
	Notes           string     `gorm:"type:text"` // Staff notes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsOpen reports whether the member has not checked out yet.
func (a Attendance) IsOpen() bool {
	return a.CheckOut == nil
}
