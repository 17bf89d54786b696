package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MembershipStatus represents the lifecycle state of a membership period.
type MembershipStatus int

// MembershipStatus constants define membership lifecycle states.
const (
	// MembershipStatusPending marks a period that is not fully paid.
	MembershipStatusPending MembershipStatus = 1
	// MembershipStatusActive marks a fully paid period.
	MembershipStatusActive MembershipStatus = 2
	// MembershipStatusExpired marks a period whose end date has passed.
	MembershipStatusExpired MembershipStatus = 3
	// MembershipStatusCancelled marks a period closed by staff.
	MembershipStatusCancelled MembershipStatus = 4
)

// String returns the wire name of the status.
func (s MembershipStatus) String() string {
	switch s {
	case MembershipStatusPending:
		return "pending"
	case MembershipStatusActive:
		return "active"
	case MembershipStatusExpired:
		return "expired"
	case MembershipStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseMembershipStatus maps a wire name to a status.
func ParseMembershipStatus(raw string) (MembershipStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return MembershipStatusPending, true
	case "active":
		return MembershipStatusActive, true
	case "expired":
		return MembershipStatusExpired, true
	case "cancelled", "canceled":
		return MembershipStatusCancelled, true
	default:
		return 0, false
	}
}

// Membership is one billing period of a member under a plan.
type Membership struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MemberID uint64 `gorm:"not null;index"`      // Owning member ID.
	Member   Member `gorm:"foreignKey:MemberID"` // Owning member record.

	PlanID uint64 `gorm:"not null;index"`    // Plan the period was priced from.
	Plan   Plan   `gorm:"foreignKey:PlanID"` // Plan record.

	StartDate time.Time `gorm:"not null"`       // Period start.
	EndDate   time.Time `gorm:"not null;index"` // Period end.

	AmountDue  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // Price snapshot for the period.
	AmountPaid decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // Total received for the period.
	Credit     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // Overpayment carried to the next renewal.

	AdmissionFeeIncluded bool `gorm:"not null;default:false"` // Whether the admission fee is part of AmountDue.

	Status  MembershipStatus `gorm:"not null;default:1;index"` // Lifecycle state.
	Version int64            `gorm:"not null;default:1"`       // Optimistic concurrency token.

	LastPaymentID *uint64 `gorm:"index"` // Most recent payment applied.

	Notes     string  `gorm:"type:text"` // Staff notes.
	CreatedBy *uint64 `gorm:"index"`     // Admin who created the period.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// PeriodCloseReason explains why a period was archived.
type PeriodCloseReason string

// PeriodClosedExpired marks a period archived by the expiry sweep.
const PeriodClosedExpired PeriodCloseReason = "expired"

// MembershipPeriod archives a closed billing period of a membership.
type MembershipPeriod struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MembershipID uint64 `gorm:"not null;index"` // Membership the period belonged to.
	PlanID       uint64 `gorm:"not null"`       // Plan of the period.

	StartDate time.Time `gorm:"not null"` // Period start.
	EndDate   time.Time `gorm:"not null"` // Period end.

	AmountDue  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // Price of the period.
	AmountPaid decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // Paid before closing.

	Reason   PeriodCloseReason `gorm:"type:varchar(16);not null"` // Why the period closed.
	ClosedAt time.Time         `gorm:"not null"`                  // When the period closed.
}
