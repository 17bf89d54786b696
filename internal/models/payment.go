package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentMethod is how money was received or paid out.
type PaymentMethod string

// PaymentMethod constants.
const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodOther  PaymentMethod = "other"
)

// ParsePaymentMethod validates a payment method name.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw))); m {
	case PaymentMethodCash, PaymentMethodOnline, PaymentMethodOther:
		return m, true
	default:
		return "", false
	}
}

// PaymentType classifies what a ledger entry is for.
type PaymentType string

// PaymentType constants.
const (
	PaymentTypeMembership PaymentType = "membership"
	PaymentTypeProduct    PaymentType = "product"
	PaymentTypeService    PaymentType = "service"
	PaymentTypeSalary     PaymentType = "salary"
	PaymentTypeDonation   PaymentType = "donation"
	PaymentTypeOther      PaymentType = "other"
)

// ParsePaymentType validates a payment type name.
func ParsePaymentType(raw string) (PaymentType, bool) {
	switch t := PaymentType(strings.ToLower(strings.TrimSpace(raw))); t {
	case PaymentTypeMembership, PaymentTypeProduct, PaymentTypeService,
		PaymentTypeSalary, PaymentTypeDonation, PaymentTypeOther:
		return t, true
	default:
		return "", false
	}
}

// TransactionType is the direction of a ledger entry.
type TransactionType string

// TransactionType constants.
const (
	// TransactionCredit is money received.
	TransactionCredit TransactionType = "credit"
	// TransactionDebit is money paid out.
	TransactionDebit TransactionType = "debit"
)

// PaymentStatus is the settlement state of a single ledger entry. It is not the
// balance state of a membership.
type PaymentStatus string

// PaymentStatus constants.
const (
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially-paid"
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
)

// LineItem is one labelled part of a payment amount.
type LineItem struct {
	Amount decimal.Decimal `json:"amount"`
	Label  string          `json:"label"`
}

// Payment is an immutable ledger entry.
type Payment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MembershipID *uint64     `gorm:"index"`                   // Membership the payment settles.
	Membership   *Membership `gorm:"foreignKey:MembershipID"` // Membership record.
	MemberID     *uint64     `gorm:"index"`                   // Paying member.
	Member       *Member     `gorm:"foreignKey:MemberID"`     // Member record.

	Amount decimal.Decimal `gorm:"type:decimal(12,2);not null"` // Total amount.

	Method          PaymentMethod   `gorm:"type:varchar(16);not null"`                    // Payment method.
	Type            PaymentType     `gorm:"type:varchar(16);not null;default:membership"` // What the entry is for.
	TransactionType TransactionType `gorm:"type:varchar(8);not null;default:credit"`      // Money in or out.
	Status          PaymentStatus   `gorm:"type:varchar(16);not null;default:paid"`       // Entry settlement state.

	InvoiceNumber  string  `gorm:"type:varchar(32);not null;uniqueIndex"` // INV-YYYYMM-NNNN.
	IdempotencyKey *string `gorm:"type:varchar(64);uniqueIndex"`          // Client supplied de-duplication key.

	LineItems datatypes.JSONSlice[LineItem] `gorm:"not null"` // Ordered breakdown summing to Amount.

	Notes     string  `gorm:"type:text"` // Staff notes.
	CreatedBy *uint64 `gorm:"index"`     // Admin who recorded the entry.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
