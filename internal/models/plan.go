package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Plan represents a purchasable membership tier.
type Plan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name         string `gorm:"type:varchar(255);not null"` // Plan name.
	Description  string `gorm:"type:text"`                  // Plan description.
	DurationDays int    `gorm:"not null"`                   // Length of one billing period in days.

	BasePrice       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // List price per period.
	DiscountedPrice decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // Offer price, zero when no offer runs.
	AdmissionFee    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // Fee charged once per new period.

	Features datatypes.JSONSlice[string] `gorm:"not null"` // Feature bullet list.

	SortOrder int  `gorm:"not null;default:0"`    // Display ordering weight.
	IsEnabled bool `gorm:"not null;default:true"` // Whether the plan can be sold.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
