// Package pricing derives the billable total of a membership period.
package pricing

import (
	"fmt"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/shopspring/decimal"
)

// Line item labels used on membership payments.
const (
	LabelMembershipFee = "Membership Fee"
	LabelAdmissionFee  = "Admission Fee"
	LabelCredit        = "Credit"
)

// IsWholeCents reports whether amount has at most two decimal places.
func IsWholeCents(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(2))
}

// Quote is the price of one membership period.
type Quote struct {
	AmountDue            decimal.Decimal
	AdmissionFeeIncluded bool
	PlanPrice            decimal.Decimal // Discounted price when one runs, base price otherwise.
	AdmissionFee         decimal.Decimal
}

// ComputeMembershipPrice prices a fresh period for plan.
func ComputeMembershipPrice(plan models.Plan) (Quote, error) {
	if plan.BasePrice.IsNegative() {
		return Quote{}, fmt.Errorf("%w: plan %d base price %s", billing.ErrInvalidPlanData, plan.ID, plan.BasePrice)
	}
	if plan.DiscountedPrice.IsNegative() {
		return Quote{}, fmt.Errorf("%w: plan %d discounted price %s", billing.ErrInvalidPlanData, plan.ID, plan.DiscountedPrice)
	}
	if plan.AdmissionFee.IsNegative() {
		return Quote{}, fmt.Errorf("%w: plan %d admission fee %s", billing.ErrInvalidPlanData, plan.ID, plan.AdmissionFee)
	}

	planPrice := plan.BasePrice
	if plan.DiscountedPrice.IsPositive() {
		planPrice = plan.DiscountedPrice
	}
	return Quote{
		AmountDue:            planPrice.Add(plan.AdmissionFee),
		AdmissionFeeIncluded: true,
		PlanPrice:            planPrice,
		AdmissionFee:         plan.AdmissionFee,
	}, nil
}

// Allocate splits a payment against a fresh period into line items. The
// admission fee is settled first, then the membership fee; anything above the
// quote is labelled as credit. The items always sum to amount.
func Allocate(quote Quote, amount decimal.Decimal) []models.LineItem {
	if !amount.IsPositive() {
		return nil
	}
	items := make([]models.LineItem, 0, 3)
	left := amount

	if quote.AdmissionFeeIncluded && quote.AdmissionFee.IsPositive() {
		part := decimal.Min(left, quote.AdmissionFee)
		items = append(items, models.LineItem{Amount: part, Label: LabelAdmissionFee})
		left = left.Sub(part)
	}
	if left.IsPositive() && quote.PlanPrice.IsPositive() {
		part := decimal.Min(left, quote.PlanPrice)
		items = append(items, models.LineItem{Amount: part, Label: LabelMembershipFee})
		left = left.Sub(part)
	}
	if left.IsPositive() {
		items = append(items, models.LineItem{Amount: left, Label: LabelCredit})
	}
	return items
}

// TopUpLineItems splits a payment against an outstanding balance.
func TopUpLineItems(remaining, amount decimal.Decimal) []models.LineItem {
	if !amount.IsPositive() {
		return nil
	}
	if !remaining.IsPositive() {
		return []models.LineItem{{Amount: amount, Label: LabelCredit}}
	}
	part := decimal.Min(amount, remaining)
	items := []models.LineItem{{Amount: part, Label: LabelMembershipFee}}
	if extra := amount.Sub(part); extra.IsPositive() {
		items = append(items, models.LineItem{Amount: extra, Label: LabelCredit})
	}
	return items
}

// SumLineItems totals line item amounts.
func SumLineItems(items []models.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}
