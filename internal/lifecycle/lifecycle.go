// Package lifecycle implements the membership state machine. The transition
// functions are pure: they mutate the membership value they are given and
// never touch storage.
package lifecycle

import (
	"time"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/pricing"
	"github.com/shopspring/decimal"
)

// EndDate returns the last instant of a period starting at start.
func EndDate(start time.Time, plan models.Plan) time.Time {
	return start.AddDate(0, 0, plan.DurationDays)
}

// StatusFor derives the status of an open period from its balance.
func StatusFor(amountPaid, amountDue decimal.Decimal) models.MembershipStatus {
	if amountPaid.IsPositive() && amountPaid.GreaterThanOrEqual(amountDue) {
		return models.MembershipStatusActive
	}
	return models.MembershipStatusPending
}

func creditFor(amountPaid, amountDue decimal.Decimal) decimal.Decimal {
	if excess := amountPaid.Sub(amountDue); excess.IsPositive() {
		return excess
	}
	return decimal.Zero
}

// New prices and opens a first period for memberID on plan.
func New(memberID uint64, plan models.Plan, start time.Time, payNow decimal.Decimal) (models.Membership, pricing.Quote, error) {
	if payNow.IsNegative() {
		return models.Membership{}, pricing.Quote{}, billing.ErrInvalidAmount
	}
	quote, errPrice := pricing.ComputeMembershipPrice(plan)
	if errPrice != nil {
		return models.Membership{}, pricing.Quote{}, errPrice
	}
	start = start.UTC()
	membership := models.Membership{
		MemberID:             memberID,
		PlanID:               plan.ID,
		StartDate:            start,
		EndDate:              EndDate(start, plan),
		AmountDue:            quote.AmountDue,
		AmountPaid:           payNow,
		Credit:               creditFor(payNow, quote.AmountDue),
		AdmissionFeeIncluded: quote.AdmissionFeeIncluded,
		Status:               StatusFor(payNow, quote.AmountDue),
	}
	return membership, quote, nil
}

// Renew opens the next period of an expired membership. The new period starts
// where the old one ended, is priced from plan and is credited with payment
// plus any carried credit.
func Renew(m *models.Membership, plan models.Plan, payment decimal.Decimal) (pricing.Quote, error) {
	if m.Status != models.MembershipStatusExpired {
		return pricing.Quote{}, &billing.TransitionError{Op: "renew", From: m.Status, Reason: "membership is not expired"}
	}
	if !payment.IsPositive() {
		return pricing.Quote{}, billing.ErrInvalidAmount
	}
	quote, errPrice := pricing.ComputeMembershipPrice(plan)
	if errPrice != nil {
		return pricing.Quote{}, errPrice
	}

	paid := payment.Add(m.Credit)
	m.PlanID = plan.ID
	m.StartDate = m.EndDate
	m.EndDate = EndDate(m.StartDate, plan)
	m.AmountDue = quote.AmountDue
	m.AdmissionFeeIncluded = quote.AdmissionFeeIncluded
	m.AmountPaid = paid
	m.Credit = creditFor(paid, quote.AmountDue)
	m.Status = StatusFor(paid, quote.AmountDue)
	return quote, nil
}

// ApplyPayment tops up a pending period.
func ApplyPayment(m *models.Membership, payment decimal.Decimal) error {
	if m.Status != models.MembershipStatusPending {
		return &billing.TransitionError{Op: "apply payment", From: m.Status, Reason: "membership is not pending"}
	}
	if !payment.IsPositive() {
		return billing.ErrInvalidAmount
	}
	m.AmountPaid = m.AmountPaid.Add(payment)
	m.Credit = creditFor(m.AmountPaid, m.AmountDue)
	m.Status = StatusFor(m.AmountPaid, m.AmountDue)
	return nil
}

// ChangePlan opens a new membership for the member of current on a different
// plan. current is left untouched.
func ChangePlan(current models.Membership, plan models.Plan, start time.Time, payNow decimal.Decimal) (models.Membership, pricing.Quote, error) {
	if current.PlanID == plan.ID {
		return models.Membership{}, pricing.Quote{}, &billing.TransitionError{Op: "change plan", From: current.Status, Reason: "plan unchanged"}
	}
	return New(current.MemberID, plan, start, payNow)
}

// IsExpired reports whether the sweep would expire m at now.
func IsExpired(m models.Membership, now time.Time) bool {
	switch m.Status {
	case models.MembershipStatusPending, models.MembershipStatusActive:
		return m.EndDate.Before(now)
	default:
		return false
	}
}

// Expire closes the current period of m if it ended before now. The closed
// period is returned for archiving. The paid total of an expired membership
// is reset; carried credit is kept.
func Expire(m *models.Membership, now time.Time) (models.MembershipPeriod, bool) {
	if !IsExpired(*m, now) {
		return models.MembershipPeriod{}, false
	}
	period := models.MembershipPeriod{
		MembershipID: m.ID,
		PlanID:       m.PlanID,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
		AmountDue:    m.AmountDue,
		AmountPaid:   m.AmountPaid,
		Reason:       models.PeriodClosedExpired,
		ClosedAt:     now.UTC(),
	}
	m.Status = models.MembershipStatusExpired
	m.AmountPaid = decimal.Zero
	return period, true
}
