package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/pricing"
	"gorm.io/gorm"
)

// ValidatePlan rejects plans that cannot be priced or scheduled.
func ValidatePlan(plan models.Plan) error {
	switch {
	case strings.TrimSpace(plan.Name) == "":
		return fmt.Errorf("%w: name is required", billing.ErrInvalidPlanData)
	case plan.DurationDays <= 0:
		return fmt.Errorf("%w: duration must be positive", billing.ErrInvalidPlanData)
	case plan.BasePrice.IsNegative(), plan.DiscountedPrice.IsNegative(), plan.AdmissionFee.IsNegative():
		return fmt.Errorf("%w: prices must not be negative", billing.ErrInvalidPlanData)
	case !pricing.IsWholeCents(plan.BasePrice), !pricing.IsWholeCents(plan.DiscountedPrice), !pricing.IsWholeCents(plan.AdmissionFee):
		return fmt.Errorf("%w: prices must be whole cents", billing.ErrInvalidPlanData)
	case plan.DiscountedPrice.GreaterThan(plan.BasePrice):
		return fmt.Errorf("%w: discounted price exceeds base price", billing.ErrInvalidPlanData)
	}
	quote, errQuote := pricing.ComputeMembershipPrice(plan)
	if errQuote != nil {
		return errQuote
	}
	if !quote.AmountDue.IsPositive() {
		return fmt.Errorf("%w: plan charges nothing", billing.ErrInvalidPlanData)
	}
	return nil
}

// GetPlan loads and validates a plan.
func (s *Store) GetPlan(ctx context.Context, id uint64) (models.Plan, error) {
	var plan models.Plan
	if errFind := s.conn(ctx).First(&plan, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Plan{}, billing.ErrPlanNotFound
		}
		return models.Plan{}, billing.Persistence("load plan", errFind)
	}
	if errValidate := ValidatePlan(plan); errValidate != nil {
		return models.Plan{}, fmt.Errorf("plan %d: %w", plan.ID, errValidate)
	}
	return plan, nil
}

// ListPlans returns plans in display order.
func (s *Store) ListPlans(ctx context.Context, enabledOnly bool) ([]models.Plan, error) {
	q := s.conn(ctx).Model(&models.Plan{})
	if enabledOnly {
		q = q.Where("is_enabled = ?", true)
	}
	var plans []models.Plan
	if errFind := q.Order("sort_order ASC, id ASC").Find(&plans).Error; errFind != nil {
		return nil, billing.Persistence("list plans", errFind)
	}
	return plans, nil
}

// CreatePlan validates and inserts a plan.
func (s *Store) CreatePlan(ctx context.Context, plan *models.Plan) error {
	if errValidate := ValidatePlan(*plan); errValidate != nil {
		return errValidate
	}
	if plan.Features == nil {
		plan.Features = []string{}
	}
	enabled := plan.IsEnabled
	if errCreate := s.conn(ctx).Create(plan).Error; errCreate != nil {
		return billing.Persistence("create plan", errCreate)
	}
	// is_enabled defaults to true in the schema, so a disabled plan is written
	// explicitly.
	if !enabled {
		if errUpdate := s.conn(ctx).Model(plan).Update("is_enabled", false).Error; errUpdate != nil {
			return billing.Persistence("create plan", errUpdate)
		}
		plan.IsEnabled = false
	}
	return nil
}

// UpdatePlan validates and saves every column of a plan.
func (s *Store) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	if errValidate := ValidatePlan(*plan); errValidate != nil {
		return errValidate
	}
	if plan.Features == nil {
		plan.Features = []string{}
	}
	res := s.conn(ctx).Model(&models.Plan{}).Where("id = ?", plan.ID).Updates(map[string]any{
		"name":             plan.Name,
		"description":      plan.Description,
		"duration_days":    plan.DurationDays,
		"base_price":       plan.BasePrice,
		"discounted_price": plan.DiscountedPrice,
		"admission_fee":    plan.AdmissionFee,
		"features":         plan.Features,
		"sort_order":       plan.SortOrder,
		"is_enabled":       plan.IsEnabled,
	})
	if res.Error != nil {
		return billing.Persistence("update plan", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrPlanNotFound
	}
	return nil
}

// SetPlanEnabled toggles whether a plan can be sold.
func (s *Store) SetPlanEnabled(ctx context.Context, id uint64, enabled bool) error {
	res := s.conn(ctx).Model(&models.Plan{}).Where("id = ?", id).Update("is_enabled", enabled)
	if res.Error != nil {
		return billing.Persistence("toggle plan", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrPlanNotFound
	}
	return nil
}

// DeletePlan removes a plan no membership refers to.
func (s *Store) DeletePlan(ctx context.Context, id uint64) error {
	var refs int64
	if errCount := s.conn(ctx).Model(&models.Membership{}).Where("plan_id = ?", id).Count(&refs).Error; errCount != nil {
		return billing.Persistence("count plan memberships", errCount)
	}
	if refs > 0 {
		return billing.ErrPlanInUse
	}
	res := s.conn(ctx).Delete(&models.Plan{}, id)
	if res.Error != nil {
		return billing.Persistence("delete plan", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrPlanNotFound
	}
	return nil
}
