package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/pricing"
	"github.com/router-for-me/GymDesk/internal/store"
	"github.com/shopspring/decimal"
)

// PlanHandler manages admin CRUD endpoints for plans.
type PlanHandler struct {
	store *store.Store // Plan repository.
}

// NewPlanHandler constructs a plan handler.
func NewPlanHandler(st *store.Store) *PlanHandler {
	return &PlanHandler{store: st}
}

// normalizeFeatures trims feature lines and drops empty ones.
func normalizeFeatures(raw []string) []string {
	cleaned := make([]string, 0, len(raw))
	for _, feature := range raw {
		if trimmed := strings.TrimSpace(feature); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

// createPlanRequest captures the payload for creating a plan.
type createPlanRequest struct {
	Name            string          `json:"name"`             // Plan name.
	Description     string          `json:"description"`      // Plan description.
	DurationDays    int             `json:"duration_days"`    // Period length in days.
	BasePrice       decimal.Decimal `json:"base_price"`       // List price.
	DiscountedPrice decimal.Decimal `json:"discounted_price"` // Offer price, zero for none.
	AdmissionFee    decimal.Decimal `json:"admission_fee"`    // Admission fee per period.
	Features        []string        `json:"features"`         // Feature lines.
	SortOrder       int             `json:"sort_order"`       // Display order.
	IsEnabled       *bool           `json:"is_enabled"`       // Optional active flag.
}

// Create validates input and inserts a new plan.
func (h *PlanHandler) Create(c *gin.Context) {
	var body createPlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	isEnabled := true
	if body.IsEnabled != nil {
		isEnabled = *body.IsEnabled
	}
	plan := models.Plan{
		Name:            strings.TrimSpace(body.Name),
		Description:     body.Description,
		DurationDays:    body.DurationDays,
		BasePrice:       body.BasePrice,
		DiscountedPrice: body.DiscountedPrice,
		AdmissionFee:    body.AdmissionFee,
		Features:        normalizeFeatures(body.Features),
		SortOrder:       body.SortOrder,
		IsEnabled:       isEnabled,
	}
	if errCreate := h.store.CreatePlan(c.Request.Context(), &plan); errCreate != nil {
		writeError(c, errCreate, "create plan failed")
		return
	}
	c.JSON(http.StatusCreated, formatPlan(&plan))
}

// List returns all plans, optionally only the enabled ones.
func (h *PlanHandler) List(c *gin.Context) {
	enabledQ := strings.TrimSpace(c.Query("is_enabled"))
	enabledOnly := enabledQ == "true" || enabledQ == "1"

	rows, errList := h.store.ListPlans(c.Request.Context(), enabledOnly)
	if errList != nil {
		writeError(c, errList, "list plans failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		if enabledQ == "false" || enabledQ == "0" {
			if rows[i].IsEnabled {
				continue
			}
		}
		out = append(out, formatPlan(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// Get fetches a plan by ID.
func (h *PlanHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	plan, errGet := h.store.GetPlan(c.Request.Context(), id)
	if errGet != nil {
		writeError(c, errGet, "query failed")
		return
	}
	c.JSON(http.StatusOK, formatPlan(&plan))
}

// updatePlanRequest captures optional fields for plan updates.
type updatePlanRequest struct {
	Name            *string          `json:"name"`             // Optional name update.
	Description     *string          `json:"description"`      // Optional description.
	DurationDays    *int             `json:"duration_days"`    // Optional period length.
	BasePrice       *decimal.Decimal `json:"base_price"`       // Optional list price.
	DiscountedPrice *decimal.Decimal `json:"discounted_price"` // Optional offer price.
	AdmissionFee    *decimal.Decimal `json:"admission_fee"`    // Optional admission fee.
	Features        *[]string        `json:"features"`         // Optional feature lines.
	SortOrder       *int             `json:"sort_order"`       // Optional display order.
	IsEnabled       *bool            `json:"is_enabled"`       // Optional active flag.
}

// Update applies plan field updates. Existing memberships keep the price they
// were opened with; the new price applies from the next period.
func (h *PlanHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body updatePlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	plan, errGet := h.store.GetPlan(c.Request.Context(), id)
	if errGet != nil {
		writeError(c, errGet, "query failed")
		return
	}
	if body.Name != nil {
		plan.Name = strings.TrimSpace(*body.Name)
	}
	if body.Description != nil {
		plan.Description = *body.Description
	}
	if body.DurationDays != nil {
		plan.DurationDays = *body.DurationDays
	}
	if body.BasePrice != nil {
		plan.BasePrice = *body.BasePrice
	}
	if body.DiscountedPrice != nil {
		plan.DiscountedPrice = *body.DiscountedPrice
	}
	if body.AdmissionFee != nil {
		plan.AdmissionFee = *body.AdmissionFee
	}
	if body.Features != nil {
		plan.Features = normalizeFeatures(*body.Features)
	}
	if body.SortOrder != nil {
		plan.SortOrder = *body.SortOrder
	}
	if body.IsEnabled != nil {
		plan.IsEnabled = *body.IsEnabled
	}

	if errUpdate := h.store.UpdatePlan(c.Request.Context(), &plan); errUpdate != nil {
		writeError(c, errUpdate, "update failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a plan no membership refers to.
func (h *PlanHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if errDelete := h.store.DeletePlan(c.Request.Context(), id); errDelete != nil {
		writeError(c, errDelete, "delete failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// Enable marks a plan as enabled.
func (h *PlanHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

// Disable marks a plan as disabled.
func (h *PlanHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *PlanHandler) setEnabled(c *gin.Context, enabled bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if errToggle := h.store.SetPlanEnabled(c.Request.Context(), id, enabled); errToggle != nil {
		writeError(c, errToggle, "update failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// formatPlan converts a plan model into a response payload with its current
// quote.
func formatPlan(p *models.Plan) gin.H {
	out := gin.H{
		"id":               p.ID,
		"name":             p.Name,
		"description":      p.Description,
		"duration_days":    p.DurationDays,
		"base_price":       p.BasePrice,
		"discounted_price": p.DiscountedPrice,
		"admission_fee":    p.AdmissionFee,
		"features":         p.Features,
		"sort_order":       p.SortOrder,
		"is_enabled":       p.IsEnabled,
		"created_at":       p.CreatedAt,
		"updated_at":       p.UpdatedAt,
	}
	if quote, errQuote := pricing.ComputeMembershipPrice(*p); errQuote == nil {
		out["amount_due"] = quote.AmountDue
	}
	return out
}
