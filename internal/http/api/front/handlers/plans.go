package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/pricing"
	"github.com/router-for-me/GymDesk/internal/store"
	log "github.com/sirupsen/logrus"
)

// PlanFrontHandler serves the public plan catalogue.
type PlanFrontHandler struct {
	store *store.Store
}

// NewPlanFrontHandler constructs a PlanFrontHandler.
func NewPlanFrontHandler(st *store.Store) *PlanFrontHandler {
	return &PlanFrontHandler{store: st}
}

// List returns enabled plans with what a new member would pay.
func (h *PlanFrontHandler) List(c *gin.Context) {
	plans, errList := h.store.ListPlans(c.Request.Context(), true)
	if errList != nil {
		log.WithError(errList).Error("front: list plans failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}

	out := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		quote, errQuote := pricing.ComputeMembershipPrice(plan)
		if errQuote != nil {
			continue
		}
		out = append(out, gin.H{
			"id":               plan.ID,
			"name":             plan.Name,
			"description":      plan.Description,
			"duration_days":    plan.DurationDays,
			"base_price":       plan.BasePrice,
			"discounted_price": plan.DiscountedPrice,
			"admission_fee":    plan.AdmissionFee,
			"amount_due":       quote.AmountDue,
			"features":         plan.Features,
			"sort_order":       plan.SortOrder,
		})
	}

	c.JSON(http.StatusOK, gin.H{"plans": out})
}
