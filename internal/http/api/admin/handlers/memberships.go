package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/ratelimit"
	"github.com/router-for-me/GymDesk/internal/reconcile"
	"github.com/router-for-me/GymDesk/internal/store"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// IdempotencyKeyHeader carries the client-chosen key of a payment submission.
const IdempotencyKeyHeader = "Idempotency-Key"

// MembershipHandler serves membership listing, balances and payment
// collection.
type MembershipHandler struct {
	store   *store.Store
	engine  *reconcile.Engine
	limiter *ratelimit.Manager
	now     func() time.Time
}

// NewMembershipHandler constructs a membership handler. limiter may be nil.
func NewMembershipHandler(st *store.Store, engine *reconcile.Engine, limiter *ratelimit.Manager) *MembershipHandler {
	return &MembershipHandler{store: st, engine: engine, limiter: limiter, now: time.Now}
}

// List sweeps expirations, then lists memberships ordered by end date.
func (h *MembershipHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	if _, errSweep := h.engine.SweepExpirations(ctx, h.now()); errSweep != nil {
		writeError(c, errSweep, "sweep expirations failed")
		return
	}

	query := store.MembershipQuery{
		Search: c.Query("search"),
		Page:   pageFromQuery(c),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" && raw != "all" {
		status, ok := models.ParseMembershipStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		query.Status = status
	}
	if raw := strings.TrimSpace(c.Query("member_id")); raw != "" {
		memberID, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member_id"})
			return
		}
		query.MemberID = memberID
	}

	rows, total, errList := h.store.ListMemberships(ctx, query)
	if errList != nil {
		writeError(c, errList, "list memberships failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatMembership(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"memberships": out, "total": total})
}

// Get returns a membership with its member and plan.
func (h *MembershipHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	membership, errGet := h.store.GetMembershipDetail(c.Request.Context(), id)
	if errGet != nil {
		writeError(c, errGet, "query failed")
		return
	}
	c.JSON(http.StatusOK, formatMembership(&membership))
}

// Balance returns what is owed on a membership.
func (h *MembershipHandler) Balance(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	balance, errBalance := h.engine.GetMembershipBalance(c.Request.Context(), id)
	if errBalance != nil {
		writeError(c, errBalance, "query failed")
		return
	}
	c.JSON(http.StatusOK, formatBalance(balance))
}

// Periods lists the closed billing periods of a membership.
func (h *MembershipHandler) Periods(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, errGet := h.store.GetMembership(c.Request.Context(), id); errGet != nil {
		writeError(c, errGet, "query failed")
		return
	}
	periods, errList := h.store.ListPeriods(c.Request.Context(), id)
	if errList != nil {
		writeError(c, errList, "list periods failed")
		return
	}
	out := make([]gin.H, 0, len(periods))
	for _, p := range periods {
		out = append(out, gin.H{
			"id":          p.ID,
			"plan_id":     p.PlanID,
			"start_date":  p.StartDate,
			"end_date":    p.EndDate,
			"amount_due":  p.AmountDue,
			"amount_paid": p.AmountPaid,
			"reason":      p.Reason,
			"closed_at":   p.ClosedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"periods": out})
}

// collectPaymentRequest captures a payment against a membership.
type collectPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`         // Amount received.
	PaymentMethod string          `json:"payment_method"` // cash, online, other.
	Notes         string          `json:"notes"`          // Staff notes.
}

// CollectPayment renews an expired membership or tops up a pending one.
func (h *MembershipHandler) CollectPayment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body collectPaymentRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	method, errMethod := parseMethod(body.PaymentMethod)
	if errMethod != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMethod.Error()})
		return
	}
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if key != "" {
		if _, errUUID := uuid.Parse(key); errUUID != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key must be a UUID"})
			return
		}
	}

	adminID := adminIDFromContext(c)
	if !h.allow(c, adminID, id) {
		return
	}

	result, errCollect := h.engine.CollectPayment(c.Request.Context(), reconcile.CollectRequest{
		MembershipID:   id,
		Amount:         body.Amount,
		Method:         method,
		Notes:          strings.TrimSpace(body.Notes),
		CreatedBy:      adminID,
		IdempotencyKey: key,
	})
	if errCollect != nil {
		writeError(c, errCollect, "collect payment failed")
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"membership": formatMembership(&result.Membership),
		"payment":    formatPayment(result.Payment),
		"balance":    formatBalance(reconcile.BalanceOf(result.Membership)),
		"replayed":   result.Replayed,
	})
}

// allow applies the payment collection rate limit, writing a 429 when the
// caller is over it.
func (h *MembershipHandler) allow(c *gin.Context, adminID *uint64, membershipID uint64) bool {
	if h.limiter == nil || adminID == nil {
		return true
	}
	decision := ratelimit.ResolveLimit(*adminID, membershipID)
	key := ratelimit.KeyForDecision(*adminID, decision)
	if key == "" {
		return true
	}
	result, errAllow := h.limiter.Allow(c.Request.Context(), key, decision.Window)
	if errAllow != nil {
		log.WithError(errAllow).Warn("rate limit: check failed")
		return true
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Window.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if !result.Allowed {
		retry := int(math.Ceil(result.Reset.Sub(h.now()).Seconds()))
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many payment submissions"})
		return false
	}
	return true
}

// Sweep expires overdue memberships now.
func (h *MembershipHandler) Sweep(c *gin.Context) {
	swept, errSweep := h.engine.SweepExpirations(c.Request.Context(), h.now())
	if errSweep != nil {
		writeError(c, errSweep, "sweep expirations failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": swept})
}

// formatMembership converts a membership into a response payload.
func formatMembership(m *models.Membership) gin.H {
	out := gin.H{
		"id":                     m.ID,
		"member_id":              m.MemberID,
		"plan_id":                m.PlanID,
		"start_date":             m.StartDate,
		"end_date":               m.EndDate,
		"amount_due":             m.AmountDue,
		"amount_paid":            m.AmountPaid,
		"credit":                 m.Credit,
		"admission_fee_included": m.AdmissionFeeIncluded,
		"status":                 m.Status.String(),
		"version":                m.Version,
		"last_payment_id":        m.LastPaymentID,
		"notes":                  m.Notes,
		"created_by":             m.CreatedBy,
		"created_at":             m.CreatedAt,
		"updated_at":             m.UpdatedAt,
	}
	if m.Member.ID != 0 {
		out["member"] = gin.H{
			"id":          m.Member.ID,
			"member_code": m.Member.MemberCode,
			"name":        m.Member.Name,
			"phone":       m.Member.Phone,
			"email":       m.Member.Email,
		}
	}
	if m.Plan.ID != 0 {
		out["plan"] = gin.H{
			"id":            m.Plan.ID,
			"name":          m.Plan.Name,
			"duration_days": m.Plan.DurationDays,
		}
	}
	return out
}

func formatBalance(b reconcile.Balance) gin.H {
	return gin.H{
		"amount_due":  b.AmountDue,
		"amount_paid": b.AmountPaid,
		"remaining":   b.Remaining,
		"credit":      b.Credit,
		"status":      b.Status.String(),
	}
}
