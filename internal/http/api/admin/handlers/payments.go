package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/ledger"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/reconcile"
	"github.com/router-for-me/GymDesk/internal/store"
	"github.com/shopspring/decimal"
)

// PaymentHandler serves the payment ledger.
type PaymentHandler struct {
	store  *store.Store
	engine *reconcile.Engine
}

// NewPaymentHandler constructs a payment handler.
func NewPaymentHandler(st *store.Store, engine *reconcile.Engine) *PaymentHandler {
	return &PaymentHandler{store: st, engine: engine}
}

// List returns ledger entries newest first.
func (h *PaymentHandler) List(c *gin.Context) {
	query := store.PaymentQuery{
		Search: c.Query("search"),
		Page:   pageFromQuery(c),
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" && raw != "all" {
		kind, ok := models.ParsePaymentType(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
			return
		}
		query.Type = kind
	}
	switch models.TransactionType(strings.ToLower(strings.TrimSpace(c.Query("transaction_type")))) {
	case models.TransactionCredit:
		query.TransactionType = models.TransactionCredit
	case models.TransactionDebit:
		query.TransactionType = models.TransactionDebit
	}
	for name, dst := range map[string]*uint64{"member_id": &query.MemberID, "membership_id": &query.MembershipID} {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		id, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
			return
		}
		*dst = id
	}

	rows, total, errList := h.store.ListPayments(c.Request.Context(), query)
	if errList != nil {
		writeError(c, errList, "list payments failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatPayment(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"payments": out, "total": total})
}

// Get returns a payment by ID.
func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	payment, errGet := h.store.GetPayment(c.Request.Context(), id)
	if errGet != nil {
		writeError(c, errGet, "query failed")
		return
	}
	c.JSON(http.StatusOK, formatPayment(&payment))
}

// createEntryRequest captures a manual income or expense entry.
type createEntryRequest struct {
	MemberID        *uint64           `json:"member_id"`
	Amount          decimal.Decimal   `json:"amount"`
	PaymentMethod   string            `json:"payment_method"`
	Type            string            `json:"type"`
	TransactionType string            `json:"transaction_type"`
	LineItems       []models.LineItem `json:"line_items"`
	Notes           string            `json:"notes"`
}

// Create records a manual ledger entry such as a product sale or a salary
// payout.
func (h *PaymentHandler) Create(c *gin.Context) {
	var body createEntryRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	method, errMethod := parseMethod(body.PaymentMethod)
	if errMethod != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMethod.Error()})
		return
	}
	kind, ok := models.ParsePaymentType(body.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
		return
	}

	entry := ledger.Entry{
		MemberID:        body.MemberID,
		Amount:          body.Amount,
		Method:          method,
		Type:            kind,
		TransactionType: models.TransactionType(strings.ToLower(strings.TrimSpace(body.TransactionType))),
		LineItems:       body.LineItems,
		Notes:           body.Notes,
		CreatedBy:       adminIDFromContext(c),
	}
	payment, errRecord := h.engine.RecordEntry(c.Request.Context(), entry)
	if errRecord != nil {
		writeError(c, errRecord, "record entry failed")
		return
	}
	c.JSON(http.StatusCreated, formatPayment(&payment))
}

// formatPayment converts a ledger entry into a response payload.
func formatPayment(p *models.Payment) gin.H {
	if p == nil {
		return nil
	}
	out := gin.H{
		"id":               p.ID,
		"membership_id":    p.MembershipID,
		"member_id":        p.MemberID,
		"amount":           p.Amount,
		"payment_method":   p.Method,
		"type":             p.Type,
		"transaction_type": p.TransactionType,
		"status":           p.Status,
		"invoice_number":   p.InvoiceNumber,
		"line_items":       p.LineItems,
		"notes":            p.Notes,
		"created_by":       p.CreatedBy,
		"created_at":       p.CreatedAt,
	}
	if p.Member != nil && p.Member.ID != 0 {
		out["member"] = gin.H{
			"id":          p.Member.ID,
			"member_code": p.Member.MemberCode,
			"name":        p.Member.Name,
		}
	}
	return out
}
