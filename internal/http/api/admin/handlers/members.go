package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/reconcile"
	"github.com/router-for-me/GymDesk/internal/store"
	"github.com/shopspring/decimal"
)

// MemberHandler manages member registration and profiles.
type MemberHandler struct {
	store  *store.Store
	engine *reconcile.Engine
}

// NewMemberHandler constructs a member handler.
func NewMemberHandler(st *store.Store, engine *reconcile.Engine) *MemberHandler {
	return &MemberHandler{store: st, engine: engine}
}

// enrollmentFields is the optional plan part of member payloads.
type enrollmentFields struct {
	PlanID         *uint64         `json:"plan_id"`         // Plan to enroll on.
	StartDate      *time.Time      `json:"start_date"`      // Defaults to now.
	InitialPayment decimal.Decimal `json:"initial_payment"` // Amount paid upfront.
	PaymentMethod  string          `json:"payment_method"`  // cash, online, other.
	Notes          string          `json:"notes"`           // Staff notes.
}

func (f enrollmentFields) request(c *gin.Context, memberID uint64) (reconcile.EnrollRequest, error) {
	method, errMethod := parseMethod(f.PaymentMethod)
	if errMethod != nil {
		return reconcile.EnrollRequest{}, errMethod
	}
	req := reconcile.EnrollRequest{
		MemberID:       memberID,
		PlanID:         *f.PlanID,
		InitialPayment: f.InitialPayment,
		Method:         method,
		Notes:          strings.TrimSpace(f.Notes),
		CreatedBy:      adminIDFromContext(c),
	}
	if f.StartDate != nil {
		req.StartDate = f.StartDate.UTC()
	}
	return req, nil
}

// parseMethod defaults an empty payment method to cash.
func parseMethod(raw string) (models.PaymentMethod, error) {
	if strings.TrimSpace(raw) == "" {
		return models.PaymentMethodCash, nil
	}
	method, ok := models.ParsePaymentMethod(raw)
	if !ok {
		return "", errors.New("invalid payment_method")
	}
	return method, nil
}

// createMemberRequest captures the payload for registering a member.
type createMemberRequest struct {
	Name                  string     `json:"name"`
	Email                 string     `json:"email"`
	Phone                 string     `json:"phone"`
	Address               string     `json:"address"`
	Gender                string     `json:"gender"`
	DateOfBirth           *time.Time `json:"date_of_birth"`
	JoiningDate           *time.Time `json:"joining_date"`
	EmergencyContactName  string     `json:"emergency_contact_name"`
	EmergencyContactPhone string     `json:"emergency_contact_phone"`
	HealthNotes           string     `json:"health_notes"`
	enrollmentFields
}

// Create registers a member and, when a plan is given, enrolls them.
func (h *MemberHandler) Create(c *gin.Context) {
	var body createMemberRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	joining := time.Now().UTC()
	if body.JoiningDate != nil {
		joining = body.JoiningDate.UTC()
	}
	member := models.Member{
		Name:                  body.Name,
		Email:                 strings.TrimSpace(body.Email),
		Phone:                 body.Phone,
		Address:               body.Address,
		Gender:                body.Gender,
		DateOfBirth:           body.DateOfBirth,
		JoiningDate:           joining,
		EmergencyContactName:  body.EmergencyContactName,
		EmergencyContactPhone: body.EmergencyContactPhone,
		HealthNotes:           body.HealthNotes,
	}

	var enroll *reconcile.EnrollRequest
	if body.PlanID != nil {
		req, errReq := body.enrollmentFields.request(c, 0)
		if errReq != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errReq.Error()})
			return
		}
		enroll = &req
	}

	created, result, errRegister := h.engine.RegisterMember(c.Request.Context(), member, enroll)
	if errRegister != nil {
		writeError(c, errRegister, "create member failed")
		return
	}
	out := gin.H{"member": formatMember(&created)}
	if result != nil {
		out["membership"] = formatMembership(&result.Membership)
		if result.Payment != nil {
			out["payment"] = formatPayment(result.Payment)
		}
	}
	c.JSON(http.StatusCreated, out)
}

// List searches members by name, phone or member code.
func (h *MemberHandler) List(c *gin.Context) {
	query := store.MemberQuery{
		Search: c.Query("search"),
		Page:   pageFromQuery(c),
	}
	switch strings.ToLower(strings.TrimSpace(c.Query("status"))) {
	case "active":
		query.Status = models.MemberStatusActive
	case "inactive":
		query.Status = models.MemberStatusInactive
	}

	rows, total, errList := h.store.ListMembers(c.Request.Context(), query)
	if errList != nil {
		writeError(c, errList, "list members failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatMember(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"members": out, "total": total})
}

// NextCode previews the member code the next registration will get.
func (h *MemberHandler) NextCode(c *gin.Context) {
	code, errPeek := h.store.PeekMemberCode(c.Request.Context())
	if errPeek != nil {
		writeError(c, errPeek, "next member code failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"member_code": code})
}

// Get returns a member with their current membership.
func (h *MemberHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	member, errGet := h.store.GetMember(c.Request.Context(), id)
	if errGet != nil {
		writeError(c, errGet, "query failed")
		return
	}
	out := gin.H{"member": formatMember(&member)}
	if member.MembershipID != nil {
		membership, errMembership := h.store.GetMembershipDetail(c.Request.Context(), *member.MembershipID)
		if errMembership == nil {
			out["membership"] = formatMembership(&membership)
			out["balance"] = formatBalance(reconcile.BalanceOf(membership))
		} else if !errors.Is(errMembership, billing.ErrMembershipNotFound) {
			writeError(c, errMembership, "query failed")
			return
		}
	}
	c.JSON(http.StatusOK, out)
}

// updateMemberRequest captures optional profile updates and an optional plan
// change.
type updateMemberRequest struct {
	Name                  *string    `json:"name"`
	Email                 *string    `json:"email"`
	Phone                 *string    `json:"phone"`
	Address               *string    `json:"address"`
	Gender                *string    `json:"gender"`
	DateOfBirth           *time.Time `json:"date_of_birth"`
	JoiningDate           *time.Time `json:"joining_date"`
	EmergencyContactName  *string    `json:"emergency_contact_name"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone"`
	HealthNotes           *string    `json:"health_notes"`
	Status                *string    `json:"status"`
	enrollmentFields
}

// Update saves profile changes. A plan_id different from the current plan
// opens a new membership on that plan.
func (h *MemberHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body updateMemberRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	member, errGet := h.store.GetMember(ctx, id)
	if errGet != nil {
		writeError(c, errGet, "query failed")
		return
	}
	applyMemberUpdates(&member, &body)
	if body.Status != nil {
		switch strings.ToLower(strings.TrimSpace(*body.Status)) {
		case "active":
			member.Status = models.MemberStatusActive
		case "inactive":
			member.Status = models.MemberStatusInactive
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
	}
	if errUpdate := h.store.UpdateMember(ctx, &member); errUpdate != nil {
		writeError(c, errUpdate, "update failed")
		return
	}

	out := gin.H{"member": formatMember(&member)}
	if body.PlanID != nil && h.planChanged(c, member, *body.PlanID) {
		req, errReq := body.enrollmentFields.request(c, member.ID)
		if errReq != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errReq.Error()})
			return
		}
		result, errChange := h.engine.ChangePlan(ctx, req)
		if errChange != nil {
			writeError(c, errChange, "change plan failed")
			return
		}
		out["member"] = formatMember(&result.Membership.Member)
		out["membership"] = formatMembership(&result.Membership)
		if result.Payment != nil {
			out["payment"] = formatPayment(result.Payment)
		}
	}
	c.JSON(http.StatusOK, out)
}

// planChanged reports whether planID differs from the member's current plan.
func (h *MemberHandler) planChanged(c *gin.Context, member models.Member, planID uint64) bool {
	if member.MembershipID == nil {
		return true
	}
	current, errGet := h.store.GetMembership(c.Request.Context(), *member.MembershipID)
	if errGet != nil {
		return true
	}
	return current.PlanID != planID
}

func applyMemberUpdates(member *models.Member, body *updateMemberRequest) {
	if body.Name != nil {
		member.Name = *body.Name
	}
	if body.Email != nil {
		member.Email = *body.Email
	}
	if body.Phone != nil {
		member.Phone = *body.Phone
	}
	if body.Address != nil {
		member.Address = *body.Address
	}
	if body.Gender != nil {
		member.Gender = *body.Gender
	}
	if body.DateOfBirth != nil {
		dob := body.DateOfBirth.UTC()
		member.DateOfBirth = &dob
	}
	if body.JoiningDate != nil {
		member.JoiningDate = body.JoiningDate.UTC()
	}
	if body.EmergencyContactName != nil {
		member.EmergencyContactName = *body.EmergencyContactName
	}
	if body.EmergencyContactPhone != nil {
		member.EmergencyContactPhone = *body.EmergencyContactPhone
	}
	if body.HealthNotes != nil {
		member.HealthNotes = *body.HealthNotes
	}
}

// formatMember converts a member model into a response payload.
func formatMember(m *models.Member) gin.H {
	return gin.H{
		"id":                      m.ID,
		"member_code":             m.MemberCode,
		"name":                    m.Name,
		"email":                   m.Email,
		"phone":                   m.Phone,
		"address":                 m.Address,
		"gender":                  m.Gender,
		"date_of_birth":           m.DateOfBirth,
		"joining_date":            m.JoiningDate,
		"emergency_contact_name":  m.EmergencyContactName,
		"emergency_contact_phone": m.EmergencyContactPhone,
		"health_notes":            m.HealthNotes,
		"membership_id":           m.MembershipID,
		"status":                  m.Status.String(),
		"created_at":              m.CreatedAt,
		"updated_at":              m.UpdatedAt,
	}
}
