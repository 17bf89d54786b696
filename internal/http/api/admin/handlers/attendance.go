package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/store"
)

// AttendanceHandler records member check-ins and check-outs.
type AttendanceHandler struct {
	store *store.Store
	now   func() time.Time
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(st *store.Store) *AttendanceHandler {
	return &AttendanceHandler{store: st, now: time.Now}
}

// createAttendanceRequest captures a check-in.
type createAttendanceRequest struct {
	MemberID uint64     `json:"member_id"`
	CheckIn  *time.Time `json:"check_in"`  // Defaults to now.
	CheckOut *time.Time `json:"check_out"` // Set when logging a past visit.
	Notes    string     `json:"notes"`
}

// Create checks a member in.
func (h *AttendanceHandler) Create(c *gin.Context) {
	var body createAttendanceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	record := models.Attendance{
		MemberID: body.MemberID,
		CheckIn:  h.now().UTC(),
		CheckOut: utcPtr(body.CheckOut),
		Notes:    body.Notes,
	}
	if body.CheckIn != nil {
		record.CheckIn = body.CheckIn.UTC()
	}
	if errCreate := h.store.CreateAttendance(c.Request.Context(), &record); errCreate != nil {
		writeError(c, errCreate, "create attendance failed")
		return
	}
	h.respond(c, http.StatusCreated, record.ID)
}

// List returns visits, latest first. Optional filters: member_id, from and
// to (RFC 3339 or YYYY-MM-DD, to is inclusive for dates) and status=open.
func (h *AttendanceHandler) List(c *gin.Context) {
	query := store.AttendanceQuery{Page: pageFromQuery(c)}
	if raw := strings.TrimSpace(c.Query("member_id")); raw != "" {
		id, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member_id"})
			return
		}
		query.MemberID = id
	}
	var ok bool
	if query.From, ok = timeQuery(c, "from", false); !ok {
		return
	}
	if query.To, ok = timeQuery(c, "to", true); !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(c.Query("status"))) {
	case "", "all":
	case "open":
		query.OpenOnly = true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	rows, total, errList := h.store.ListAttendance(c.Request.Context(), query)
	if errList != nil {
		writeError(c, errList, "list attendance failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatAttendance(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"attendance": out, "total": total})
}

// Get returns an attendance record by ID.
func (h *AttendanceHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, id)
}

// updateAttendanceRequest captures optional edits to a visit.
type updateAttendanceRequest struct {
	CheckIn  *time.Time `json:"check_in"`
	CheckOut *time.Time `json:"check_out"`
	Notes    *string    `json:"notes"`
}

// Update edits a visit. Setting check_out checks the member out and records
// the visit length.
func (h *AttendanceHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body updateAttendanceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	record, errGet := h.store.GetAttendance(c.Request.Context(), id)
	if errGet != nil {
		writeError(c, errGet, "query failed")
		return
	}
	if body.CheckIn != nil {
		record.CheckIn = body.CheckIn.UTC()
	}
	if body.CheckOut != nil {
		record.CheckOut = utcPtr(body.CheckOut)
	}
	if body.Notes != nil {
		record.Notes = *body.Notes
	}
	h.save(c, &record)
}

// CheckOut stamps the current time as the departure of an open visit.
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	record, errGet := h.store.GetAttendance(c.Request.Context(), id)
	if errGet != nil {
		writeError(c, errGet, "query failed")
		return
	}
	if !record.IsOpen() {
		c.JSON(http.StatusConflict, gin.H{"error": "member already checked out"})
		return
	}
	now := h.now().UTC()
	record.CheckOut = &now
	h.save(c, &record)
}

// Delete removes an attendance record.
func (h *AttendanceHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if errDelete := h.store.DeleteAttendance(c.Request.Context(), id); errDelete != nil {
		writeError(c, errDelete, "delete failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AttendanceHandler) save(c *gin.Context, record *models.Attendance) {
	if errUpdate := h.store.UpdateAttendance(c.Request.Context(), record); errUpdate != nil {
		writeError(c, errUpdate, "update attendance failed")
		return
	}
	h.respond(c, http.StatusOK, record.ID)
}

func (h *AttendanceHandler) respond(c *gin.Context, status int, id uint64) {
	record, errGet := h.store.GetAttendance(c.Request.Context(), id)
	if errGet != nil {
		writeError(c, errGet, "query failed")
		return
	}
	c.JSON(status, formatAttendance(&record))
}

// timeQuery parses an optional time filter. A bare date used as an upper
// bound covers the whole day.
func timeQuery(c *gin.Context, name string, upper bool) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	if at, errParse := time.Parse(time.RFC3339, raw); errParse == nil {
		at = at.UTC()
		return &at, true
	}
	day, errParse := time.Parse(time.DateOnly, raw)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	if upper {
		day = day.AddDate(0, 0, 1)
	}
	return &day, true
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// formatAttendance converts a visit into a response payload.
func formatAttendance(a *models.Attendance) gin.H {
	out := gin.H{
		"id":               a.ID,
		"member_id":        a.MemberID,
		"check_in":         a.CheckIn,
		"check_out":        a.CheckOut,
		"duration_minutes": a.DurationMinutes,
		"notes":            a.Notes,
		"created_at":       a.CreatedAt,
		"updated_at":       a.UpdatedAt,
	}
	if a.Member != nil && a.Member.ID != 0 {
		out["member"] = gin.H{
			"id":          a.Member.ID,
			"member_code": a.Member.MemberCode,
			"name":        a.Member.Name,
			"email":       a.Member.Email,
		}
	}
	return out
}
