package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/store"
	log "github.com/sirupsen/logrus"
)

// parseIDParam reads a numeric path parameter, writing a 400 when it is bad.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// pageFromQuery reads page and limit query parameters.
func pageFromQuery(c *gin.Context) store.Page {
	page, _ := strconv.Atoi(strings.TrimSpace(c.Query("page")))
	limit, _ := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	return store.Page{Page: page, Limit: limit}.Normalize()
}

// adminIDFromContext returns the signed-in admin id, or nil.
func adminIDFromContext(c *gin.Context) *uint64 {
	raw, ok := c.Get("adminID")
	if !ok {
		return nil
	}
	id, ok := raw.(uint64)
	if !ok || id == 0 {
		return nil
	}
	return &id
}

// statusForError maps domain failures to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, billing.ErrPlanNotFound),
		errors.Is(err, billing.ErrMembershipNotFound),
		errors.Is(err, billing.ErrMemberNotFound),
		errors.Is(err, billing.ErrPaymentNotFound),
		errors.Is(err, billing.ErrAttendanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrMembershipCancelled),
		errors.Is(err, billing.ErrConcurrentModification),
		errors.Is(err, billing.ErrDuplicateInvoice),
		errors.Is(err, billing.ErrDuplicateMember),
		errors.Is(err, billing.ErrPlanInUse):
		return http.StatusConflict
	case errors.Is(err, billing.ErrInvalidAmount),
		errors.Is(err, billing.ErrInvalidPlanData),
		errors.Is(err, billing.ErrInvalidMemberData),
		errors.Is(err, billing.ErrInvalidEntry),
		errors.Is(err, billing.ErrInvalidAttendance),
		errors.Is(err, billing.ErrInvalidStateTransition),
		errors.Is(err, billing.ErrNoBalanceDue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error. Internal failures are logged and
// hidden behind fallback.
func writeError(c *gin.Context, err error, fallback string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error(fallback)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
