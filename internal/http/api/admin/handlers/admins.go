package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	dbutil "github.com/router-for-me/GymDesk/internal/db"
	"github.com/router-for-me/GymDesk/internal/http/api/admin/permissions"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/security"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// minPasswordLength matches the first-run setup rule.
const minPasswordLength = 6

// AdminHandler manages front-desk staff accounts.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// createAdminRequest defines the request body for staff account creation.
type createAdminRequest struct {
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	Permissions  []string `json:"permissions"`
	IsSuperAdmin bool     `json:"is_super_admin"`
}

// Create adds a staff account with the given route permissions.
func (h *AdminHandler) Create(c *gin.Context) {
	var body createAdminRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	if len(body.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 6 characters"})
		return
	}
	perms, ok := marshalPermissions(c, body.Permissions)
	if !ok {
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	admin := models.Admin{
		Username:     username,
		Password:     hash,
		Permissions:  perms,
		IsSuperAdmin: body.IsSuperAdmin,
		Active:       true,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&admin).Error; errCreate != nil {
		if dbutil.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create admin failed"})
		return
	}
	c.JSON(http.StatusCreated, formatAdmin(&admin))
}

// List returns staff accounts, optionally filtered by username.
func (h *AdminHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Admin{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "username"), dbutil.ContainsPattern(h.db, search))
	}
	var rows []models.Admin
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list admins failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatAdmin(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"admins": out})
}

// Get returns a staff account by ID.
func (h *AdminHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).First(&admin, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatAdmin(&admin))
}

// updateAdminRequest defines the request body for staff account updates.
type updateAdminRequest struct {
	Permissions  *[]string `json:"permissions"`
	IsSuperAdmin *bool     `json:"is_super_admin"`
}

// Update changes a staff account's permissions.
func (h *AdminHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body updateAdminRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Permissions != nil {
		perms, okPerms := marshalPermissions(c, *body.Permissions)
		if !okPerms {
			return
		}
		updates["permissions"] = perms
	}
	if body.IsSuperAdmin != nil {
		if !*body.IsSuperAdmin && h.isSelf(c, id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot drop your own super admin role"})
			return
		}
		updates["is_super_admin"] = *body.IsSuperAdmin
	}
	h.applyUpdates(c, id, updates, "update failed")
}

// Disable blocks a staff account from signing in.
func (h *AdminHandler) Disable(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if h.isSelf(c, id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot disable yourself"})
		return
	}
	h.applyUpdates(c, id, map[string]any{"active": false, "updated_at": time.Now().UTC()}, "disable failed")
}

// Enable lets a staff account sign in again.
func (h *AdminHandler) Enable(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	h.applyUpdates(c, id, map[string]any{"active": true, "updated_at": time.Now().UTC()}, "enable failed")
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	Password string `json:"password"`
}

// ChangePassword replaces a staff account's password.
func (h *AdminHandler) ChangePassword(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 6 characters"})
		return
	}
	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	h.applyUpdates(c, id, map[string]any{"password": hash, "updated_at": time.Now().UTC()}, "change password failed")
}

func (h *AdminHandler) applyUpdates(c *gin.Context, id uint64, updates map[string]any, failure string) {
	res := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": failure})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *AdminHandler) isSelf(c *gin.Context, id uint64) bool {
	self := adminIDFromContext(c)
	return self != nil && *self == id
}

// marshalPermissions validates permission keys, writing a 400 when one is
// unknown.
func marshalPermissions(c *gin.Context, perms []string) (datatypes.JSON, bool) {
	if errValidate := permissions.ValidatePermissions(perms); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return nil, false
	}
	raw, errMarshal := permissions.MarshalPermissions(perms)
	if errMarshal != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid permissions"})
		return nil, false
	}
	return datatypes.JSON(raw), true
}

// formatAdmin converts a staff account into a response payload without its
// password hash.
func formatAdmin(a *models.Admin) gin.H {
	return gin.H{
		"id":             a.ID,
		"username":       a.Username,
		"permissions":    permissions.ParsePermissions(a.Permissions),
		"is_super_admin": a.IsSuperAdmin,
		"active":         a.Active,
		"created_at":     a.CreatedAt,
		"updated_at":     a.UpdatedAt,
	}
}
