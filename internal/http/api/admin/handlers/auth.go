package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/config"
	"github.com/router-for-me/GymDesk/internal/http/api/admin/permissions"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler signs admins in.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

// loginRequest captures admin credentials.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks credentials and returns a signed admin token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	var admin models.Admin
	errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&admin).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.WithError(errFind).Error("admin login: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if !security.CheckPassword(admin.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
		return
	}

	token, expiresAt, errIssue := security.IssueAdminToken(h.jwtCfg.Secret, admin.ID, admin.Username, h.jwtCfg.Expiry)
	if errIssue != nil {
		log.WithError(errIssue).Error("admin login: issue token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"expires_at":     expiresAt,
		"username":       admin.Username,
		"is_super_admin": admin.IsSuperAdmin,
		"permissions":    permissions.ParsePermissions(admin.Permissions),
	})
}

// PermissionHandler lists the permission catalogue.
type PermissionHandler struct{}

// NewPermissionHandler constructs a permission handler.
func NewPermissionHandler() *PermissionHandler {
	return &PermissionHandler{}
}

// List returns every permission definition.
func (h *PermissionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"permissions": permissions.Definitions()})
}

// HealthHandler reports database reachability.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a health handler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz pings the database.
func (h *HealthHandler) Healthz(c *gin.Context) {
	sqlDB, errDB := h.db.DB()
	if errDB == nil {
		errDB = sqlDB.PingContext(c.Request.Context())
	}
	if errDB != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
