package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/models"
	internalsettings "github.com/router-for-me/GymDesk/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingHandler manages admin CRUD for settings values.
type SettingHandler struct {
	db *gorm.DB // Database handle for settings.
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// createSettingRequest captures the payload for creating a setting.
type createSettingRequest struct {
	Key   string          `json:"key"`   // Setting key.
	Value json.RawMessage `json:"value"` // JSON value payload.
}

var positiveIntSettingKeys = map[string]struct{}{
	internalsettings.SweepIntervalSecondsKey:   {},
	internalsettings.ReceiptRatePerSecondKey:   {},
	internalsettings.RateLimitWindowSecondsKey: {},
}

var nonNegativeIntSettingKeys = map[string]struct{}{
	internalsettings.RateLimitKey:        {},
	internalsettings.RateLimitRedisDBKey: {},
}

// seededSettingKeys are written by migrations and read by the desk at
// runtime. They can be changed but not removed.
var seededSettingKeys = map[string]struct{}{
	internalsettings.SiteNameKey:               {},
	internalsettings.SweepIntervalSecondsKey:   {},
	internalsettings.ReceiptRatePerSecondKey:   {},
	internalsettings.RateLimitKey:              {},
	internalsettings.RateLimitWindowSecondsKey: {},
}

var (
	errPositiveIntegerValue    = errors.New("value must be a positive integer")
	errNonNegativeIntegerValue = errors.New("value must be a non-negative integer")
	errSiteNameValue           = errors.New("site name must be a non-empty string")
	errBoolValue               = errors.New("value must be a boolean")
)

// Create validates and inserts a setting, then refreshes the snapshot.
func (h *SettingHandler) Create(c *gin.Context) {
	var body createSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	key := strings.TrimSpace(body.Key)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	var existing models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Where("key = ?", key).First(&existing).Error; errFind == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "key already exists"})
		return
	}

	setting := models.Setting{Key: key, Value: body.Value}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&setting).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create setting failed"})
		return
	}
	if !h.refresh(c) {
		return
	}
	c.JSON(http.StatusCreated, formatSetting(&setting))
}

// List returns all settings sorted by key.
func (h *SettingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatSetting(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Get returns a setting by key.
func (h *SettingHandler) Get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	var setting models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Where("key = ?", key).First(&setting).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatSetting(&setting))
}

// updateSettingRequest captures the payload for updating a setting.
type updateSettingRequest struct {
	Value json.RawMessage `json:"value"` // New JSON value.
}

// Update updates a setting value and refreshes the snapshot.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.Setting{}).Where("key = ?", key).
		Update("value", body.Value)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if !h.refresh(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a setting and refreshes the snapshot.
func (h *SettingHandler) Delete(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	if _, seeded := seededSettingKeys[key]; seeded {
		c.JSON(http.StatusConflict, gin.H{"error": "built-in setting cannot be deleted"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("key = ?", key).Delete(&models.Setting{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if !h.refresh(c) {
		return
	}
	c.Status(http.StatusNoContent)
}

// refresh rebuilds the in-memory snapshot, writing a 500 on failure.
func (h *SettingHandler) refresh(c *gin.Context) bool {
	if errRefresh := internalsettings.Refresh(c.Request.Context(), h.db); errRefresh != nil {
		log.WithError(errRefresh).Error("settings: refresh snapshot failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return false
	}
	return true
}

func validateSettingValue(key string, value json.RawMessage) error {
	switch key {
	case internalsettings.SiteNameKey:
		if name, ok := internalsettings.ParseString(value); !ok || strings.TrimSpace(name) == "" {
			return errSiteNameValue
		}
		return nil
	case internalsettings.RateLimitRedisEnabledKey:
		if _, ok := internalsettings.ParseBool(value); !ok {
			return errBoolValue
		}
		return nil
	}
	if _, ok := positiveIntSettingKeys[key]; ok {
		if parsed, okParse := internalsettings.ParseNonNegativeInt(value); !okParse || parsed == 0 {
			return errPositiveIntegerValue
		}
		return nil
	}
	if _, ok := nonNegativeIntSettingKeys[key]; ok {
		if _, okParse := internalsettings.ParseNonNegativeInt(value); !okParse {
			return errNonNegativeIntegerValue
		}
	}
	return nil
}

// formatSetting formats a setting row into response JSON.
func formatSetting(s *models.Setting) gin.H {
	return gin.H{
		"key":        s.Key,
		"value":      s.Value,
		"updated_at": s.UpdatedAt,
	}
}
