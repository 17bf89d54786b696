package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/GymDesk/internal/models"
	"gorm.io/gorm"
)

type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var (
	snapshotMu sync.RWMutex
	current    = snapshot{values: map[string]json.RawMessage{}}
)

// StoreDBConfig replaces the in-memory settings snapshot.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	copied := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		copied[key] = append(json.RawMessage(nil), value...)
	}
	snapshotMu.Lock()
	current = snapshot{updatedAt: updatedAt, values: copied}
	snapshotMu.Unlock()
}

// DBConfigValue returns the raw JSON value of a setting from the snapshot.
func DBConfigValue(key string) (json.RawMessage, bool) {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	value, ok := current.values[key]
	return value, ok
}

// DBConfigUpdatedAt returns the newest update time seen in the snapshot.
func DBConfigUpdatedAt() time.Time {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	return current.updatedAt
}

// Refresh rebuilds the snapshot from the settings table.
func Refresh(ctx context.Context, conn *gorm.DB) error {
	var rows []models.Setting
	if errFind := conn.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = row.Value
		if rowUpdatedAt := row.UpdatedAt.UTC(); rowUpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = rowUpdatedAt
		}
	}
	StoreDBConfig(maxUpdatedAt, values)
	return nil
}

// IntValue reads a non-negative integer setting, falling back to def.
func IntValue(key string, def int) int {
	if raw, ok := DBConfigValue(key); ok {
		if parsed, okParse := ParseNonNegativeInt(raw); okParse {
			return parsed
		}
	}
	return def
}

// StringValue reads a non-empty string setting, falling back to def.
func StringValue(key, def string) string {
	if raw, ok := DBConfigValue(key); ok {
		if parsed, okParse := ParseString(raw); okParse && parsed != "" {
			return parsed
		}
	}
	return def
}

// ParseBool accepts JSON booleans, common truthy strings and 0/1.
func ParseBool(raw json.RawMessage) (bool, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false, false
	}
	var parsedBool bool
	if errUnmarshalBool := json.Unmarshal(raw, &parsedBool); errUnmarshalBool == nil {
		return parsedBool, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		switch strings.ToLower(strings.TrimSpace(parsedString)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		default:
			return false, false
		}
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		switch parsedFloat {
		case 1:
			return true, true
		case 0:
			return false, true
		}
	}
	return false, false
}

// ParseString accepts a JSON string and trims it.
func ParseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		return strings.TrimSpace(parsedString), true
	}
	return "", false
}

// ParseNonNegativeInt accepts a JSON integer, an integral float or a numeric
// string.
func ParseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, parsedInt >= 0
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, parsed >= 0
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return 0, false
		}
		if parsedFloat < 0 || parsedFloat != math.Trunc(parsedFloat) {
			return 0, false
		}
		return int(parsedFloat), true
	}
	return 0, false
}
