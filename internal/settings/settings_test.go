package settings_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/GymDesk/internal/db"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshLoadsSeededDefaults(t *testing.T) {
	t.Cleanup(func() { settings.StoreDBConfig(time.Time{}, nil) })

	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, errOpen)
	t.Cleanup(func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, db.Migrate(conn))

	require.NoError(t, conn.Model(&models.Setting{}).
		Where("key = ?", settings.SiteNameKey).
		Update("value", json.RawMessage(`"Iron Temple"`)).Error)

	require.NoError(t, settings.Refresh(context.Background(), conn))
	assert.Equal(t, "Iron Temple", settings.StringValue(settings.SiteNameKey, settings.DefaultSiteName))
	assert.Equal(t, settings.DefaultSweepIntervalSeconds, settings.IntValue(settings.SweepIntervalSecondsKey, 1))
	assert.False(t, settings.DBConfigUpdatedAt().IsZero())
}

func TestValueFallbacks(t *testing.T) {
	t.Cleanup(func() { settings.StoreDBConfig(time.Time{}, nil) })

	settings.StoreDBConfig(time.Now(), map[string]json.RawMessage{
		"NEGATIVE": json.RawMessage(`-4`),
		"BLANK":    json.RawMessage(`"  "`),
		"FLOAT":    json.RawMessage(`2.0`),
	})
	assert.Equal(t, 7, settings.IntValue("NEGATIVE", 7))
	assert.Equal(t, 2, settings.IntValue("FLOAT", 7))
	assert.Equal(t, 9, settings.IntValue("MISSING", 9))
	assert.Equal(t, "fallback", settings.StringValue("BLANK", "fallback"))
}

func TestParseBool(t *testing.T) {
	cases := map[string]struct {
		value bool
		ok    bool
	}{
		`true`:    {true, true},
		`"on"`:    {true, true},
		`"no"`:    {false, true},
		`1`:       {true, true},
		`0`:       {false, true},
		`"maybe"`: {false, false},
		`2`:       {false, false},
	}
	for raw, want := range cases {
		got, ok := settings.ParseBool(json.RawMessage(raw))
		assert.Equal(t, want.ok, ok, raw)
		assert.Equal(t, want.value, got, raw)
	}
}
