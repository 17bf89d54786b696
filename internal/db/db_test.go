package db

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/router-for-me/GymDesk/internal/models"
	internalsettings "github.com/router-for-me/GymDesk/internal/settings"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := Open("file:" + filepath.Join(t.TempDir(), "gymdesk.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	t.Cleanup(func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	})
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestMigrateSeedsDefaultSettings(t *testing.T) {
	conn := openTestDB(t)

	var setting models.Setting
	if errFind := conn.Where("key = ?", internalsettings.SweepIntervalSecondsKey).First(&setting).Error; errFind != nil {
		t.Fatalf("find sweep setting: %v", errFind)
	}
	var interval int
	if errUnmarshal := json.Unmarshal(setting.Value, &interval); errUnmarshal != nil {
		t.Fatalf("decode sweep setting: %v", errUnmarshal)
	}
	if interval != internalsettings.DefaultSweepIntervalSeconds {
		t.Fatalf("expected sweep interval %d, got %d", internalsettings.DefaultSweepIntervalSeconds, interval)
	}

	siteName := func() models.Setting {
		var found models.Setting
		if errFind := conn.Where("key = ?", internalsettings.SiteNameKey).First(&found).Error; errFind != nil {
			t.Fatalf("find site name: %v", errFind)
		}
		return found
	}
	var seeded string
	if errUnmarshal := json.Unmarshal(siteName().Value, &seeded); errUnmarshal != nil {
		t.Fatalf("decode site name: %v", errUnmarshal)
	}
	if seeded != internalsettings.DefaultSiteName {
		t.Fatalf("expected site name %q, got %q", internalsettings.DefaultSiteName, seeded)
	}

	// A second run must keep existing values.
	if errUpdate := conn.Model(&models.Setting{}).
		Where("key = ?", internalsettings.SiteNameKey).
		Update("value", json.RawMessage(`"Iron Temple"`)).Error; errUpdate != nil {
		t.Fatalf("update site name: %v", errUpdate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("re-migrate: %v", errMigrate)
	}
	if got := siteName(); string(got.Value) != `"Iron Temple"` {
		t.Fatalf("expected site name to survive migration, got %s", got.Value)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	conn := openTestDB(t)

	first := models.Sequence{Name: "invoice:202401", Value: 1}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create sequence: %v", errCreate)
	}
	errDup := conn.Create(&models.Sequence{Name: "invoice:202401", Value: 2}).Error
	if errDup == nil {
		t.Fatalf("expected duplicate key error")
	}
	if !IsUniqueViolation(errDup) {
		t.Fatalf("expected unique violation, got %v", errDup)
	}
	if IsUniqueViolation(gorm.ErrRecordNotFound) {
		t.Fatalf("record not found is not a unique violation")
	}
}

func TestSQLiteDSN(t *testing.T) {
	got := SQLiteDSN("gym.db")
	want := "file:gym.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	if got != want {
		t.Fatalf("unexpected dsn:\n got %s\nwant %s", got, want)
	}
	if got := SQLiteDSN("file:gym.db?_pragma=busy_timeout(100)"); got != "file:gym.db?_pragma=busy_timeout(100)" {
		t.Fatalf("explicit pragmas must be kept, got %s", got)
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, errOpen := Open("  "); errOpen == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
