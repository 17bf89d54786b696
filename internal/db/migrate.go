package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/GymDesk/internal/models"
	internalsettings "github.com/router-for-me/GymDesk/internal/settings"
	"gorm.io/gorm"
)

// schema lists every table owned by the application, parents first.
func schema() []any {
	return []any{
		&models.Admin{},
		&models.Plan{},
		&models.Member{},
		&models.Membership{},
		&models.MembershipPeriod{},
		&models.Payment{},
		&models.Attendance{},
		&models.Sequence{},
		&models.Setting{},
	}
}

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(schema()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultSettings(conn); errSeed != nil {
		return errSeed
	}

	if errAdminPermAdd := conn.Exec(`
		UPDATE admins
		SET permissions = '[]'::jsonb
		WHERE permissions IS NULL
	`).Error; errAdminPermAdd != nil {
		return fmt.Errorf("db: backfill admin permissions: %w", errAdminPermAdd)
	}
	if errSweepIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_memberships_status_end_date ON memberships (status, end_date)
	`).Error; errSweepIdx != nil {
		return fmt.Errorf("db: create membership sweep index: %w", errSweepIdx)
	}
	if errPositive := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_payments_amount_positive') THEN
				ALTER TABLE payments ADD CONSTRAINT chk_payments_amount_positive CHECK (amount > 0);
			END IF;
		END $$;
	`).Error; errPositive != nil {
		return fmt.Errorf("db: add payment amount check: %w", errPositive)
	}
	return nil
}

// migrateSQLite applies SQLite schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(schema()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultSettings(conn); errSeed != nil {
		return errSeed
	}

	if errAdminPermUpdate := conn.Exec(`
		UPDATE admins
		SET permissions = '[]'
		WHERE permissions IS NULL
	`).Error; errAdminPermUpdate != nil {
		return fmt.Errorf("db: backfill admin permissions: %w", errAdminPermUpdate)
	}
	if errSweepIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_memberships_status_end_date ON memberships (status, end_date)
	`).Error; errSweepIdx != nil {
		return fmt.Errorf("db: create membership sweep index: %w", errSweepIdx)
	}
	return nil
}

// ensureDefaultSettings seeds runtime settings that have no row yet.
func ensureDefaultSettings(conn *gorm.DB) error {
	if errSeed := ensureStringSetting(conn, internalsettings.SiteNameKey, internalsettings.DefaultSiteName); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.SweepIntervalSecondsKey, internalsettings.DefaultSweepIntervalSeconds); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.ReceiptRatePerSecondKey, internalsettings.DefaultReceiptRatePerSecond); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.RateLimitKey, internalsettings.DefaultRateLimit); errSeed != nil {
		return errSeed
	}
	return ensureIntSetting(conn, internalsettings.RateLimitWindowSecondsKey, internalsettings.DefaultRateLimitWindowSeconds)
}

// ensureIntSetting ensures an integer setting exists and defaults when empty.
func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	return ensureSetting(conn, key, value)
}

// ensureStringSetting ensures a string setting exists and defaults when empty.
func ensureStringSetting(conn *gorm.DB, key string, value string) error {
	return ensureSetting(conn, key, value)
}

func ensureSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := json.RawMessage(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     rawValue,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
