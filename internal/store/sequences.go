package store

import (
	"context"
	"fmt"
	"time"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedFunc returns the value a counter starts from when its row is missing.
type SeedFunc func(ctx context.Context) (int64, error)

// NextSequence increments the named counter and returns the new value. The
// increment is a single UPDATE, so on PostgreSQL the row stays locked until
// the surrounding transaction ends.
func (s *Store) NextSequence(ctx context.Context, name string, seed SeedFunc) (int64, error) {
	conn := s.conn(ctx)
	affected, errIncr := incrementSequence(conn, name)
	if errIncr != nil {
		return 0, billing.Persistence("increment sequence", errIncr)
	}
	if affected == 0 {
		var base int64
		if seed != nil {
			var errSeed error
			if base, errSeed = seed(ctx); errSeed != nil {
				return 0, errSeed
			}
		}
		row := models.Sequence{Name: name, Value: base, UpdatedAt: time.Now().UTC()}
		if errCreate := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; errCreate != nil {
			return 0, billing.Persistence("seed sequence", errCreate)
		}
		if affected, errIncr = incrementSequence(conn, name); errIncr != nil {
			return 0, billing.Persistence("increment sequence", errIncr)
		}
		if affected == 0 {
			return 0, billing.Persistence("increment sequence", fmt.Errorf("sequence %q missing after seed", name))
		}
	}

	var row models.Sequence
	if errFind := conn.Where("name = ?", name).First(&row).Error; errFind != nil {
		return 0, billing.Persistence("read sequence", errFind)
	}
	return row.Value, nil
}

// PeekSequence returns the value NextSequence would hand out without
// consuming it.
func (s *Store) PeekSequence(ctx context.Context, name string, seed SeedFunc) (int64, error) {
	var rows []models.Sequence
	if errFind := s.conn(ctx).Where("name = ?", name).Limit(1).Find(&rows).Error; errFind != nil {
		return 0, billing.Persistence("read sequence", errFind)
	}
	if len(rows) > 0 {
		return rows[0].Value + 1, nil
	}
	if seed == nil {
		return 1, nil
	}
	base, errSeed := seed(ctx)
	if errSeed != nil {
		return 0, errSeed
	}
	return base + 1, nil
}

func incrementSequence(conn *gorm.DB, name string) (int64, error) {
	res := conn.Model(&models.Sequence{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"value":      gorm.Expr("value + 1"),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
