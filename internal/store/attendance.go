package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttendanceQuery filters the attendance listing.
type AttendanceQuery struct {
	MemberID uint64
	From     *time.Time // Check-ins at or after.
	To       *time.Time // Check-ins before.
	OpenOnly bool       // Members still inside.
	Page
}

// visitMinutes is the visit length rounded to the nearest minute.
func visitMinutes(checkIn, checkOut time.Time) (int, error) {
	if checkOut.Before(checkIn) {
		return 0, fmt.Errorf("%w: check-out precedes check-in", billing.ErrInvalidAttendance)
	}
	minutes := int(checkOut.Sub(checkIn).Round(time.Minute) / time.Minute)
	return minutes, nil
}

func normalizeAttendance(record *models.Attendance) error {
	if record.MemberID == 0 {
		return fmt.Errorf("%w: member is required", billing.ErrInvalidAttendance)
	}
	if record.CheckIn.IsZero() {
		return fmt.Errorf("%w: check-in time is required", billing.ErrInvalidAttendance)
	}
	record.Notes = strings.TrimSpace(record.Notes)
	record.DurationMinutes = nil
	if record.CheckOut == nil {
		return nil
	}
	minutes, errMinutes := visitMinutes(record.CheckIn, *record.CheckOut)
	if errMinutes != nil {
		return errMinutes
	}
	record.DurationMinutes = &minutes
	return nil
}

// CreateAttendance records a check-in for an existing member. A check-out
// given upfront fills in the visit length.
func (s *Store) CreateAttendance(ctx context.Context, record *models.Attendance) error {
	if errNormalize := normalizeAttendance(record); errNormalize != nil {
		return errNormalize
	}
	if _, errMember := s.GetMember(ctx, record.MemberID); errMember != nil {
		return errMember
	}
	if errCreate := s.conn(ctx).Omit(clause.Associations).Create(record).Error; errCreate != nil {
		return billing.Persistence("create attendance", errCreate)
	}
	return nil
}

// GetAttendance loads an attendance record with its member.
func (s *Store) GetAttendance(ctx context.Context, id uint64) (models.Attendance, error) {
	var record models.Attendance
	if errFind := s.conn(ctx).Preload("Member").First(&record, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Attendance{}, billing.ErrAttendanceNotFound
		}
		return models.Attendance{}, billing.Persistence("load attendance", errFind)
	}
	return record, nil
}

// UpdateAttendance saves the times and notes of a record, recomputing the
// visit length.
func (s *Store) UpdateAttendance(ctx context.Context, record *models.Attendance) error {
	if errNormalize := normalizeAttendance(record); errNormalize != nil {
		return errNormalize
	}
	res := s.conn(ctx).Model(&models.Attendance{}).Where("id = ?", record.ID).Updates(map[string]any{
		"check_in":         record.CheckIn,
		"check_out":        record.CheckOut,
		"duration_minutes": record.DurationMinutes,
		"notes":            record.Notes,
	})
	if res.Error != nil {
		return billing.Persistence("update attendance", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrAttendanceNotFound
	}
	return nil
}

// DeleteAttendance removes an attendance record.
func (s *Store) DeleteAttendance(ctx context.Context, id uint64) error {
	res := s.conn(ctx).Delete(&models.Attendance{}, id)
	if res.Error != nil {
		return billing.Persistence("delete attendance", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrAttendanceNotFound
	}
	return nil
}

// ListAttendance returns visits, latest check-in first.
func (s *Store) ListAttendance(ctx context.Context, query AttendanceQuery) ([]models.Attendance, int64, error) {
	page := query.Page.Normalize()
	q := s.conn(ctx).Model(&models.Attendance{})
	if query.MemberID != 0 {
		q = q.Where("member_id = ?", query.MemberID)
	}
	if query.From != nil {
		q = q.Where("check_in >= ?", *query.From)
	}
	if query.To != nil {
		q = q.Where("check_in < ?", *query.To)
	}
	if query.OpenOnly {
		q = q.Where("check_out IS NULL")
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, billing.Persistence("count attendance", errCount)
	}
	var records []models.Attendance
	if errFind := q.Preload("Member").
		Order("check_in DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&records).Error; errFind != nil {
		return nil, 0, billing.Persistence("list attendance", errFind)
	}
	return records, total, nil
}
