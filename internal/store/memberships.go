package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/db"
	"github.com/router-for-me/GymDesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipQuery filters the membership listing.
type MembershipQuery struct {
	Status   models.MembershipStatus // Zero means any status.
	MemberID uint64
	Search   string // Matches member name or phone.
	Page
}

// GetMembership loads a membership.
func (s *Store) GetMembership(ctx context.Context, id uint64) (models.Membership, error) {
	return s.loadMembership(s.conn(ctx), id)
}

// LockMembership loads a membership for update. Inside a transaction on
// PostgreSQL the row stays locked until commit.
func (s *Store) LockMembership(ctx context.Context, id uint64) (models.Membership, error) {
	return s.loadMembership(db.ForUpdate(s.conn(ctx)), id)
}

func (s *Store) loadMembership(q *gorm.DB, id uint64) (models.Membership, error) {
	var membership models.Membership
	if errFind := q.First(&membership, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Membership{}, billing.ErrMembershipNotFound
		}
		return models.Membership{}, billing.Persistence("load membership", errFind)
	}
	return membership, nil
}

// GetMembershipDetail loads a membership with its member and plan.
func (s *Store) GetMembershipDetail(ctx context.Context, id uint64) (models.Membership, error) {
	var membership models.Membership
	if errFind := s.conn(ctx).Preload("Member").Preload("Plan").First(&membership, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Membership{}, billing.ErrMembershipNotFound
		}
		return models.Membership{}, billing.Persistence("load membership", errFind)
	}
	return membership, nil
}

// CreateMembership inserts a new membership period at version 1.
func (s *Store) CreateMembership(ctx context.Context, membership *models.Membership) error {
	membership.Version = 1
	if errCreate := s.conn(ctx).Omit(clause.Associations).Create(membership).Error; errCreate != nil {
		return billing.Persistence("create membership", errCreate)
	}
	return nil
}

// SaveMembership writes a membership back if nobody changed it since it was
// read, and bumps its version. A stale version fails with
// ErrConcurrentModification.
func (s *Store) SaveMembership(ctx context.Context, membership *models.Membership) error {
	res := s.conn(ctx).Model(&models.Membership{}).
		Where("id = ? AND version = ?", membership.ID, membership.Version).
		Updates(map[string]any{
			"plan_id":                membership.PlanID,
			"start_date":             membership.StartDate,
			"end_date":               membership.EndDate,
			"amount_due":             membership.AmountDue,
			"amount_paid":            membership.AmountPaid,
			"credit":                 membership.Credit,
			"admission_fee_included": membership.AdmissionFeeIncluded,
			"status":                 membership.Status,
			"last_payment_id":        membership.LastPaymentID,
			"notes":                  membership.Notes,
			"version":                membership.Version + 1,
			"updated_at":             time.Now().UTC(),
		})
	if res.Error != nil {
		return billing.Persistence("save membership", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrConcurrentModification
	}
	membership.Version++
	return nil
}

// ArchivePeriod stores a closed billing period.
func (s *Store) ArchivePeriod(ctx context.Context, period *models.MembershipPeriod) error {
	if errCreate := s.conn(ctx).Create(period).Error; errCreate != nil {
		return billing.Persistence("archive period", errCreate)
	}
	return nil
}

// ListPeriods returns the closed periods of a membership, oldest first.
func (s *Store) ListPeriods(ctx context.Context, membershipID uint64) ([]models.MembershipPeriod, error) {
	var periods []models.MembershipPeriod
	if errFind := s.conn(ctx).
		Where("membership_id = ?", membershipID).
		Order("start_date ASC, id ASC").
		Find(&periods).Error; errFind != nil {
		return nil, billing.Persistence("list periods", errFind)
	}
	return periods, nil
}

// DueForExpiry returns memberships whose end date passed before now and that
// are neither expired nor cancelled.
func (s *Store) DueForExpiry(ctx context.Context, now time.Time) ([]models.Membership, error) {
	var due []models.Membership
	if errFind := db.ForUpdate(s.conn(ctx)).
		Where("status IN ? AND end_date < ?", []models.MembershipStatus{
			models.MembershipStatusPending,
			models.MembershipStatusActive,
		}, now.UTC()).
		Order("id ASC").
		Find(&due).Error; errFind != nil {
		return nil, billing.Persistence("find expired memberships", errFind)
	}
	return due, nil
}

// ListMemberships filters, searches and pages memberships ordered by end
// date, soonest first.
func (s *Store) ListMemberships(ctx context.Context, query MembershipQuery) ([]models.Membership, int64, error) {
	page := query.Page.Normalize()
	q := s.conn(ctx).Model(&models.Membership{}).
		Joins("JOIN members ON members.id = memberships.member_id")
	if query.Status != 0 {
		q = q.Where("memberships.status = ?", query.Status)
	}
	if query.MemberID != 0 {
		q = q.Where("memberships.member_id = ?", query.MemberID)
	}
	if term := strings.TrimSpace(query.Search); term != "" {
		q = q.Where("("+db.CaseInsensitiveLikeExpr(s.db, "members.name")+" OR members.phone LIKE ?)",
			db.ContainsPattern(s.db, term), "%"+term+"%")
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, billing.Persistence("count memberships", errCount)
	}
	var memberships []models.Membership
	if errFind := q.Select("memberships.*").
		Preload("Member").
		Preload("Plan").
		Order("memberships.end_date ASC, memberships.id ASC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&memberships).Error; errFind != nil {
		return nil, 0, billing.Persistence("list memberships", errFind)
	}
	return memberships, total, nil
}
