package store

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/db"
	"github.com/router-for-me/GymDesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	memberCodeSequence = "member"
	firstMemberCode    = 1000
)

// MemberQuery filters the member listing.
type MemberQuery struct {
	Search string // Matches name or phone.
	Status models.MemberStatus
	Page
}

func (s *Store) memberCodeSeed(ctx context.Context) (int64, error) {
	var count int64
	if errCount := s.conn(ctx).Model(&models.Member{}).Count(&count).Error; errCount != nil {
		return 0, billing.Persistence("count members", errCount)
	}
	return firstMemberCode - 1 + count, nil
}

// NextMemberCode reserves the next sequential member code.
func (s *Store) NextMemberCode(ctx context.Context) (string, error) {
	for {
		value, errNext := s.NextSequence(ctx, memberCodeSequence, s.memberCodeSeed)
		if errNext != nil {
			return "", errNext
		}
		code := strconv.FormatInt(value, 10)
		var taken int64
		if errCount := s.conn(ctx).Model(&models.Member{}).Where("member_code = ?", code).Count(&taken).Error; errCount != nil {
			return "", billing.Persistence("check member code", errCount)
		}
		if taken == 0 {
			return code, nil
		}
	}
}

// PeekMemberCode previews the next member code without reserving it.
func (s *Store) PeekMemberCode(ctx context.Context) (string, error) {
	value, errPeek := s.PeekSequence(ctx, memberCodeSequence, s.memberCodeSeed)
	if errPeek != nil {
		return "", errPeek
	}
	return strconv.FormatInt(value, 10), nil
}

// CreateMember inserts a member, assigning a member code when none is set.
func (s *Store) CreateMember(ctx context.Context, member *models.Member) error {
	member.Name = strings.TrimSpace(member.Name)
	member.Phone = strings.TrimSpace(member.Phone)
	if member.Name == "" || member.Phone == "" {
		return billing.ErrInvalidMemberData
	}
	if strings.TrimSpace(member.MemberCode) == "" {
		code, errCode := s.NextMemberCode(ctx)
		if errCode != nil {
			return errCode
		}
		member.MemberCode = code
	}
	if member.Status == 0 {
		member.Status = models.MemberStatusActive
	}
	if errCreate := s.conn(ctx).Omit(clause.Associations).Create(member).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return billing.ErrDuplicateMember
		}
		return billing.Persistence("create member", errCreate)
	}
	return nil
}

// GetMember loads a member.
func (s *Store) GetMember(ctx context.Context, id uint64) (models.Member, error) {
	var member models.Member
	if errFind := s.conn(ctx).First(&member, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Member{}, billing.ErrMemberNotFound
		}
		return models.Member{}, billing.Persistence("load member", errFind)
	}
	return member, nil
}

// UpdateMember saves a member's profile fields.
func (s *Store) UpdateMember(ctx context.Context, member *models.Member) error {
	member.Name = strings.TrimSpace(member.Name)
	member.Phone = strings.TrimSpace(member.Phone)
	if member.Name == "" || member.Phone == "" {
		return billing.ErrInvalidMemberData
	}
	res := s.conn(ctx).Model(&models.Member{}).Where("id = ?", member.ID).Updates(map[string]any{
		"name":                    member.Name,
		"email":                   strings.TrimSpace(member.Email),
		"phone":                   member.Phone,
		"address":                 member.Address,
		"gender":                  member.Gender,
		"date_of_birth":           member.DateOfBirth,
		"joining_date":            member.JoiningDate,
		"emergency_contact_name":  member.EmergencyContactName,
		"emergency_contact_phone": member.EmergencyContactPhone,
		"health_notes":            member.HealthNotes,
		"status":                  member.Status,
	})
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error) {
			return billing.ErrDuplicateMember
		}
		return billing.Persistence("update member", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrMemberNotFound
	}
	return nil
}

// SetCurrentMembership points a member at their current membership.
func (s *Store) SetCurrentMembership(ctx context.Context, memberID, membershipID uint64) error {
	res := s.conn(ctx).Model(&models.Member{}).Where("id = ?", memberID).Update("membership_id", membershipID)
	if res.Error != nil {
		return billing.Persistence("link membership", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrMemberNotFound
	}
	return nil
}

// ListMembers searches members by name or phone, newest first.
func (s *Store) ListMembers(ctx context.Context, query MemberQuery) ([]models.Member, int64, error) {
	page := query.Page.Normalize()
	q := s.conn(ctx).Model(&models.Member{})
	if term := strings.TrimSpace(query.Search); term != "" {
		pattern := db.ContainsPattern(s.db, term)
		q = q.Where("("+db.CaseInsensitiveLikeExpr(s.db, "name")+" OR phone LIKE ? OR member_code = ?)",
			pattern, "%"+term+"%", term)
	}
	if query.Status != 0 {
		q = q.Where("status = ?", query.Status)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, billing.Persistence("count members", errCount)
	}
	var members []models.Member
	if errFind := q.Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&members).Error; errFind != nil {
		return nil, 0, billing.Persistence("list members", errFind)
	}
	return members, total, nil
}
