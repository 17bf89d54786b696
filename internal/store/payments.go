package store

import (
	"context"
	"errors"
	"strings"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/db"
	"github.com/router-for-me/GymDesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentQuery filters the payment listing.
type PaymentQuery struct {
	Search          string // Invoice number substring.
	MemberID        uint64
	MembershipID    uint64
	Type            models.PaymentType
	TransactionType models.TransactionType
	Page
}

// CreatePayment inserts a ledger entry. Any unique index collision is
// reported as ErrDuplicateInvoice so the caller can retry with a fresh
// number.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if errCreate := s.conn(ctx).Omit(clause.Associations).Create(payment).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return billing.ErrDuplicateInvoice
		}
		return billing.Persistence("create payment", errCreate)
	}
	return nil
}

// GetPayment loads a payment with its member.
func (s *Store) GetPayment(ctx context.Context, id uint64) (models.Payment, error) {
	var payment models.Payment
	if errFind := s.conn(ctx).Preload("Member").First(&payment, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Payment{}, billing.ErrPaymentNotFound
		}
		return models.Payment{}, billing.Persistence("load payment", errFind)
	}
	return payment, nil
}

// FindPaymentByIdempotencyKey returns the payment recorded under key, or nil.
func (s *Store) FindPaymentByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	var payments []models.Payment
	if errFind := s.conn(ctx).Where("idempotency_key = ?", key).Limit(1).Find(&payments).Error; errFind != nil {
		return nil, billing.Persistence("find payment by idempotency key", errFind)
	}
	if len(payments) == 0 {
		return nil, nil
	}
	return &payments[0], nil
}

// CountPaymentsForMonth counts invoices issued in yearMonth (YYYYMM).
func (s *Store) CountPaymentsForMonth(ctx context.Context, yearMonth string) (int64, error) {
	var count int64
	if errCount := s.conn(ctx).Model(&models.Payment{}).
		Where("invoice_number LIKE ?", "INV-"+yearMonth+"-%").
		Count(&count).Error; errCount != nil {
		return 0, billing.Persistence("count invoices", errCount)
	}
	return count, nil
}

// InvoiceExists reports whether an invoice number is already taken.
func (s *Store) InvoiceExists(ctx context.Context, invoiceNumber string) (bool, error) {
	var count int64
	if errCount := s.conn(ctx).Model(&models.Payment{}).
		Where("invoice_number = ?", invoiceNumber).
		Count(&count).Error; errCount != nil {
		return false, billing.Persistence("check invoice", errCount)
	}
	return count > 0, nil
}

// ListPayments returns ledger entries newest first.
func (s *Store) ListPayments(ctx context.Context, query PaymentQuery) ([]models.Payment, int64, error) {
	page := query.Page.Normalize()
	q := s.conn(ctx).Model(&models.Payment{})
	if term := strings.TrimSpace(query.Search); term != "" {
		q = q.Where(db.CaseInsensitiveLikeExpr(s.db, "invoice_number"), db.ContainsPattern(s.db, term))
	}
	if query.MemberID != 0 {
		q = q.Where("member_id = ?", query.MemberID)
	}
	if query.MembershipID != 0 {
		q = q.Where("membership_id = ?", query.MembershipID)
	}
	if query.Type != "" {
		q = q.Where("type = ?", query.Type)
	}
	if query.TransactionType != "" {
		q = q.Where("transaction_type = ?", query.TransactionType)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, billing.Persistence("count payments", errCount)
	}
	var payments []models.Payment
	if errFind := q.Preload("Member").
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&payments).Error; errFind != nil {
		return nil, 0, billing.Persistence("list payments", errFind)
	}
	return payments, total, nil
}
