// Package ledger records immutable payment entries and issues invoice
// numbers. It never changes membership state.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/pricing"
	"github.com/router-for-me/GymDesk/internal/store"
	"github.com/shopspring/decimal"
)

// FormatInvoiceNumber renders INV-YYYYMM-NNNN. Sequences past 9999 widen.
func FormatInvoiceNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%04d", YearMonth(at), seq)
}

// YearMonth renders the YYYYMM part of an invoice number in UTC.
func YearMonth(at time.Time) string {
	return at.UTC().Format("200601")
}

func invoiceSequenceName(yearMonth string) string {
	return "invoice:" + yearMonth
}

// Entry describes a payment to record.
type Entry struct {
	MemberID        *uint64
	MembershipID    *uint64
	Amount          decimal.Decimal
	Method          models.PaymentMethod
	Type            models.PaymentType     // Defaults to membership.
	TransactionType models.TransactionType // Defaults to credit.
	LineItems       []models.LineItem      // Defaults to a single item for the whole amount.
	Notes           string
	IdempotencyKey  string
	CreatedBy       *uint64
}

// Ledger issues invoice numbers and writes payments.
type Ledger struct {
	now func() time.Time
}

// New constructs a Ledger using the wall clock.
func New() *Ledger {
	return &Ledger{now: time.Now}
}

// NewWithClock constructs a Ledger with a fixed clock source.
func NewWithClock(now func() time.Time) *Ledger {
	return &Ledger{now: now}
}

func (l *Ledger) clock() time.Time {
	if l == nil || l.now == nil {
		return time.Now().UTC()
	}
	return l.now().UTC()
}

// RecordPayment validates entry and persists it with a fresh invoice number
// through st. Run it inside the transaction that applies the matching
// membership change so both commit or neither does.
func (l *Ledger) RecordPayment(ctx context.Context, st *store.Store, entry Entry) (models.Payment, error) {
	if errValidate := normalize(&entry); errValidate != nil {
		return models.Payment{}, errValidate
	}

	now := l.clock()
	invoice, errInvoice := allocateInvoiceNumber(ctx, st, now)
	if errInvoice != nil {
		return models.Payment{}, errInvoice
	}

	payment := models.Payment{
		MembershipID:    entry.MembershipID,
		MemberID:        entry.MemberID,
		Amount:          entry.Amount,
		Method:          entry.Method,
		Type:            entry.Type,
		TransactionType: entry.TransactionType,
		Status:          models.PaymentStatusPaid,
		InvoiceNumber:   invoice,
		LineItems:       entry.LineItems,
		Notes:           strings.TrimSpace(entry.Notes),
		CreatedBy:       entry.CreatedBy,
		CreatedAt:       now,
	}
	if key := strings.TrimSpace(entry.IdempotencyKey); key != "" {
		payment.IdempotencyKey = &key
	}
	if errCreate := st.CreatePayment(ctx, &payment); errCreate != nil {
		return models.Payment{}, errCreate
	}
	return payment, nil
}

// RecordEntry records a manual income or expense entry that is not tied to a
// membership.
func (l *Ledger) RecordEntry(ctx context.Context, st *store.Store, entry Entry) (models.Payment, error) {
	if entry.Type == "" || entry.Type == models.PaymentTypeMembership {
		return models.Payment{}, fmt.Errorf("%w: membership payments go through collection", billing.ErrInvalidEntry)
	}
	if entry.MembershipID != nil {
		return models.Payment{}, fmt.Errorf("%w: manual entries cannot reference a membership", billing.ErrInvalidEntry)
	}
	if entry.MemberID != nil {
		if _, errMember := st.GetMember(ctx, *entry.MemberID); errMember != nil {
			return models.Payment{}, errMember
		}
	}
	return l.RecordPayment(ctx, st, entry)
}

func normalize(entry *Entry) error {
	if !entry.Amount.IsPositive() || !pricing.IsWholeCents(entry.Amount) {
		return billing.ErrInvalidAmount
	}
	if entry.Method == "" {
		entry.Method = models.PaymentMethodCash
	}
	if _, ok := models.ParsePaymentMethod(string(entry.Method)); !ok {
		return fmt.Errorf("%w: unknown method %q", billing.ErrInvalidEntry, entry.Method)
	}
	if entry.Type == "" {
		entry.Type = models.PaymentTypeMembership
	}
	if _, ok := models.ParsePaymentType(string(entry.Type)); !ok {
		return fmt.Errorf("%w: unknown type %q", billing.ErrInvalidEntry, entry.Type)
	}
	switch entry.TransactionType {
	case "":
		entry.TransactionType = models.TransactionCredit
	case models.TransactionCredit, models.TransactionDebit:
	default:
		return fmt.Errorf("%w: unknown transaction type %q", billing.ErrInvalidEntry, entry.TransactionType)
	}

	if len(entry.LineItems) == 0 {
		entry.LineItems = []models.LineItem{{Amount: entry.Amount, Label: defaultLabel(entry.Type)}}
		return nil
	}
	for _, item := range entry.LineItems {
		if !item.Amount.IsPositive() || !pricing.IsWholeCents(item.Amount) || strings.TrimSpace(item.Label) == "" {
			return fmt.Errorf("%w: line item %q", billing.ErrInvalidAmount, item.Label)
		}
	}
	if sum := pricing.SumLineItems(entry.LineItems); !sum.Equal(entry.Amount) {
		return fmt.Errorf("%w: line items sum to %s, amount is %s", billing.ErrInvalidAmount, sum, entry.Amount)
	}
	return nil
}

func defaultLabel(kind models.PaymentType) string {
	if kind == models.PaymentTypeMembership {
		return pricing.LabelMembershipFee
	}
	return strings.ToUpper(string(kind[:1])) + string(kind[1:])
}

// allocateInvoiceNumber takes the next number of the month's counter. The
// counter is seeded from the invoices already issued that month, and numbers
// taken by imported entries are skipped.
func allocateInvoiceNumber(ctx context.Context, st *store.Store, now time.Time) (string, error) {
	yearMonth := YearMonth(now)
	seed := func(ctx context.Context) (int64, error) {
		return st.CountPaymentsForMonth(ctx, yearMonth)
	}
	for {
		seq, errNext := st.NextSequence(ctx, invoiceSequenceName(yearMonth), seed)
		if errNext != nil {
			return "", errNext
		}
		number := FormatInvoiceNumber(now, seq)
		taken, errExists := st.InvoiceExists(ctx, number)
		if errExists != nil {
			return "", errExists
		}
		if !taken {
			return number, nil
		}
	}
}
