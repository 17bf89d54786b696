package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/db"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerStore(t *testing.T) *store.Store {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, errOpen)
	t.Cleanup(func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, db.Migrate(conn))
	return store.New(conn)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestFormatInvoiceNumber(t *testing.T) {
	at := time.Date(2024, time.July, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "INV-202407-0001", FormatInvoiceNumber(at, 1))
	assert.Equal(t, "INV-202407-0042", FormatInvoiceNumber(at, 42))
	assert.Equal(t, "INV-202407-12345", FormatInvoiceNumber(at, 12345))
}

func TestRecordPaymentNumbersPerMonth(t *testing.T) {
	st := newLedgerStore(t)
	ctx := context.Background()
	july := time.Date(2024, time.July, 31, 10, 0, 0, 0, time.UTC)

	l := NewWithClock(fixedClock(july))
	first, err := l.RecordPayment(ctx, st, Entry{Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	second, err := l.RecordPayment(ctx, st, Entry{Amount: decimal.NewFromInt(250)})
	require.NoError(t, err)

	assert.Equal(t, "INV-202407-0001", first.InvoiceNumber)
	assert.Equal(t, "INV-202407-0002", second.InvoiceNumber)
	assert.Equal(t, models.TransactionCredit, first.TransactionType)
	assert.Equal(t, models.PaymentStatusPaid, first.Status)
	require.Len(t, first.LineItems, 1)
	assert.Equal(t, "Membership Fee", first.LineItems[0].Label)

	august := NewWithClock(fixedClock(july.AddDate(0, 0, 1)))
	third, err := august.RecordPayment(ctx, st, Entry{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, "INV-202408-0001", third.InvoiceNumber)
}

func TestRecordPaymentSkipsImportedInvoices(t *testing.T) {
	st := newLedgerStore(t)
	ctx := context.Background()
	at := time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)

	// Imported rows without a counter: one in sequence, one ahead of it.
	for _, number := range []string{"INV-202405-0001", "INV-202405-0003"} {
		legacy := models.Payment{
			Amount:          decimal.NewFromInt(10),
			Method:          models.PaymentMethodCash,
			Type:            models.PaymentTypeOther,
			TransactionType: models.TransactionCredit,
			Status:          models.PaymentStatusPaid,
			InvoiceNumber:   number,
			LineItems:       []models.LineItem{{Amount: decimal.NewFromInt(10), Label: "Other"}},
		}
		require.NoError(t, st.CreatePayment(ctx, &legacy))
	}

	l := NewWithClock(fixedClock(at))
	payment, err := l.RecordPayment(ctx, st, Entry{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, "INV-202405-0004", payment.InvoiceNumber)
}

func TestRecordPaymentValidation(t *testing.T) {
	st := newLedgerStore(t)
	ctx := context.Background()
	l := New()

	_, err := l.RecordPayment(ctx, st, Entry{Amount: decimal.Zero})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	_, err = l.RecordPayment(ctx, st, Entry{
		Amount: decimal.NewFromInt(100),
		LineItems: []models.LineItem{
			{Amount: decimal.NewFromInt(60), Label: "Membership Fee"},
			{Amount: decimal.NewFromInt(30), Label: "Admission Fee"},
		},
	})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	_, err = l.RecordPayment(ctx, st, Entry{Amount: decimal.NewFromInt(100), Method: "cheque"})
	assert.ErrorIs(t, err, billing.ErrInvalidEntry)

	_, err = l.RecordPayment(ctx, st, Entry{Amount: decimal.RequireFromString("0.001")})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	_, err = l.RecordPayment(ctx, st, Entry{
		Amount: decimal.NewFromInt(100),
		LineItems: []models.LineItem{
			{Amount: decimal.RequireFromString("99.995"), Label: "Membership Fee"},
			{Amount: decimal.RequireFromString("0.005"), Label: "Admission Fee"},
		},
	})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	_, total, err := st.ListPayments(ctx, store.PaymentQuery{})
	require.NoError(t, err)
	assert.Zero(t, total, "rejected entries must not be stored")
}

func TestRecordEntryRejectsMembershipPayments(t *testing.T) {
	st := newLedgerStore(t)
	ctx := context.Background()
	l := New()

	_, err := l.RecordEntry(ctx, st, Entry{Amount: decimal.NewFromInt(100), Type: models.PaymentTypeMembership})
	assert.ErrorIs(t, err, billing.ErrInvalidEntry)

	expense, err := l.RecordEntry(ctx, st, Entry{
		Amount:          decimal.NewFromInt(15000),
		Type:            models.PaymentTypeSalary,
		TransactionType: models.TransactionDebit,
		Method:          models.PaymentMethodOnline,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionDebit, expense.TransactionType)
	assert.Equal(t, "Salary", expense.LineItems[0].Label)

	missing := uint64(99)
	_, err = l.RecordEntry(ctx, st, Entry{Amount: decimal.NewFromInt(10), Type: models.PaymentTypeProduct, MemberID: &missing})
	assert.ErrorIs(t, err, billing.ErrMemberNotFound)
}

func TestRecordPaymentDuplicateIdempotencyKey(t *testing.T) {
	st := newLedgerStore(t)
	ctx := context.Background()
	l := New()

	_, err := l.RecordPayment(ctx, st, Entry{Amount: decimal.NewFromInt(100), IdempotencyKey: "k-1"})
	require.NoError(t, err)
	_, err = l.RecordPayment(ctx, st, Entry{Amount: decimal.NewFromInt(100), IdempotencyKey: "k-1"})
	assert.ErrorIs(t, err, billing.ErrDuplicateInvoice)

	found, err := st.FindPaymentByIdempotencyKey(ctx, "k-1")
	require.NoError(t, err)
	require.NotNil(t, found)
}
