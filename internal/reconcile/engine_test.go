package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/router-for-me/GymDesk/internal/db"
	"github.com/router-for-me/GymDesk/internal/ledger"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/notify"
	"github.com/router-for-me/GymDesk/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var clock = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newTestEngine(t *testing.T, notifier ReceiptNotifier) (*Engine, *store.Store) {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "reconcile.db"))
	require.NoError(t, errOpen)
	t.Cleanup(func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, db.Migrate(conn))
	st := store.New(conn)
	engine := New(st, Options{
		Now:      func() time.Time { return clock },
		Backoff:  time.Millisecond,
		Notifier: notifier,
	})
	return engine, st
}

func seedPlan(t *testing.T, st *store.Store, name string, base, discounted, admission int64) models.Plan {
	t.Helper()
	plan := models.Plan{
		Name:            name,
		DurationDays:    30,
		BasePrice:       dec(base),
		DiscountedPrice: dec(discounted),
		AdmissionFee:    dec(admission),
		IsEnabled:       true,
	}
	require.NoError(t, st.CreatePlan(context.Background(), &plan))
	return plan
}

func seedMember(t *testing.T, st *store.Store, phone, email string) models.Member {
	t.Helper()
	member := models.Member{Name: "Asha Rao", Phone: phone, Email: email, JoiningDate: clock}
	require.NoError(t, st.CreateMember(context.Background(), &member))
	return member
}

func countPayments(t *testing.T, st *store.Store) int64 {
	t.Helper()
	_, total, err := st.ListPayments(context.Background(), store.PaymentQuery{})
	require.NoError(t, err)
	return total
}

func TestCreateMembershipFullPayment(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)
	member := seedMember(t, st, "9000000001", "")

	result, err := engine.CreateMembership(ctx, EnrollRequest{
		MemberID:       member.ID,
		PlanID:         plan.ID,
		StartDate:      clock,
		InitialPayment: dec(1000),
		Method:         models.PaymentMethodCash,
	})
	require.NoError(t, err)

	m := result.Membership
	assert.True(t, m.AmountDue.Equal(dec(1000)), "amount due %s", m.AmountDue)
	assert.True(t, m.AmountPaid.Equal(dec(1000)))
	assert.Equal(t, models.MembershipStatusActive, m.Status)
	assert.True(t, m.EndDate.Equal(clock.AddDate(0, 0, 30)))

	require.NotNil(t, result.Payment)
	assert.Equal(t, "INV-202503-0001", result.Payment.InvoiceNumber)
	assert.Equal(t, models.TransactionCredit, result.Payment.TransactionType)
	assert.Equal(t, models.PaymentStatusPaid, result.Payment.Status)
	require.NotNil(t, m.LastPaymentID)
	assert.Equal(t, result.Payment.ID, *m.LastPaymentID)

	reloaded, err := st.GetMember(ctx, member.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.MembershipID)
	assert.Equal(t, m.ID, *reloaded.MembershipID)
}

func TestPartialPaymentThenTopUp(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)
	member := seedMember(t, st, "9000000002", "")

	created, err := engine.CreateMembership(ctx, EnrollRequest{
		MemberID:       member.ID,
		PlanID:         plan.ID,
		InitialPayment: dec(500),
		Method:         models.PaymentMethodOnline,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusPending, created.Membership.Status)
	assert.True(t, created.Membership.AmountPaid.Equal(dec(500)))

	balance, err := engine.GetMembershipBalance(ctx, created.Membership.ID)
	require.NoError(t, err)
	assert.True(t, balance.Remaining.Equal(dec(500)), "remaining %s", balance.Remaining)

	paid, err := engine.CollectPayment(ctx, CollectRequest{
		MembershipID: created.Membership.ID,
		Amount:       dec(500),
		Method:       models.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusActive, paid.Membership.Status)
	assert.True(t, paid.Membership.AmountPaid.Equal(dec(1000)))
	assert.Equal(t, "INV-202503-0002", paid.Payment.InvoiceNumber)
	require.Len(t, paid.Payment.LineItems, 1)
	assert.Equal(t, "Membership Fee", paid.Payment.LineItems[0].Label)

	balance, err = engine.GetMembershipBalance(ctx, created.Membership.ID)
	require.NoError(t, err)
	assert.True(t, balance.Remaining.IsZero())
}

func TestRenewExpiredMembershipCarriesOverpayment(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	plan := seedPlan(t, st, "Budget", 900, 0, 0)
	member := seedMember(t, st, "9000000003", "")

	end := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	expired := models.Membership{
		MemberID:   member.ID,
		PlanID:     plan.ID,
		StartDate:  end.AddDate(0, 0, -30),
		EndDate:    end,
		AmountDue:  dec(1000),
		AmountPaid: decimal.Zero,
		Status:     models.MembershipStatusExpired,
	}
	require.NoError(t, st.CreateMembership(ctx, &expired))

	result, err := engine.CollectPayment(ctx, CollectRequest{
		MembershipID: expired.ID,
		Amount:       dec(1000),
		Method:       models.PaymentMethodCash,
	})
	require.NoError(t, err)

	m := result.Membership
	assert.True(t, m.StartDate.Equal(end), "start %s", m.StartDate)
	assert.True(t, m.EndDate.Equal(end.AddDate(0, 0, 30)), "end %s", m.EndDate)
	assert.True(t, m.AmountDue.Equal(dec(900)))
	assert.True(t, m.AmountPaid.Equal(dec(1000)))
	assert.True(t, m.Credit.Equal(dec(100)))
	assert.Equal(t, models.MembershipStatusActive, m.Status)

	labels := make([]string, 0, len(result.Payment.LineItems))
	for _, item := range result.Payment.LineItems {
		labels = append(labels, item.Label)
	}
	assert.Equal(t, []string{"Membership Fee", "Credit"}, labels)
}

func TestConcurrentCollectionsAreSerialized(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)
	member := seedMember(t, st, "9000000004", "")

	created, err := engine.CreateMembership(ctx, EnrollRequest{MemberID: member.ID, PlanID: plan.ID})
	require.NoError(t, err)
	require.Nil(t, created.Payment)
	require.True(t, created.Membership.AmountPaid.IsZero())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.CollectPayment(ctx, CollectRequest{
				MembershipID: created.Membership.ID,
				Amount:       dec(300),
				Method:       models.PaymentMethodCash,
			})
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	final, err := st.GetMembership(ctx, created.Membership.ID)
	require.NoError(t, err)
	assert.True(t, final.AmountPaid.Equal(dec(600)), "amount paid %s", final.AmountPaid)
	assert.Equal(t, models.MembershipStatusPending, final.Status)
	assert.EqualValues(t, 2, countPayments(t, st))
	assert.Zero(t, engine.locks.size())
}

func TestCollectPaymentRejections(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)
	member := seedMember(t, st, "9000000005", "")

	active, err := engine.CreateMembership(ctx, EnrollRequest{
		MemberID:       member.ID,
		PlanID:         plan.ID,
		InitialPayment: dec(1000),
	})
	require.NoError(t, err)
	before := countPayments(t, st)

	_, err = engine.CollectPayment(ctx, CollectRequest{MembershipID: active.Membership.ID, Amount: dec(100)})
	assert.ErrorIs(t, err, billing.ErrNoBalanceDue)

	cancelled := models.Membership{
		MemberID:  member.ID,
		PlanID:    plan.ID,
		StartDate: clock,
		EndDate:   clock.AddDate(0, 0, 30),
		AmountDue: dec(1000),
		Status:    models.MembershipStatusCancelled,
	}
	require.NoError(t, st.CreateMembership(ctx, &cancelled))
	_, err = engine.CollectPayment(ctx, CollectRequest{MembershipID: cancelled.ID, Amount: dec(100)})
	assert.ErrorIs(t, err, billing.ErrMembershipCancelled)

	_, err = engine.CollectPayment(ctx, CollectRequest{MembershipID: 9999, Amount: dec(100)})
	assert.ErrorIs(t, err, billing.ErrMembershipNotFound)

	_, err = engine.CollectPayment(ctx, CollectRequest{MembershipID: active.Membership.ID, Amount: dec(-5)})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	assert.Equal(t, before, countPayments(t, st), "rejected collections must not leave payments behind")
}

func TestCreateMembershipRejectsSecondEnrollment(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)
	member := seedMember(t, st, "9000000006", "")

	_, err := engine.CreateMembership(ctx, EnrollRequest{MemberID: member.ID, PlanID: plan.ID, InitialPayment: dec(200)})
	require.NoError(t, err)

	_, err = engine.CreateMembership(ctx, EnrollRequest{MemberID: member.ID, PlanID: plan.ID, InitialPayment: dec(200)})
	assert.ErrorIs(t, err, billing.ErrInvalidStateTransition)
	assert.EqualValues(t, 1, countPayments(t, st))
}

func TestChangePlanOpensNewMembership(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	monthly := seedPlan(t, st, "Monthly", 1000, 800, 200)
	quarterly := seedPlan(t, st, "Quarterly", 2700, 0, 200)
	member := seedMember(t, st, "9000000007", "")

	first, err := engine.CreateMembership(ctx, EnrollRequest{MemberID: member.ID, PlanID: monthly.ID, InitialPayment: dec(1000)})
	require.NoError(t, err)

	_, err = engine.ChangePlan(ctx, EnrollRequest{MemberID: member.ID, PlanID: monthly.ID})
	assert.ErrorIs(t, err, billing.ErrInvalidStateTransition)

	changed, err := engine.ChangePlan(ctx, EnrollRequest{MemberID: member.ID, PlanID: quarterly.ID, InitialPayment: dec(1000)})
	require.NoError(t, err)
	assert.NotEqual(t, first.Membership.ID, changed.Membership.ID)
	assert.True(t, changed.Membership.AmountDue.Equal(dec(2900)))
	assert.Equal(t, models.MembershipStatusPending, changed.Membership.Status)

	old, err := st.GetMembership(ctx, first.Membership.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusActive, old.Status)
	assert.Equal(t, monthly.ID, old.PlanID)

	reloaded, err := st.GetMember(ctx, member.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.MembershipID)
	assert.Equal(t, changed.Membership.ID, *reloaded.MembershipID)
}

func TestRegisterMemberWithEnrollment(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)

	member, result, err := engine.RegisterMember(ctx, models.Member{
		Name:        "Ravi Kumar",
		Phone:       "9000000008",
		JoiningDate: clock,
	}, &EnrollRequest{PlanID: plan.ID, InitialPayment: dec(400)})
	require.NoError(t, err)
	assert.Equal(t, "1000", member.MemberCode)
	require.NotNil(t, result)
	require.NotNil(t, member.MembershipID)
	assert.Equal(t, result.Membership.ID, *member.MembershipID)
	assert.Equal(t, models.MembershipStatusPending, result.Membership.Status)

	_, _, err = engine.RegisterMember(ctx, models.Member{
		Name:        "Someone Else",
		Phone:       "9000000008",
		JoiningDate: clock,
	}, &EnrollRequest{PlanID: plan.ID, InitialPayment: dec(400)})
	assert.ErrorIs(t, err, billing.ErrDuplicateMember)
	assert.EqualValues(t, 1, countPayments(t, st))
}

func TestRegisterMemberRollsBackOnUnknownPlan(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()

	_, _, err := engine.RegisterMember(ctx, models.Member{
		Name:        "Ravi Kumar",
		Phone:       "9000000009",
		JoiningDate: clock,
	}, &EnrollRequest{PlanID: 42, InitialPayment: dec(400)})
	assert.ErrorIs(t, err, billing.ErrPlanNotFound)

	_, total, errList := st.ListMembers(ctx, store.MemberQuery{})
	require.NoError(t, errList)
	assert.Zero(t, total)
}

func TestIdempotencyKeyReplaysPayment(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)
	member := seedMember(t, st, "9000000010", "")
	other := seedMember(t, st, "9000000011", "")

	created, err := engine.CreateMembership(ctx, EnrollRequest{MemberID: member.ID, PlanID: plan.ID})
	require.NoError(t, err)
	otherCreated, err := engine.CreateMembership(ctx, EnrollRequest{MemberID: other.ID, PlanID: plan.ID})
	require.NoError(t, err)

	req := CollectRequest{MembershipID: created.Membership.ID, Amount: dec(300), IdempotencyKey: "8d7c5f0e-key"}
	first, err := engine.CollectPayment(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := engine.CollectPayment(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.True(t, second.Membership.AmountPaid.Equal(dec(300)))

	req.MembershipID = otherCreated.Membership.ID
	_, err = engine.CollectPayment(ctx, req)
	assert.ErrorIs(t, err, billing.ErrInvalidEntry)
	assert.EqualValues(t, 1, countPayments(t, st))
}

func TestSweepExpirationsIsIdempotent(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)
	member := seedMember(t, st, "9000000012", "")

	created, err := engine.CreateMembership(ctx, EnrollRequest{MemberID: member.ID, PlanID: plan.ID, InitialPayment: dec(1000)})
	require.NoError(t, err)

	later := clock.AddDate(0, 2, 0)
	n, err := engine.SweepExpirations(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = engine.SweepExpirations(ctx, later)
	require.NoError(t, err)
	assert.Zero(t, n)

	balance, err := engine.GetMembershipBalance(ctx, created.Membership.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusExpired, balance.Status)
	assert.True(t, balance.AmountPaid.IsZero())
	assert.True(t, balance.Remaining.Equal(dec(1000)))
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendReceipt(ctx context.Context, receipt notify.Receipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func TestReceiptFailureDoesNotFailPayment(t *testing.T) {
	notifier := &mockNotifier{}
	notifier.On("SendReceipt", mock.Anything, mock.MatchedBy(func(r notify.Receipt) bool {
		return r.To == "asha@example.com" && r.ReceiptID == "INV-202503-0001" && r.MembershipName == "Monthly"
	})).Return(errors.New("smtp down")).Once()

	engine, st := newTestEngine(t, notifier)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)
	member := seedMember(t, st, "9000000013", "asha@example.com")

	result, err := engine.CreateMembership(ctx, EnrollRequest{MemberID: member.ID, PlanID: plan.ID, InitialPayment: dec(1000)})
	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	notifier.AssertExpectations(t)
}

func TestWithRetry(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	calls := 0
	err := engine.withRetry(ctx, "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return billing.Persistence("flaky", errors.New("database is locked"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = engine.withRetry(ctx, "test", func(context.Context) error {
		calls++
		return billing.ErrNoBalanceDue
	})
	assert.ErrorIs(t, err, billing.ErrNoBalanceDue)
	assert.Equal(t, 1, calls, "business errors are not retried")

	calls = 0
	err = engine.withRetry(ctx, "test", func(context.Context) error {
		calls++
		return billing.ErrConcurrentModification
	})
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)
	assert.Equal(t, defaultMaxAttempts, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = engine.withRetry(cancelled, "test", func(context.Context) error {
		return billing.ErrDuplicateInvoice
	})
	assert.ErrorIs(t, err, billing.ErrPersistence)
}

// durationSum reads the accumulated latency recorded for op.
func durationSum(t *testing.T, op string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "gymdesk_operation_duration_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "operation" && label.GetValue() == op {
					return metric.GetHistogram().GetSampleSum()
				}
			}
		}
	}
	return 0
}

func TestOperationDurationCoversReceiptHandoff(t *testing.T) {
	const delay = 80 * time.Millisecond
	notifier := &mockNotifier{}
	notifier.On("SendReceipt", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(delay) }).
		Return(nil)

	engine, st := newTestEngine(t, notifier)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)
	member := seedMember(t, st, "9000000020", "asha@example.com")
	opened, err := engine.CreateMembership(ctx, EnrollRequest{MemberID: member.ID, PlanID: plan.ID, InitialPayment: dec(400)})
	require.NoError(t, err)

	before := durationSum(t, "collect_payment")
	_, err = engine.CollectPayment(ctx, CollectRequest{MembershipID: opened.Membership.ID, Amount: dec(600)})
	require.NoError(t, err)
	elapsed := durationSum(t, "collect_payment") - before

	assert.GreaterOrEqual(t, elapsed, delay.Seconds(), "recorded %fs", elapsed)
	notifier.AssertNumberOfCalls(t, "SendReceipt", 2)
}

func TestSubCentAmountsAreRejected(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()
	plan := seedPlan(t, st, "Monthly", 1000, 800, 200)
	member := seedMember(t, st, "9000000021", "")

	_, err := engine.CreateMembership(ctx, EnrollRequest{MemberID: member.ID, PlanID: plan.ID, InitialPayment: decimal.RequireFromString("100.005")})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	opened, err := engine.CreateMembership(ctx, EnrollRequest{MemberID: member.ID, PlanID: plan.ID})
	require.NoError(t, err)
	require.Equal(t, models.MembershipStatusPending, opened.Membership.Status)

	_, err = engine.CollectPayment(ctx, CollectRequest{MembershipID: opened.Membership.ID, Amount: decimal.RequireFromString("0.001")})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	_, err = engine.ChangePlan(ctx, EnrollRequest{MemberID: member.ID, PlanID: plan.ID, InitialPayment: decimal.RequireFromString("999.999")})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	_, _, err = engine.RegisterMember(ctx, models.Member{Name: "Ravi", Phone: "9000000022", JoiningDate: clock},
		&EnrollRequest{PlanID: plan.ID, InitialPayment: decimal.RequireFromString("10.101")})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	balance, err := engine.GetMembershipBalance(ctx, opened.Membership.ID)
	require.NoError(t, err)
	assert.True(t, balance.AmountPaid.IsZero(), "paid %s", balance.AmountPaid)
	assert.Zero(t, countPayments(t, st))
}

func TestRecordEntryRetriesTransientFailures(t *testing.T) {
	engine, st := newTestEngine(t, nil)
	ctx := context.Background()

	failures := 2
	require.NoError(t, st.DB().Callback().Create().Before("gorm:create").Register("test:fail_payments", func(tx *gorm.DB) {
		if tx.Statement.Table == "payments" && failures > 0 {
			failures--
			tx.AddError(errors.New("database is locked"))
		}
	}))

	payment, err := engine.RecordEntry(ctx, ledger.Entry{
		Amount:          dec(1500),
		Type:            models.PaymentTypeProduct,
		TransactionType: models.TransactionCredit,
	})
	require.NoError(t, err)
	assert.Zero(t, failures)
	assert.Equal(t, "INV-202503-0001", payment.InvoiceNumber)
	assert.Equal(t, int64(1), countPayments(t, st))

	_, err = engine.RecordEntry(ctx, ledger.Entry{Amount: dec(10), Type: models.PaymentTypeMembership})
	assert.ErrorIs(t, err, billing.ErrInvalidEntry)
}
