// Package reconcile coordinates pricing, the membership lifecycle and the
// payment ledger so that every membership change and the payment behind it
// are stored together or not at all.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/ledger"
	"github.com/router-for-me/GymDesk/internal/lifecycle"
	"github.com/router-for-me/GymDesk/internal/metrics"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/notify"
	"github.com/router-for-me/GymDesk/internal/pricing"
	internalsettings "github.com/router-for-me/GymDesk/internal/settings"
	"github.com/router-for-me/GymDesk/internal/store"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 20 * time.Millisecond
)

// ReceiptNotifier delivers payment receipts. Failures never fail the
// operation that produced the receipt.
type ReceiptNotifier interface {
	SendReceipt(ctx context.Context, receipt notify.Receipt) error
}

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	Now         func() time.Time
	Notifier    ReceiptNotifier
}

// Engine is the reconciliation orchestrator.
type Engine struct {
	store    *store.Store
	ledger   *ledger.Ledger
	sweeper  *lifecycle.Sweeper
	notifier ReceiptNotifier
	locks    *keyedMutex
	tracer   trace.Tracer

	now         func() time.Time
	maxAttempts int
	backoff     time.Duration
}

// New constructs an Engine over st.
func New(st *store.Store, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Engine{
		store:       st,
		ledger:      ledger.NewWithClock(now),
		sweeper:     lifecycle.NewSweeper(st),
		notifier:    opts.Notifier,
		locks:       newKeyedMutex(),
		tracer:      otel.Tracer("gymdesk/reconcile"),
		now:         now,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Sweeper exposes the engine's sweeper for background scheduling.
func (e *Engine) Sweeper() *lifecycle.Sweeper {
	return e.sweeper
}

// Result is a membership together with the payment recorded for it.
type Result struct {
	Membership models.Membership
	Payment    *models.Payment
	Replayed   bool // The payment was found by idempotency key and not recorded again.
}

// Balance is the read-only payment position of a membership.
type Balance struct {
	AmountDue  decimal.Decimal
	AmountPaid decimal.Decimal
	Remaining  decimal.Decimal
	Credit     decimal.Decimal
	Status     models.MembershipStatus
}

// EnrollRequest opens a membership for a member, optionally paying upfront.
type EnrollRequest struct {
	MemberID       uint64
	PlanID         uint64
	StartDate      time.Time // Zero means now.
	InitialPayment decimal.Decimal
	Method         models.PaymentMethod
	Notes          string
	CreatedBy      *uint64
}

// CollectRequest is a payment against an existing membership.
type CollectRequest struct {
	MembershipID   uint64
	Amount         decimal.Decimal
	Method         models.PaymentMethod
	Notes          string
	CreatedBy      *uint64
	IdempotencyKey string
}

// CollectPayment applies a payment to a membership. Expired memberships are
// renewed, pending ones topped up; active and cancelled ones reject the
// payment. The payment and the membership change commit together.
func (e *Engine) CollectPayment(ctx context.Context, req CollectRequest) (result Result, err error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.collect_payment", trace.WithAttributes(
		attribute.Int64("membership.id", int64(req.MembershipID)),
		attribute.String("payment.amount", req.Amount.String()),
		attribute.String("payment.method", string(req.Method)),
	))
	started := time.Now()
	defer func() { e.finish(span, "collect_payment", started, err) }()

	if !req.Amount.IsPositive() || !pricing.IsWholeCents(req.Amount) {
		return Result{}, billing.ErrInvalidAmount
	}

	unlock := e.locks.Lock(membershipKey(req.MembershipID))
	defer unlock()

	var receipt *notify.Receipt
	var outcome string
	err = e.withRetry(ctx, "collect_payment", func(ctx context.Context) error {
		receipt, outcome = nil, ""
		return e.store.WithTx(ctx, func(tx *store.Store) error {
			if req.IdempotencyKey != "" {
				existing, errFind := tx.FindPaymentByIdempotencyKey(ctx, req.IdempotencyKey)
				if errFind != nil {
					return errFind
				}
				if existing != nil {
					return e.replay(ctx, tx, req, existing, &result)
				}
			}

			membership, errLoad := tx.LockMembership(ctx, req.MembershipID)
			if errLoad != nil {
				return errLoad
			}
			plan, errPlan := tx.GetPlan(ctx, membership.PlanID)
			if errPlan != nil {
				return errPlan
			}

			var items []models.LineItem
			switch membership.Status {
			case models.MembershipStatusExpired:
				quote, errRenew := lifecycle.Renew(&membership, plan, req.Amount)
				if errRenew != nil {
					return errRenew
				}
				items = pricing.Allocate(quote, req.Amount)
				outcome = "renewed"
			case models.MembershipStatusPending:
				remaining := remainingOf(membership)
				if errApply := lifecycle.ApplyPayment(&membership, req.Amount); errApply != nil {
					return errApply
				}
				items = pricing.TopUpLineItems(remaining, req.Amount)
				outcome = "topped_up"
			case models.MembershipStatusActive:
				return billing.ErrNoBalanceDue
			case models.MembershipStatusCancelled:
				return billing.ErrMembershipCancelled
			default:
				return &billing.TransitionError{Op: "collect payment", From: membership.Status}
			}

			payment, errRecord := e.ledger.RecordPayment(ctx, tx, ledger.Entry{
				MemberID:       &membership.MemberID,
				MembershipID:   &membership.ID,
				Amount:         req.Amount,
				Method:         req.Method,
				LineItems:      items,
				Notes:          req.Notes,
				IdempotencyKey: req.IdempotencyKey,
				CreatedBy:      req.CreatedBy,
			})
			if errRecord != nil {
				return errRecord
			}
			membership.LastPaymentID = &payment.ID
			if errSave := tx.SaveMembership(ctx, &membership); errSave != nil {
				return errSave
			}

			member, errMember := tx.GetMember(ctx, membership.MemberID)
			if errMember != nil {
				return errMember
			}
			membership.Member = member
			membership.Plan = plan
			result = Result{Membership: membership, Payment: &payment}
			receipt = e.buildReceipt(member, plan, membership, payment)
			return nil
		})
	})
	if err != nil {
		return Result{}, err
	}

	if outcome != "" {
		recordPaymentMetrics(outcome, *result.Payment)
	}
	e.sendReceipt(ctx, receipt)
	return result, nil
}

func (e *Engine) replay(ctx context.Context, tx *store.Store, req CollectRequest, existing *models.Payment, result *Result) error {
	if existing.MembershipID == nil || *existing.MembershipID != req.MembershipID || !existing.Amount.Equal(req.Amount) {
		return fmt.Errorf("%w: idempotency key already used for another payment", billing.ErrInvalidEntry)
	}
	membership, errLoad := tx.GetMembershipDetail(ctx, req.MembershipID)
	if errLoad != nil {
		return errLoad
	}
	*result = Result{Membership: membership, Payment: existing, Replayed: true}
	return nil
}

// CreateMembership opens the first membership of a member.
func (e *Engine) CreateMembership(ctx context.Context, req EnrollRequest) (result Result, err error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.create_membership", trace.WithAttributes(
		attribute.Int64("member.id", int64(req.MemberID)),
		attribute.Int64("plan.id", int64(req.PlanID)),
	))
	started := time.Now()
	defer func() { e.finish(span, "create_membership", started, err) }()

	if req.InitialPayment.IsNegative() || !pricing.IsWholeCents(req.InitialPayment) {
		return Result{}, billing.ErrInvalidAmount
	}
	unlock := e.locks.Lock(memberKey(req.MemberID))
	defer unlock()

	var receipt *notify.Receipt
	err = e.withRetry(ctx, "create_membership", func(ctx context.Context) error {
		receipt = nil
		return e.store.WithTx(ctx, func(tx *store.Store) error {
			member, errMember := tx.GetMember(ctx, req.MemberID)
			if errMember != nil {
				return errMember
			}
			if member.MembershipID != nil {
				current, errCurrent := tx.GetMembership(ctx, *member.MembershipID)
				if errCurrent != nil && !errors.Is(errCurrent, billing.ErrMembershipNotFound) {
					return errCurrent
				}
				if errCurrent == nil {
					return &billing.TransitionError{Op: "create", From: current.Status, Reason: "member already has a membership"}
				}
			}
			var errOpen error
			result, receipt, errOpen = e.open(ctx, tx, member, req, nil)
			return errOpen
		})
	})
	if err != nil {
		return Result{}, err
	}
	if result.Payment != nil {
		recordPaymentMetrics("created", *result.Payment)
	}
	e.sendReceipt(ctx, receipt)
	return result, nil
}

// ChangePlan moves a member to a different plan by opening a new membership
// priced from it. The previous membership is left as it is. A member without
// a membership is simply enrolled.
func (e *Engine) ChangePlan(ctx context.Context, req EnrollRequest) (result Result, err error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.change_plan", trace.WithAttributes(
		attribute.Int64("member.id", int64(req.MemberID)),
		attribute.Int64("plan.id", int64(req.PlanID)),
	))
	started := time.Now()
	defer func() { e.finish(span, "change_plan", started, err) }()

	if req.InitialPayment.IsNegative() || !pricing.IsWholeCents(req.InitialPayment) {
		return Result{}, billing.ErrInvalidAmount
	}
	unlock := e.locks.Lock(memberKey(req.MemberID))
	defer unlock()

	var receipt *notify.Receipt
	err = e.withRetry(ctx, "change_plan", func(ctx context.Context) error {
		receipt = nil
		return e.store.WithTx(ctx, func(tx *store.Store) error {
			member, errMember := tx.GetMember(ctx, req.MemberID)
			if errMember != nil {
				return errMember
			}
			var current *models.Membership
			if member.MembershipID != nil {
				loaded, errCurrent := tx.GetMembership(ctx, *member.MembershipID)
				if errCurrent != nil && !errors.Is(errCurrent, billing.ErrMembershipNotFound) {
					return errCurrent
				}
				if errCurrent == nil {
					current = &loaded
				}
			}
			var errOpen error
			result, receipt, errOpen = e.open(ctx, tx, member, req, current)
			return errOpen
		})
	})
	if err != nil {
		return Result{}, err
	}
	if result.Payment != nil {
		recordPaymentMetrics("plan_changed", *result.Payment)
	}
	e.sendReceipt(ctx, receipt)
	return result, nil
}

// RegisterMember stores a new member and, when enroll names a plan, opens
// their first membership in the same transaction.
func (e *Engine) RegisterMember(ctx context.Context, member models.Member, enroll *EnrollRequest) (models.Member, *Result, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.register_member")
	var err error
	started := time.Now()
	defer func() { e.finish(span, "register_member", started, err) }()

	if enroll != nil && (enroll.InitialPayment.IsNegative() || !pricing.IsWholeCents(enroll.InitialPayment)) {
		err = billing.ErrInvalidAmount
		return models.Member{}, nil, err
	}

	var created models.Member
	var result *Result
	var receipt *notify.Receipt
	err = e.withRetry(ctx, "register_member", func(ctx context.Context) error {
		created, result, receipt = member, nil, nil
		return e.store.WithTx(ctx, func(tx *store.Store) error {
			if errCreate := tx.CreateMember(ctx, &created); errCreate != nil {
				return errCreate
			}
			if enroll == nil || enroll.PlanID == 0 {
				return nil
			}
			req := *enroll
			req.MemberID = created.ID
			opened, openedReceipt, errOpen := e.open(ctx, tx, created, req, nil)
			if errOpen != nil {
				return errOpen
			}
			created.MembershipID = &opened.Membership.ID
			result, receipt = &opened, openedReceipt
			return nil
		})
	})
	if err != nil {
		return models.Member{}, nil, err
	}
	if result != nil && result.Payment != nil {
		recordPaymentMetrics("created", *result.Payment)
	}
	e.sendReceipt(ctx, receipt)
	return created, result, nil
}

// RecordEntry records a manual income or expense entry that is not tied to
// a membership. Invoice collisions and transient storage failures are retried
// like any other payment.
func (e *Engine) RecordEntry(ctx context.Context, entry ledger.Entry) (payment models.Payment, err error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.record_entry", trace.WithAttributes(
		attribute.String("payment.type", string(entry.Type)),
		attribute.String("payment.amount", entry.Amount.String()),
	))
	started := time.Now()
	defer func() { e.finish(span, "record_entry", started, err) }()

	err = e.withRetry(ctx, "record_entry", func(ctx context.Context) error {
		return e.store.WithTx(ctx, func(tx *store.Store) error {
			var errRecord error
			payment, errRecord = e.ledger.RecordEntry(ctx, tx, entry)
			return errRecord
		})
	})
	if err != nil {
		return models.Payment{}, err
	}
	recordPaymentMetrics("manual", payment)
	return payment, nil
}

// open creates a membership for member inside tx, records the upfront
// payment if any and points the member at the new membership. When current
// is set the new membership replaces it through a plan change.
func (e *Engine) open(ctx context.Context, tx *store.Store, member models.Member, req EnrollRequest, current *models.Membership) (Result, *notify.Receipt, error) {
	plan, errPlan := tx.GetPlan(ctx, req.PlanID)
	if errPlan != nil {
		return Result{}, nil, errPlan
	}
	start := req.StartDate
	if start.IsZero() {
		start = e.now()
	}

	var membership models.Membership
	var quote pricing.Quote
	var errBuild error
	if current != nil {
		membership, quote, errBuild = lifecycle.ChangePlan(*current, plan, start, req.InitialPayment)
	} else {
		membership, quote, errBuild = lifecycle.New(member.ID, plan, start, req.InitialPayment)
	}
	if errBuild != nil {
		return Result{}, nil, errBuild
	}
	membership.Notes = req.Notes
	membership.CreatedBy = req.CreatedBy
	if errCreate := tx.CreateMembership(ctx, &membership); errCreate != nil {
		return Result{}, nil, errCreate
	}

	var payment *models.Payment
	var receipt *notify.Receipt
	if req.InitialPayment.IsPositive() {
		recorded, errRecord := e.ledger.RecordPayment(ctx, tx, ledger.Entry{
			MemberID:     &member.ID,
			MembershipID: &membership.ID,
			Amount:       req.InitialPayment,
			Method:       req.Method,
			LineItems:    pricing.Allocate(quote, req.InitialPayment),
			Notes:        req.Notes,
			CreatedBy:    req.CreatedBy,
		})
		if errRecord != nil {
			return Result{}, nil, errRecord
		}
		membership.LastPaymentID = &recorded.ID
		if errSave := tx.SaveMembership(ctx, &membership); errSave != nil {
			return Result{}, nil, errSave
		}
		payment = &recorded
		receipt = e.buildReceipt(member, plan, membership, recorded)
	}
	if errLink := tx.SetCurrentMembership(ctx, member.ID, membership.ID); errLink != nil {
		return Result{}, nil, errLink
	}

	membership.Member = member
	membership.Member.MembershipID = &membership.ID
	membership.Plan = plan
	return Result{Membership: membership, Payment: payment}, receipt, nil
}

// SweepExpirations expires every membership whose period ended before now.
func (e *Engine) SweepExpirations(ctx context.Context, now time.Time) (swept int, err error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.sweep_expirations")
	started := time.Now()
	defer func() {
		span.SetAttributes(attribute.Int("memberships.expired", swept))
		e.finish(span, "sweep_expirations", started, err)
	}()

	err = e.withRetry(ctx, "sweep_expirations", func(ctx context.Context) error {
		var errSweep error
		swept, errSweep = e.sweeper.Sweep(ctx, now)
		return errSweep
	})
	return swept, err
}

// GetMembershipBalance reports what is owed on a membership.
func (e *Engine) GetMembershipBalance(ctx context.Context, membershipID uint64) (Balance, error) {
	membership, errLoad := e.store.GetMembership(ctx, membershipID)
	if errLoad != nil {
		return Balance{}, errLoad
	}
	return BalanceOf(membership), nil
}

// BalanceOf derives the balance of a membership.
func BalanceOf(m models.Membership) Balance {
	return Balance{
		AmountDue:  m.AmountDue,
		AmountPaid: m.AmountPaid,
		Remaining:  remainingOf(m),
		Credit:     m.Credit,
		Status:     m.Status,
	}
}

func remainingOf(m models.Membership) decimal.Decimal {
	if remaining := m.AmountDue.Sub(m.AmountPaid); remaining.IsPositive() {
		return remaining
	}
	return decimal.Zero
}

// withRetry re-runs fn on retryable failures with linear backoff.
func (e *Engine) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !billing.IsRetryable(err) || attempt == e.maxAttempts {
			return err
		}
		metrics.OperationRetries.WithLabelValues(op).Inc()
		log.WithError(err).Debugf("reconcile: %s attempt %d failed, retrying", op, attempt)

		timer := time.NewTimer(time.Duration(attempt) * e.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return billing.Persistence(op, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

func (e *Engine) finish(span trace.Span, op string, started time.Time, err error) {
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.OperationErrors.WithLabelValues(op, errorKind(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) buildReceipt(member models.Member, plan models.Plan, membership models.Membership, payment models.Payment) *notify.Receipt {
	if member.Email == "" {
		return nil
	}
	return &notify.Receipt{
		To:             member.Email,
		Name:           member.Name,
		Amount:         payment.Amount,
		Date:           payment.CreatedAt,
		ReceiptID:      payment.InvoiceNumber,
		MembershipName: plan.Name,
		ValidFrom:      membership.StartDate,
		ValidTo:        membership.EndDate,
		SiteName:       internalsettings.StringValue(internalsettings.SiteNameKey, internalsettings.DefaultSiteName),
	}
}

func (e *Engine) sendReceipt(ctx context.Context, receipt *notify.Receipt) {
	if receipt == nil || e.notifier == nil {
		return
	}
	if errSend := e.notifier.SendReceipt(context.WithoutCancel(ctx), *receipt); errSend != nil {
		log.WithError(errSend).WithField("receipt_id", receipt.ReceiptID).Warn("reconcile: queue receipt failed")
	}
}

func recordPaymentMetrics(outcome string, payment models.Payment) {
	metrics.PaymentsCollected.WithLabelValues(outcome).Inc()
	metrics.PaymentAmount.WithLabelValues(string(payment.Method)).Add(payment.Amount.InexactFloat64())
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, billing.ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, billing.ErrDuplicateInvoice):
		return "duplicate_invoice"
	case billing.IsDomain(err):
		return "domain"
	case errors.Is(err, billing.ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}

func membershipKey(id uint64) string {
	return "membership:" + strconv.FormatUint(id, 10)
}

func memberKey(id uint64) string {
	return "member:" + strconv.FormatUint(id, 10)
}
