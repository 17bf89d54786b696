// Package billing holds the error taxonomy shared by pricing, lifecycle,
// ledger and reconciliation.
package billing

import (
	"errors"
	"fmt"

	"github.com/router-for-me/GymDesk/internal/models"
)

var (
	ErrPlanNotFound           = errors.New("plan not found")
	ErrMembershipNotFound     = errors.New("membership not found")
	ErrMemberNotFound         = errors.New("member not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrAttendanceNotFound     = errors.New("attendance record not found")
	ErrPlanInUse              = errors.New("plan is referenced by memberships")
	ErrDuplicateMember        = errors.New("member already exists")
	ErrInvalidMemberData      = errors.New("invalid member data")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidEntry           = errors.New("invalid ledger entry")
	ErrInvalidPlanData        = errors.New("invalid plan data")
	ErrInvalidAttendance      = errors.New("invalid attendance record")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNoBalanceDue           = errors.New("no balance due")
	ErrMembershipCancelled    = errors.New("membership cancelled")
	ErrDuplicateInvoice       = errors.New("duplicate invoice number")
	ErrPersistence            = errors.New("persistence failure")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// TransitionError reports a lifecycle operation attempted from the wrong state.
type TransitionError struct {
	Op     string
	From   models.MembershipStatus
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s from %s: %s", ErrInvalidStateTransition, e.Op, e.From, e.Reason)
	}
	return fmt.Sprintf("%s: %s from %s", ErrInvalidStateTransition, e.Op, e.From)
}

// Unwrap lets errors.Is match ErrInvalidStateTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// PersistenceError wraps a storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// Persistence wraps err as a PersistenceError unless it already carries a
// domain error.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsDomain reports whether err is a validation or business-rule failure that
// must not be retried.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrPlanNotFound,
		ErrMembershipNotFound,
		ErrMemberNotFound,
		ErrPaymentNotFound,
		ErrAttendanceNotFound,
		ErrPlanInUse,
		ErrDuplicateMember,
		ErrInvalidMemberData,
		ErrInvalidAmount,
		ErrInvalidEntry,
		ErrInvalidPlanData,
		ErrInvalidAttendance,
		ErrInvalidStateTransition,
		ErrNoBalanceDue,
		ErrMembershipCancelled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether an operation failing with err may be re-run
// with fresh reads.
func IsRetryable(err error) bool {
	if err == nil || IsDomain(err) {
		return false
	}
	return errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrDuplicateInvoice)
}
