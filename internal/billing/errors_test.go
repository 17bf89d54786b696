package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTransitionErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("collect: %w", &TransitionError{Op: "renew", From: models.MembershipStatusPending})

	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Contains(t, err.Error(), "renew from pending")

	var transitionErr *TransitionError
	assert.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, models.MembershipStatusPending, transitionErr.From)
}

func TestPersistenceWrapsInfrastructureErrors(t *testing.T) {
	err := Persistence("save membership", context.DeadlineExceeded)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsRetryable(err))
}

func TestPersistenceKeepsDomainErrors(t *testing.T) {
	err := Persistence("load plan", ErrPlanNotFound)

	assert.Same(t, ErrPlanNotFound, err)
	assert.False(t, IsRetryable(err))
	assert.Nil(t, Persistence("noop", nil))
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrConcurrentModification, true},
		{fmt.Errorf("ledger: %w", ErrDuplicateInvoice), true},
		{ErrNoBalanceDue, false},
		{ErrMembershipCancelled, false},
		{ErrInvalidAmount, false},
		{ErrInvalidAttendance, false},
		{ErrAttendanceNotFound, false},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRetryable(tc.err), "err=%v", tc.err)
	}
}
