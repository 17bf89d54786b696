package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/db"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, errOpen)
	t.Cleanup(func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, db.Migrate(conn))
	return New(conn)
}

func seedPlan(t *testing.T, s *Store) models.Plan {
	t.Helper()
	plan := models.Plan{
		Name:            "Monthly",
		DurationDays:    30,
		BasePrice:       decimal.NewFromInt(1000),
		DiscountedPrice: decimal.NewFromInt(800),
		AdmissionFee:    decimal.NewFromInt(200),
		IsEnabled:       true,
	}
	require.NoError(t, s.CreatePlan(context.Background(), &plan))
	return plan
}

func seedMember(t *testing.T, s *Store, name, phone string) models.Member {
	t.Helper()
	member := models.Member{Name: name, Phone: phone, JoiningDate: time.Now().UTC()}
	require.NoError(t, s.CreateMember(context.Background(), &member))
	return member
}

func TestValidatePlan(t *testing.T) {
	valid := models.Plan{Name: "Quarterly", DurationDays: 90, BasePrice: decimal.NewFromInt(2500)}
	assert.NoError(t, ValidatePlan(valid))

	admissionOnly := models.Plan{Name: "Day pass", DurationDays: 1, AdmissionFee: decimal.NewFromInt(200)}
	assert.NoError(t, ValidatePlan(admissionOnly))

	cases := map[string]func(p *models.Plan){
		"no name":            func(p *models.Plan) { p.Name = " " },
		"zero duration":      func(p *models.Plan) { p.DurationDays = 0 },
		"negative base":      func(p *models.Plan) { p.BasePrice = decimal.NewFromInt(-1) },
		"free plan":          func(p *models.Plan) { p.BasePrice = decimal.Zero },
		"sub-cent base":      func(p *models.Plan) { p.BasePrice = decimal.RequireFromString("2500.001") },
		"sub-cent discount":  func(p *models.Plan) { p.DiscountedPrice = decimal.RequireFromString("1999.995") },
		"sub-cent admission": func(p *models.Plan) { p.AdmissionFee = decimal.RequireFromString("150.005") },
		"negative admission": func(p *models.Plan) { p.AdmissionFee = decimal.NewFromInt(-1) },
		"discount over base": func(p *models.Plan) { p.DiscountedPrice = decimal.NewFromInt(3000) },
	}
	for name, mutate := range cases {
		plan := valid
		mutate(&plan)
		assert.ErrorIs(t, ValidatePlan(plan), billing.ErrInvalidPlanData, name)
	}
}

func TestGetPlanRejectsCorruptRows(t *testing.T) {
	s := newTestStore(t)
	plan := seedPlan(t, s)
	ctx := context.Background()

	require.NoError(t, s.DB().Model(&models.Plan{}).Where("id = ?", plan.ID).
		Update("base_price", decimal.NewFromInt(-5)).Error)

	_, err := s.GetPlan(ctx, plan.ID)
	assert.ErrorIs(t, err, billing.ErrInvalidPlanData)

	_, err = s.GetPlan(ctx, plan.ID+100)
	assert.ErrorIs(t, err, billing.ErrPlanNotFound)
}

func TestCreatePlanKeepsDisabledFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan := models.Plan{Name: "Legacy", DurationDays: 30, BasePrice: decimal.NewFromInt(500)}
	require.NoError(t, s.CreatePlan(ctx, &plan))

	enabled, err := s.ListPlans(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	require.NoError(t, s.SetPlanEnabled(ctx, plan.ID, true))
	enabled, err = s.ListPlans(ctx, true)
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestDeletePlanInUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan := seedPlan(t, s)
	member := seedMember(t, s, "Asha", "9000000001")

	membership := models.Membership{
		MemberID:  member.ID,
		PlanID:    plan.ID,
		StartDate: time.Now().UTC(),
		EndDate:   time.Now().UTC().AddDate(0, 0, 30),
		AmountDue: decimal.NewFromInt(1000),
		Status:    models.MembershipStatusPending,
	}
	require.NoError(t, s.CreateMembership(ctx, &membership))

	assert.ErrorIs(t, s.DeletePlan(ctx, plan.ID), billing.ErrPlanInUse)
	assert.ErrorIs(t, s.DeletePlan(ctx, plan.ID+1), billing.ErrPlanNotFound)
}

func TestMemberCodesAreSequential(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	peek, err := s.PeekMemberCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1000", peek)

	first := seedMember(t, s, "Asha", "9000000001")
	second := seedMember(t, s, "Ravi", "9000000002")
	assert.Equal(t, "1000", first.MemberCode)
	assert.Equal(t, "1001", second.MemberCode)

	peek, err = s.PeekMemberCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1002", peek)

	dup := models.Member{Name: "Other", Phone: "9000000001", JoiningDate: time.Now()}
	assert.ErrorIs(t, s.CreateMember(ctx, &dup), billing.ErrDuplicateMember)
}

func TestNextSequenceSeedsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seeds := 0
	seed := func(context.Context) (int64, error) {
		seeds++
		return 41, nil
	}

	first, err := s.NextSequence(ctx, "invoice:202401", seed)
	require.NoError(t, err)
	second, err := s.NextSequence(ctx, "invoice:202401", seed)
	require.NoError(t, err)

	assert.Equal(t, int64(42), first)
	assert.Equal(t, int64(43), second)
	assert.Equal(t, 1, seeds)
}

func TestSaveMembershipDetectsStaleVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan := seedPlan(t, s)
	member := seedMember(t, s, "Asha", "9000000001")

	membership := models.Membership{
		MemberID:  member.ID,
		PlanID:    plan.ID,
		StartDate: time.Now().UTC(),
		EndDate:   time.Now().UTC().AddDate(0, 0, 30),
		AmountDue: decimal.NewFromInt(1000),
		Status:    models.MembershipStatusPending,
	}
	require.NoError(t, s.CreateMembership(ctx, &membership))

	first, err := s.GetMembership(ctx, membership.ID)
	require.NoError(t, err)
	stale := first

	first.AmountPaid = decimal.NewFromInt(300)
	require.NoError(t, s.SaveMembership(ctx, &first))
	assert.Equal(t, int64(2), first.Version)

	stale.AmountPaid = decimal.NewFromInt(500)
	assert.ErrorIs(t, s.SaveMembership(ctx, &stale), billing.ErrConcurrentModification)

	reloaded, err := s.GetMembership(ctx, membership.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.AmountPaid.Equal(decimal.NewFromInt(300)))
}

func TestWithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *Store) error {
		member := models.Member{Name: "Ghost", Phone: "9000000009", JoiningDate: time.Now()}
		require.NoError(t, tx.CreateMember(ctx, &member))
		return billing.ErrNoBalanceDue
	})
	assert.ErrorIs(t, err, billing.ErrNoBalanceDue)

	members, total, err := s.ListMembers(ctx, MemberQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, members)
}

func TestListMembershipsSearchAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan := seedPlan(t, s)
	now := time.Now().UTC()

	for i, name := range []string{"Asha Rao", "Ravi Kumar", "Asha Patel"} {
		member := seedMember(t, s, name, "90000000"+string(rune('1'+i)))
		membership := models.Membership{
			MemberID:  member.ID,
			PlanID:    plan.ID,
			StartDate: now,
			EndDate:   now.AddDate(0, 0, 30-i),
			AmountDue: decimal.NewFromInt(1000),
			Status:    models.MembershipStatusPending,
		}
		require.NoError(t, s.CreateMembership(ctx, &membership))
	}

	rows, total, err := s.ListMemberships(ctx, MembershipQuery{Search: "asha"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	assert.Equal(t, "Asha Patel", rows[0].Member.Name)
	assert.Equal(t, "Monthly", rows[0].Plan.Name)

	rows, total, err = s.ListMemberships(ctx, MembershipQuery{Page: Page{Page: 2, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Asha Rao", rows[0].Member.Name)
}
