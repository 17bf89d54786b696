package pricing

import (
	"testing"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func plan(base, discounted, admission int64) models.Plan {
	return models.Plan{
		ID:              1,
		DurationDays:    30,
		BasePrice:       decimal.NewFromInt(base),
		DiscountedPrice: decimal.NewFromInt(discounted),
		AdmissionFee:    decimal.NewFromInt(admission),
	}
}

func TestComputeMembershipPrice_UsesDiscountWhenSet(t *testing.T) {
	quote, err := ComputeMembershipPrice(plan(1000, 800, 200))
	require.NoError(t, err)

	assert.True(t, quote.AmountDue.Equal(decimal.NewFromInt(1000)), "amount due %s", quote.AmountDue)
	assert.True(t, quote.PlanPrice.Equal(decimal.NewFromInt(800)))
	assert.True(t, quote.AdmissionFeeIncluded)
}

func TestComputeMembershipPrice_FallsBackToBase(t *testing.T) {
	quote, err := ComputeMembershipPrice(plan(1000, 0, 200))
	require.NoError(t, err)

	assert.True(t, quote.AmountDue.Equal(decimal.NewFromInt(1200)), "amount due %s", quote.AmountDue)
}

func TestComputeMembershipPrice_RejectsNegativePrices(t *testing.T) {
	for _, p := range []models.Plan{
		plan(-1, 0, 0),
		plan(100, -5, 0),
		plan(100, 0, -1),
	} {
		_, err := ComputeMembershipPrice(p)
		assert.ErrorIs(t, err, billing.ErrInvalidPlanData)
	}
}

func TestAllocate(t *testing.T) {
	quote, err := ComputeMembershipPrice(plan(1000, 800, 200))
	require.NoError(t, err)

	items := Allocate(quote, decimal.NewFromInt(500))
	require.Len(t, items, 2)
	assert.Equal(t, LabelAdmissionFee, items[0].Label)
	assert.True(t, items[0].Amount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, LabelMembershipFee, items[1].Label)
	assert.True(t, items[1].Amount.Equal(decimal.NewFromInt(300)))

	items = Allocate(quote, decimal.NewFromInt(1100))
	require.Len(t, items, 3)
	assert.Equal(t, LabelCredit, items[2].Label)
	assert.True(t, items[2].Amount.Equal(decimal.NewFromInt(100)))

	assert.Empty(t, Allocate(quote, decimal.Zero))
}

func TestTopUpLineItems(t *testing.T) {
	items := TopUpLineItems(decimal.NewFromInt(500), decimal.NewFromInt(300))
	require.Len(t, items, 1)
	assert.Equal(t, LabelMembershipFee, items[0].Label)

	items = TopUpLineItems(decimal.NewFromInt(200), decimal.NewFromInt(300))
	require.Len(t, items, 2)
	assert.True(t, items[1].Amount.Equal(decimal.NewFromInt(100)))
}

func moneyGen(max int64) *rapid.Generator[decimal.Decimal] {
	return rapid.Custom(func(t *rapid.T) decimal.Decimal {
		cents := rapid.Int64Range(0, max).Draw(t, "cents")
		return decimal.New(cents, -2)
	})
}

func TestComputeMembershipPrice_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := models.Plan{
			DurationDays:    rapid.IntRange(1, 365).Draw(t, "duration"),
			BasePrice:       moneyGen(1_000_000).Draw(t, "base"),
			DiscountedPrice: moneyGen(1_000_000).Draw(t, "discounted"),
			AdmissionFee:    moneyGen(100_000).Draw(t, "admission"),
		}

		first, err := ComputeMembershipPrice(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, _ := ComputeMembershipPrice(p)
		if !first.AmountDue.Equal(second.AmountDue) {
			t.Fatalf("pricing is not deterministic: %s != %s", first.AmountDue, second.AmountDue)
		}

		want := p.BasePrice.Add(p.AdmissionFee)
		if p.DiscountedPrice.IsPositive() {
			want = p.DiscountedPrice.Add(p.AdmissionFee)
		}
		if !first.AmountDue.Equal(want) {
			t.Fatalf("amount due %s, want %s", first.AmountDue, want)
		}
		if !first.AdmissionFeeIncluded {
			t.Fatalf("admission fee must be included")
		}
	})
}

func TestAllocate_SumsToAmount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		quote := Quote{
			PlanPrice:            moneyGen(500_000).Draw(t, "plan"),
			AdmissionFee:         moneyGen(50_000).Draw(t, "admission"),
			AdmissionFeeIncluded: true,
		}
		quote.AmountDue = quote.PlanPrice.Add(quote.AdmissionFee)
		amount := moneyGen(1_000_000).Draw(t, "amount")

		items := Allocate(quote, amount)
		if amount.IsPositive() && !SumLineItems(items).Equal(amount) {
			t.Fatalf("line items sum %s, want %s", SumLineItems(items), amount)
		}
		for _, item := range items {
			if !item.Amount.IsPositive() {
				t.Fatalf("non-positive line item %+v", item)
			}
		}
	})
}

func TestIsWholeCents(t *testing.T) {
	for _, raw := range []string{"0", "12", "12.5", "12.50", "-3.25"} {
		assert.True(t, IsWholeCents(decimal.RequireFromString(raw)), raw)
	}
	for _, raw := range []string{"0.001", "12.505", "-0.009"} {
		assert.False(t, IsWholeCents(decimal.RequireFromString(raw)), raw)
	}
}
