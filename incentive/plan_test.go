package incentive_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/incentive"
)

// =============================================================================
// VALUE TYPES
// =============================================================================

func TestMoney_Arithmetic(t *testing.T) {
	sum, err := inr("10.005").Add(inr("0.005"))
	require.NoError(t, err)
	assertMoney(t, "10.01", sum.Rounded())

	_, err = inr("1").Add(incentive.MustMoney("1", "USD"))
	var mismatch *incentive.CurrencyMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "USD", mismatch.Right)

	low, err := inr("5").Min(inr("7"))
	require.NoError(t, err)
	assertMoney(t, "5", low)

	assertMoney(t, "9.99", inr("9.999").Floored())

	_, err = incentive.NewMoney(dec("1"), "RUPEE")
	assert.ErrorIs(t, err, incentive.ErrValidation)

	m, err := incentive.NewMoney(dec("1"), "inr")
	require.NoError(t, err)
	assert.Equal(t, "INR", m.Currency)
}

func TestPercentage_RejectsNegative(t *testing.T) {
	_, err := incentive.NewPercentage(dec("-0.01"))
	assert.ErrorIs(t, err, incentive.ErrValidation)

	p, err := incentive.NewPercentage(dec("150"))
	require.NoError(t, err)
	assert.True(t, dec("1.5").Equal(p.Ratio()))
}

func TestDateRange_HalfOpen(t *testing.T) {
	jan := jan2025()
	assert.True(t, jan.Contains(jan.Start))
	assert.False(t, jan.Contains(jan.End))
	assert.Equal(t, 31, jan.Days())

	feb := incentive.MonthRange(2025, time.February)
	assert.False(t, jan.Overlaps(feb))
	assert.True(t, year2025().Covers(feb))

	_, err := incentive.NewDateRange(jan.End, jan.Start)
	assert.ErrorIs(t, err, incentive.ErrValidation)

	shared, ok := year2025().Intersect(feb)
	require.True(t, ok)
	assert.True(t, shared.Equal(feb))
}

// =============================================================================
// SLABS AND PLANS
// =============================================================================

func TestValidateSlabs(t *testing.T) {
	cases := []struct {
		name  string
		slabs []incentive.Slab
	}{
		{"empty", nil},
		{"gap", []incentive.Slab{
			{TierIndex: 1, From: dec("0"), To: decPtr("100"), Rate: pct("1")},
			{TierIndex: 2, From: dec("150"), Rate: pct("2")},
		}},
		{"overlap", []incentive.Slab{
			{TierIndex: 1, From: dec("0"), To: decPtr("100"), Rate: pct("1")},
			{TierIndex: 2, From: dec("50"), Rate: pct("2")},
		}},
		{"unbounded middle", []incentive.Slab{
			{TierIndex: 1, From: dec("0"), Rate: pct("1")},
			{TierIndex: 2, From: dec("100"), Rate: pct("2")},
		}},
		{"rate and fixed", []incentive.Slab{
			{TierIndex: 1, From: dec("0"), Rate: pct("1"), FixedAmount: inrPtr("10")},
		}},
		{"neither rate nor fixed", []incentive.Slab{{TierIndex: 1, From: dec("0")}}},
		{"duplicate tier", []incentive.Slab{
			{TierIndex: 1, From: dec("0"), To: decPtr("100"), Rate: pct("1")},
			{TierIndex: 1, From: dec("100"), Rate: pct("2")},
		}},
		{"empty band", []incentive.Slab{{TierIndex: 1, From: dec("10"), To: decPtr("10"), Rate: pct("1")}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := incentive.ValidateSlabs(tc.slabs)
			assert.ErrorIs(t, err, incentive.ErrValidation)
		})
	}

	sorted, err := incentive.ValidateSlabs(tieredPlan(incentive.AchievementAbsolute).Slabs[1:])
	require.NoError(t, err)
	assert.Len(t, sorted, 2)
}

func TestPlan_Validate(t *testing.T) {
	require.NoError(t, flatPlan().Validate())

	p := flatPlan()
	p.Target.AchievementType = "weird"
	assert.ErrorIs(t, p.Validate(), incentive.ErrValidation)

	p = tieredPlan(incentive.AchievementTieredMarginal)
	p.Basis = incentive.BasisBaseSalary
	assert.ErrorIs(t, p.Validate(), incentive.ErrValidation)

	p = flatPlan()
	p.MaximumPayout = inrPtr("100")
	p.MinimumPayout = inrPtr("200")
	assert.ErrorIs(t, p.Validate(), incentive.ErrValidation)

	p = flatPlan()
	usd := incentive.MustMoney("10", "USD")
	p.MaximumPayout = &usd
	assert.ErrorIs(t, p.Validate(), incentive.ErrValidation)
}

func TestPlan_Lifecycle(t *testing.T) {
	p := flatPlan()
	p.Status = incentive.PlanDraft

	require.NoError(t, p.ReplaceSlabs(tieredPlan(incentive.AchievementAbsolute).Slabs))
	require.NoError(t, p.Activate())
	assert.Equal(t, incentive.PlanActive, p.Status)
	assert.Error(t, p.ReplaceSlabs(flatPlan().Slabs))

	require.NoError(t, p.Suspend())
	require.NoError(t, p.Activate())
	require.NoError(t, p.Cancel())
	assert.Error(t, p.Cancel())
	assert.Error(t, p.Activate())
}

func TestEmployee_EmploymentWindow(t *testing.T) {
	emp := testEmployee()
	w, ok := emp.EmploymentWindow(jan2025())
	require.True(t, ok)
	assert.True(t, w.Equal(jan2025()))

	exit := time.Date(2025, time.January, 11, 0, 0, 0, 0, time.UTC)
	emp.ExitedOn = &exit
	w, ok = emp.EmploymentWindow(jan2025())
	require.True(t, ok)
	assert.Equal(t, 10, w.Days())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrors_Classification(t *testing.T) {
	err := incentive.NotFoundError("plan", "p-1")
	assert.True(t, incentive.IsNotFound(err))
	assert.True(t, incentive.IsClientError(err))
	assert.False(t, incentive.IsRetryable(err))

	err = incentive.ConflictError("c-1", 3)
	assert.True(t, incentive.IsRetryable(err))
	assert.Equal(t, incentive.CodeConcurrency, incentive.CodeOf(err))

	assert.Equal(t, incentive.CodeRouting, incentive.CodeOf(incentive.RoutingError(incentive.Level2, "d")))
	assert.Equal(t, incentive.Code(""), incentive.CodeOf(assert.AnError))
}
