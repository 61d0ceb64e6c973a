package incentive_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/incentive"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func pct(s string) *incentive.Percentage {
	p := incentive.MustPercentage(s)
	return &p
}

func inr(s string) incentive.Money { return incentive.MustMoney(s, "INR") }

func inrPtr(s string) *incentive.Money {
	m := inr(s)
	return &m
}

func jan2025() incentive.DateRange { return incentive.MonthRange(2025, time.January) }

func year2025() incentive.DateRange {
	return incentive.DateRange{
		Start: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testEmployee() *incentive.Employee {
	return &incentive.Employee{
		ID:           "emp-1",
		Code:         "E001",
		BaseSalary:   inr("600000"),
		DepartmentID: "sales-north",
		Status:       incentive.EmployeeActive,
	}
}

// flatPlan pays 7.5% of the actual value on a single unbounded slab.
func flatPlan() *incentive.Plan {
	return &incentive.Plan{
		ID:              "plan-flat",
		Code:            "FLAT",
		Currency:        "INR",
		EffectivePeriod: year2025(),
		Target: incentive.Target{
			TargetValue:     dec("50000"),
			AchievementType: incentive.AchievementAbsolute,
		},
		Basis:  incentive.BasisActualValue,
		Slabs:  []incentive.Slab{{ID: "s1", TierIndex: 1, From: dec("0"), Rate: pct("7.5")}},
		Status: incentive.PlanActive,
	}
}

// tieredPlan: [0,50000) 5%, [50000,100000) 7.5%, [100000,∞) 10%.
func tieredPlan(kind incentive.AchievementType) *incentive.Plan {
	p := flatPlan()
	p.ID, p.Code = "plan-tiered", "TIERED"
	p.Target.AchievementType = kind
	p.Target.TargetValue = dec("100000")
	p.Slabs = []incentive.Slab{
		{ID: "t1", TierIndex: 1, From: dec("0"), To: decPtr("50000"), Rate: pct("5")},
		{ID: "t2", TierIndex: 2, From: dec("50000"), To: decPtr("100000"), Rate: pct("7.5")},
		{ID: "t3", TierIndex: 3, From: dec("100000"), Rate: pct("10")},
	}
	return p
}

func assertMoney(t *testing.T, want string, got incentive.Money) {
	t.Helper()
	assert.True(t, dec(want).Equal(got.Amount), "expected %s, got %s", want, got.Amount)
}

// =============================================================================
// ENGINE TESTS
// =============================================================================

func TestEngine_FlatRateOnActualValue(t *testing.T) {
	// GIVEN: 75,000 against a 50,000 target, 7.5% of actual
	// WHEN: Calculating for January
	// THEN: Gross is 5,625.00 INR and achievement is 150%
	res := incentive.NewEngine().Calculate(testEmployee(), flatPlan(), dec("75000"), jan2025())

	require.True(t, res.Success, res.Message)
	assertMoney(t, "5625", res.GrossIncentive)
	assertMoney(t, "5625", res.NetIncentive)
	assert.Equal(t, "INR", res.GrossIncentive.Currency)
	assert.True(t, dec("150").Equal(res.Achievement.Value))
	require.NotNil(t, res.AppliedSlab)
	assert.Equal(t, incentive.SlabID("s1"), res.AppliedSlab.ID)
	assert.Nil(t, res.Prorata)
	assert.NoError(t, res.Err())
}

func TestEngine_BelowThresholdIsZeroButSuccessful(t *testing.T) {
	plan := flatPlan()
	plan.Target.MinimumThreshold = dec("20000")

	res := incentive.NewEngine().Calculate(testEmployee(), plan, dec("19999.99"), jan2025())

	require.True(t, res.Success)
	assert.True(t, res.BelowThreshold)
	assert.True(t, res.GrossIncentive.IsZero())
	assert.True(t, res.NetIncentive.IsZero())
	assert.Nil(t, res.AppliedSlab)
	assert.True(t, dec("39.99998").Equal(res.Achievement.Value))
}

func TestEngine_ThresholdBoundaryIsPayable(t *testing.T) {
	plan := flatPlan()
	plan.Target.MinimumThreshold = dec("20000")

	res := incentive.NewEngine().Calculate(testEmployee(), plan, dec("20000"), jan2025())

	require.True(t, res.Success)
	assert.False(t, res.BelowThreshold)
	assertMoney(t, "1500", res.GrossIncentive)
}

func TestEngine_GraduatedBoundaryResolvesToHigherSlab(t *testing.T) {
	// GIVEN: Bands meet at 50,000
	// WHEN: Actual is exactly 50,000
	// THEN: The whole amount pays at the upper band's 7.5%
	res := incentive.NewEngine().Calculate(testEmployee(), tieredPlan(incentive.AchievementTieredGraduated), dec("50000"), jan2025())

	require.True(t, res.Success, res.Message)
	assert.Equal(t, incentive.SlabID("t2"), res.AppliedSlab.ID)
	assertMoney(t, "3750", res.GrossIncentive)
}

func TestEngine_MarginalSumsEachBand(t *testing.T) {
	// 50,000 × 5% + 50,000 × 7.5% + 20,000 × 10% = 2,500 + 3,750 + 2,000
	res := incentive.NewEngine().Calculate(testEmployee(), tieredPlan(incentive.AchievementTieredMarginal), dec("120000"), jan2025())

	require.True(t, res.Success, res.Message)
	assertMoney(t, "8250", res.GrossIncentive)
	assert.Equal(t, incentive.SlabID("t3"), res.AppliedSlab.ID)
}

func TestEngine_MarginalWithinFirstBand(t *testing.T) {
	res := incentive.NewEngine().Calculate(testEmployee(), tieredPlan(incentive.AchievementTieredMarginal), dec("10000"), jan2025())

	require.True(t, res.Success, res.Message)
	assertMoney(t, "500", res.GrossIncentive)
	assert.Equal(t, incentive.SlabID("t1"), res.AppliedSlab.ID)
}

func TestEngine_PercentageTypeSelectsOnAchievement(t *testing.T) {
	// GIVEN: Slabs keyed on achievement %: [0,100) 2% and [100,∞) 4% of target
	plan := flatPlan()
	plan.Target.AchievementType = incentive.AchievementPercentage
	plan.Basis = incentive.BasisTargetValue
	plan.Slabs = []incentive.Slab{
		{ID: "p1", TierIndex: 1, From: dec("0"), To: decPtr("100"), Rate: pct("2")},
		{ID: "p2", TierIndex: 2, From: dec("100"), Rate: pct("4")},
	}

	// WHEN: 60,000 against 50,000 (120%)
	res := incentive.NewEngine().Calculate(testEmployee(), plan, dec("60000"), jan2025())

	// THEN: 4% of the 50,000 target
	require.True(t, res.Success, res.Message)
	assert.Equal(t, incentive.SlabID("p2"), res.AppliedSlab.ID)
	assertMoney(t, "2000", res.GrossIncentive)
}

func TestEngine_BaseSalaryBasis(t *testing.T) {
	plan := flatPlan()
	plan.Basis = incentive.BasisBaseSalary
	plan.Slabs[0].Rate = pct("1")

	res := incentive.NewEngine().Calculate(testEmployee(), plan, dec("10"), jan2025())

	require.True(t, res.Success, res.Message)
	assertMoney(t, "6000", res.GrossIncentive)
}

func TestEngine_FixedAmountSlab(t *testing.T) {
	plan := tieredPlan(incentive.AchievementAbsolute)
	plan.Slabs[2].Rate = nil
	plan.Slabs[2].FixedAmount = inrPtr("15000")

	res := incentive.NewEngine().Calculate(testEmployee(), plan, dec("250000"), jan2025())

	require.True(t, res.Success, res.Message)
	assertMoney(t, "15000", res.GrossIncentive)
}

func TestEngine_UncoveredValueFails(t *testing.T) {
	// GIVEN: Slabs only cover [10000, 50000)
	plan := flatPlan()
	plan.Slabs = []incentive.Slab{{ID: "b", TierIndex: 1, From: dec("10000"), To: decPtr("50000"), Rate: pct("5")}}

	// WHEN: Actual is 75,000
	res := incentive.NewEngine().Calculate(testEmployee(), plan, dec("75000"), jan2025())

	// THEN: Failure, never a silent zero
	assert.False(t, res.Success)
	assert.Equal(t, incentive.CodeComputation, res.Code)
	assert.ErrorIs(t, res.Err(), incentive.ErrComputation)
}

func TestEngine_RejectsBadInput(t *testing.T) {
	engine := incentive.NewEngine()

	res := engine.Calculate(testEmployee(), flatPlan(), dec("-1"), jan2025())
	assert.Equal(t, incentive.CodeValidation, res.Code)

	outside := incentive.MonthRange(2026, time.March)
	res = engine.Calculate(testEmployee(), flatPlan(), dec("1"), outside)
	assert.Equal(t, incentive.CodeValidation, res.Code)

	res = engine.Calculate(nil, flatPlan(), dec("1"), jan2025())
	assert.False(t, res.Success)
}

func TestEngine_MisconfiguredPlanIsComputationFailure(t *testing.T) {
	plan := flatPlan()
	plan.Slabs = append(plan.Slabs, incentive.Slab{ID: "dup", TierIndex: 2, From: dec("100"), Rate: pct("1")})

	res := incentive.NewEngine().Calculate(testEmployee(), plan, dec("1000"), jan2025())

	assert.False(t, res.Success)
	assert.Equal(t, incentive.CodeComputation, res.Code)
}

func TestEngine_PartialEmploymentProrates(t *testing.T) {
	// GIVEN: Employee joined on Jan 17, so 15 of 31 days are covered
	emp := testEmployee()
	joined := time.Date(2025, time.January, 17, 0, 0, 0, 0, time.UTC)
	emp.JoinedOn = &joined

	res := incentive.NewEngine().Calculate(emp, flatPlan(), dec("75000"), jan2025())

	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Prorata)
	assertMoney(t, "5625", res.GrossIncentive)
	want := dec("5625").Mul(dec("15")).Div(dec("31"))
	assert.True(t, res.NetIncentive.Amount.Sub(want).Abs().LessThan(dec("0.0001")))
}

func TestEngine_NotEmployedInPeriodPaysNothing(t *testing.T) {
	emp := testEmployee()
	exited := time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)
	emp.ExitedOn = &exited

	res := incentive.NewEngine().Calculate(emp, flatPlan(), dec("75000"), jan2025())

	require.True(t, res.Success)
	require.NotNil(t, res.Prorata)
	assert.True(t, res.Prorata.IsZero())
	assert.True(t, res.NetIncentive.IsZero())
}

func TestEngine_IsDeterministic(t *testing.T) {
	engine := incentive.NewEngine()
	plan := tieredPlan(incentive.AchievementTieredMarginal)
	a := engine.Calculate(testEmployee(), plan, dec("87654.32"), jan2025())
	b := engine.Calculate(testEmployee(), plan, dec("87654.32"), jan2025())
	assert.Equal(t, a, b)
}
