package incentive_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/incentive"
)

var t0 = time.Date(2025, time.February, 3, 9, 0, 0, 0, time.UTC)

func draftCalculation(t *testing.T, gross string) *incentive.Calculation {
	t.Helper()
	c, err := incentive.NewCalculation("calc-1", testEmployee(), flatPlan(), jan2025(), dec("75000"), t0)
	require.NoError(t, err)
	require.NoError(t, c.Calculate(inr(gross), nil, t0))
	return c
}

func assign(level incentive.ApprovalLevel, approver string) incentive.Assignment {
	return incentive.Assignment{Level: level, ApproverID: approver, ExpiresAt: t0.Add(72 * time.Hour)}
}

func codeOf(t *testing.T, err error) incentive.Code {
	t.Helper()
	require.Error(t, err)
	return incentive.CodeOf(err)
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func TestCalculation_NewStartsAsDraft(t *testing.T) {
	c, err := incentive.NewCalculation("calc-1", testEmployee(), flatPlan(), jan2025(), dec("75000"), t0)
	require.NoError(t, err)

	assert.Equal(t, incentive.StatusDraft, c.Status())
	assert.True(t, c.Net().IsZero())
	assert.True(t, dec("150").Equal(c.Achievement().Value))
	require.Len(t, c.PendingEvents(), 1)
	assert.Equal(t, incentive.EventCreated, c.PendingEvents()[0].Type)
}

func TestCalculation_GrossIsRoundedToCents(t *testing.T) {
	c := draftCalculation(t, "1234.5678")
	assertMoney(t, "1234.57", c.Gross())
	assertMoney(t, "1234.57", c.Net())
}

func TestCalculation_ProrataFloorsToCents(t *testing.T) {
	// 1000.00 × 33.3339% = 333.339, floored to 333.33
	c := draftCalculation(t, "1000")
	require.NoError(t, c.ApplyProrata(incentive.MustPercentage("33.3339"), t0))
	assertMoney(t, "333.33", c.Net())
}

func TestCalculation_CapAndFloor(t *testing.T) {
	c := draftCalculation(t, "12000")
	require.NoError(t, c.ApplyCap(inrPtr("10000"), nil, t0))
	assertMoney(t, "10000", c.Net())

	c = draftCalculation(t, "400")
	require.NoError(t, c.ApplyCap(nil, inrPtr("500"), t0))
	assertMoney(t, "500", c.Net())
}

func TestCalculation_AdjustmentsAreIdempotent(t *testing.T) {
	// GIVEN: gross 10,000, 50% prorata, cap 4,000
	c := draftCalculation(t, "10000")
	require.NoError(t, c.ApplyProrata(incentive.MustPercentage("50"), t0))
	require.NoError(t, c.ApplyCap(inrPtr("4000"), nil, t0))
	first := c.Net()

	// WHEN: the same adjustments are applied again
	require.NoError(t, c.ApplyProrata(incentive.MustPercentage("50"), t0))
	require.NoError(t, c.ApplyCap(inrPtr("4000"), nil, t0))

	// THEN: net does not compound
	assert.True(t, first.Equal(c.Net()))
	assertMoney(t, "4000", c.Net())
}

func TestCalculation_FloorSkippedWhenNothingEarned(t *testing.T) {
	c := draftCalculation(t, "0")
	require.NoError(t, c.ApplyCap(nil, inrPtr("500"), t0))
	assert.True(t, c.Net().IsZero())

	c = draftCalculation(t, "800")
	require.NoError(t, c.ApplyCap(nil, inrPtr("500"), t0))
	require.NoError(t, c.MarkBelowThreshold(t0))
	assert.True(t, c.Net().IsZero())
	assert.True(t, c.BelowThreshold())
}

func TestCalculation_FloorSkippedWithoutTenure(t *testing.T) {
	// GIVEN: gross earned but no day of employment in the period
	c := draftCalculation(t, "800")
	require.NoError(t, c.ApplyProrata(incentive.MustPercentage("0"), t0))

	// WHEN: the plan has a minimum payout
	require.NoError(t, c.ApplyCap(nil, inrPtr("500"), t0))

	// THEN: nothing is paid
	assert.True(t, c.Net().IsZero())

	// A partial period still gets the floor.
	c = draftCalculation(t, "800")
	require.NoError(t, c.ApplyProrata(incentive.MustPercentage("10"), t0))
	require.NoError(t, c.ApplyCap(nil, inrPtr("500"), t0))
	assertMoney(t, "500.00", c.Net())
}

func TestCalculation_CapRejectsInvertedLimits(t *testing.T) {
	c := draftCalculation(t, "1000")
	err := c.ApplyCap(inrPtr("100"), inrPtr("200"), t0)
	assert.Equal(t, incentive.CodeValidation, codeOf(t, err))

	usd := incentive.MustMoney("100", "USD")
	err = c.ApplyCap(&usd, nil, t0)
	assert.ErrorIs(t, err, incentive.ErrCurrencyMismatch)
}

func TestCalculation_ProrataPercentage(t *testing.T) {
	p := incentive.ProrataPercentage(inr("250"), inr("1000"))
	assert.True(t, dec("25").Equal(p.Value))
	assert.True(t, incentive.ProrataPercentage(inr("250"), inr("0")).IsZero())
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func TestCalculation_SingleLevelLifecycle(t *testing.T) {
	c := draftCalculation(t, "5625")

	require.NoError(t, c.Submit(assign(incentive.Level1, "mgr-1"), t0))
	assert.Equal(t, incentive.StatusPendingApproval, c.Status())
	active, ok := c.ActiveApproval()
	require.True(t, ok)
	assert.Equal(t, "mgr-1", active.ApproverID)

	done, err := c.Approve("mgr-1", "ok", incentive.Level1, nil, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, incentive.StatusApproved, c.Status())

	require.NoError(t, c.MarkPaid("payroll", "PAY-001", t0.Add(2*time.Hour)))
	assert.Equal(t, incentive.StatusPaid, c.Status())

	types := make([]incentive.EventType, 0)
	for _, e := range c.DrainEvents() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []incentive.EventType{
		incentive.EventCreated, incentive.EventCalculated, incentive.EventSubmitted,
		incentive.EventApproved, incentive.EventPaid,
	}, types)
	assert.Empty(t, c.PendingEvents())
}

func TestCalculation_MultiLevelApprovalAdvances(t *testing.T) {
	c := draftCalculation(t, "150000")
	require.NoError(t, c.Submit(assign(incentive.Level1, "mgr-1"), t0))

	// Level 1 approves; more levels needed but no next approver given.
	_, err := c.Approve("mgr-1", "", incentive.Level3, nil, t0)
	assert.ErrorIs(t, err, incentive.ErrNoApprover)
	assert.Equal(t, incentive.StatusPendingApproval, c.Status())

	// Skipping a level is refused.
	next := assign(incentive.Level3, "ceo")
	_, err = c.Approve("mgr-1", "", incentive.Level3, &next, t0)
	assert.Equal(t, incentive.CodeValidation, codeOf(t, err))

	next = assign(incentive.Level2, "vp-1")
	done, err := c.Approve("mgr-1", "", incentive.Level3, &next, t0)
	require.NoError(t, err)
	assert.False(t, done)

	next = assign(incentive.Level3, "ceo")
	done, err = c.Approve("vp-1", "", incentive.Level3, &next, t0)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = c.Approve("ceo", "", incentive.Level3, nil, t0)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, incentive.StatusApproved, c.Status())

	approvals := c.Approvals()
	require.Len(t, approvals, 3)
	for i, a := range approvals {
		assert.Equal(t, incentive.ApprovalLevel(i+1), a.Level)
		assert.Equal(t, incentive.ApprovalApproved, a.Status)
	}
}

func TestCalculation_OnlyAssignedApproverMayAct(t *testing.T) {
	c := draftCalculation(t, "100")
	require.NoError(t, c.Submit(assign(incentive.Level1, "mgr-1"), t0))

	_, err := c.Approve("intruder", "", incentive.Level1, nil, t0)
	assert.Equal(t, incentive.CodeNotAssignedApprover, codeOf(t, err))
	assert.ErrorIs(t, err, incentive.ErrInvalidTransition)

	err = c.Reject("intruder", "no", t0)
	assert.Equal(t, incentive.CodeNotAssignedApprover, codeOf(t, err))
}

func TestCalculation_RejectRequiresReason(t *testing.T) {
	c := draftCalculation(t, "100")
	require.NoError(t, c.Submit(assign(incentive.Level1, "mgr-1"), t0))

	assert.Equal(t, incentive.CodeValidation, codeOf(t, c.Reject("mgr-1", "  ", t0)))
	require.NoError(t, c.Reject("mgr-1", "numbers do not reconcile", t0))
	assert.Equal(t, incentive.StatusRejected, c.Status())

	_, err := c.Approve("mgr-1", "", incentive.Level1, nil, t0)
	assert.ErrorIs(t, err, incentive.ErrInvalidTransition)
}

func TestCalculation_ApprovingPaidCalculationFails(t *testing.T) {
	c := draftCalculation(t, "100")
	require.NoError(t, c.Submit(assign(incentive.Level1, "mgr-1"), t0))
	_, err := c.Approve("mgr-1", "", incentive.Level1, nil, t0)
	require.NoError(t, err)
	require.NoError(t, c.MarkPaid("payroll", "PAY-9", t0))
	before := c.Record()

	_, err = c.Approve("mgr-1", "", incentive.Level1, nil, t0)

	var e *incentive.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, incentive.CodeInvalidTransition, e.Code)
	assert.Equal(t, incentive.StatusPaid, e.Status)
	assert.Equal(t, before, c.Record())
}

func TestCalculation_VoidRules(t *testing.T) {
	c := draftCalculation(t, "100")

	assert.Equal(t, incentive.CodeValidation, codeOf(t, c.Void("", "admin", t0)))
	require.NoError(t, c.Void("entered twice", "admin", t0))
	assert.Equal(t, incentive.StatusVoided, c.Status())
	assert.Equal(t, incentive.CodeAlreadyVoided, codeOf(t, c.Void("again", "admin", t0)))

	paid := draftCalculation(t, "100")
	require.NoError(t, paid.Submit(assign(incentive.Level1, "mgr-1"), t0))
	_, err := paid.Approve("mgr-1", "", incentive.Level1, nil, t0)
	require.NoError(t, err)
	require.NoError(t, paid.MarkPaid("payroll", "PAY-1", t0))
	assert.Equal(t, incentive.CodeCannotVoidPaid, codeOf(t, paid.Void("oops", "admin", t0)))
}

func TestCalculation_AdjustmentsOnlyInDraft(t *testing.T) {
	c := draftCalculation(t, "100")
	require.NoError(t, c.Submit(assign(incentive.Level1, "mgr-1"), t0))

	assert.ErrorIs(t, c.ApplyProrata(incentive.MustPercentage("50"), t0), incentive.ErrInvalidTransition)
	assert.ErrorIs(t, c.ApplyCap(inrPtr("10"), nil, t0), incentive.ErrInvalidTransition)
	assert.ErrorIs(t, c.Calculate(inr("5"), nil, t0), incentive.ErrInvalidTransition)
	assert.ErrorIs(t, c.Submit(assign(incentive.Level1, "mgr-1"), t0), incentive.ErrInvalidTransition)
}

func TestCalculation_DelegateKeepsDeadline(t *testing.T) {
	c := draftCalculation(t, "100")
	first := assign(incentive.Level1, "mgr-1")
	require.NoError(t, c.Submit(first, t0))

	require.NoError(t, c.Delegate("mgr-1", "mgr-2", "on leave", t0.Add(time.Hour)))

	active, ok := c.ActiveApproval()
	require.True(t, ok)
	assert.Equal(t, "mgr-2", active.ApproverID)
	require.NotNil(t, active.ExpiresAt)
	assert.True(t, first.ExpiresAt.Equal(*active.ExpiresAt))
	assert.Equal(t, incentive.ApprovalDelegated, c.Approvals()[0].Status)
	assert.Equal(t, "mgr-2", c.Approvals()[0].DelegatedToID)

	assert.Error(t, c.Delegate("mgr-2", "mgr-2", "", t0))
}

func TestCalculation_Escalate(t *testing.T) {
	c := draftCalculation(t, "100")
	require.NoError(t, c.Submit(assign(incentive.Level1, "mgr-1"), t0))

	err := c.Escalate(assign(incentive.Level3, "ceo"), t0)
	assert.Equal(t, incentive.CodeValidation, codeOf(t, err))

	require.NoError(t, c.Escalate(assign(incentive.Level2, "vp-1"), t0.Add(80*time.Hour)))
	assert.Equal(t, incentive.ApprovalExpired, c.Approvals()[0].Status)
	active, _ := c.ActiveApproval()
	assert.Equal(t, "vp-1", active.ApproverID)

	// The escalated approver completes approval at its own level.
	done, err := c.Approve("vp-1", "", incentive.Level1, nil, t0)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestCalculation_RecordRoundTrip(t *testing.T) {
	c := draftCalculation(t, "5625")
	require.NoError(t, c.ApplyProrata(incentive.MustPercentage("50"), t0))
	require.NoError(t, c.Submit(assign(incentive.Level1, "mgr-1"), t0))
	c.Committed(4)

	restored := incentive.Restore(c.Record())

	assert.Equal(t, c.Record(), restored.Record())
	assert.Equal(t, 4, restored.Version())
	assert.Empty(t, restored.PendingEvents())
}
