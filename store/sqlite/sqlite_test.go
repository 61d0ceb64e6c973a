package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/incentive"
)

var now = time.Date(2025, time.February, 3, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testPlan() incentive.Plan {
	rate := incentive.MustPercentage("5")
	high := incentive.MustPercentage("7.5")
	to := decimal.NewFromInt(100)
	ceiling := incentive.MustMoney("5000", "INR")
	return incentive.Plan{
		ID:       "plan-1",
		Code:     "P1",
		Name:     "Annual",
		Currency: "INR",
		EffectivePeriod: incentive.DateRange{
			Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Target: incentive.Target{
			TargetValue:      decimal.NewFromInt(100),
			MinimumThreshold: decimal.NewFromInt(10),
			AchievementType:  incentive.AchievementTieredGraduated,
		},
		Basis: incentive.BasisActualValue,
		Slabs: []incentive.Slab{
			{ID: "s1", TierIndex: 1, From: decimal.Zero, To: &to, Rate: &rate},
			{ID: "s2", TierIndex: 2, From: to, Rate: &high},
		},
		MaximumPayout: &ceiling,
		Status:        incentive.PlanActive,
	}
}

func testEmployee() incentive.Employee {
	joined := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return incentive.Employee{
		ID:           "emp-1",
		Code:         "E001",
		Email:        "asha@example.com",
		BaseSalary:   incentive.MustMoney("1200000.50", "INR"),
		DepartmentID: "d-1",
		Status:       incentive.EmployeeActive,
		JoinedOn:     &joined,
	}
}

func newCalc(t *testing.T, id incentive.CalculationID) *incentive.Calculation {
	t.Helper()
	emp, plan := testEmployee(), testPlan()
	c, err := incentive.NewCalculation(id, &emp, &plan, incentive.MonthRange(2025, time.January), decimal.NewFromInt(80), now)
	require.NoError(t, err)
	return c
}

func TestStore_EmployeeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	emp := testEmployee()
	require.NoError(t, s.PutEmployee(ctx, emp))

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "E001", got.Code)
	assert.True(t, emp.BaseSalary.Equal(got.BaseSalary))
	require.NotNil(t, got.JoinedOn)
	assert.True(t, emp.JoinedOn.Equal(*got.JoinedOn))
	assert.Nil(t, got.ExitedOn)

	// Upsert replaces in place.
	emp.Status = incentive.EmployeeTerminated
	require.NoError(t, s.PutEmployee(ctx, emp))
	got, err = s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, incentive.EmployeeTerminated, got.Status)

	_, err = s.GetEmployee(ctx, "missing")
	assert.True(t, incentive.IsNotFound(err))
}

func TestStore_PlanRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutPlan(ctx, testPlan()))
	got, err := s.GetPlan(ctx, "plan-1")
	require.NoError(t, err)

	assert.Equal(t, incentive.PlanActive, got.Status)
	assert.Equal(t, incentive.AchievementTieredGraduated, got.Target.AchievementType)
	require.Len(t, got.Slabs, 2)
	assert.Equal(t, incentive.SlabID("s2"), got.Slabs[1].ID)
	assert.Nil(t, got.Slabs[1].To)
	require.NotNil(t, got.MaximumPayout)
	assert.True(t, decimal.NewFromInt(5000).Equal(got.MaximumPayout.Amount))

	_, err = s.GetPlan(ctx, "missing")
	assert.True(t, incentive.IsNotFound(err))
}

func TestStore_Hierarchy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	root := incentive.DepartmentID("root")
	mid := incentive.DepartmentID("mid")
	require.NoError(t, s.PutDepartment(ctx, incentive.Department{ID: root, ManagerID: "ceo"}))
	require.NoError(t, s.PutDepartment(ctx, incentive.Department{ID: mid, ManagerID: "vp", ParentID: &root}))
	require.NoError(t, s.PutDepartment(ctx, incentive.Department{ID: "leaf", ManagerID: "mgr", ParentID: &mid}))

	chain, err := s.GetHierarchy(ctx, "leaf")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "ceo", chain[2].ManagerID)
	assert.Nil(t, chain[2].ParentID)

	_, err = s.GetHierarchy(ctx, "missing")
	assert.True(t, incentive.IsNotFound(err))

	// A parent that was never stored breaks the chain.
	ghost := incentive.DepartmentID("ghost")
	require.NoError(t, s.PutDepartment(ctx, incentive.Department{ID: "orphan", ManagerID: "mgr-orphan", ParentID: &ghost}))
	_, err = s.GetHierarchy(ctx, "orphan")
	assert.True(t, incentive.IsNotFound(err))
}

func TestStore_CreateAndGet(t *testing.T) {
	// GIVEN: a fresh calculation
	ctx := context.Background()
	s := newTestStore(t)
	c := newCalc(t, "c-1")
	slab := incentive.SlabID("s1")
	require.NoError(t, c.Calculate(incentive.MustMoney("4", "INR"), &slab, now))

	// WHEN: it is created and read back
	require.NoError(t, s.Create(ctx, c))
	got, err := s.Get(ctx, "c-1")
	require.NoError(t, err)

	// THEN: the record survives the round trip
	assert.Equal(t, 1, c.Version())
	assert.Equal(t, 1, got.Version())
	want, have := c.Record(), got.Record()
	assert.Equal(t, want.Status, have.Status)
	assert.True(t, want.Period.Equal(have.Period))
	assert.True(t, want.Gross.Equal(have.Gross))
	assert.True(t, want.Net.Equal(have.Net))
	assert.True(t, want.Achievement.Value.Equal(have.Achievement.Value))
	assert.True(t, want.BaseSalary.Equal(have.BaseSalary))
	assert.True(t, want.CreatedAt.Equal(have.CreatedAt))
	require.NotNil(t, have.AppliedSlabID)
	assert.Equal(t, slab, *have.AppliedSlabID)

	_, err = s.Get(ctx, "missing")
	assert.True(t, incentive.IsNotFound(err))
}

func TestStore_CreateRejectsDuplicateTriple(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Create(ctx, newCalc(t, "c-1")))

	err := s.Create(ctx, newCalc(t, "c-2"))
	require.ErrorIs(t, err, incentive.ErrDuplicateCalculation)
	assert.Contains(t, err.Error(), "c-1")
}

func TestStore_CreateRejectsOverlappingPeriod(t *testing.T) {
	// GIVEN: a live January calculation
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Create(ctx, newCalc(t, "c-jan")))

	emp, plan := testEmployee(), testPlan()
	midJan := incentive.DateRange{
		Start: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
	}
	overlapping, err := incentive.NewCalculation("c-mid", &emp, &plan, midJan, decimal.NewFromInt(80), now)
	require.NoError(t, err)

	// WHEN: a window straddling January is created
	err = s.Create(ctx, overlapping)

	// THEN: it is a duplicate of the January calculation
	require.ErrorIs(t, err, incentive.ErrDuplicateCalculation)
	assert.Contains(t, err.Error(), "c-jan")

	live, err := s.FindOverlapping(ctx, "emp-1", "plan-1", midJan)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, incentive.CalculationID("c-jan"), live[0].ID())

	// Adjacent half-open periods do not overlap.
	february, err := incentive.NewCalculation("c-feb", &emp, &plan, incentive.MonthRange(2025, time.February), decimal.NewFromInt(80), now)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, february))
}

func TestStore_ConcurrentCreatesOneWins(t *testing.T) {
	// GIVEN: ten writers racing on the same triple
	ctx := context.Background()
	s := newTestStore(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dups int
	)
	for i := 0; i < 10; i++ {
		c := newCalc(t, incentive.CalculationID("c-"+string(rune('a'+i))))
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Create(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, incentive.ErrDuplicateCalculation) {
				dups++
			}
		}()
	}
	wg.Wait()

	// THEN: exactly one is stored
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, dups)
}

func TestStore_VoidedTripleCanBeRecalculated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := newCalc(t, "c-1")
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, first.Void("wrong actuals", "admin", now))
	require.NoError(t, s.Save(ctx, first))

	second := newCalc(t, "c-2")
	require.NoError(t, s.Create(ctx, second))

	latest, err := s.FindLatest(ctx, "emp-1", "plan-1", incentive.MonthRange(2025, time.January))
	require.NoError(t, err)
	assert.Equal(t, incentive.CalculationID("c-2"), latest.ID())

	_, err = s.FindLatest(ctx, "emp-1", "plan-1", incentive.MonthRange(2025, time.March))
	assert.True(t, incentive.IsNotFound(err))
}

func TestStore_SaveDetectsStaleVersion(t *testing.T) {
	// GIVEN: two readers of the same calculation
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Create(ctx, newCalc(t, "c-1")))

	a, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	b, err := s.Get(ctx, "c-1")
	require.NoError(t, err)

	// WHEN: both try to void
	require.NoError(t, a.Void("first", "u1", now))
	require.NoError(t, s.Save(ctx, a))
	require.NoError(t, b.Void("second", "u2", now))

	// THEN: the second save loses and the first one's data stays
	assert.ErrorIs(t, s.Save(ctx, b), incentive.ErrConcurrentModification)
	assert.Equal(t, 2, a.Version())

	stored, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Record().VoidReason)
}

func TestStore_SaveUnknownCalculation(t *testing.T) {
	s := newTestStore(t)
	err := s.Save(context.Background(), newCalc(t, "never-created"))
	assert.True(t, incentive.IsNotFound(err))
}

func TestStore_ApprovalsPersistAndQueue(t *testing.T) {
	// GIVEN: a submitted calculation with a one hour SLA
	ctx := context.Background()
	s := newTestStore(t)
	c := newCalc(t, "c-1")
	require.NoError(t, s.Create(ctx, c))
	require.NoError(t, c.Submit(incentive.Assignment{Level: incentive.Level1, ApproverID: "mgr-1", ExpiresAt: now.Add(time.Hour)}, now))
	require.NoError(t, s.Save(ctx, c))

	// WHEN: the approval is delegated
	require.NoError(t, c.Delegate("mgr-1", "mgr-2", "on leave", now.Add(time.Minute)))
	require.NoError(t, s.Save(ctx, c))

	// THEN: both approval rows are stored in order
	got, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	approvals := got.Approvals()
	require.Len(t, approvals, 2)
	assert.Equal(t, incentive.ApprovalDelegated, approvals[0].Status)
	assert.Equal(t, "mgr-2", approvals[0].DelegatedToID)
	assert.Equal(t, incentive.ApprovalPending, approvals[1].Status)
	require.NotNil(t, approvals[1].ExpiresAt)
	assert.True(t, now.Add(time.Hour).Equal(*approvals[1].ExpiresAt))

	// AND: only the delegate sees it in their queue
	pending, err := s.List(ctx, incentive.CalculationFilter{ApproverID: "mgr-2"})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	none, err := s.List(ctx, incentive.CalculationFilter{ApproverID: "mgr-1"})
	require.NoError(t, err)
	assert.Empty(t, none)

	// AND: it is overdue only after the deadline
	overdue, err := s.ListOverdue(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, overdue)
	overdue, err = s.ListOverdue(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, overdue, 1)
}

func TestStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := newCalc(t, "c-1")
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, a.Void("dup", "admin", now))
	require.NoError(t, s.Save(ctx, a))
	require.NoError(t, s.Create(ctx, newCalc(t, "c-2")))

	all, err := s.List(ctx, incentive.CalculationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	drafts, err := s.List(ctx, incentive.CalculationFilter{Status: incentive.StatusDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, incentive.CalculationID("c-2"), drafts[0].ID())

	limited, err := s.List(ctx, incentive.CalculationFilter{EmployeeID: "emp-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, incentive.CalculationID("c-1"), limited[0].ID())
}

func TestFormatTime_SortsLexically(t *testing.T) {
	early := formatTime(time.Date(2025, 1, 1, 0, 0, 0, 500, time.UTC))
	late := formatTime(time.Date(2025, 1, 1, 0, 0, 1, 0, time.FixedZone("IST", 0)))
	assert.Less(t, early, late)
	assert.Len(t, early, len(late))
}
