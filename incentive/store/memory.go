// Package store provides in-memory implementations of the incentive
// collaborator interfaces.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/incentive-engine/incentive"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps records rather than live aggregates so callers can never
// mutate stored state without going through Save.
type Memory struct {
	mu           sync.RWMutex
	employees    map[incentive.EmployeeID]incentive.Employee
	plans        map[incentive.PlanID]incentive.Plan
	departments  map[incentive.DepartmentID]incentive.Department
	calculations map[incentive.CalculationID]incentive.CalculationRecord
	byTriple     map[tripleKey][]incentive.CalculationID
}

var (
	_ incentive.Directory        = (*Memory)(nil)
	_ incentive.CalculationStore = (*Memory)(nil)
)

type tripleKey struct {
	EmployeeID incentive.EmployeeID
	PlanID     incentive.PlanID
	Start, End int64
}

func keyFor(e incentive.EmployeeID, p incentive.PlanID, period incentive.DateRange) tripleKey {
	return tripleKey{EmployeeID: e, PlanID: p, Start: period.Start.UnixNano(), End: period.End.UnixNano()}
}

func NewMemory() *Memory {
	return &Memory{
		employees:    make(map[incentive.EmployeeID]incentive.Employee),
		plans:        make(map[incentive.PlanID]incentive.Plan),
		departments:  make(map[incentive.DepartmentID]incentive.Department),
		calculations: make(map[incentive.CalculationID]incentive.CalculationRecord),
		byTriple:     make(map[tripleKey][]incentive.CalculationID),
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) PutEmployee(_ context.Context, e incentive.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id incentive.EmployeeID) (*incentive.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return nil, incentive.NotFoundError("employee", string(id))
	}
	return &e, nil
}

func (m *Memory) PutPlan(_ context.Context, p incentive.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Slabs = append([]incentive.Slab(nil), p.Slabs...)
	m.plans[p.ID] = p
	return nil
}

func (m *Memory) GetPlan(_ context.Context, id incentive.PlanID) (*incentive.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, incentive.NotFoundError("plan", string(id))
	}
	p.Slabs = append([]incentive.Slab(nil), p.Slabs...)
	return &p, nil
}

func (m *Memory) PutDepartment(_ context.Context, d incentive.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departments[d.ID] = d
	return nil
}

func (m *Memory) GetDepartment(_ context.Context, id incentive.DepartmentID) (*incentive.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.departments[id]
	if !ok {
		return nil, incentive.NotFoundError("department", string(id))
	}
	return &d, nil
}

// GetHierarchy walks parent links to the root. A missing department
// anywhere on the way is NotFound; a cycle ends the walk.
func (m *Memory) GetHierarchy(_ context.Context, id incentive.DepartmentID) ([]incentive.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var chain []incentive.Department
	seen := make(map[incentive.DepartmentID]bool)
	current := id
	for {
		d, ok := m.departments[current]
		if !ok {
			return nil, incentive.NotFoundError("department", string(current))
		}
		if seen[current] {
			return chain, nil
		}
		seen[current] = true
		chain = append(chain, d)
		if d.ParentID == nil {
			return chain, nil
		}
		current = *d.ParentID
	}
}

// =============================================================================
// CALCULATIONS
// =============================================================================

func (m *Memory) Create(ctx context.Context, c *incentive.Calculation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.calculations[c.ID()]; exists {
		return incentive.DuplicateError(c.ID())
	}
	if live := m.overlapping(c.EmployeeID(), c.PlanID(), c.Period()); len(live) > 0 {
		return incentive.DuplicateError(live[0].ID)
	}
	k := keyFor(c.EmployeeID(), c.PlanID(), c.Period())

	rec := c.Record()
	rec.Version = 1
	m.calculations[c.ID()] = rec
	m.byTriple[k] = append(m.byTriple[k], c.ID())
	c.Committed(1)
	return nil
}

func (m *Memory) Get(_ context.Context, id incentive.CalculationID) (*incentive.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.calculations[id]
	if !ok {
		return nil, incentive.NotFoundError("calculation", string(id))
	}
	return incentive.Restore(rec), nil
}

func (m *Memory) FindLatest(_ context.Context, employeeID incentive.EmployeeID, planID incentive.PlanID, period incentive.DateRange) (*incentive.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byTriple[keyFor(employeeID, planID, period)]
	if len(ids) == 0 {
		return nil, incentive.NotFoundError("calculation", string(employeeID)+"/"+string(planID))
	}
	return incentive.Restore(m.calculations[ids[len(ids)-1]]), nil
}

func (m *Memory) FindOverlapping(_ context.Context, employeeID incentive.EmployeeID, planID incentive.PlanID, period incentive.DateRange) ([]*incentive.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.overlapping(employeeID, planID, period)
	out := make([]*incentive.Calculation, len(recs))
	for i, rec := range recs {
		out[i] = incentive.Restore(rec)
	}
	return out, nil
}

// overlapping expects m.mu to be held.
func (m *Memory) overlapping(employeeID incentive.EmployeeID, planID incentive.PlanID, period incentive.DateRange) []incentive.CalculationRecord {
	var recs []incentive.CalculationRecord
	for _, rec := range m.calculations {
		if rec.EmployeeID != employeeID || rec.PlanID != planID || rec.Status == incentive.StatusVoided {
			continue
		}
		if rec.Period.Overlaps(period) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
	return recs
}

func (m *Memory) Save(ctx context.Context, c *incentive.Calculation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.calculations[c.ID()]
	if !ok {
		return incentive.NotFoundError("calculation", string(c.ID()))
	}
	if stored.Version != c.Version() {
		return incentive.ConflictError(c.ID(), c.Version())
	}
	rec := c.Record()
	rec.Version = stored.Version + 1
	m.calculations[c.ID()] = rec
	c.Committed(rec.Version)
	return nil
}

func (m *Memory) List(_ context.Context, f incentive.CalculationFilter) ([]*incentive.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []incentive.CalculationRecord
	for _, rec := range m.calculations {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.EmployeeID != "" && rec.EmployeeID != f.EmployeeID {
			continue
		}
		if f.ApproverID != "" && !pendingFor(rec, f.ApproverID) {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	if f.Limit > 0 && len(recs) > f.Limit {
		recs = recs[:f.Limit]
	}
	out := make([]*incentive.Calculation, len(recs))
	for i, rec := range recs {
		out[i] = incentive.Restore(rec)
	}
	return out, nil
}

func (m *Memory) ListOverdue(_ context.Context, now time.Time) ([]*incentive.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*incentive.Calculation
	for _, rec := range m.calculations {
		if rec.Status != incentive.StatusPendingApproval {
			continue
		}
		for _, a := range rec.Approvals {
			if a.Overdue(now) {
				out = append(out, incentive.Restore(rec))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

func pendingFor(rec incentive.CalculationRecord, approverID string) bool {
	if rec.Status != incentive.StatusPendingApproval {
		return false
	}
	for _, a := range rec.Approvals {
		if a.Status == incentive.ApprovalPending && a.ApproverID == approverID {
			return true
		}
	}
	return false
}
