/*
store.go - Collaborator contracts consumed by the core

PURPOSE:
  The core never talks to a database, a directory service or an identity
  provider directly. It consumes the narrow interfaces below; concrete
  implementations live in incentive/store (memory), store/sqlite and
  store/rediscache.

NOT-FOUND CONTRACT:
  Lookups return an error satisfying errors.Is(err, ErrNotFound) when the
  record is absent. A nil error always comes with a non-nil value.

CONCURRENCY CONTRACT:
  CalculationStore.Save compares the aggregate's Version with the stored
  version and fails with ErrConcurrentModification when they differ. Create
  fails with ErrDuplicateCalculation when a non-voided calculation already
  exists for the same (employee, plan, period). Both writes are atomic: a
  cancelled context before commit leaves nothing behind.
*/
package incentive

import (
	"context"
	"time"
)

type EmployeeDirectory interface {
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
}

type PlanCatalog interface {
	GetPlan(ctx context.Context, id PlanID) (*Plan, error)
}

// DepartmentDirectory resolves the approval hierarchy.
type DepartmentDirectory interface {
	GetDepartment(ctx context.Context, id DepartmentID) (*Department, error)
	// GetHierarchy returns the chain from id up to the root, id first.
	GetHierarchy(ctx context.Context, id DepartmentID) ([]Department, error)
}

// Directory is the writable reference data the engine reads: employees,
// plans and the department tree.
type Directory interface {
	EmployeeDirectory
	PlanCatalog
	DepartmentDirectory
	PutEmployee(ctx context.Context, e Employee) error
	PutPlan(ctx context.Context, p Plan) error
	PutDepartment(ctx context.Context, d Department) error
}

// CalculationFilter narrows List queries. Zero fields match everything.
type CalculationFilter struct {
	Status     CalculationStatus
	EmployeeID EmployeeID
	ApproverID string
	Limit      int
}

type CalculationStore interface {
	// Create inserts a new aggregate and assigns its first version. A live
	// calculation for the same employee and plan over an overlapping period
	// is a duplicate.
	Create(ctx context.Context, c *Calculation) error
	// Get loads a calculation with its approvals.
	Get(ctx context.Context, id CalculationID) (*Calculation, error)
	// FindLatest returns the newest calculation for the triple, voided or not.
	FindLatest(ctx context.Context, employeeID EmployeeID, planID PlanID, period DateRange) (*Calculation, error)
	// FindOverlapping returns the non-voided calculations for the employee
	// and plan whose period overlaps period, oldest first.
	FindOverlapping(ctx context.Context, employeeID EmployeeID, planID PlanID, period DateRange) ([]*Calculation, error)
	// Save persists a mutated aggregate if nobody else saved it first.
	Save(ctx context.Context, c *Calculation) error
	List(ctx context.Context, filter CalculationFilter) ([]*Calculation, error)
	// ListOverdue returns pending calculations whose active approval
	// expired before now.
	ListOverdue(ctx context.Context, now time.Time) ([]*Calculation, error)
}

// =============================================================================
// ACTOR IDENTITY
// =============================================================================

// SystemActor stamps actions taken without a caller identity.
const SystemActor = "system"

type actorKey struct{}

// WithActor attaches the acting user's identity to ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the identity attached to ctx, or SystemActor.
func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return SystemActor
}
