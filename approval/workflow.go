/*
Package approval decides how a computed incentive is approved.

PURPOSE:
  Given an incentive amount and the employee's department, the Workflow
  answers four questions:
    1. How many levels must approve?        DetermineApprovalLevel
    2. Who approves at a given level?       GetApproverForLevel
    3. Who takes over when an approver
       is unavailable or stalls?            GetEscalationTarget
    4. When does a pending approval expire? CalculateExpirationTime

LEVELS (thresholds injected through Config):
  amount <= Level1Max               ──▶ Level 1  (department manager)
  Level1Max < amount <= Level2Max   ──▶ Level 2  (parent department manager)
  amount > Level2Max                ──▶ Level 3  (root department manager)

SLA WINDOWS:
  Inverted with level: higher-value approvals must be actioned faster.
  Defaults are 72h / 48h / 24h. The deadline is fixed when the approval is
  created and never recomputed.

FAILURE SEMANTICS:
  A missing department or manager is not an error here; resolution returns
  ok=false and logs a warning. Callers turn that into a routing failure so
  a batch can continue and the item can be routed manually.
*/
package approval

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/logger"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config holds the tier cutoffs and SLA windows.
type Config struct {
	Level1Max decimal.Decimal
	Level2Max decimal.Decimal
	Level1SLA time.Duration
	Level2SLA time.Duration
	Level3SLA time.Duration
}

func DefaultConfig() Config {
	return Config{
		Level1Max: decimal.NewFromInt(50_000),
		Level2Max: decimal.NewFromInt(100_000),
		Level1SLA: 72 * time.Hour,
		Level2SLA: 48 * time.Hour,
		Level3SLA: 24 * time.Hour,
	}
}

func (c Config) Validate() error {
	if !c.Level1Max.IsPositive() {
		return incentive.NewValidationError("level 1 threshold must be positive")
	}
	if !c.Level2Max.GreaterThan(c.Level1Max) {
		return incentive.NewValidationError("level 2 threshold must exceed level 1 threshold")
	}
	if c.Level1SLA <= 0 || c.Level2SLA <= 0 || c.Level3SLA <= 0 {
		return incentive.NewValidationError("SLA windows must be positive")
	}
	return nil
}

// =============================================================================
// WORKFLOW
// =============================================================================

type Workflow struct {
	cfg         Config
	departments incentive.DepartmentDirectory
	log         logger.Logger
	now         func() time.Time
}

type Option func(*Workflow)

func WithLogger(l logger.Logger) Option { return func(w *Workflow) { w.log = l } }

// WithClock overrides the time source used for expirations.
func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }

func NewWorkflow(cfg Config, departments incentive.DepartmentDirectory, opts ...Option) (*Workflow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &Workflow{
		cfg:         cfg,
		departments: departments,
		log:         logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Workflow) Config() Config { return w.cfg }

// DetermineApprovalLevel maps an amount onto the level that must sign off.
// Boundaries are inclusive on the lower tier.
func (w *Workflow) DetermineApprovalLevel(amount decimal.Decimal) incentive.ApprovalLevel {
	switch {
	case amount.LessThanOrEqual(w.cfg.Level1Max):
		return incentive.Level1
	case amount.LessThanOrEqual(w.cfg.Level2Max):
		return incentive.Level2
	default:
		return incentive.Level3
	}
}

func (w *Workflow) RequiresNextLevelApproval(amount decimal.Decimal, current incentive.ApprovalLevel) bool {
	return current < w.DetermineApprovalLevel(amount)
}

// GetApproverForLevel resolves the approver for level starting from the
// employee's department.
func (w *Workflow) GetApproverForLevel(ctx context.Context, level incentive.ApprovalLevel, departmentID incentive.DepartmentID) (string, bool) {
	switch level {
	case incentive.Level1:
		dept, ok := w.department(ctx, departmentID)
		if !ok {
			return "", false
		}
		return w.manager(ctx, dept, level)

	case incentive.Level2:
		dept, ok := w.department(ctx, departmentID)
		if !ok {
			return "", false
		}
		if dept.ParentID == nil {
			w.log.Warn(ctx, "department has no parent for level 2 approval",
				logger.String("department_id", string(departmentID)))
			return "", false
		}
		parent, ok := w.department(ctx, *dept.ParentID)
		if !ok {
			return "", false
		}
		return w.manager(ctx, parent, level)

	case incentive.Level3:
		chain, err := w.departments.GetHierarchy(ctx, departmentID)
		if err != nil || len(chain) == 0 {
			w.log.Warn(ctx, "department hierarchy lookup failed",
				logger.String("department_id", string(departmentID)), logger.Error(err))
			return "", false
		}
		root := chain[len(chain)-1]
		if root.ParentID != nil {
			w.log.Warn(ctx, "department hierarchy does not reach a root",
				logger.String("department_id", string(departmentID)),
				logger.String("last_department_id", string(root.ID)))
			return "", false
		}
		return w.manager(ctx, &root, level)

	default:
		return "", false
	}
}

// GetNextLevelApprover resolves the approver one level above current.
// There is nothing above MaxApprovalLevel.
func (w *Workflow) GetNextLevelApprover(ctx context.Context, current incentive.ApprovalLevel, departmentID incentive.DepartmentID) (string, bool) {
	next := current + 1
	if next > incentive.MaxApprovalLevel {
		return "", false
	}
	return w.GetApproverForLevel(ctx, next, departmentID)
}

// GetEscalationTarget picks who takes over a stalled approval. The
// same-level approver of the parent department wins when it is a different
// person; otherwise the next level's approver is used.
func (w *Workflow) GetEscalationTarget(ctx context.Context, currentApproverID string, current incentive.ApprovalLevel, departmentID incentive.DepartmentID) (incentive.Assignment, bool) {
	return w.EscalationTargetAt(ctx, currentApproverID, current, departmentID, w.now())
}

// EscalationTargetAt is GetEscalationTarget for an approval opened at at;
// the deadline runs from at.
func (w *Workflow) EscalationTargetAt(ctx context.Context, currentApproverID string, current incentive.ApprovalLevel, departmentID incentive.DepartmentID, at time.Time) (incentive.Assignment, bool) {
	if dept, ok := w.department(ctx, departmentID); ok && dept.ParentID != nil {
		if approver, ok := w.GetApproverForLevel(ctx, current, *dept.ParentID); ok && approver != currentApproverID {
			return w.assignment(current, approver, at), true
		}
	}
	if approver, ok := w.GetNextLevelApprover(ctx, current, departmentID); ok {
		return w.assignment(current+1, approver, at), true
	}
	return incentive.Assignment{}, false
}

// CalculateExpirationTime returns now + the SLA window for level.
func (w *Workflow) CalculateExpirationTime(level incentive.ApprovalLevel) time.Time {
	return w.ExpirationFrom(level, w.now())
}

// ExpirationFrom returns from + the SLA window for level.
func (w *Workflow) ExpirationFrom(level incentive.ApprovalLevel, from time.Time) time.Time {
	return from.Add(w.SLA(level))
}

func (w *Workflow) SLA(level incentive.ApprovalLevel) time.Duration {
	switch level {
	case incentive.Level1:
		return w.cfg.Level1SLA
	case incentive.Level2:
		return w.cfg.Level2SLA
	default:
		return w.cfg.Level3SLA
	}
}

// Assign resolves the approver for level and stamps its deadline from at,
// the moment the approval is opened. A missing approver is a routing
// failure.
func (w *Workflow) Assign(ctx context.Context, level incentive.ApprovalLevel, departmentID incentive.DepartmentID, at time.Time) (incentive.Assignment, error) {
	approver, ok := w.GetApproverForLevel(ctx, level, departmentID)
	if !ok {
		return incentive.Assignment{}, incentive.RoutingError(level, departmentID)
	}
	return w.assignment(level, approver, at), nil
}

func (w *Workflow) assignment(level incentive.ApprovalLevel, approver string, at time.Time) incentive.Assignment {
	return incentive.Assignment{
		Level:      level,
		ApproverID: approver,
		ExpiresAt:  w.ExpirationFrom(level, at),
	}
}

func (w *Workflow) department(ctx context.Context, id incentive.DepartmentID) (*incentive.Department, bool) {
	dept, err := w.departments.GetDepartment(ctx, id)
	if err != nil {
		w.log.Warn(ctx, "department lookup failed",
			logger.String("department_id", string(id)), logger.Error(err))
		return nil, false
	}
	return dept, true
}

func (w *Workflow) manager(ctx context.Context, dept *incentive.Department, level incentive.ApprovalLevel) (string, bool) {
	if dept.ManagerID == "" {
		w.log.Warn(ctx, "department has no manager",
			logger.String("department_id", string(dept.ID)), logger.Int("level", int(level)))
		return "", false
	}
	return dept.ManagerID, true
}
