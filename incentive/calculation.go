/*
calculation.go - The Calculation aggregate and its state machine

PURPOSE:
  Wraps one engine result for (employee, plan, period) and owns every
  change to it. Fields are unexported: status and money only move through
  the transition methods below, each of which checks its precondition and
  fails with a coded error instead of corrupting state.

STATE MACHINE:
  ┌───────┐ Submit ┌─────────────────┐ Approve (all levels) ┌──────────┐ MarkPaid ┌──────┐
  │ Draft │──────▶│ PendingApproval │─────────────────────▶│ Approved │────────▶│ Paid │
  └───────┘        └─────────────────┘                      └──────────┘          └──────┘
      │              │   ▲      │ Reject                          │
      │              │   └──────┘ Approve (more levels needed:   │
      │              │            opens level+1)                 │
      │              ▼                                           │
      │         ┌──────────┐                                     │
      │         │ Rejected │                                     │
      │         └──────────┘                                     │
      └──────────────┴───────────── Void ─────────────────────────┴──▶ Voided

  Void is allowed from every status except Paid; voiding twice fails.

ADJUSTMENTS (Draft only):
  net = gross
  net = floor(gross × prorata%)           if a prorata factor is set
  net = min(net, maximumPayout)           if a cap is set
  net = max(net, minimumPayout)           if a floor is set and gross > 0
  The pipeline is recomputed from gross on every call, so applying the same
  adjustment twice gives the same net.

APPROVALS:
  Approvals are ordered by level. Exactly one approval is Pending while the
  calculation is PendingApproval; delegated/expired/approved records stay in
  the list as history.

SEE ALSO:
  - approval/workflow.go: decides levels, approvers and SLA expiry
  - service/calculations.go: loads, transitions and saves aggregates
*/
package incentive

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS AND STATUSES
// =============================================================================

type CalculationID string
type ApprovalID string

type CalculationStatus string

const (
	StatusDraft           CalculationStatus = "draft"
	StatusPendingApproval CalculationStatus = "pending_approval"
	StatusApproved        CalculationStatus = "approved"
	StatusRejected        CalculationStatus = "rejected"
	StatusPaid            CalculationStatus = "paid"
	StatusVoided          CalculationStatus = "voided"
)

// ApprovalLevel is 1..MaxApprovalLevel.
type ApprovalLevel int

const (
	Level1 ApprovalLevel = 1
	Level2 ApprovalLevel = 2
	Level3 ApprovalLevel = 3

	MaxApprovalLevel = Level3
)

func (l ApprovalLevel) Valid() bool { return l >= Level1 && l <= MaxApprovalLevel }

type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalDelegated ApprovalStatus = "delegated"
	ApprovalExpired   ApprovalStatus = "expired"
)

// Approval is one approver's decision slot at one level.
type Approval struct {
	ID            ApprovalID
	CalculationID CalculationID
	ApproverID    string
	Level         ApprovalLevel
	Status        ApprovalStatus
	ActionDate    *time.Time
	Comments      string
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	DelegatedToID string
}

// Overdue reports whether a pending approval has passed its SLA.
func (a Approval) Overdue(now time.Time) bool {
	return a.Status == ApprovalPending && a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// Assignment is a routing decision: who approves at which level, by when.
type Assignment struct {
	ID         ApprovalID
	Level      ApprovalLevel
	ApproverID string
	ExpiresAt  time.Time
}

// =============================================================================
// CALCULATION
// =============================================================================

type Calculation struct {
	id          CalculationID
	employeeID  EmployeeID
	planID      PlanID
	period      DateRange
	targetValue decimal.Decimal
	actualValue decimal.Decimal
	baseSalary  Money
	currency    string

	achievement    Percentage
	appliedSlabID  *SlabID
	gross          Money
	net            Money
	prorata        *Percentage
	maximumPayout  *Money
	minimumPayout  *Money
	belowThreshold bool

	status    CalculationStatus
	approvals []Approval

	rejectionReason  string
	rejectedBy       string
	voidReason       string
	voidedBy         string
	paidBy           string
	paymentReference string

	createdAt   time.Time
	updatedAt   time.Time
	submittedAt *time.Time
	approvedAt  *time.Time
	paidAt      *time.Time
	voidedAt    *time.Time

	version int
	events  []Event
}

// NewCalculation starts a Draft calculation for one (employee, plan, period).
func NewCalculation(id CalculationID, emp *Employee, plan *Plan, period DateRange, actual decimal.Decimal, at time.Time) (*Calculation, error) {
	if id == "" {
		return nil, validationErrorf("calculation id is required")
	}
	if emp == nil || plan == nil {
		return nil, validationErrorf("employee and plan are required")
	}
	if actual.IsNegative() {
		return nil, validationErrorf("actual value must be non-negative")
	}
	if !period.Start.Before(period.End) {
		return nil, validationErrorf("calculation period is empty")
	}
	zero := ZeroMoney(plan.Currency)
	c := &Calculation{
		id:          id,
		employeeID:  emp.ID,
		planID:      plan.ID,
		period:      period,
		targetValue: plan.Target.TargetValue,
		actualValue: actual,
		baseSalary:  emp.BaseSalary,
		currency:    plan.Currency,
		achievement: Percentage{Value: PercentOf(actual, plan.Target.TargetValue)},
		gross:       zero,
		net:         zero,
		status:      StatusDraft,
		createdAt:   at,
		updatedAt:   at,
	}
	c.record(Event{Type: EventCreated, At: at})
	return c, nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

func (c *Calculation) ID() CalculationID            { return c.id }
func (c *Calculation) EmployeeID() EmployeeID       { return c.employeeID }
func (c *Calculation) PlanID() PlanID               { return c.planID }
func (c *Calculation) Period() DateRange            { return c.period }
func (c *Calculation) TargetValue() decimal.Decimal { return c.targetValue }
func (c *Calculation) ActualValue() decimal.Decimal { return c.actualValue }
func (c *Calculation) BaseSalary() Money            { return c.baseSalary }
func (c *Calculation) Achievement() Percentage      { return c.achievement }
func (c *Calculation) Gross() Money                 { return c.gross }
func (c *Calculation) Net() Money                   { return c.net }
func (c *Calculation) Status() CalculationStatus    { return c.status }
func (c *Calculation) BelowThreshold() bool         { return c.belowThreshold }
func (c *Calculation) Version() int                 { return c.version }
func (c *Calculation) CreatedAt() time.Time         { return c.createdAt }
func (c *Calculation) UpdatedAt() time.Time         { return c.updatedAt }

func (c *Calculation) AppliedSlabID() *SlabID {
	if c.appliedSlabID == nil {
		return nil
	}
	id := *c.appliedSlabID
	return &id
}

func (c *Calculation) Prorata() *Percentage {
	if c.prorata == nil {
		return nil
	}
	p := *c.prorata
	return &p
}

// Approvals returns a copy of the approval history ordered by creation.
func (c *Calculation) Approvals() []Approval {
	out := make([]Approval, len(c.approvals))
	copy(out, c.approvals)
	return out
}

// ActiveApproval returns the single pending approval, if any.
func (c *Calculation) ActiveApproval() (Approval, bool) {
	if i := c.activeIndex(); i >= 0 {
		return c.approvals[i], true
	}
	return Approval{}, false
}

func (c *Calculation) activeIndex() int {
	for i := len(c.approvals) - 1; i >= 0; i-- {
		if c.approvals[i].Status == ApprovalPending {
			return i
		}
	}
	return -1
}

// PendingEvents returns queued events without clearing them.
func (c *Calculation) PendingEvents() []Event {
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// DrainEvents returns and clears queued events. Call only after commit.
func (c *Calculation) DrainEvents() []Event {
	out := c.events
	c.events = nil
	return out
}

// Committed records the version assigned by the store after a save.
func (c *Calculation) Committed(version int) { c.version = version }

func (c *Calculation) record(e Event) {
	e.CalculationID = c.id
	e.EmployeeID = c.employeeID
	if e.Amount.Currency == "" {
		e.Amount = c.net
	}
	c.events = append(c.events, e)
}

func (c *Calculation) touch(at time.Time) { c.updatedAt = at }

// =============================================================================
// DRAFT-ONLY COMPUTATION
// =============================================================================

func (c *Calculation) requireDraft(action string) error {
	if c.status != StatusDraft {
		return transitionError(CodeInvalidTransition, c.status, "cannot %s a calculation in status %s", action, c.status)
	}
	return nil
}

// Calculate records the engine's gross and resets adjustments.
func (c *Calculation) Calculate(gross Money, slabID *SlabID, at time.Time) error {
	if err := c.requireDraft("calculate"); err != nil {
		return err
	}
	if gross.Currency != c.currency {
		return &CurrencyMismatchError{Left: c.currency, Right: gross.Currency}
	}
	if gross.IsNegative() {
		return validationErrorf("gross incentive must be non-negative")
	}
	c.gross = gross.Rounded()
	c.appliedSlabID = nil
	if slabID != nil {
		id := *slabID
		c.appliedSlabID = &id
	}
	c.prorata = nil
	c.maximumPayout = nil
	c.minimumPayout = nil
	c.belowThreshold = false
	c.achievement = Percentage{Value: PercentOf(c.actualValue, c.targetValue)}
	c.finalize()
	c.touch(at)
	c.record(Event{Type: EventCalculated, At: at})
	return nil
}

// ProrataPercentage is net / gross * 100, or zero when gross is zero.
func ProrataPercentage(net, gross Money) Percentage {
	return Percentage{Value: PercentOf(net.Amount, gross.Amount)}
}

// ApplyProrata scales net to pct of gross, floored to storage precision.
func (c *Calculation) ApplyProrata(pct Percentage, at time.Time) error {
	if err := c.requireDraft("prorate"); err != nil {
		return err
	}
	if pct.Value.IsNegative() {
		return validationErrorf("prorata must be non-negative")
	}
	p := pct
	c.prorata = &p
	c.finalize()
	c.touch(at)
	return nil
}

// ApplyCap clamps net to maximum, then raises it to minimum. Either may be nil.
func (c *Calculation) ApplyCap(maximum, minimum *Money, at time.Time) error {
	if err := c.requireDraft("cap"); err != nil {
		return err
	}
	for _, m := range []*Money{maximum, minimum} {
		if m != nil && m.Currency != c.currency {
			return &CurrencyMismatchError{Left: c.currency, Right: m.Currency}
		}
	}
	if maximum != nil && minimum != nil && minimum.Amount.GreaterThan(maximum.Amount) {
		return validationErrorf("minimum payout %s exceeds maximum payout %s", minimum, maximum)
	}
	c.maximumPayout = cloneMoney(maximum)
	c.minimumPayout = cloneMoney(minimum)
	c.finalize()
	c.touch(at)
	return nil
}

// MarkBelowThreshold zeroes the payout for an achievement under threshold.
func (c *Calculation) MarkBelowThreshold(at time.Time) error {
	if err := c.requireDraft("mark below threshold"); err != nil {
		return err
	}
	c.belowThreshold = true
	c.gross = ZeroMoney(c.currency)
	c.appliedSlabID = nil
	c.prorata = nil
	c.achievement = Percentage{Value: PercentOf(c.actualValue, c.targetValue)}
	c.finalize()
	c.touch(at)
	return nil
}

func (c *Calculation) finalize() {
	net := c.gross
	if c.prorata != nil {
		net = c.gross.Mul(c.prorata.Ratio()).Floored()
	}
	if c.maximumPayout != nil && net.Amount.GreaterThan(c.maximumPayout.Amount) {
		net = *c.maximumPayout
	}
	// Prorata 0 means no eligible day in the period; the floor does not apply.
	eligible := c.prorata == nil || c.prorata.Value.IsPositive()
	if c.minimumPayout != nil && c.gross.Amount.IsPositive() && !c.belowThreshold && eligible &&
		net.Amount.LessThan(c.minimumPayout.Amount) {
		net = *c.minimumPayout
	}
	c.net = net.Rounded()
}

func cloneMoney(m *Money) *Money {
	if m == nil {
		return nil
	}
	v := *m
	return &v
}

// =============================================================================
// APPROVAL TRANSITIONS
// =============================================================================

// Submit moves Draft to PendingApproval and opens the first approval.
func (c *Calculation) Submit(first Assignment, at time.Time) error {
	if c.status != StatusDraft {
		return transitionError(CodeInvalidTransition, c.status, "cannot submit a calculation in status %s", c.status)
	}
	if err := validateAssignment(first); err != nil {
		return err
	}
	c.openApproval(first, at)
	c.status = StatusPendingApproval
	c.submittedAt = timePtr(at)
	c.touch(at)
	c.record(Event{Type: EventSubmitted, Actor: first.ApproverID, Level: first.Level, At: at})
	return nil
}

// Approve records the active approver's decision. When requiredLevel is
// above the active level, next must be the level+1 assignment; the
// calculation then stays PendingApproval. Returns true when fully approved.
func (c *Calculation) Approve(actor, comments string, requiredLevel ApprovalLevel, next *Assignment, at time.Time) (bool, error) {
	i, err := c.requireActive(actor, "approve")
	if err != nil {
		return false, err
	}
	current := c.approvals[i]
	needsMore := current.Level < requiredLevel
	if needsMore {
		if next == nil {
			return false, RoutingError(current.Level+1, "")
		}
		if next.Level != current.Level+1 {
			return false, validationErrorf("next approval must be level %d, got %d", current.Level+1, next.Level)
		}
		if err := validateAssignment(*next); err != nil {
			return false, err
		}
	}

	c.closeApproval(i, ApprovalApproved, comments, at)
	if needsMore {
		c.openApproval(*next, at)
		c.touch(at)
		c.record(Event{Type: EventLevelApproved, Actor: actor, Level: current.Level, At: at, Detail: comments})
		return false, nil
	}

	c.status = StatusApproved
	c.approvedAt = timePtr(at)
	c.touch(at)
	c.record(Event{Type: EventApproved, Actor: actor, Level: current.Level, At: at, Detail: comments})
	return true, nil
}

// Reject closes the cycle. A reason is mandatory.
func (c *Calculation) Reject(actor, reason string, at time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return validationErrorf("a rejection reason is required")
	}
	i, err := c.requireActive(actor, "reject")
	if err != nil {
		return err
	}
	level := c.approvals[i].Level
	c.closeApproval(i, ApprovalRejected, reason, at)
	c.status = StatusRejected
	c.rejectionReason = reason
	c.rejectedBy = actor
	c.touch(at)
	c.record(Event{Type: EventRejected, Actor: actor, Level: level, At: at, Detail: reason})
	return nil
}

// Delegate hands the active approval to another approver at the same
// level, keeping the original SLA deadline.
func (c *Calculation) Delegate(actor, delegateTo, comments string, at time.Time) error {
	delegateTo = strings.TrimSpace(delegateTo)
	if delegateTo == "" {
		return validationErrorf("a delegate is required")
	}
	if delegateTo == actor {
		return validationErrorf("cannot delegate to yourself")
	}
	i, err := c.requireActive(actor, "delegate")
	if err != nil {
		return err
	}
	current := c.approvals[i]
	c.closeApproval(i, ApprovalDelegated, comments, at)
	c.approvals[i].DelegatedToID = delegateTo

	next := Assignment{Level: current.Level, ApproverID: delegateTo}
	if current.ExpiresAt != nil {
		next.ExpiresAt = *current.ExpiresAt
	}
	c.openApproval(next, at)
	c.touch(at)
	c.record(Event{Type: EventDelegated, Actor: actor, Level: current.Level, At: at, Detail: delegateTo})
	return nil
}

// Escalate expires the active approval and reassigns it to target, which
// may be at the same level or one above.
func (c *Calculation) Escalate(target Assignment, at time.Time) error {
	if c.status != StatusPendingApproval {
		return transitionError(CodeInvalidTransition, c.status, "cannot escalate a calculation in status %s", c.status)
	}
	i := c.activeIndex()
	if i < 0 {
		return transitionError(CodeInvalidTransition, c.status, "calculation has no pending approval")
	}
	if err := validateAssignment(target); err != nil {
		return err
	}
	current := c.approvals[i]
	if target.Level != current.Level && target.Level != current.Level+1 {
		return validationErrorf("escalation from level %d cannot target level %d", current.Level, target.Level)
	}
	c.closeApproval(i, ApprovalExpired, "escalated to "+target.ApproverID, at)
	c.openApproval(target, at)
	c.touch(at)
	c.record(Event{Type: EventEscalated, Actor: target.ApproverID, Level: target.Level, At: at, Detail: current.ApproverID})
	return nil
}

// Void retires the calculation from any status except Paid.
func (c *Calculation) Void(reason, actor string, at time.Time) error {
	switch c.status {
	case StatusPaid:
		return transitionError(CodeCannotVoidPaid, c.status, "a paid calculation cannot be voided; use an adjustment")
	case StatusVoided:
		return transitionError(CodeAlreadyVoided, c.status, "calculation is already voided")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return validationErrorf("a void reason is required")
	}
	c.status = StatusVoided
	c.voidReason = reason
	c.voidedBy = actor
	c.voidedAt = timePtr(at)
	c.touch(at)
	c.record(Event{Type: EventVoided, Actor: actor, At: at, Detail: reason})
	return nil
}

// MarkPaid records payroll's confirmation of disbursement.
func (c *Calculation) MarkPaid(actor, reference string, at time.Time) error {
	if c.status != StatusApproved {
		return transitionError(CodeInvalidTransition, c.status, "cannot pay a calculation in status %s", c.status)
	}
	c.status = StatusPaid
	c.paidBy = actor
	c.paymentReference = reference
	c.paidAt = timePtr(at)
	c.touch(at)
	c.record(Event{Type: EventPaid, Actor: actor, At: at, Detail: reference})
	return nil
}

func (c *Calculation) requireActive(actor, action string) (int, error) {
	if c.status != StatusPendingApproval {
		return -1, transitionError(CodeInvalidTransition, c.status, "cannot %s a calculation in status %s", action, c.status)
	}
	i := c.activeIndex()
	if i < 0 {
		return -1, transitionError(CodeInvalidTransition, c.status, "calculation has no pending approval")
	}
	if c.approvals[i].ApproverID != actor {
		return -1, transitionError(CodeNotAssignedApprover, c.status,
			"%s is not the assigned level %d approver", actor, c.approvals[i].Level)
	}
	return i, nil
}

func (c *Calculation) openApproval(a Assignment, at time.Time) {
	id := a.ID
	if id == "" {
		id = ApprovalID(fmt.Sprintf("%s-%d", c.id, len(c.approvals)+1))
	}
	rec := Approval{
		ID:            id,
		CalculationID: c.id,
		ApproverID:    a.ApproverID,
		Level:         a.Level,
		Status:        ApprovalPending,
		CreatedAt:     at,
	}
	if !a.ExpiresAt.IsZero() {
		rec.ExpiresAt = timePtr(a.ExpiresAt)
	}
	c.approvals = append(c.approvals, rec)
}

func (c *Calculation) closeApproval(i int, status ApprovalStatus, comments string, at time.Time) {
	c.approvals[i].Status = status
	c.approvals[i].ActionDate = timePtr(at)
	c.approvals[i].Comments = comments
}

func validateAssignment(a Assignment) error {
	if !a.Level.Valid() {
		return validationErrorf("approval level %d is out of range", a.Level)
	}
	if strings.TrimSpace(a.ApproverID) == "" {
		return validationErrorf("approval at level %d has no approver", a.Level)
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
