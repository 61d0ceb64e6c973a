/*
plan.go - Targets, slabs and incentive plans

PURPOSE:
  Describes what an employee is measured on (Target) and how achievement
  converts into money (Slabs + Basis). A Plan is pure configuration; the
  engine in engine.go interprets it.

ACHIEVEMENT TYPES:
  percentage        Slabs are bands of achievement % (actual/target*100)
  absolute          Slabs are bands of the actual value itself
  tiered_graduated  Slabs are bands of the actual value; the single band
                    containing the value pays on the whole basis
  tiered_marginal   Each band pays its rate on the slice of the actual
                    value that falls inside it, summed (tax-bracket style)

SLAB BANDS:
  A band is [From, To): inclusive lower, exclusive upper. The last slab may
  be unbounded (To == nil). Sorted by From, bands must be contiguous and
  must not overlap; ValidateSlabs enforces this before the engine runs.

PLAN LIFECYCLE:
  Draft ──Activate──▶ Active ──Suspend──▶ Suspended ──Activate──▶ Active
    │                   │                    │
    └──────Cancel───────┴───────Cancel───────┘──▶ Cancelled
  Only Draft plans accept structural edits.
*/
package incentive

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type PlanID string
type SlabID string
type DepartmentID string

// =============================================================================
// TARGET
// =============================================================================

// AchievementType selects the computation variant for a plan.
type AchievementType string

const (
	AchievementPercentage      AchievementType = "percentage"
	AchievementAbsolute        AchievementType = "absolute"
	AchievementTieredGraduated AchievementType = "tiered_graduated"
	AchievementTieredMarginal  AchievementType = "tiered_marginal"
)

func (t AchievementType) Valid() bool {
	switch t {
	case AchievementPercentage, AchievementAbsolute, AchievementTieredGraduated, AchievementTieredMarginal:
		return true
	}
	return false
}

// Target is what an employee is measured against.
// MinimumThreshold is compared against the actual value, never the percentage.
type Target struct {
	TargetValue      decimal.Decimal
	MinimumThreshold decimal.Decimal
	AchievementType  AchievementType
	MetricUnit       string
}

// =============================================================================
// SLAB
// =============================================================================

// PayoutBasis is the quantity a slab rate multiplies.
type PayoutBasis string

const (
	BasisActualValue PayoutBasis = "actual_value"
	BasisTargetValue PayoutBasis = "target_value"
	BasisBaseSalary  PayoutBasis = "base_salary"
)

func (b PayoutBasis) Valid() bool {
	return b == BasisActualValue || b == BasisTargetValue || b == BasisBaseSalary
}

// Slab is one payout band. Exactly one of Rate or FixedAmount is set.
type Slab struct {
	ID        SlabID
	TierIndex int
	From      decimal.Decimal
	To        *decimal.Decimal // nil = unbounded
	// Rate is a percentage of the basis (7.5 means 7.5%).
	Rate        *Percentage
	FixedAmount *Money
}

// Contains reports From <= v < To (unbounded upper when To is nil).
func (s Slab) Contains(v decimal.Decimal) bool {
	if v.LessThan(s.From) {
		return false
	}
	return s.To == nil || v.LessThan(*s.To)
}

func (s Slab) Unbounded() bool { return s.To == nil }

// ValidateSlabs checks that slabs sorted by From form one contiguous,
// non-overlapping sequence with only the last band unbounded.
// It returns the slabs in sorted order.
func ValidateSlabs(slabs []Slab) ([]Slab, error) {
	if len(slabs) == 0 {
		return nil, validationErrorf("plan has no slabs")
	}
	sorted := make([]Slab, len(slabs))
	copy(sorted, slabs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].From.LessThan(sorted[j].From) })

	seenTier := make(map[int]bool, len(sorted))
	for i, s := range sorted {
		if seenTier[s.TierIndex] {
			return nil, validationErrorf("duplicate tier index %d", s.TierIndex)
		}
		seenTier[s.TierIndex] = true

		if (s.Rate == nil) == (s.FixedAmount == nil) {
			return nil, validationErrorf("slab %d must define exactly one of rate or fixed amount", s.TierIndex)
		}
		if s.From.IsNegative() {
			return nil, validationErrorf("slab %d starts below zero", s.TierIndex)
		}
		if s.To != nil && !s.From.LessThan(*s.To) {
			return nil, validationErrorf("slab %d has an empty band [%s, %s)", s.TierIndex, s.From, *s.To)
		}
		if i == len(sorted)-1 {
			break
		}
		if s.To == nil {
			return nil, validationErrorf("slab %d is unbounded but is not the last band", s.TierIndex)
		}
		next := sorted[i+1]
		if next.From.LessThan(*s.To) {
			return nil, validationErrorf("slabs %d and %d overlap", s.TierIndex, next.TierIndex)
		}
		if next.From.GreaterThan(*s.To) {
			return nil, validationErrorf("gap between slab %d and %d: [%s, %s) is uncovered",
				s.TierIndex, next.TierIndex, *s.To, next.From)
		}
	}
	return sorted, nil
}

// =============================================================================
// PLAN
// =============================================================================

type PlanStatus string

const (
	PlanDraft     PlanStatus = "draft"
	PlanActive    PlanStatus = "active"
	PlanSuspended PlanStatus = "suspended"
	PlanCancelled PlanStatus = "cancelled"
)

// Plan is an incentive scheme: what is measured, how it pays, and when.
type Plan struct {
	ID              PlanID
	Code            string
	Name            string
	Currency        string
	EffectivePeriod DateRange
	Target          Target
	Basis           PayoutBasis
	Slabs           []Slab
	MaximumPayout   *Money
	MinimumPayout   *Money
	Status          PlanStatus
}

// Validate checks plan configuration independent of status.
func (p *Plan) Validate() error {
	if p.Code == "" {
		return validationErrorf("plan code is required")
	}
	if len(p.Currency) != 3 {
		return validationErrorf("plan currency must be a 3-letter code")
	}
	if !p.EffectivePeriod.Start.Before(p.EffectivePeriod.End) {
		return validationErrorf("plan effective period is empty")
	}
	if !p.Target.AchievementType.Valid() {
		return validationErrorf("unknown achievement type %q", p.Target.AchievementType)
	}
	if !p.Basis.Valid() {
		return validationErrorf("unknown payout basis %q", p.Basis)
	}
	if p.Target.TargetValue.IsNegative() || p.Target.MinimumThreshold.IsNegative() {
		return validationErrorf("target and threshold must be non-negative")
	}
	if p.Target.AchievementType == AchievementPercentage && p.Target.TargetValue.IsZero() {
		return validationErrorf("percentage plans need a non-zero target value")
	}
	if p.Target.AchievementType == AchievementTieredMarginal && p.Basis != BasisActualValue {
		return validationErrorf("marginal plans pay on slices of the actual value; basis must be %s", BasisActualValue)
	}
	sorted, err := ValidateSlabs(p.Slabs)
	if err != nil {
		return err
	}
	for _, s := range sorted {
		if s.FixedAmount != nil && s.FixedAmount.Currency != p.Currency {
			return validationErrorf("slab %d pays in %s, plan pays in %s", s.TierIndex, s.FixedAmount.Currency, p.Currency)
		}
	}
	for _, m := range []*Money{p.MaximumPayout, p.MinimumPayout} {
		if m != nil && m.Currency != p.Currency {
			return validationErrorf("payout limit currency %s does not match plan currency %s", m.Currency, p.Currency)
		}
	}
	if p.MaximumPayout != nil && p.MinimumPayout != nil && p.MinimumPayout.Amount.GreaterThan(p.MaximumPayout.Amount) {
		return validationErrorf("minimum payout exceeds maximum payout")
	}
	return nil
}

// SortedSlabs returns the slabs ordered by From.
func (p *Plan) SortedSlabs() []Slab {
	sorted := make([]Slab, len(p.Slabs))
	copy(sorted, p.Slabs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].From.LessThan(sorted[j].From) })
	return sorted
}

func (p *Plan) IsEditable() bool { return p.Status == PlanDraft }

// Activate moves a valid Draft or Suspended plan to Active.
func (p *Plan) Activate() error {
	if p.Status != PlanDraft && p.Status != PlanSuspended {
		return validationErrorf("cannot activate a %s plan", p.Status)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.Status = PlanActive
	return nil
}

func (p *Plan) Suspend() error {
	if p.Status != PlanActive {
		return validationErrorf("cannot suspend a %s plan", p.Status)
	}
	p.Status = PlanSuspended
	return nil
}

func (p *Plan) Cancel() error {
	if p.Status == PlanCancelled {
		return validationErrorf("plan is already cancelled")
	}
	p.Status = PlanCancelled
	return nil
}

// ReplaceSlabs swaps the slab set of a Draft plan.
func (p *Plan) ReplaceSlabs(slabs []Slab) error {
	if !p.IsEditable() {
		return validationErrorf("plan %s is %s; only draft plans can change slabs", p.Code, p.Status)
	}
	if _, err := ValidateSlabs(slabs); err != nil {
		return err
	}
	p.Slabs = slabs
	return nil
}

// =============================================================================
// EMPLOYEE / DEPARTMENT
// =============================================================================

type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "active"
	EmployeeInactive   EmployeeStatus = "inactive"
	EmployeeTerminated EmployeeStatus = "terminated"
)

type Employee struct {
	ID           EmployeeID
	Code         string
	Email        string
	BaseSalary   Money
	DepartmentID DepartmentID
	ManagerID    *EmployeeID
	Status       EmployeeStatus
	JoinedOn     *time.Time
	ExitedOn     *time.Time
}

// EmploymentWindow returns the part of period the employee was employed.
func (e *Employee) EmploymentWindow(period DateRange) (DateRange, bool) {
	window := period
	if e.JoinedOn != nil && e.JoinedOn.After(window.Start) {
		window.Start = *e.JoinedOn
	}
	if e.ExitedOn != nil && e.ExitedOn.Before(window.End) {
		window.End = *e.ExitedOn
	}
	if !window.Start.Before(window.End) {
		return DateRange{}, false
	}
	return window, true
}

// Department is a node in the approval hierarchy.
type Department struct {
	ID        DepartmentID
	Name      string
	ManagerID string
	ParentID  *DepartmentID
}
