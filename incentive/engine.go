/*
engine.go - The incentive calculation engine

PURPOSE:
  A pure function from (employee, plan, actual value, period) to a gross
  and net incentive. No I/O, no clock, no mutation of its inputs.

ALGORITHM:
  1. Achievement % = actual / target * 100 (recorded for every type)
  2. actual < minimum threshold  ──▶  zero payout, BelowThreshold, success
  3. Dispatch on the plan's achievement type:
       percentage        graduated lookup on achievement %
       absolute          graduated lookup on actual value
       tiered_graduated  graduated lookup on actual value
       tiered_marginal   marginal accumulation over actual value
  4. Gross = rate × basis (or the slab's fixed amount)
  5. Net = Gross × employed-days / period-days (tenure prorata)

FAILURES:
  Business-rule failures never panic and never silently default to zero.
  They return Result{Success: false, Code, Message}. A value not covered by
  any slab is a computation failure, not a zero payout.

EXAMPLE:
  // 75,000 against a 50,000 target, single [0, ∞) slab at 7.5% of actual
  res := engine.Calculate(emp, plan, decimal.NewFromInt(75000), jan2025)
  // res.GrossIncentive = 5625.00 INR, res.Achievement = 150
*/
package incentive

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Result is the engine's output. When Success is false only Code and
// Message are meaningful.
type Result struct {
	Success bool
	Code    Code
	Message string

	Achievement    Percentage
	GrossIncentive Money
	NetIncentive   Money
	AppliedSlab    *Slab
	BelowThreshold bool

	// Prorata is set when the employee was employed for only part of the
	// period; it is the covered share as a percentage.
	Prorata *Percentage
}

func failure(code Code, format string, args ...any) Result {
	return Result{Success: false, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Err converts an unsuccessful result into a typed error.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return newError(r.Code, "%s", r.Message)
}

// Engine computes incentives. It is stateless and safe for concurrent use.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Calculate computes the incentive for one employee, plan and period.
func (e *Engine) Calculate(emp *Employee, plan *Plan, actual decimal.Decimal, period DateRange) Result {
	if emp == nil || plan == nil {
		return failure(CodeValidation, "employee and plan are required")
	}
	if actual.IsNegative() {
		return failure(CodeValidation, "actual value must be non-negative, got %s", actual)
	}
	if !period.Start.Before(period.End) {
		return failure(CodeValidation, "calculation period is empty")
	}
	if !plan.EffectivePeriod.Covers(period) {
		return failure(CodeValidation, "period %s is outside plan effective period %s", period, plan.EffectivePeriod)
	}
	if err := plan.Validate(); err != nil {
		return failure(CodeComputation, "plan %s is misconfigured: %v", plan.Code, err)
	}
	if plan.Basis == BasisBaseSalary && emp.BaseSalary.Currency != plan.Currency {
		return failure(CodeComputation, "base salary is in %s but plan %s pays in %s",
			emp.BaseSalary.Currency, plan.Code, plan.Currency)
	}

	achievement := Percentage{Value: PercentOf(actual, plan.Target.TargetValue)}
	zero := ZeroMoney(plan.Currency)

	if actual.LessThan(plan.Target.MinimumThreshold) {
		return Result{
			Success:        true,
			Message:        fmt.Sprintf("actual %s is below minimum threshold %s", actual, plan.Target.MinimumThreshold),
			Achievement:    achievement,
			GrossIncentive: zero,
			NetIncentive:   zero,
			BelowThreshold: true,
		}
	}

	slabs := plan.SortedSlabs()
	var (
		gross Money
		slab  *Slab
		res   Result
	)
	switch plan.Target.AchievementType {
	case AchievementPercentage:
		gross, slab, res = graduated(plan, emp, slabs, achievement.Value, actual)
	case AchievementAbsolute, AchievementTieredGraduated:
		gross, slab, res = graduated(plan, emp, slabs, actual, actual)
	case AchievementTieredMarginal:
		gross, slab, res = marginal(plan, slabs, actual)
	default:
		return failure(CodeComputation, "unknown achievement type %q", plan.Target.AchievementType)
	}
	if !res.Success {
		return res
	}

	out := Result{
		Success:        true,
		Achievement:    achievement,
		GrossIncentive: gross,
		NetIncentive:   gross,
		AppliedSlab:    slab,
	}

	window, employed := emp.EmploymentWindow(period)
	switch {
	case !employed:
		p := Percentage{Value: decimal.Zero}
		out.Prorata = &p
		out.NetIncentive = zero
	case !window.Equal(period):
		covered := PercentOf(decimal.NewFromInt(int64(window.Days())), decimal.NewFromInt(int64(period.Days())))
		p := Percentage{Value: covered}
		out.Prorata = &p
		out.NetIncentive = gross.Mul(p.Ratio())
	}
	return out
}

// graduated pays the single band containing metric on the whole basis.
func graduated(plan *Plan, emp *Employee, slabs []Slab, metric, actual decimal.Decimal) (Money, *Slab, Result) {
	var hit *Slab
	// Bands are contiguous so at most one matches; scanning from the top
	// resolves a boundary value to the higher band.
	for i := len(slabs) - 1; i >= 0; i-- {
		if slabs[i].Contains(metric) {
			s := slabs[i]
			hit = &s
			break
		}
	}
	if hit == nil {
		return Money{}, nil, failure(CodeComputation, "no slab of plan %s covers value %s", plan.Code, metric)
	}
	if hit.FixedAmount != nil {
		return *hit.FixedAmount, hit, Result{Success: true}
	}

	var basis decimal.Decimal
	switch plan.Basis {
	case BasisActualValue:
		basis = actual
	case BasisTargetValue:
		basis = plan.Target.TargetValue
	case BasisBaseSalary:
		basis = emp.BaseSalary.Amount
	}
	gross := Money{Amount: basis.Mul(hit.Rate.Ratio()), Currency: plan.Currency}
	return gross, hit, Result{Success: true}
}

// marginal pays each band's rate on the slice of actual inside it.
func marginal(plan *Plan, slabs []Slab, actual decimal.Decimal) (Money, *Slab, Result) {
	if actual.LessThan(slabs[0].From) {
		return Money{}, nil, failure(CodeComputation, "no slab of plan %s covers value %s", plan.Code, actual)
	}
	last := slabs[len(slabs)-1]
	if last.To != nil && !actual.LessThan(*last.To) {
		return Money{}, nil, failure(CodeComputation, "value %s exceeds the top slab of plan %s", actual, plan.Code)
	}

	total := decimal.Zero
	var top *Slab
	for i := range slabs {
		s := slabs[i]
		if actual.LessThan(s.From) {
			break
		}
		upper := actual
		if s.To != nil && s.To.LessThan(upper) {
			upper = *s.To
		}
		if s.FixedAmount != nil {
			total = total.Add(s.FixedAmount.Amount)
		} else {
			total = total.Add(upper.Sub(s.From).Mul(s.Rate.Ratio()))
		}
		top = &s
	}
	return Money{Amount: total, Currency: plan.Currency}, top, Result{Success: true}
}
