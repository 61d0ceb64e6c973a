/*
Package factory converts JSON plan definitions into incentive.Plan values.

PURPOSE:
  Plans are configured, not coded. Compensation teams keep plan definitions
  as JSON (admin UI, version control, the plans table); the factory turns a
  definition into a validated incentive.Plan and back.

JSON SCHEMA:
  {
    "id": "plan-q1-north",
    "code": "Q1-NORTH",
    "name": "Q1 North Sales",
    "currency": "INR",
    "effective_from": "2025-01-01",
    "effective_to": "2025-04-01",
    "status": "draft",
    "basis": "actual_value",
    "target": {
      "value": "50000",
      "minimum_threshold": "10000",
      "achievement_type": "tiered_graduated",
      "metric_unit": "INR"
    },
    "slabs": [
      {"id": "t1", "tier": 1, "from": "0",     "to": "50000", "rate": "5"},
      {"id": "t2", "tier": 2, "from": "50000",                "rate": "7.5"}
    ],
    "maximum_payout": "100000"
  }

  Amounts are decimal strings so no precision is lost on the way in.
  effective_to is exclusive. A slab without "to" is unbounded. A slab has
  either "rate" (percent of the basis) or "fixed_amount".

DEFAULTS:
  status   draft
  basis    actual_value
  slab ids <plan id>-t<tier> when omitted
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/incentive-engine/incentive"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type PlanJSON struct {
	ID            string           `json:"id"`
	Code          string           `json:"code"`
	Name          string           `json:"name,omitempty"`
	Currency      string           `json:"currency"`
	EffectiveFrom string           `json:"effective_from"`
	EffectiveTo   string           `json:"effective_to"`
	Status        string           `json:"status,omitempty"`
	Basis         string           `json:"basis,omitempty"`
	Target        TargetJSON       `json:"target"`
	Slabs         []SlabJSON       `json:"slabs"`
	MaximumPayout *decimal.Decimal `json:"maximum_payout,omitempty"`
	MinimumPayout *decimal.Decimal `json:"minimum_payout,omitempty"`
}

type TargetJSON struct {
	Value            decimal.Decimal `json:"value"`
	MinimumThreshold decimal.Decimal `json:"minimum_threshold"`
	AchievementType  string          `json:"achievement_type"`
	MetricUnit       string          `json:"metric_unit,omitempty"`
}

type SlabJSON struct {
	ID          string           `json:"id,omitempty"`
	Tier        int              `json:"tier"`
	From        decimal.Decimal  `json:"from"`
	To          *decimal.Decimal `json:"to,omitempty"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
	FixedAmount *decimal.Decimal `json:"fixed_amount,omitempty"`
}

// =============================================================================
// PLAN FACTORY
// =============================================================================

// PlanFactory converts JSON plans to incentive.Plan.
type PlanFactory struct{}

func NewPlanFactory() *PlanFactory {
	return &PlanFactory{}
}

// ParsePlan decodes and validates a JSON plan definition.
func (f *PlanFactory) ParsePlan(jsonStr string) (*incentive.Plan, error) {
	var pj PlanJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, incentive.NewValidationError("invalid plan JSON: %v", err)
	}
	return f.FromJSON(pj)
}

// FromJSON builds a validated plan from its JSON form.
func (f *PlanFactory) FromJSON(pj PlanJSON) (*incentive.Plan, error) {
	if strings.TrimSpace(pj.ID) == "" {
		return nil, incentive.NewValidationError("plan id is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(pj.Currency))

	from, err := parseDate("effective_from", pj.EffectiveFrom)
	if err != nil {
		return nil, err
	}
	to, err := parseDate("effective_to", pj.EffectiveTo)
	if err != nil {
		return nil, err
	}
	period, err := incentive.NewDateRange(from, to)
	if err != nil {
		return nil, err
	}

	plan := &incentive.Plan{
		ID:              incentive.PlanID(pj.ID),
		Code:            pj.Code,
		Name:            pj.Name,
		Currency:        currency,
		EffectivePeriod: period,
		Target: incentive.Target{
			TargetValue:      pj.Target.Value,
			MinimumThreshold: pj.Target.MinimumThreshold,
			AchievementType:  incentive.AchievementType(pj.Target.AchievementType),
			MetricUnit:       pj.Target.MetricUnit,
		},
		Basis:  incentive.PayoutBasis(pj.Basis),
		Status: incentive.PlanStatus(pj.Status),
	}
	if plan.Basis == "" {
		plan.Basis = incentive.BasisActualValue
	}
	if plan.Status == "" {
		plan.Status = incentive.PlanDraft
	}
	if !validStatus(plan.Status) {
		return nil, incentive.NewValidationError("unknown plan status %q", pj.Status)
	}

	for _, sj := range pj.Slabs {
		slab, err := parseSlab(pj.ID, currency, sj)
		if err != nil {
			return nil, err
		}
		plan.Slabs = append(plan.Slabs, slab)
	}
	plan.MaximumPayout = moneyPtr(pj.MaximumPayout, currency)
	plan.MinimumPayout = moneyPtr(pj.MinimumPayout, currency)

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// ToJSON converts a plan back to its JSON form.
func (f *PlanFactory) ToJSON(p *incentive.Plan) PlanJSON {
	pj := PlanJSON{
		ID:            string(p.ID),
		Code:          p.Code,
		Name:          p.Name,
		Currency:      p.Currency,
		EffectiveFrom: p.EffectivePeriod.Start.Format(time.DateOnly),
		EffectiveTo:   p.EffectivePeriod.End.Format(time.DateOnly),
		Status:        string(p.Status),
		Basis:         string(p.Basis),
		Target: TargetJSON{
			Value:            p.Target.TargetValue,
			MinimumThreshold: p.Target.MinimumThreshold,
			AchievementType:  string(p.Target.AchievementType),
			MetricUnit:       p.Target.MetricUnit,
		},
	}
	for _, s := range p.SortedSlabs() {
		sj := SlabJSON{ID: string(s.ID), Tier: s.TierIndex, From: s.From, To: s.To}
		if s.Rate != nil {
			v := s.Rate.Value
			sj.Rate = &v
		}
		if s.FixedAmount != nil {
			v := s.FixedAmount.Amount
			sj.FixedAmount = &v
		}
		pj.Slabs = append(pj.Slabs, sj)
	}
	if p.MaximumPayout != nil {
		v := p.MaximumPayout.Amount
		pj.MaximumPayout = &v
	}
	if p.MinimumPayout != nil {
		v := p.MinimumPayout.Amount
		pj.MinimumPayout = &v
	}
	return pj
}

// Marshal encodes a plan as its JSON definition.
func (f *PlanFactory) Marshal(p *incentive.Plan) (string, error) {
	b, err := json.Marshal(f.ToJSON(p))
	if err != nil {
		return "", fmt.Errorf("encode plan %s: %w", p.ID, err)
	}
	return string(b), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseSlab(planID, currency string, sj SlabJSON) (incentive.Slab, error) {
	id := sj.ID
	if id == "" {
		id = fmt.Sprintf("%s-t%d", planID, sj.Tier)
	}
	slab := incentive.Slab{
		ID:        incentive.SlabID(id),
		TierIndex: sj.Tier,
		From:      sj.From,
		To:        sj.To,
	}
	if sj.Rate != nil {
		rate, err := incentive.NewPercentage(*sj.Rate)
		if err != nil {
			return incentive.Slab{}, err
		}
		slab.Rate = &rate
	}
	slab.FixedAmount = moneyPtr(sj.FixedAmount, currency)
	return slab, nil
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, incentive.NewValidationError("%s must be YYYY-MM-DD, got %q", field, s)
	}
	return t, nil
}

func moneyPtr(d *decimal.Decimal, currency string) *incentive.Money {
	if d == nil {
		return nil
	}
	return &incentive.Money{Amount: *d, Currency: currency}
}

func validStatus(s incentive.PlanStatus) bool {
	switch s {
	case incentive.PlanDraft, incentive.PlanActive, incentive.PlanSuspended, incentive.PlanCancelled:
		return true
	}
	return false
}
