/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates the directory with a realistic sales organisation so the API can
  be exercised end to end without hand-writing fixtures.

AVAILABLE SCENARIOS:
  sales-org:      Three-level department tree, four sellers, three active
                  plans (graduated, marginal, attainment-percentage)
  quarter-close:  sales-org plus Q1 calculations in Draft, one per seller,
                  sized to need one, two and three approval levels

HOW SCENARIOS WORK:
  1. Upsert departments and employees
  2. Create plans from JSON via the plan factory (skipped if present)
  3. Activate plans
  4. Optionally calculate (duplicates are skipped)

  Loading is idempotent; nothing is reset.

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "quarter-close"}
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/service"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "sales-org",
		Name:        "Sales Organisation",
		Description: "Department tree, sellers and three active incentive plans",
	},
	{
		ID:          "quarter-close",
		Name:        "Quarter Close",
		Description: "Sales organisation plus Q1 draft calculations across all approval levels",
	},
}

var scenarioPlans = []string{
	`{
		"id": "plan-q1-graduated",
		"code": "Q1-GRAD",
		"name": "Q1 Graduated Commission",
		"effective_from": "2025-01-01",
		"effective_to": "2025-04-01",
		"target": {"value": "1000000", "minimum_threshold": "200000", "achievement_type": "tiered_graduated"},
		"slabs": [
			{"tier": 1, "from": "0",       "to": "1000000", "rate": "5"},
			{"tier": 2, "from": "1000000", "to": "2000000", "rate": "7.5"},
			{"tier": 3, "from": "2000000",                  "rate": "10"}
		],
		"maximum_payout": "250000"
	}`,
	`{
		"id": "plan-q1-marginal",
		"code": "Q1-MARG",
		"name": "Q1 Marginal Commission",
		"effective_from": "2025-01-01",
		"effective_to": "2025-04-01",
		"target": {"value": "1000000", "achievement_type": "tiered_marginal"},
		"slabs": [
			{"tier": 1, "from": "0",       "to": "500000",  "rate": "2"},
			{"tier": 2, "from": "500000",  "to": "1000000", "rate": "4"},
			{"tier": 3, "from": "1000000",                  "rate": "6"}
		]
	}`,
	`{
		"id": "plan-fy-attainment",
		"code": "FY-ATTAIN",
		"name": "FY Attainment Bonus",
		"effective_from": "2025-01-01",
		"effective_to": "2026-01-01",
		"basis": "base_salary",
		"target": {"value": "100", "minimum_threshold": "80", "achievement_type": "percentage", "metric_unit": "%"},
		"slabs": [
			{"tier": 1, "from": "0",   "to": "100", "rate": "5"},
			{"tier": 2, "from": "100",              "rate": "10"}
		],
		"minimum_payout": "10000"
	}`,
}

// ListScenarios GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	var err error
	switch req.ScenarioID {
	case "sales-org":
		err = h.loadSalesOrg(r.Context())
	case "quarter-close":
		err = h.loadQuarterClose(r.Context())
	default:
		err = incentive.NewValidationError("unknown scenario %q", req.ScenarioID)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSalesOrg(ctx context.Context) error {
	root := incentive.DepartmentID("hq")
	sales := incentive.DepartmentID("sales")
	departments := []incentive.Department{
		{ID: root, Name: "Headquarters", ManagerID: "emp-ceo"},
		{ID: sales, Name: "Sales", ManagerID: "emp-vp-sales", ParentID: &root},
		{ID: "sales-north", Name: "Sales North", ManagerID: "emp-mgr-north", ParentID: &sales},
		{ID: "sales-south", Name: "Sales South", ManagerID: "emp-mgr-south", ParentID: &sales},
	}
	for _, d := range departments {
		if err := h.Service.SaveDepartment(ctx, d); err != nil {
			return fmt.Errorf("department %s: %w", d.ID, err)
		}
	}

	midFebruary := time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC)
	employees := []incentive.Employee{
		{ID: "emp-asha", Code: "S-101", Email: "asha@example.com", DepartmentID: "sales-north", BaseSalary: h.money("1200000")},
		{ID: "emp-ravi", Code: "S-102", Email: "ravi@example.com", DepartmentID: "sales-south", BaseSalary: h.money("1500000")},
		{ID: "emp-meera", Code: "S-103", Email: "meera@example.com", DepartmentID: "sales-north", BaseSalary: h.money("900000"), JoinedOn: &midFebruary},
		{ID: "emp-kiran", Code: "S-104", Email: "kiran@example.com", DepartmentID: "sales-south", BaseSalary: h.money("2400000")},
	}
	for _, e := range employees {
		if err := h.Service.SaveEmployee(ctx, e); err != nil {
			return fmt.Errorf("employee %s: %w", e.ID, err)
		}
	}

	for _, js := range scenarioPlans {
		if err := h.createPlanFromJSON(ctx, js); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadQuarterClose(ctx context.Context) error {
	if err := h.loadSalesOrg(ctx); err != nil {
		return err
	}

	q1, err := incentive.NewDateRange(
		time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return err
	}
	runs := []service.CalculateRequest{
		{EmployeeID: "emp-asha", PlanID: "plan-q1-graduated", ActualValue: decimal.NewFromInt(800_000)},   // 40,000: level 1
		{EmployeeID: "emp-ravi", PlanID: "plan-q1-graduated", ActualValue: decimal.NewFromInt(1_200_000)}, // 90,000: level 2
		{EmployeeID: "emp-meera", PlanID: "plan-q1-graduated", ActualValue: decimal.NewFromInt(900_000)},  // 45,000 prorated from Feb 15
		{EmployeeID: "emp-kiran", PlanID: "plan-q1-marginal", ActualValue: decimal.NewFromInt(2_500_000)}, // 120,000: level 3
	}
	for _, req := range runs {
		req.Period = q1
		if _, err := h.Service.Calculate(ctx, req); err != nil && !errors.Is(err, incentive.ErrDuplicateCalculation) {
			return fmt.Errorf("calculate %s/%s: %w", req.EmployeeID, req.PlanID, err)
		}
	}
	return nil
}

// createPlanFromJSON stores and activates a plan unless it already exists.
func (h *Handler) createPlanFromJSON(ctx context.Context, js string) error {
	var pj factory.PlanJSON
	if err := json.Unmarshal([]byte(js), &pj); err != nil {
		return fmt.Errorf("scenario plan: %w", err)
	}
	if pj.Currency == "" {
		pj.Currency = h.Currency
	}
	plan, err := h.PlanFactory.FromJSON(pj)
	if err != nil {
		return err
	}
	if _, err := h.Service.GetPlan(ctx, plan.ID); err == nil {
		return nil
	}
	if err := h.Service.SavePlan(ctx, *plan); err != nil {
		return fmt.Errorf("plan %s: %w", plan.ID, err)
	}
	_, err = h.Service.TransitionPlan(ctx, plan.ID, service.PlanActivate)
	return err
}

func (h *Handler) money(amount string) incentive.Money {
	return incentive.MustMoney(amount, h.Currency)
}
