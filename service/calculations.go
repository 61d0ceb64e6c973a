package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/logger"
)

// CalculateRequest asks for one employee's incentive under one plan.
type CalculateRequest struct {
	EmployeeID  incentive.EmployeeID
	PlanID      incentive.PlanID
	Period      incentive.DateRange
	ActualValue decimal.Decimal
}

// Calculate runs the engine and stores a Draft calculation.
//
// A non-voided calculation for the same employee and plan over an
// overlapping period is a duplicate: corrections go through Void followed by
// a fresh Calculate.
func (s *Service) Calculate(ctx context.Context, req CalculateRequest) (c *incentive.Calculation, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveCalculation(calculationOutcome(c, err), time.Since(start))
	}()

	emp, err := s.directory.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	plan, err := s.directory.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.Status != incentive.PlanActive {
		return nil, incentive.NewValidationError("plan %s is %s; only active plans can be calculated", plan.Code, plan.Status)
	}
	if !plan.EffectivePeriod.Covers(req.Period) {
		return nil, incentive.NewValidationError("period %s is outside plan effective period %s", req.Period, plan.EffectivePeriod)
	}

	live, err := s.calculations.FindOverlapping(ctx, req.EmployeeID, req.PlanID, req.Period)
	if err != nil {
		return nil, fmt.Errorf("find overlapping calculations: %w", err)
	}
	if len(live) > 0 {
		return nil, incentive.DuplicateError(live[0].ID())
	}

	res := s.engine.Calculate(emp, plan, req.ActualValue, req.Period)
	if !res.Success {
		s.log.Warn(ctx, "calculation failed",
			logger.String("employee_id", string(req.EmployeeID)),
			logger.String("plan_id", string(req.PlanID)),
			logger.String("code", string(res.Code)),
			logger.String("reason", res.Message))
		return nil, res.Err()
	}

	now := s.now()
	c, err = incentive.NewCalculation(incentive.CalculationID(s.newID()), emp, plan, req.Period, req.ActualValue, now)
	if err != nil {
		return nil, err
	}
	if err := applyResult(c, plan, res, now); err != nil {
		return nil, err
	}
	if err := s.calculations.Create(ctx, c); err != nil {
		return nil, err
	}
	s.publish(ctx, c)

	s.log.Info(ctx, "calculation created",
		logger.String("calculation_id", string(c.ID())),
		logger.String("employee_id", string(c.EmployeeID())),
		logger.String("net", c.Net().String()))
	return c, nil
}

// applyResult moves an engine result onto a Draft aggregate.
func applyResult(c *incentive.Calculation, plan *incentive.Plan, res incentive.Result, at time.Time) error {
	if res.BelowThreshold {
		return c.MarkBelowThreshold(at)
	}
	var slabID *incentive.SlabID
	if res.AppliedSlab != nil {
		id := res.AppliedSlab.ID
		slabID = &id
	}
	if err := c.Calculate(res.GrossIncentive, slabID, at); err != nil {
		return err
	}
	if res.Prorata != nil {
		if err := c.ApplyProrata(*res.Prorata, at); err != nil {
			return err
		}
	}
	if plan.MaximumPayout != nil || plan.MinimumPayout != nil {
		return c.ApplyCap(plan.MaximumPayout, plan.MinimumPayout, at)
	}
	return nil
}

func calculationOutcome(c *incentive.Calculation, err error) string {
	switch {
	case err == nil && c != nil && c.BelowThreshold():
		return "below_threshold"
	case err == nil:
		return "ok"
	case incentive.CodeOf(err) != "":
		return string(incentive.CodeOf(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

// Void retires a calculation; the acting user comes from ctx.
func (s *Service) Void(ctx context.Context, id incentive.CalculationID, reason string) (*incentive.Calculation, error) {
	c, err := s.calculations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Void(reason, incentive.ActorFrom(ctx), s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// MarkPaid records payroll's disbursement of an Approved calculation.
func (s *Service) MarkPaid(ctx context.Context, id incentive.CalculationID, reference string) (*incentive.Calculation, error) {
	c, err := s.calculations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.MarkPaid(incentive.ActorFrom(ctx), reference, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
