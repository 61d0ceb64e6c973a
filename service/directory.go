package service

import (
	"context"
	"strings"

	"github.com/warp/incentive-engine/incentive"
)

func (s *Service) GetEmployee(ctx context.Context, id incentive.EmployeeID) (*incentive.Employee, error) {
	return s.directory.GetEmployee(ctx, id)
}

func (s *Service) SaveEmployee(ctx context.Context, e incentive.Employee) error {
	if strings.TrimSpace(string(e.ID)) == "" {
		return incentive.NewValidationError("employee id is required")
	}
	if e.BaseSalary.Currency == "" {
		return incentive.NewValidationError("employee base salary needs a currency")
	}
	if e.Status == "" {
		e.Status = incentive.EmployeeActive
	}
	return s.directory.PutEmployee(ctx, e)
}

func (s *Service) GetDepartment(ctx context.Context, id incentive.DepartmentID) (*incentive.Department, error) {
	return s.directory.GetDepartment(ctx, id)
}

func (s *Service) SaveDepartment(ctx context.Context, d incentive.Department) error {
	if strings.TrimSpace(string(d.ID)) == "" {
		return incentive.NewValidationError("department id is required")
	}
	if d.ParentID != nil && *d.ParentID == d.ID {
		return incentive.NewValidationError("department %s cannot be its own parent", d.ID)
	}
	return s.directory.PutDepartment(ctx, d)
}

func (s *Service) GetPlan(ctx context.Context, id incentive.PlanID) (*incentive.Plan, error) {
	return s.directory.GetPlan(ctx, id)
}

// SavePlan stores a plan definition. Existing plans may only be replaced
// while they are still Draft.
func (s *Service) SavePlan(ctx context.Context, p incentive.Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	existing, err := s.directory.GetPlan(ctx, p.ID)
	switch {
	case err == nil && !existing.IsEditable():
		return incentive.NewValidationError("plan %s is %s; only draft plans can be edited", existing.Code, existing.Status)
	case err != nil && !incentive.IsNotFound(err):
		return err
	}
	if p.Status == "" {
		p.Status = incentive.PlanDraft
	}
	return s.directory.PutPlan(ctx, p)
}

// PlanAction names a plan lifecycle transition.
type PlanAction string

const (
	PlanActivate PlanAction = "activate"
	PlanSuspend  PlanAction = "suspend"
	PlanCancel   PlanAction = "cancel"
)

// TransitionPlan applies a lifecycle action and stores the result.
func (s *Service) TransitionPlan(ctx context.Context, id incentive.PlanID, action PlanAction) (*incentive.Plan, error) {
	p, err := s.directory.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	switch action {
	case PlanActivate:
		err = p.Activate()
	case PlanSuspend:
		err = p.Suspend()
	case PlanCancel:
		err = p.Cancel()
	default:
		err = incentive.NewValidationError("unknown plan action %q", action)
	}
	if err != nil {
		return nil, err
	}
	if err := s.directory.PutPlan(ctx, *p); err != nil {
		return nil, err
	}
	return p, nil
}
