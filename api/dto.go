/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. The Calculation
  aggregate keeps its fields unexported, so every response goes through a
  DTO built from its accessors.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts travel as decimal strings ("5625.00") with a separate currency so
  no client ever parses a float.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/plan.go: PlanJSON, used as-is for plan bodies
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/incentive-engine/incentive"
)

// =============================================================================
// CALCULATIONS
// =============================================================================

// CalculateRequest computes a new incentive.
type CalculateRequest struct {
	EmployeeID  string          `json:"employee_id"`
	PlanID      string          `json:"plan_id"`
	PeriodStart string          `json:"period_start"` // YYYY-MM-DD
	PeriodEnd   string          `json:"period_end"`   // YYYY-MM-DD, exclusive
	ActualValue decimal.Decimal `json:"actual_value"`
}

// ActionRequest carries the optional text of a workflow action.
type ActionRequest struct {
	Comments   string `json:"comments,omitempty"`
	Reason     string `json:"reason,omitempty"`
	DelegateTo string `json:"delegate_to,omitempty"`
	Reference  string `json:"reference,omitempty"`
}

type CalculationDTO struct {
	ID               string        `json:"id"`
	EmployeeID       string        `json:"employee_id"`
	PlanID           string        `json:"plan_id"`
	PeriodStart      string        `json:"period_start"`
	PeriodEnd        string        `json:"period_end"`
	Currency         string        `json:"currency"`
	TargetValue      string        `json:"target_value"`
	ActualValue      string        `json:"actual_value"`
	Achievement      string        `json:"achievement_percentage"`
	AppliedSlabID    string        `json:"applied_slab_id,omitempty"`
	Gross            string        `json:"gross_incentive"`
	Net              string        `json:"net_incentive"`
	Prorata          string        `json:"prorata_percentage,omitempty"`
	BelowThreshold   bool          `json:"below_threshold"`
	Status           string        `json:"status"`
	RequiredLevel    int           `json:"required_level"`
	Approvals        []ApprovalDTO `json:"approvals"`
	RejectionReason  string        `json:"rejection_reason,omitempty"`
	VoidReason       string        `json:"void_reason,omitempty"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	Version          int           `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type ApprovalDTO struct {
	ID          string     `json:"id"`
	ApproverID  string     `json:"approver_id"`
	Level       int        `json:"level"`
	Status      string     `json:"status"`
	Comments    string     `json:"comments,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ActionDate  *time.Time `json:"action_date,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	DelegatedTo string     `json:"delegated_to,omitempty"`
}

// =============================================================================
// DIRECTORY
// =============================================================================

type EmployeeDTO struct {
	ID           string          `json:"id"`
	Code         string          `json:"code,omitempty"`
	Email        string          `json:"email,omitempty"`
	BaseSalary   decimal.Decimal `json:"base_salary"`
	Currency     string          `json:"currency,omitempty"`
	DepartmentID string          `json:"department_id"`
	ManagerID    string          `json:"manager_id,omitempty"`
	Status       string          `json:"status,omitempty"`
	JoinedOn     string          `json:"joined_on,omitempty"` // YYYY-MM-DD
	ExitedOn     string          `json:"exited_on,omitempty"` // YYYY-MM-DD, first day not employed
}

type DepartmentDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	ManagerID string `json:"manager_id,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
}

// ApproverDTO is one resolved approver in a department's chain.
type ApproverDTO struct {
	Level      int    `json:"level"`
	ApproverID string `json:"approver_id"`
	SLAHours   int    `json:"sla_hours"`
}

// =============================================================================
// ADMIN / SCENARIOS
// =============================================================================

type SweepDTO struct {
	StartedAt time.Time `json:"started_at"`
	Escalated int       `json:"escalated"`
	Error     string    `json:"error,omitempty"`
	NextRunAt time.Time `json:"next_run_at,omitempty"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCalculationDTO(c *incentive.Calculation, required incentive.ApprovalLevel) CalculationDTO {
	rec := c.Record()
	dto := CalculationDTO{
		ID:               string(rec.ID),
		EmployeeID:       string(rec.EmployeeID),
		PlanID:           string(rec.PlanID),
		PeriodStart:      rec.Period.Start.Format(time.DateOnly),
		PeriodEnd:        rec.Period.End.Format(time.DateOnly),
		Currency:         rec.Currency,
		TargetValue:      rec.TargetValue.String(),
		ActualValue:      rec.ActualValue.String(),
		Achievement:      rec.Achievement.Value.StringFixed(2),
		Gross:            rec.Gross.Amount.StringFixed(2),
		Net:              rec.Net.Amount.StringFixed(2),
		BelowThreshold:   rec.BelowThreshold,
		Status:           string(rec.Status),
		RequiredLevel:    int(required),
		Approvals:        make([]ApprovalDTO, 0, len(rec.Approvals)),
		RejectionReason:  rec.RejectionReason,
		VoidReason:       rec.VoidReason,
		PaymentReference: rec.PaymentReference,
		Version:          rec.Version,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
	if rec.AppliedSlabID != nil {
		dto.AppliedSlabID = string(*rec.AppliedSlabID)
	}
	if rec.Prorata != nil {
		dto.Prorata = rec.Prorata.Value.StringFixed(4)
	}
	for _, a := range rec.Approvals {
		dto.Approvals = append(dto.Approvals, ApprovalDTO{
			ID:          string(a.ID),
			ApproverID:  a.ApproverID,
			Level:       int(a.Level),
			Status:      string(a.Status),
			Comments:    a.Comments,
			CreatedAt:   a.CreatedAt,
			ActionDate:  a.ActionDate,
			ExpiresAt:   a.ExpiresAt,
			DelegatedTo: a.DelegatedToID,
		})
	}
	return dto
}

func toEmployeeDTO(e *incentive.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:           string(e.ID),
		Code:         e.Code,
		Email:        e.Email,
		BaseSalary:   e.BaseSalary.Amount,
		Currency:     e.BaseSalary.Currency,
		DepartmentID: string(e.DepartmentID),
		Status:       string(e.Status),
	}
	if e.ManagerID != nil {
		dto.ManagerID = string(*e.ManagerID)
	}
	if e.JoinedOn != nil {
		dto.JoinedOn = e.JoinedOn.Format(time.DateOnly)
	}
	if e.ExitedOn != nil {
		dto.ExitedOn = e.ExitedOn.Format(time.DateOnly)
	}
	return dto
}

func toDepartmentDTO(d *incentive.Department) DepartmentDTO {
	dto := DepartmentDTO{ID: string(d.ID), Name: d.Name, ManagerID: d.ManagerID}
	if d.ParentID != nil {
		dto.ParentID = string(*d.ParentID)
	}
	return dto
}
