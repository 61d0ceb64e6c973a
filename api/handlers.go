/*
handlers.go - HTTP API handlers for the incentive engine

PURPOSE:
  Exposes the incentive service via REST. Handlers parse the request, call
  exactly one service operation and serialize the result. No business rule
  lives here.

ENDPOINTS:
  Calculations:
    POST   /api/calculations                 Calculate (creates a Draft)
    GET    /api/calculations                 List (?status=&employee_id=&limit=)
    GET    /api/calculations/{id}            Get one
    POST   /api/calculations/{id}/submit     Draft -> PendingApproval
    POST   /api/calculations/{id}/approve    Approve at the active level
    POST   /api/calculations/{id}/reject     Reject with a reason
    POST   /api/calculations/{id}/delegate   Hand the active approval to someone else
    POST   /api/calculations/{id}/escalate   Escalate the active approval now
    POST   /api/calculations/{id}/void       Void with a reason
    POST   /api/calculations/{id}/pay        Record payroll disbursement

  Approvers:
    GET    /api/approvers/{id}/pending       Approval queue

  Directory:
    PUT    /api/employees/{id}               Upsert employee
    GET    /api/employees/{id}
    PUT    /api/departments/{id}             Upsert department
    GET    /api/departments/{id}
    GET    /api/departments/{id}/approvers   Resolved approver per level
    PUT    /api/plans/{id}                   Upsert a Draft plan (factory JSON)
    GET    /api/plans/{id}
    POST   /api/plans/{id}/{action}          activate | suspend | cancel

  Admin:
    POST   /api/admin/sweep                  Run the SLA sweep now
    GET    /api/admin/sweep                  Last sweep

ACTOR:
  Every mutating call is attributed to the X-Actor-ID header (see
  middleware.go); without it the actor is "system".

ERROR HANDLING:
  See errors.go for the code -> status table.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/logger"
	"github.com/warp/incentive-engine/scheduler"
	"github.com/warp/incentive-engine/service"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// SweepRunner is the part of the scheduler the admin endpoints use.
type SweepRunner interface {
	RunNow(ctx context.Context) scheduler.Run
	LastRun() (scheduler.Run, bool)
	NextRunTime() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service     *service.Service
	PlanFactory *factory.PlanFactory
	Sweeper     SweepRunner

	// Currency is assumed when an employee body omits one.
	Currency string

	log logger.Logger
}

// NewHandler creates a handler over svc.
func NewHandler(svc *service.Service, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		Service:     svc,
		PlanFactory: factory.NewPlanFactory(),
		Currency:    "INR",
		log:         log.Named("api"),
	}
}

// =============================================================================
// CALCULATION ENDPOINTS
// =============================================================================

// Calculate computes and stores a Draft calculation.
// POST /api/calculations
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if !decode(w, r, &req) {
		return
	}
	period, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.Service.Calculate(r.Context(), service.CalculateRequest{
		EmployeeID:  incentive.EmployeeID(req.EmployeeID),
		PlanID:      incentive.PlanID(req.PlanID),
		Period:      period,
		ActualValue: req.ActualValue,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.calculationDTO(c))
}

// ListCalculations filters calculations.
// GET /api/calculations?status=&employee_id=&limit=
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := incentive.CalculationFilter{
		Status:     incentive.CalculationStatus(q.Get("status")),
		EmployeeID: incentive.EmployeeID(q.Get("employee_id")),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.fail(w, r, incentive.NewValidationError("limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	calcs, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.calculationDTOs(calcs))
}

// GetCalculation returns one calculation with its approval history.
// GET /api/calculations/{id}
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Get(r.Context(), calculationID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.calculationDTO(c))
}

// SubmitCalculation routes a Draft to its first approver.
// POST /api/calculations/{id}/submit
func (h *Handler) SubmitCalculation(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.Service.Submit(r.Context(), calculationID(r)))
}

// ApproveCalculation approves at the caller's level.
// POST /api/calculations/{id}/approve
func (h *Handler) ApproveCalculation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(h.Service.Approve(r.Context(), calculationID(r), req.Comments))
}

// RejectCalculation rejects with a mandatory reason.
// POST /api/calculations/{id}/reject
func (h *Handler) RejectCalculation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(h.Service.Reject(r.Context(), calculationID(r), req.Reason))
}

// DelegateCalculation hands the active approval to delegate_to.
// POST /api/calculations/{id}/delegate
func (h *Handler) DelegateCalculation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(h.Service.Delegate(r.Context(), calculationID(r), req.DelegateTo, req.Comments))
}

// EscalateCalculation escalates the active approval immediately.
// POST /api/calculations/{id}/escalate
func (h *Handler) EscalateCalculation(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.Service.Escalate(r.Context(), calculationID(r)))
}

// VoidCalculation voids with a mandatory reason.
// POST /api/calculations/{id}/void
func (h *Handler) VoidCalculation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(h.Service.Void(r.Context(), calculationID(r), req.Reason))
}

// PayCalculation records disbursement of an Approved calculation.
// POST /api/calculations/{id}/pay
func (h *Handler) PayCalculation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(h.Service.MarkPaid(r.Context(), calculationID(r), req.Reference))
}

// ListPending returns an approver's queue.
// GET /api/approvers/{id}/pending
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	calcs, err := h.Service.ListPending(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.calculationDTOs(calcs))
}

// =============================================================================
// DIRECTORY ENDPOINTS
// =============================================================================

// PutEmployee upserts an employee.
// PUT /api/employees/{id}
func (h *Handler) PutEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeDTO
	if !decode(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	emp, err := h.employeeFromDTO(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Service.SaveEmployee(r.Context(), emp); err != nil {
		h.fail(w, r, err)
		return
	}
	saved, err := h.Service.GetEmployee(r.Context(), emp.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(saved))
}

// GetEmployee GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Service.GetEmployee(r.Context(), incentive.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// PutDepartment upserts a department.
// PUT /api/departments/{id}
func (h *Handler) PutDepartment(w http.ResponseWriter, r *http.Request) {
	var req DepartmentDTO
	if !decode(w, r, &req) {
		return
	}
	dept := incentive.Department{
		ID:        incentive.DepartmentID(chi.URLParam(r, "id")),
		Name:      req.Name,
		ManagerID: req.ManagerID,
	}
	if req.ParentID != "" {
		parent := incentive.DepartmentID(req.ParentID)
		dept.ParentID = &parent
	}
	if err := h.Service.SaveDepartment(r.Context(), dept); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDepartmentDTO(&dept))
}

// GetDepartment GET /api/departments/{id}
func (h *Handler) GetDepartment(w http.ResponseWriter, r *http.Request) {
	dept, err := h.Service.GetDepartment(r.Context(), incentive.DepartmentID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDepartmentDTO(dept))
}

// GetApprovers shows who would approve at each level for a department.
// Levels with no resolvable approver are omitted.
// GET /api/departments/{id}/approvers
func (h *Handler) GetApprovers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := incentive.DepartmentID(chi.URLParam(r, "id"))
	if _, err := h.Service.GetDepartment(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}

	wf := h.Service.Workflow()
	out := []ApproverDTO{}
	for level := incentive.Level1; level <= incentive.MaxApprovalLevel; level++ {
		approver, ok := wf.GetApproverForLevel(ctx, level, id)
		if !ok {
			continue
		}
		out = append(out, ApproverDTO{
			Level:      int(level),
			ApproverID: approver,
			SLAHours:   int(wf.SLA(level).Hours()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// PutPlan stores a plan definition. Only Draft plans are editable.
// PUT /api/plans/{id}
func (h *Handler) PutPlan(w http.ResponseWriter, r *http.Request) {
	var pj factory.PlanJSON
	if !decode(w, r, &pj) {
		return
	}
	pj.ID = chi.URLParam(r, "id")
	if pj.Currency == "" {
		pj.Currency = h.Currency
	}
	plan, err := h.PlanFactory.FromJSON(pj)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Service.SavePlan(r.Context(), *plan); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.PlanFactory.ToJSON(plan))
}

// GetPlan GET /api/plans/{id}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Service.GetPlan(r.Context(), incentive.PlanID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.PlanFactory.ToJSON(plan))
}

// TransitionPlan applies a lifecycle action.
// POST /api/plans/{id}/{action}
func (h *Handler) TransitionPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Service.TransitionPlan(r.Context(),
		incentive.PlanID(chi.URLParam(r, "id")),
		service.PlanAction(chi.URLParam(r, "action")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.PlanFactory.ToJSON(plan))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// RunSweep escalates every overdue approval now.
// POST /api/admin/sweep
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweeper != nil {
		run := h.Sweeper.RunNow(r.Context())
		writeJSON(w, http.StatusOK, sweepDTO(run, h.Sweeper.NextRunTime()))
		return
	}
	started := time.Now()
	n, err := h.Service.EscalateOverdue(r.Context(), started)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepDTO{StartedAt: started, Escalated: n})
}

// GetSweep reports the last background sweep.
// GET /api/admin/sweep
func (h *Handler) GetSweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweeper == nil {
		writeError(w, http.StatusNotFound, "Sweeper is not running", "", nil)
		return
	}
	run, ok := h.Sweeper.LastRun()
	if !ok {
		writeError(w, http.StatusNotFound, "No sweep has run yet", "", nil)
		return
	}
	writeJSON(w, http.StatusOK, sweepDTO(run, h.Sweeper.NextRunTime()))
}

// =============================================================================
// HELPERS
// =============================================================================

// respond adapts a (calculation, error) service result into a response.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request) func(*incentive.Calculation, error) {
	return func(c *incentive.Calculation, err error) {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.calculationDTO(c))
	}
}

func (h *Handler) calculationDTO(c *incentive.Calculation) CalculationDTO {
	return toCalculationDTO(c, h.Service.Workflow().DetermineApprovalLevel(c.Net().Amount))
}

func (h *Handler) calculationDTOs(calcs []*incentive.Calculation) []CalculationDTO {
	out := make([]CalculationDTO, 0, len(calcs))
	for _, c := range calcs {
		out = append(out, h.calculationDTO(c))
	}
	return out
}

func (h *Handler) employeeFromDTO(req EmployeeDTO) (incentive.Employee, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = h.Currency
	}
	salary, err := incentive.NewMoney(req.BaseSalary, currency)
	if err != nil {
		return incentive.Employee{}, err
	}
	emp := incentive.Employee{
		ID:           incentive.EmployeeID(req.ID),
		Code:         req.Code,
		Email:        req.Email,
		BaseSalary:   salary,
		DepartmentID: incentive.DepartmentID(req.DepartmentID),
		Status:       incentive.EmployeeStatus(req.Status),
	}
	if req.ManagerID != "" {
		m := incentive.EmployeeID(req.ManagerID)
		emp.ManagerID = &m
	}
	if emp.JoinedOn, err = parseOptionalDate("joined_on", req.JoinedOn); err != nil {
		return incentive.Employee{}, err
	}
	if emp.ExitedOn, err = parseOptionalDate("exited_on", req.ExitedOn); err != nil {
		return incentive.Employee{}, err
	}
	return emp, nil
}

func calculationID(r *http.Request) incentive.CalculationID {
	return incentive.CalculationID(chi.URLParam(r, "id"))
}

func parsePeriod(start, end string) (incentive.DateRange, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return incentive.DateRange{}, incentive.NewValidationError("period_start must be YYYY-MM-DD")
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return incentive.DateRange{}, incentive.NewValidationError("period_end must be YYYY-MM-DD")
	}
	return incentive.NewDateRange(s, e)
}

func parseOptionalDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, incentive.NewValidationError("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

func sweepDTO(run scheduler.Run, next time.Time) SweepDTO {
	return SweepDTO{StartedAt: run.StartedAt, Escalated: run.Escalated, Error: run.Error, NextRunAt: next}
}

// decode reads a JSON body into dst, answering 400 on malformed input.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", string(incentive.CodeValidation), err)
		return false
	}
	return true
}

// decodeAction allows an empty body.
func decodeAction(w http.ResponseWriter, r *http.Request) (ActionRequest, bool) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", string(incentive.CodeValidation), err)
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
