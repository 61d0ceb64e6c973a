/*
errors.go - Error taxonomy for the incentive core

PURPOSE:
  Every expected business outcome is a typed error carrying a stable
  machine-readable code. Unexpected faults (storage down, broken
  invariants) are plain wrapped errors and have no code.

ERROR CATEGORIES:
  not_found                 Employee, plan, department or calculation absent
  invalid_state_transition  Action not allowed in the current status
  duplicate_calculation     (employee, plan, period) already calculated
  computation_failed        Plan configuration cannot produce a result
  routing_failed            No approver resolvable along the hierarchy
  concurrency_conflict      Another writer won; retry after re-fetch
  validation_failed         Malformed input

USAGE:
  if errors.Is(err, incentive.ErrDuplicateCalculation) {
      // branch to the adjustment path
  }
  code := incentive.CodeOf(err) // "duplicate_calculation"
*/
package incentive

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrDuplicateCalculation   = errors.New("duplicate calculation")
	ErrComputation            = errors.New("computation failed")
	ErrNoApprover             = errors.New("no approver resolvable")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrValidation             = errors.New("validation failed")
	ErrCurrencyMismatch       = errors.New("currency mismatch")
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeInvalidTransition   Code = "invalid_state_transition"
	CodeDuplicate           Code = "duplicate_calculation"
	CodeComputation         Code = "computation_failed"
	CodeRouting             Code = "routing_failed"
	CodeConcurrency         Code = "concurrency_conflict"
	CodeValidation          Code = "validation_failed"
	CodeAlreadyVoided       Code = "already_voided"
	CodeCannotVoidPaid      Code = "cannot_void_paid"
	CodeNotAssignedApprover Code = "not_assigned_approver"
)

var codeSentinels = map[Code]error{
	CodeNotFound:            ErrNotFound,
	CodeInvalidTransition:   ErrInvalidTransition,
	CodeDuplicate:           ErrDuplicateCalculation,
	CodeComputation:         ErrComputation,
	CodeRouting:             ErrNoApprover,
	CodeConcurrency:         ErrConcurrentModification,
	CodeValidation:          ErrValidation,
	CodeAlreadyVoided:       ErrInvalidTransition,
	CodeCannotVoidPaid:      ErrInvalidTransition,
	CodeNotAssignedApprover: ErrInvalidTransition,
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Error is a business failure with a code and human message.
type Error struct {
	Code    Code
	Message string
	// Status is the calculation status at the time of a rejected transition.
	Status CalculationStatus
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return codeSentinels[e.Code]
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func validationErrorf(format string, args ...any) error {
	return newError(CodeValidation, format, args...)
}

// NewValidationError reports malformed input from outside the core.
func NewValidationError(format string, args ...any) error {
	return newError(CodeValidation, format, args...)
}

// NotFoundError reports a missing referenced record.
func NotFoundError(kind, id string) error {
	return newError(CodeNotFound, "%s %q not found", kind, id)
}

// ConflictError reports a lost optimistic-concurrency race.
func ConflictError(calculationID CalculationID, expectedVersion int) error {
	return newError(CodeConcurrency, "calculation %s was modified concurrently (expected version %d)",
		calculationID, expectedVersion)
}

// DuplicateError reports an existing calculation for the same triple.
func DuplicateError(existing CalculationID) error {
	return newError(CodeDuplicate, "a calculation already exists for this employee, plan and period (%s)", existing)
}

// RoutingError reports that no approver could be resolved.
func RoutingError(level ApprovalLevel, departmentID DepartmentID) error {
	return newError(CodeRouting, "no approver resolvable for level %d in department %q", level, departmentID)
}

func transitionError(code Code, status CalculationStatus, format string, args ...any) error {
	e := newError(code, format, args...)
	e.Status = status
	return e
}

// CurrencyMismatchError is returned by Money arithmetic across currencies.
type CurrencyMismatchError struct {
	Left, Right string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s vs %s", e.Left, e.Right)
}

func (e *CurrencyMismatchError) Unwrap() error { return ErrCurrencyMismatch }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// CodeOf returns the business code of err, or "" for unexpected faults.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, ErrCurrencyMismatch) {
		return CodeValidation
	}
	return ""
}

// IsRetryable returns true if the error might succeed after a re-fetch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true for any expected business outcome.
func IsClientError(err error) bool {
	return CodeOf(err) != ""
}
