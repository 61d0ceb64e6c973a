/*
Package service orchestrates the incentive core.

Each operation follows the same shape:

	load ──▶ invoke engine / workflow ──▶ mutate aggregate ──▶ save ──▶ publish events

The service owns no business rules. Money math lives in incentive.Engine,
routing in approval.Workflow and status rules in incentive.Calculation. Saves
go through the CalculationStore, whose version check makes concurrent writers
to one calculation fail with a retryable conflict instead of overwriting each
other. Events are drained only after a successful save.
*/
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warp/incentive-engine/approval"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/logger"
)

// Recorder receives operational measurements. metrics.Manager satisfies it.
type Recorder interface {
	ObserveCalculation(outcome string, d time.Duration)
	RoutingFailed()
	OverdueEscalated(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCalculation(string, time.Duration) {}
func (nopRecorder) RoutingFailed()                           {}
func (nopRecorder) OverdueEscalated(int)                     {}

type Service struct {
	directory    incentive.Directory
	calculations incentive.CalculationStore
	engine       *incentive.Engine
	workflow     *approval.Workflow

	sink    incentive.EventSink
	metrics Recorder
	log     logger.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Service)

func WithLogger(l logger.Logger) Option { return func(s *Service) { s.log = l } }

func WithEventSink(sink incentive.EventSink) Option { return func(s *Service) { s.sink = sink } }

func WithRecorder(r Recorder) Option { return func(s *Service) { s.metrics = r } }

// WithClock overrides the time source stamped on transitions.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator overrides uuid-based calculation and approval ids.
func WithIDGenerator(gen func() string) Option { return func(s *Service) { s.newID = gen } }

func New(directory incentive.Directory, calculations incentive.CalculationStore, workflow *approval.Workflow, opts ...Option) *Service {
	s := &Service{
		directory:    directory,
		calculations: calculations,
		engine:       incentive.NewEngine(),
		workflow:     workflow,
		metrics:      nopRecorder{},
		log:          logger.Nop(),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Workflow exposes the routing rules, e.g. for previewing approval levels.
func (s *Service) Workflow() *approval.Workflow { return s.workflow }

// Get loads a calculation with its approvals.
func (s *Service) Get(ctx context.Context, id incentive.CalculationID) (*incentive.Calculation, error) {
	return s.calculations.Get(ctx, id)
}

// List returns calculations matching filter.
func (s *Service) List(ctx context.Context, filter incentive.CalculationFilter) ([]*incentive.Calculation, error) {
	return s.calculations.List(ctx, filter)
}

// ListPending returns the approval queue for one approver.
func (s *Service) ListPending(ctx context.Context, approverID string) ([]*incentive.Calculation, error) {
	if approverID == "" {
		return nil, incentive.NewValidationError("approver id is required")
	}
	return s.calculations.List(ctx, incentive.CalculationFilter{
		Status:     incentive.StatusPendingApproval,
		ApproverID: approverID,
	})
}

// save persists c and publishes whatever it queued. A publish failure is
// logged, never returned: the state change already happened.
func (s *Service) save(ctx context.Context, c *incentive.Calculation) error {
	if err := s.calculations.Save(ctx, c); err != nil {
		return err
	}
	s.publish(ctx, c)
	return nil
}

func (s *Service) publish(ctx context.Context, c *incentive.Calculation) {
	events := c.DrainEvents()
	if len(events) == 0 || s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, events); err != nil {
		s.log.Warn(ctx, "event publish failed",
			logger.String("calculation_id", string(c.ID())), logger.Int("events", len(events)), logger.Error(err))
	}
}

// departmentOf resolves the employee's department for routing.
func (s *Service) departmentOf(ctx context.Context, c *incentive.Calculation) (incentive.DepartmentID, error) {
	emp, err := s.directory.GetEmployee(ctx, c.EmployeeID())
	if err != nil {
		return "", err
	}
	return emp.DepartmentID, nil
}

func (s *Service) assign(ctx context.Context, level incentive.ApprovalLevel, dept incentive.DepartmentID, c *incentive.Calculation, at time.Time) (incentive.Assignment, error) {
	a, err := s.workflow.Assign(ctx, level, dept, at)
	if err != nil {
		s.metrics.RoutingFailed()
		s.log.Warn(ctx, "approval routing failed",
			logger.String("calculation_id", string(c.ID())),
			logger.Int("level", int(level)),
			logger.String("department_id", string(dept)))
		return incentive.Assignment{}, err
	}
	a.ID = incentive.ApprovalID(s.newID())
	return a, nil
}
