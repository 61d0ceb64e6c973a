package incentive

import (
	"context"
	"time"
)

// EventType names a domain-significant fact about a calculation.
type EventType string

const (
	EventCreated       EventType = "calculation.created"
	EventCalculated    EventType = "calculation.calculated"
	EventSubmitted     EventType = "calculation.submitted"
	EventLevelApproved EventType = "calculation.level_approved"
	EventApproved      EventType = "calculation.approved"
	EventRejected      EventType = "calculation.rejected"
	EventDelegated     EventType = "calculation.delegated"
	EventEscalated     EventType = "calculation.escalated"
	EventPaid          EventType = "calculation.paid"
	EventVoided        EventType = "calculation.voided"
)

// Event is queued on the aggregate during a transition and drained by the
// caller after the change is committed.
type Event struct {
	Type          EventType
	CalculationID CalculationID
	EmployeeID    EmployeeID
	Actor         string
	Level         ApprovalLevel
	Amount        Money
	At            time.Time
	Detail        string
}

// EventSink receives drained events. Delivery is at-least-once from the
// caller's side; sinks must tolerate repeats.
type EventSink interface {
	Publish(ctx context.Context, events []Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, events []Event) error

func (f EventSinkFunc) Publish(ctx context.Context, events []Event) error { return f(ctx, events) }

// MultiSink fans out to every sink and returns the first error.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, events []Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, events); err != nil && first == nil {
			first = err
		}
	}
	return first
}
