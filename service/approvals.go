package service

import (
	"context"
	"time"

	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/logger"
)

// Submit sends a Draft calculation to its level 1 approver. A routing
// failure leaves the calculation in Draft.
func (s *Service) Submit(ctx context.Context, id incentive.CalculationID) (*incentive.Calculation, error) {
	c, err := s.calculations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status() != incentive.StatusDraft {
		return nil, c.Submit(incentive.Assignment{}, s.now())
	}
	dept, err := s.departmentOf(ctx, c)
	if err != nil {
		return nil, err
	}
	now := s.now()
	first, err := s.assign(ctx, incentive.Level1, dept, c, now)
	if err != nil {
		return nil, err
	}
	if err := c.Submit(first, now); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "calculation submitted",
		logger.String("calculation_id", string(c.ID())),
		logger.String("approver", first.ApproverID),
		logger.Int("required_level", int(s.workflow.DetermineApprovalLevel(c.Net().Amount))))
	return c, nil
}

// Approve records the acting approver's approval. When the net amount needs
// a higher level, the next approver is resolved and assigned in the same
// save; if none can be resolved nothing changes and a routing error is
// returned.
func (s *Service) Approve(ctx context.Context, id incentive.CalculationID, comments string) (*incentive.Calculation, error) {
	c, err := s.calculations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := incentive.ActorFrom(ctx)
	required := s.workflow.DetermineApprovalLevel(c.Net().Amount)
	now := s.now()

	var next *incentive.Assignment
	if active, ok := c.ActiveApproval(); ok && active.ApproverID == actor && active.Level < required {
		dept, err := s.departmentOf(ctx, c)
		if err != nil {
			return nil, err
		}
		a, err := s.assign(ctx, active.Level+1, dept, c, now)
		if err != nil {
			return nil, err
		}
		next = &a
	}

	done, err := c.Approve(actor, comments, required, next, now)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	if done {
		s.log.Info(ctx, "calculation approved",
			logger.String("calculation_id", string(c.ID())), logger.String("approver", actor))
	}
	return c, nil
}

// Reject closes the approval cycle with a mandatory reason.
func (s *Service) Reject(ctx context.Context, id incentive.CalculationID, reason string) (*incentive.Calculation, error) {
	c, err := s.calculations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Reject(incentive.ActorFrom(ctx), reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delegate hands the acting approver's pending approval to delegateTo.
func (s *Service) Delegate(ctx context.Context, id incentive.CalculationID, delegateTo, comments string) (*incentive.Calculation, error) {
	c, err := s.calculations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Delegate(incentive.ActorFrom(ctx), delegateTo, comments, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Escalate moves a pending approval to the escalation target, whether or
// not it is overdue.
func (s *Service) Escalate(ctx context.Context, id incentive.CalculationID) (*incentive.Calculation, error) {
	c, err := s.calculations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.escalate(ctx, c, s.now()); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) escalate(ctx context.Context, c *incentive.Calculation, at time.Time) error {
	active, ok := c.ActiveApproval()
	if !ok {
		// Let the aggregate report the precise transition error.
		return c.Escalate(incentive.Assignment{}, at)
	}
	dept, err := s.departmentOf(ctx, c)
	if err != nil {
		return err
	}
	target, ok := s.workflow.EscalationTargetAt(ctx, active.ApproverID, active.Level, dept, at)
	if !ok {
		s.metrics.RoutingFailed()
		s.log.Warn(ctx, "no escalation target",
			logger.String("calculation_id", string(c.ID())),
			logger.String("approver", active.ApproverID),
			logger.Int("level", int(active.Level)))
		return incentive.RoutingError(active.Level, dept)
	}
	target.ID = incentive.ApprovalID(s.newID())
	if err := c.Escalate(target, at); err != nil {
		return err
	}
	return s.save(ctx, c)
}

// EscalateOverdue escalates every pending approval whose SLA expired before
// now. Failures are logged and skipped so one bad item cannot stall the
// sweep; the number of escalations performed is returned.
func (s *Service) EscalateOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.calculations.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	escalated := 0
	for _, c := range overdue {
		if err := ctx.Err(); err != nil {
			return escalated, err
		}
		if err := s.escalate(ctx, c, now); err != nil {
			s.log.Warn(ctx, "overdue escalation skipped",
				logger.String("calculation_id", string(c.ID())), logger.Error(err))
			continue
		}
		escalated++
	}
	if escalated > 0 {
		s.metrics.OverdueEscalated(escalated)
		s.log.Info(ctx, "overdue approvals escalated", logger.Int("count", escalated))
	}
	return escalated, nil
}
