/*
Package scheduler runs the approval SLA sweep.

PURPOSE:
  Approvals carry a deadline (72h / 48h / 24h by level). Nobody polls for
  missed deadlines by hand, so a background sweeper periodically escalates
  every pending approval whose deadline has passed.

DESIGN:
  - One goroutine, one ticker, configurable interval
  - Runs once immediately on Start
  - A failed sweep is logged and retried on the next tick
  - The last run is kept for the admin status endpoint

USAGE:
  sweeper := scheduler.NewSweeper(svc, scheduler.WithInterval(5*time.Minute))
  sweeper.Start()
  defer sweeper.Stop()
*/
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/warp/incentive-engine/logger"
)

// Escalator is the part of the service the sweeper drives.
type Escalator interface {
	EscalateOverdue(ctx context.Context, now time.Time) (int, error)
}

// Run describes one completed sweep.
type Run struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Escalated int           `json:"escalated"`
	Error     string        `json:"error,omitempty"`
}

type Sweeper struct {
	escalator Escalator
	interval  time.Duration
	log       logger.Logger
	now       func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun *Run
	nextRun time.Time
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(s *Sweeper) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func NewSweeper(escalator Escalator, opts ...Option) *Sweeper {
	s := &Sweeper{
		escalator: escalator,
		interval:  5 * time.Minute,
		log:       logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("sweeper")
	return s
}

// Start launches the sweep loop. Calling Start twice is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)

	s.log.Info(ctx, "started", logger.String("interval", s.interval.String()))
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info(context.Background(), "stopped")
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow performs one sweep synchronously and records it.
func (s *Sweeper) RunNow(ctx context.Context) Run {
	start := s.now()
	n, err := s.escalator.EscalateOverdue(ctx, start)
	run := Run{StartedAt: start, Duration: s.now().Sub(start), Escalated: n}
	if err != nil {
		run.Error = err.Error()
		s.log.Error(ctx, "sweep failed", logger.Error(err))
	} else {
		s.log.Debug(ctx, "sweep completed", logger.Int("escalated", n))
	}

	s.mu.Lock()
	s.lastRun = &run
	s.nextRun = start.Add(s.interval)
	s.mu.Unlock()
	return run
}

// LastRun returns the most recent sweep, if any.
func (s *Sweeper) LastRun() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return Run{}, false
	}
	return *s.lastRun, true
}

// NextRunTime is when the loop will sweep again; zero before the first run.
func (s *Sweeper) NextRunTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

func (s *Sweeper) Interval() time.Duration { return s.interval }
