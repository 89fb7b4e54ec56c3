package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// TickRunner is the slice of the orchestrator the scheduler drives.
type TickRunner interface {
	RunTick(ctx context.Context, opts TickOptions) (Summary, error)
}

// Scheduler invokes the orchestrator on a fixed interval until its context is
// cancelled. Manual triggers through the HTTP API may race a scheduled tick;
// that is safe because runs are independent and upserts idempotent.
type Scheduler struct {
	runner   TickRunner
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewScheduler(runner TickRunner, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled. A tick that is already in flight runs to
// completion; there is no cancellation contract for a started tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if _, err := s.runner.RunTick(context.WithoutCancel(ctx), TickOptions{}); err != nil {
				s.logger.Error("scheduled tick failed", "error", err)
			}
		}
	}
}
