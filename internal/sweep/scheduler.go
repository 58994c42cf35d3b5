package sweep

import (
	"context"
	"log/slog"
	"time"
)

// Runner is one reconciliation pass
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler fires the sweep once at a fixed local hour each day. Sweeps
// run synchronously and never overlap: the next fire time is computed
// only after the previous sweep returns.
type Scheduler struct {
	sweeper Runner
	hour    int

	now func() time.Time
}

// NewScheduler creates a Scheduler firing daily at the given local hour
func NewScheduler(sweeper Runner, hour int) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		hour:    hour,
		now:     time.Now,
	}
}

// Run loops until ctx is cancelled. A failed sweep is logged and
// swallowed so it cannot prevent the next day's fire.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("Starting sweep scheduler", "hour", s.hour)

	for {
		next := nextFire(s.now(), s.hour)
		slog.Info("Next sweep scheduled", "at", next)

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Sweep scheduler stopped")
			return
		case <-timer.C:
		}

		if err := s.sweeper.Run(ctx); err != nil {
			slog.Error("Sweep failed", "error", err)
		}
	}
}

// nextFire returns today at the given hour if that is still in the
// future, otherwise tomorrow at that hour.
func nextFire(now time.Time, hour int) time.Time {
	fire := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !now.Before(fire) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}
