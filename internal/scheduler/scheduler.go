// Package scheduler re-runs the bulk progress refresh on a fixed interval
// while the daemon is up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// RefreshFunc performs one refresh.
type RefreshFunc func(ctx context.Context) error

// Scheduler runs a RefreshFunc periodically. Runs never overlap: a run that
// is still going when the next one is due causes that one to be skipped.
type Scheduler struct {
	cron    *gocron.Scheduler
	refresh RefreshFunc
	logger  *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	interval time.Duration
	started  bool
}

// New creates a stopped Scheduler.
func New(refresh RefreshFunc, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	cron.WaitForScheduleAll()

	return &Scheduler{
		cron:     cron,
		refresh:  refresh,
		logger:   logger,
		interval: interval,
	}
}

// Start schedules the refresh. Runs use ctx. A non-positive interval leaves
// the scheduler idle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx

	if err := s.scheduleLocked(); err != nil {
		return err
	}

	s.cron.StartAsync()
	s.started = true

	return nil
}

// Reschedule replaces the interval. Takes effect immediately.
func (s *Scheduler) Reschedule(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interval == s.interval {
		return nil
	}

	s.interval = interval
	s.cron.Clear()

	if !s.started {
		return nil
	}

	return s.scheduleLocked()
}

// Interval returns the current interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.interval
}

// Stop halts scheduling. A run in progress finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.cron.Stop()
		s.started = false
	}
}

func (s *Scheduler) scheduleLocked() error {
	if s.interval <= 0 {
		s.logger.Info("scheduled refresh disabled")
		return nil
	}

	if _, err := s.cron.Every(s.interval).Do(s.run); err != nil {
		return fmt.Errorf("scheduler: scheduling refresh every %s: %w", s.interval, err)
	}

	s.logger.Info("scheduled refresh", slog.Duration("interval", s.interval))

	return nil
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()

	if err := s.refresh(ctx); err != nil {
		s.logger.Warn("scheduled refresh failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)

		return
	}

	s.logger.Debug("scheduled refresh done", slog.Duration("elapsed", time.Since(start)))
}
