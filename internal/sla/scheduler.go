package sla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the sweep on a fixed interval. Ticks that fire while a
// sweep is still running are skipped, never queued.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
}

// NewScheduler wires the sweeper into a cron runner at the given
// interval.
func NewScheduler(sweeper *Sweeper, interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		interval = time.Minute
	}

	logger := &cronLogger{}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(logger),
		cron.Recover(logger),
	))

	s := &Scheduler{cron: c, sweeper: sweeper}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), s.tick); err != nil {
		return nil, fmt.Errorf("schedule sla sweep: %w", err)
	}
	return s, nil
}

// Start begins scheduling sweep ticks.
func (s *Scheduler) Start() {
	slog.Info("starting sla scheduler")
	s.cron.Start()
}

// Stop stops scheduling and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	slog.Info("stopping sla scheduler")
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	if _, err := s.sweeper.Run(context.Background()); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			slog.Warn("sla sweep tick skipped, previous sweep still running")
			return
		}
		slog.Error("sla sweep failed", "error", err)
	}
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct{}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"error", err}, keysAndValues...)
	slog.Error(msg, args...)
}
