// Package sla implements the escalation timer: a periodic sweep over
// unacknowledged escalatable events that raises escalation levels when
// configured response thresholds are crossed. Escalation levels are
// monotonic and each level's notification is emitted at most once.
package sla

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// ErrSweepInProgress is returned when a sweep is requested while the
// previous one has not finished.
var ErrSweepInProgress = errors.New("sla sweep already in progress")

// Notifier receives escalation events for best-effort delivery. A failed
// dispatch is logged and never rolls back a persisted level change.
type Notifier interface {
	EscalationRaised(ctx context.Context, event *domain.EscalatableEvent, config domain.SLAConfig) error
}

// SweepStats summarizes a single sweep run.
type SweepStats struct {
	Processed int `json:"processed"`
	Breached  int `json:"breached"`
	Escalated int `json:"escalated"`
}

// Sweeper walks active escalatable events and applies the escalation
// ladder. A single Sweeper serializes its own runs; concurrent sweepers
// on other instances are kept from double-escalating by the version
// guard on each event update.
type Sweeper struct {
	repo     Repository
	notifier Notifier

	mu sync.Mutex
}

// NewSweeper creates a Sweeper.
func NewSweeper(repo Repository, notifier Notifier) *Sweeper {
	return &Sweeper{repo: repo, notifier: notifier}
}

// Run executes one sweep. Overlapping calls are rejected with
// ErrSweepInProgress rather than queued, so a slow sweep never builds an
// unbounded backlog of ticks. Store errors on an individual event are
// logged and skipped; the sweep moves on to the next event.
func (s *Sweeper) Run(ctx context.Context) (SweepStats, error) {
	if !s.mu.TryLock() {
		return SweepStats{}, ErrSweepInProgress
	}
	defer s.mu.Unlock()

	start := time.Now()
	var stats SweepStats

	events, err := s.repo.ListActiveEvents(ctx)
	if err != nil {
		return stats, err
	}

	configs := newConfigCache(s.repo)
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++

		config, err := configs.resolve(ctx, event.TenantID, string(event.Category), event.Priority)
		if err != nil {
			slog.Error("failed to resolve sla config",
				"event_id", event.ID,
				"tenant_id", event.TenantID,
				"error", err,
			)
			continue
		}

		s.step(ctx, event, config, start, &stats)
	}

	recordSweep(start, stats)
	slog.Info("sla sweep finished",
		"processed", stats.Processed,
		"breached", stats.Breached,
		"escalated", stats.Escalated,
		"duration", time.Since(start),
	)
	return stats, nil
}

// step applies at most one rung of the ladder to a single event. The
// level-1 transition is guarded by the breach stamp, levels 2 and 3 by
// the stored level, so re-running before the next threshold is crossed
// changes nothing and emits nothing.
func (s *Sweeper) step(ctx context.Context, event *domain.EscalatableEvent, config domain.SLAConfig, now time.Time, stats *SweepStats) {
	elapsed := now.Sub(event.TriggeredAt)

	switch {
	case event.BreachNotifiedAt == nil && elapsed > config.MaxResponse:
		event.EscalationLevel = domain.EscalationBreach
		event.BreachNotifiedAt = &now
		if s.persist(ctx, event) {
			stats.Breached++
			s.emit(ctx, event, config)
		}
	case event.EscalationLevel == domain.EscalationBreach && elapsed > config.FirstEscalation:
		event.EscalationLevel = domain.EscalationLevel2
		if s.persist(ctx, event) {
			stats.Escalated++
			s.emit(ctx, event, config)
		}
	case event.EscalationLevel == domain.EscalationLevel2 && elapsed > config.SecondEscalation:
		event.EscalationLevel = domain.EscalationCritical
		if s.persist(ctx, event) {
			stats.Escalated++
			s.emit(ctx, event, config)
		}
	}
}

// persist writes the escalation fields under the version guard. A stale
// version means a concurrent sweeper already applied the transition;
// both outcomes short-circuit this event without aborting the sweep.
func (s *Sweeper) persist(ctx context.Context, event *domain.EscalatableEvent) bool {
	expectedVersion := event.Version
	if err := s.repo.UpdateEscalation(ctx, event, expectedVersion); err != nil {
		if errors.Is(err, domain.ErrStaleVersion) {
			slog.Debug("event escalated by a concurrent sweep", "event_id", event.ID)
		} else {
			slog.Error("failed to persist escalation",
				"event_id", event.ID,
				"level", int(event.EscalationLevel),
				"error", err,
			)
		}
		return false
	}
	event.Version = expectedVersion + 1
	return true
}

// emit dispatches the escalation notification. The level is already
// persisted, so a dispatch failure is logged and not retried here.
func (s *Sweeper) emit(ctx context.Context, event *domain.EscalatableEvent, config domain.SLAConfig) {
	recordEscalation(event.Category, event.EscalationLevel)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.EscalationRaised(ctx, event, config); err != nil {
		slog.Error("failed to dispatch escalation notification",
			"event_id", event.ID,
			"subject_id", event.SubjectID,
			"level", int(event.EscalationLevel),
			"error", err,
		)
	}
}

// configCache resolves SLA thresholds with one repository read per
// tenant per sweep. Resolution order: exact (category, priority) match,
// then the tenant's wildcard row, then the built-in default.
type configCache struct {
	repo     Repository
	byTenant map[string][]*domain.SLAConfig
}

func newConfigCache(repo Repository) *configCache {
	return &configCache{repo: repo, byTenant: make(map[string][]*domain.SLAConfig)}
}

func (c *configCache) resolve(ctx context.Context, tenantID, category, priority string) (domain.SLAConfig, error) {
	configs, ok := c.byTenant[tenantID]
	if !ok {
		var err error
		configs, err = c.repo.ListConfigs(ctx, tenantID)
		if err != nil {
			return domain.SLAConfig{}, err
		}
		c.byTenant[tenantID] = configs
	}

	var fallback *domain.SLAConfig
	for _, config := range configs {
		if config.Category == category && config.Priority == priority {
			return *config, nil
		}
		if config.Category == domain.SLAWildcard && config.Priority == domain.SLAWildcard {
			fallback = config
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return domain.DefaultSLAConfig(), nil
}
