package sla

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	events  map[string]*domain.EscalatableEvent
	configs map[string][]*domain.SLAConfig

	updateErr   map[string]error
	listCalls   int
	configCalls int
	nextID      int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		events:    make(map[string]*domain.EscalatableEvent),
		configs:   make(map[string][]*domain.SLAConfig),
		updateErr: make(map[string]error),
	}
}

func (m *mockRepository) ListActiveEvents(_ context.Context) ([]*domain.EscalatableEvent, error) {
	m.listCalls++
	var out []*domain.EscalatableEvent
	for _, e := range m.events {
		if e.Active() {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.Before(out[j].TriggeredAt) })
	return out, nil
}

func (m *mockRepository) GetEvent(_ context.Context, id string) (*domain.EscalatableEvent, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockRepository) CreateEvent(_ context.Context, event *domain.EscalatableEvent) error {
	m.nextID++
	event.ID = fmt.Sprintf("event-%d", m.nextID)
	cp := *event
	m.events[event.ID] = &cp
	return nil
}

func (m *mockRepository) UpdateEscalation(_ context.Context, event *domain.EscalatableEvent, expectedVersion int) error {
	if err := m.updateErr[event.ID]; err != nil {
		return err
	}
	stored, ok := m.events[event.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrStaleVersion
	}
	cp := *event
	cp.Version = expectedVersion + 1
	m.events[event.ID] = &cp
	return nil
}

func (m *mockRepository) AcknowledgeEvent(_ context.Context, id string, expectedVersion int) error {
	stored, ok := m.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrStaleVersion
	}
	now := time.Now()
	stored.AcknowledgedAt = &now
	stored.Version++
	return nil
}

func (m *mockRepository) ResolveEvent(_ context.Context, id string, expectedVersion int) error {
	stored, ok := m.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrStaleVersion
	}
	now := time.Now()
	stored.ResolvedAt = &now
	stored.Version++
	return nil
}

func (m *mockRepository) ListConfigs(_ context.Context, tenantID string) ([]*domain.SLAConfig, error) {
	m.configCalls++
	return m.configs[tenantID], nil
}

func (m *mockRepository) UpsertConfig(_ context.Context, config *domain.SLAConfig) error {
	m.nextID++
	config.ID = fmt.Sprintf("config-%d", m.nextID)
	m.configs[config.TenantID] = append(m.configs[config.TenantID], config)
	return nil
}

func (m *mockRepository) DeleteConfig(_ context.Context, id string) error {
	for tenant, configs := range m.configs {
		for i, c := range configs {
			if c.ID == id {
				m.configs[tenant] = append(configs[:i], configs[i+1:]...)
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

// mockNotifier implements Notifier for testing.
type mockNotifier struct {
	calls []escalationCall
	err   error
}

type escalationCall struct {
	eventID string
	level   domain.EscalationLevel
}

func (m *mockNotifier) EscalationRaised(_ context.Context, event *domain.EscalatableEvent, _ domain.SLAConfig) error {
	m.calls = append(m.calls, escalationCall{eventID: event.ID, level: event.EscalationLevel})
	return m.err
}

func seedEvent(repo *mockRepository, tenantID string, age time.Duration) *domain.EscalatableEvent {
	repo.nextID++
	e := &domain.EscalatableEvent{
		ID:          fmt.Sprintf("event-%d", repo.nextID),
		TenantID:    tenantID,
		Category:    domain.EscalatableIncidentApproval,
		Priority:    "level_3",
		SubjectID:   fmt.Sprintf("inc-%d", repo.nextID),
		TriggeredAt: time.Now().Add(-age),
	}
	repo.events[e.ID] = e
	return e
}

func TestRun_BreachThenIdempotentRerun(t *testing.T) {
	repo := newMockRepository()
	repo.configs["tenant-1"] = []*domain.SLAConfig{{
		TenantID:         "tenant-1",
		Category:         string(domain.EscalatableIncidentApproval),
		Priority:         "level_3",
		MaxResponse:      120 * time.Second,
		FirstEscalation:  300 * time.Second,
		SecondEscalation: 600 * time.Second,
	}}
	notifier := &mockNotifier{}
	sweeper := NewSweeper(repo, notifier)

	event := seedEvent(repo, "tenant-1", 150*time.Second)

	stats, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Processed: 1, Breached: 1}, stats)

	stored := repo.events[event.ID]
	assert.Equal(t, domain.EscalationBreach, stored.EscalationLevel)
	require.NotNil(t, stored.BreachNotifiedAt)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, domain.EscalationBreach, notifier.calls[0].level)

	// A second run only seconds later crosses no new threshold: no level
	// change and no duplicate breach notification.
	stats, err = sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Processed: 1}, stats)
	assert.Equal(t, domain.EscalationBreach, repo.events[event.ID].EscalationLevel)
	assert.Len(t, notifier.calls, 1)
}

func TestRun_LadderIsMonotonicOneRungPerSweep(t *testing.T) {
	repo := newMockRepository()
	notifier := &mockNotifier{}
	sweeper := NewSweeper(repo, notifier)

	// Defaults apply: 2 min / 5 min / 10 min, all long exceeded.
	event := seedEvent(repo, "tenant-1", 15*time.Minute)

	levels := []domain.EscalationLevel{
		domain.EscalationBreach,
		domain.EscalationLevel2,
		domain.EscalationCritical,
	}
	for _, want := range levels {
		stats, err := sweeper.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Processed)
		assert.Equal(t, want, repo.events[event.ID].EscalationLevel)
	}

	// Critical is the top of the ladder.
	stats, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Processed: 1}, stats)
	assert.Equal(t, domain.EscalationCritical, repo.events[event.ID].EscalationLevel)
	assert.Len(t, notifier.calls, 3)
}

func TestRun_ConfigResolutionFallback(t *testing.T) {
	repo := newMockRepository()
	repo.configs["tenant-1"] = []*domain.SLAConfig{
		{
			TenantID: "tenant-1", Category: domain.SLAWildcard, Priority: domain.SLAWildcard,
			MaxResponse: time.Minute, FirstEscalation: 2 * time.Minute, SecondEscalation: 3 * time.Minute,
		},
		{
			TenantID: "tenant-1", Category: string(domain.EscalatableIncidentApproval), Priority: "level_3",
			MaxResponse: time.Hour, FirstEscalation: 2 * time.Hour, SecondEscalation: 3 * time.Hour,
		},
	}
	notifier := &mockNotifier{}
	sweeper := NewSweeper(repo, notifier)

	// Exact match wins: the one-hour threshold is not yet crossed even
	// though the wildcard's one-minute threshold is.
	exact := seedEvent(repo, "tenant-1", 10*time.Minute)

	// No exact row for emergency alerts: the tenant wildcard applies.
	repo.nextID++
	wildcard := &domain.EscalatableEvent{
		ID:          fmt.Sprintf("event-%d", repo.nextID),
		TenantID:    "tenant-1",
		Category:    domain.EscalatableEmergencyAlert,
		Priority:    "high",
		SubjectID:   "alert-1",
		TriggeredAt: time.Now().Add(-10 * time.Minute),
	}
	repo.events[wildcard.ID] = wildcard

	// Unconfigured tenant: the built-in default (2 min) applies.
	fallback := seedEvent(repo, "tenant-2", 10*time.Minute)

	stats, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Processed: 3, Breached: 2}, stats)

	assert.Equal(t, domain.EscalationNone, repo.events[exact.ID].EscalationLevel)
	assert.Equal(t, domain.EscalationBreach, repo.events[wildcard.ID].EscalationLevel)
	assert.Equal(t, domain.EscalationBreach, repo.events[fallback.ID].EscalationLevel)
}

func TestRun_ConfigsFetchedOncePerTenant(t *testing.T) {
	repo := newMockRepository()
	sweeper := NewSweeper(repo, &mockNotifier{})

	seedEvent(repo, "tenant-1", time.Minute)
	seedEvent(repo, "tenant-1", time.Minute)
	seedEvent(repo, "tenant-2", time.Minute)

	_, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.configCalls)
}

func TestRun_AcknowledgedEventIsLeftAlone(t *testing.T) {
	repo := newMockRepository()
	notifier := &mockNotifier{}
	sweeper := NewSweeper(repo, notifier)

	event := seedEvent(repo, "tenant-1", 30*time.Minute)
	event.EscalationLevel = domain.EscalationLevel2
	now := time.Now()
	event.AcknowledgedAt = &now

	stats, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{}, stats)
	assert.Equal(t, domain.EscalationLevel2, repo.events[event.ID].EscalationLevel)
	assert.Empty(t, notifier.calls)
}

func TestRun_NotifyFailureDoesNotBlockPersistedLevel(t *testing.T) {
	repo := newMockRepository()
	notifier := &mockNotifier{err: fmt.Errorf("webhook unreachable")}
	sweeper := NewSweeper(repo, notifier)

	event := seedEvent(repo, "tenant-1", 5*time.Minute)

	stats, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Processed: 1, Breached: 1}, stats)

	stored := repo.events[event.ID]
	assert.Equal(t, domain.EscalationBreach, stored.EscalationLevel)
	assert.NotNil(t, stored.BreachNotifiedAt)

	// The breach stamp persisted, so the next sweep does not re-attempt
	// the level-1 transition even though its dispatch failed.
	stats, err = sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Processed: 1}, stats)
	assert.Len(t, notifier.calls, 1)
}

func TestRun_StoreErrorSkipsEventAndContinues(t *testing.T) {
	repo := newMockRepository()
	notifier := &mockNotifier{}
	sweeper := NewSweeper(repo, notifier)

	broken := seedEvent(repo, "tenant-1", 10*time.Minute)
	healthy := seedEvent(repo, "tenant-1", 5*time.Minute)
	repo.updateErr[broken.ID] = fmt.Errorf("connection reset")

	stats, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Processed: 2, Breached: 1}, stats)

	assert.Equal(t, domain.EscalationNone, repo.events[broken.ID].EscalationLevel)
	assert.Equal(t, domain.EscalationBreach, repo.events[healthy.ID].EscalationLevel)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, healthy.ID, notifier.calls[0].eventID)
}

func TestRun_StaleVersionSuppressesNotification(t *testing.T) {
	repo := newMockRepository()
	notifier := &mockNotifier{}
	sweeper := NewSweeper(repo, notifier)

	event := seedEvent(repo, "tenant-1", 5*time.Minute)
	repo.updateErr[event.ID] = domain.ErrStaleVersion

	stats, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Processed: 1}, stats)
	assert.Empty(t, notifier.calls)
}

func TestRun_OverlappingRunRejected(t *testing.T) {
	repo := newMockRepository()
	sweeper := NewSweeper(repo, &mockNotifier{})

	sweeper.mu.Lock()
	defer sweeper.mu.Unlock()

	_, err := sweeper.Run(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)
}

func TestRun_OldestEventFirst(t *testing.T) {
	repo := newMockRepository()
	notifier := &mockNotifier{}
	sweeper := NewSweeper(repo, notifier)

	newer := seedEvent(repo, "tenant-1", 5*time.Minute)
	oldest := seedEvent(repo, "tenant-1", 30*time.Minute)

	_, err := sweeper.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, notifier.calls, 2)
	assert.Equal(t, oldest.ID, notifier.calls[0].eventID)
	assert.Equal(t, newer.ID, notifier.calls[1].eventID)
}
