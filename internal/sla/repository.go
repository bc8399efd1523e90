package sla

import (
	"context"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Repository defines SLA timer data access.
type Repository interface {
	// ListActiveEvents returns every event still subject to escalation,
	// oldest trigger first.
	ListActiveEvents(ctx context.Context) ([]*domain.EscalatableEvent, error)
	GetEvent(ctx context.Context, id string) (*domain.EscalatableEvent, error)
	CreateEvent(ctx context.Context, event *domain.EscalatableEvent) error
	// UpdateEscalation persists the event's escalation fields guarded by
	// the version counter. Returns domain.ErrStaleVersion when another
	// sweep got there first.
	UpdateEscalation(ctx context.Context, event *domain.EscalatableEvent, expectedVersion int) error
	AcknowledgeEvent(ctx context.Context, id string, expectedVersion int) error
	ResolveEvent(ctx context.Context, id string, expectedVersion int) error

	ListConfigs(ctx context.Context, tenantID string) ([]*domain.SLAConfig, error)
	UpsertConfig(ctx context.Context, config *domain.SLAConfig) error
	DeleteConfig(ctx context.Context, id string) error
}
