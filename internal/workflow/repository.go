// Package workflow implements the incident state machine: every status
// change goes through a validated transition that consults the role gate,
// writes an audit entry and enqueues a notification atomically.
package workflow

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Repository defines the interface for incident workflow storage.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, error)
	SoftDeleteIncident(ctx context.Context, id string, deletedAt time.Time) error

	GetActiveInvestigation(ctx context.Context, incidentID string) (*domain.Investigation, error)
	UpdateInvestigation(ctx context.Context, investigation *domain.Investigation) error

	// GetViolationByIncident returns the incident's violation, or
	// domain.ErrNotFound when none was ever flagged.
	GetViolationByIncident(ctx context.Context, incidentID string) (*domain.Violation, error)

	ListAuditEntries(ctx context.Context, incidentID string) ([]*domain.AuditEntry, error)

	// Transaction support. UpdateIncidentStatusTx performs the optimistic
	// compare-and-swap on the version column and returns
	// domain.ErrStaleVersion when the caller lost the race.
	BeginTx(ctx context.Context) (pgx.Tx, error)
	UpdateIncidentStatusTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, expectedVersion int) error
	CreateAuditEntryTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error
	CreateInvestigationTx(ctx context.Context, tx pgx.Tx, investigation *domain.Investigation) error
	MarkInvestigationSubmittedTx(ctx context.Context, tx pgx.Tx, incidentID string, submittedAt time.Time) error
	CloseInvestigationTx(ctx context.Context, tx pgx.Tx, incidentID string, closedAt time.Time) error
	CreateEscalatableEventTx(ctx context.Context, tx pgx.Tx, event *domain.EscalatableEvent) error
	AcknowledgeEscalatableTx(ctx context.Context, tx pgx.Tx, subjectID string, acknowledgedAt time.Time) error
}

// IncidentFilters holds filter options for listing incidents.
type IncidentFilters struct {
	TenantID string
	Status   *domain.IncidentStatus
	Category *domain.IncidentCategory
	Limit    int
	Offset   int
}
