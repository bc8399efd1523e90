// Package disputes implements the dispute/mediation module: a reporter or
// investigator disagreeing with a rejection opens a dispute, and a
// mediator resolves it with one of three outcomes that route the incident
// onward.
package disputes

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Repository defines the interface for dispute storage. The mirrored
// incident transition commits in the same transaction as the dispute
// write.
type Repository interface {
	GetDispute(ctx context.Context, id string) (*domain.Dispute, error)
	// GetOpenDispute returns the incident's open dispute, or
	// domain.ErrNotFound when none is open.
	GetOpenDispute(ctx context.Context, incidentID string) (*domain.Dispute, error)
	ListDisputesByIncident(ctx context.Context, incidentID string) ([]*domain.Dispute, error)

	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	HasActiveInvestigation(ctx context.Context, incidentID string) (bool, error)

	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateDisputeTx(ctx context.Context, tx pgx.Tx, dispute *domain.Dispute) error
	ResolveDisputeTx(ctx context.Context, tx pgx.Tx, dispute *domain.Dispute) error
	CreateInvestigationTx(ctx context.Context, tx pgx.Tx, investigation *domain.Investigation) error
	UpdateIncidentStatusTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, expectedVersion int) error
	CreateAuditEntryTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error
}
