// Package violations implements the contractor violation sub-workflow
// nested inside the incident lifecycle: submission, department manager
// approval, fine confirmation or contractor acknowledgment, and the HSSE
// final ruling on contested violations.
package violations

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Repository defines the interface for violation storage. Incident status
// writes live here too: a violation stage change and the mirrored incident
// transition commit in one transaction.
type Repository interface {
	GetViolation(ctx context.Context, id string) (*domain.Violation, error)
	// GetViolationByIncident returns the incident's violation, or
	// domain.ErrNotFound when none exists.
	GetViolationByIncident(ctx context.Context, incidentID string) (*domain.Violation, error)
	ListViolationsByContractor(ctx context.Context, tenantID, contractorID string) ([]*domain.Violation, error)
	// CountFinalizedViolations returns the number of finalized violations
	// for the contractor and normalized type key. Feeds the occurrence
	// ordinal.
	CountFinalizedViolations(ctx context.Context, tenantID, contractorID, typeKey string) (int, error)

	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	GetActiveInvestigation(ctx context.Context, incidentID string) (*domain.Investigation, error)

	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateViolationTx(ctx context.Context, tx pgx.Tx, violation *domain.Violation) error
	// MarkInvestigationSubmittedTx stamps the active investigation as
	// submitted. Filing a violation is the investigation's closing act on
	// that path, so the stamp commits with the violation.
	MarkInvestigationSubmittedTx(ctx context.Context, tx pgx.Tx, incidentID string, submittedAt time.Time) error
	// UpdateViolationStageTx performs the optimistic compare-and-swap on
	// the violation's version column.
	UpdateViolationStageTx(ctx context.Context, tx pgx.Tx, violation *domain.Violation, expectedVersion int) error
	UpdateIncidentStatusTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, expectedVersion int) error
	CreateAuditEntryTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error
}
