// Package postgres provides the PostgreSQL implementation of the disputes
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Repository implements disputes.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const disputeColumns = `
	id, incident_id, tenant_id, category, reason, evidence_refs,
	origin_status, opened_by, status, mediator_id, decision, decision_notes,
	opened_at, resolved_at
`

// GetDispute retrieves a dispute by ID.
func (r *Repository) GetDispute(ctx context.Context, id string) (*domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	return r.scanDispute(r.db.QueryRow(ctx, query, id))
}

// GetOpenDispute returns the incident's open dispute. The partial unique
// index on (incident_id) WHERE status = 'open' guarantees at most one row.
func (r *Repository) GetOpenDispute(ctx context.Context, incidentID string) (*domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE incident_id = $1 AND status = $2`
	return r.scanDispute(r.db.QueryRow(ctx, query, incidentID, domain.DisputeOpen))
}

// ListDisputesByIncident returns the incident's disputes, newest first.
func (r *Repository) ListDisputesByIncident(ctx context.Context, incidentID string) ([]*domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE incident_id = $1 ORDER BY opened_at DESC`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	disputes := make([]*domain.Dispute, 0)
	for rows.Next() {
		d, err := r.scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}

// GetIncident retrieves a non-deleted incident by ID. Only the fields the
// dispute module reads are selected.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `
		SELECT id, tenant_id, title, category, severity, status, reporter_id,
			investigator_id, approver_id, department_id, rework_required,
			version, status_changed_at
		FROM incidents WHERE id = $1 AND deleted_at IS NULL
	`
	var (
		incident domain.Incident
		severity int
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID, &incident.TenantID, &incident.Title, &incident.Category,
		&severity, &incident.Status, &incident.ReporterID,
		&incident.InvestigatorID, &incident.ApproverID, &incident.DepartmentID,
		&incident.ReworkRequired, &incident.Version, &incident.StatusChangedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	incident.Severity = domain.Severity(severity)
	return &incident, nil
}

// HasActiveInvestigation reports whether the incident has an open
// investigation record.
func (r *Repository) HasActiveInvestigation(ctx context.Context, incidentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM investigations WHERE incident_id = $1 AND closed_at IS NULL)`,
		incidentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check investigation: %w", err)
	}
	return exists, nil
}

// BeginTx starts a transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// CreateInvestigationTx creates an investigation record within the
// transaction. Used when a resolution routes an incident into the
// investigation phase before any investigation existed.
func (r *Repository) CreateInvestigationTx(ctx context.Context, tx pgx.Tx, investigation *domain.Investigation) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO investigations (incident_id, investigator_id, created_at)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		investigation.IncidentID, investigation.InvestigatorID, investigation.CreatedAt,
	).Scan(&investigation.ID)
	if err != nil {
		return fmt.Errorf("create investigation: %w", err)
	}
	return nil
}

// CreateDisputeTx creates a dispute within the transaction.
func (r *Repository) CreateDisputeTx(ctx context.Context, tx pgx.Tx, d *domain.Dispute) error {
	query := `
		INSERT INTO disputes (
			incident_id, tenant_id, category, reason, evidence_refs,
			origin_status, opened_by, status, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		d.IncidentID, d.TenantID, d.Category, d.Reason, d.EvidenceRefs,
		d.OriginStatus, d.OpenedBy, d.Status, d.OpenedAt,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}

// ResolveDisputeTx marks the dispute resolved within the transaction.
func (r *Repository) ResolveDisputeTx(ctx context.Context, tx pgx.Tx, d *domain.Dispute) error {
	tag, err := tx.Exec(ctx,
		`UPDATE disputes SET status = $2, mediator_id = $3, decision = $4, decision_notes = $5, resolved_at = $6
		 WHERE id = $1 AND status = $7`,
		d.ID, d.Status, d.MediatorID, d.Decision, d.DecisionNotes, d.ResolvedAt, domain.DisputeOpen,
	)
	if err != nil {
		return fmt.Errorf("resolve dispute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateIncidentStatusTx performs the optimistic compare-and-swap status
// write on the mirrored incident.
func (r *Repository) UpdateIncidentStatusTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, expectedVersion int) error {
	tag, err := tx.Exec(ctx,
		`UPDATE incidents SET status = $3, rework_required = $4, status_changed_at = $5, version = version + 1
		 WHERE id = $1 AND version = $2 AND deleted_at IS NULL`,
		incident.ID, expectedVersion, incident.Status, incident.ReworkRequired, incident.StatusChangedAt,
	)
	if err != nil {
		return fmt.Errorf("update incident status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleVersion
	}
	return nil
}

// CreateAuditEntryTx appends an audit entry within the transaction.
func (r *Repository) CreateAuditEntryTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_log (
			tenant_id, incident_id, tag, from_status, to_status,
			actor_id, actor_name, original_approver, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := tx.QueryRow(ctx, query,
		entry.TenantID, entry.IncidentID, entry.Tag, entry.FromStatus, entry.ToStatus,
		entry.ActorID, entry.ActorName, entry.OriginalApprover, entry.Reason,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

func (r *Repository) scanDispute(row pgx.Row) (*domain.Dispute, error) {
	var d domain.Dispute
	err := row.Scan(
		&d.ID, &d.IncidentID, &d.TenantID, &d.Category, &d.Reason, &d.EvidenceRefs,
		&d.OriginStatus, &d.OpenedBy, &d.Status, &d.MediatorID, &d.Decision, &d.DecisionNotes,
		&d.OpenedAt, &d.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan dispute: %w", err)
	}
	return &d, nil
}
