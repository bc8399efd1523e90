// Package postgres provides the PostgreSQL implementation of the
// violations repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Repository implements violations.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const violationColumns = `
	id, incident_id, investigation_id, tenant_id, contractor_id,
	type, type_key, penalty_type, fine_amount, occurrence, stage,
	evidence_summary, decision_notes, acknowledged_by, acknowledged_at,
	version, submitted_at, finalized_at, created_at
`

// GetViolation retrieves a violation by ID.
func (r *Repository) GetViolation(ctx context.Context, id string) (*domain.Violation, error) {
	query := `SELECT ` + violationColumns + ` FROM violations WHERE id = $1`
	return r.scanViolation(r.db.QueryRow(ctx, query, id))
}

// GetViolationByIncident returns the incident's violation record.
func (r *Repository) GetViolationByIncident(ctx context.Context, incidentID string) (*domain.Violation, error) {
	query := `SELECT ` + violationColumns + `
		FROM violations
		WHERE incident_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanViolation(r.db.QueryRow(ctx, query, incidentID))
}

// ListViolationsByContractor returns the contractor's violations in the
// tenant, newest first.
func (r *Repository) ListViolationsByContractor(ctx context.Context, tenantID, contractorID string) ([]*domain.Violation, error) {
	query := `SELECT ` + violationColumns + `
		FROM violations
		WHERE tenant_id = $1 AND contractor_id = $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, tenantID, contractorID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	violations := make([]*domain.Violation, 0)
	for rows.Next() {
		v, err := r.scanViolation(rows)
		if err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// CountFinalizedViolations counts prior finalized violations for the
// occurrence ordinal.
func (r *Repository) CountFinalizedViolations(ctx context.Context, tenantID, contractorID, typeKey string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM violations
		 WHERE tenant_id = $1 AND contractor_id = $2 AND type_key = $3 AND stage = $4`,
		tenantID, contractorID, typeKey, domain.ViolationStageFinalized,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count finalized violations: %w", err)
	}
	return count, nil
}

// GetIncident retrieves a non-deleted incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `
		SELECT id, tenant_id, title, description, category, severity, potential_severity,
			status, closure_reason, reporter_id, investigator_id, approver_id,
			department_id, rejection_reason, escalation_reason, rework_required,
			evidence_photos, version, occurred_at, created_at, status_changed_at,
			closed_at, deleted_at
		FROM incidents WHERE id = $1 AND deleted_at IS NULL
	`
	var (
		incident  domain.Incident
		severity  int
		potential *int
		photos    []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID, &incident.TenantID, &incident.Title, &incident.Description,
		&incident.Category, &severity, &potential,
		&incident.Status, &incident.ClosureReason, &incident.ReporterID,
		&incident.InvestigatorID, &incident.ApproverID, &incident.DepartmentID,
		&incident.RejectionReason, &incident.EscalationReason, &incident.ReworkRequired,
		&photos, &incident.Version, &incident.OccurredAt, &incident.CreatedAt,
		&incident.StatusChangedAt, &incident.ClosedAt, &incident.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	incident.Severity = domain.Severity(severity)
	if potential != nil {
		p := domain.Severity(*potential)
		incident.PotentialSeverity = &p
	}
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &incident.EvidencePhotos); err != nil {
			return nil, fmt.Errorf("unmarshal evidence photos: %w", err)
		}
	}
	return &incident, nil
}

// GetActiveInvestigation returns the open investigation of an incident.
func (r *Repository) GetActiveInvestigation(ctx context.Context, incidentID string) (*domain.Investigation, error) {
	query := `
		SELECT id, incident_id, investigator_id, violation_identified, violation_type,
			contractor_id, contractor_contribution, evidence_summary, root_cause,
			immediate_cause, actions_completed, actions_verified, hsse_validated,
			submitted_at, created_at, closed_at
		FROM investigations
		WHERE incident_id = $1 AND closed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	var inv domain.Investigation
	err := r.db.QueryRow(ctx, query, incidentID).Scan(
		&inv.ID, &inv.IncidentID, &inv.InvestigatorID, &inv.ViolationIdentified,
		&inv.ViolationType, &inv.ContractorID, &inv.ContractorContribution,
		&inv.EvidenceSummary, &inv.RootCause, &inv.ImmediateCause,
		&inv.ActionsCompleted, &inv.ActionsVerified, &inv.HSSEValidated,
		&inv.SubmittedAt, &inv.CreatedAt, &inv.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get investigation: %w", err)
	}
	return &inv, nil
}

// BeginTx starts a transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// CreateViolationTx creates a violation within the transaction.
func (r *Repository) CreateViolationTx(ctx context.Context, tx pgx.Tx, v *domain.Violation) error {
	query := `
		INSERT INTO violations (
			incident_id, investigation_id, tenant_id, contractor_id,
			type, type_key, penalty_type, fine_amount, occurrence, stage,
			evidence_summary, submitted_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, version
	`
	err := tx.QueryRow(ctx, query,
		v.IncidentID, v.InvestigationID, v.TenantID, v.ContractorID,
		v.Type, v.TypeKey, v.PenaltyType, v.FineAmount, v.Occurrence, v.Stage,
		v.EvidenceSummary, v.SubmittedAt, v.CreatedAt,
	).Scan(&v.ID, &v.Version)
	if err != nil {
		return fmt.Errorf("create violation: %w", err)
	}
	return nil
}

// MarkInvestigationSubmittedTx stamps the incident's active investigation
// as submitted within the transaction.
func (r *Repository) MarkInvestigationSubmittedTx(ctx context.Context, tx pgx.Tx, incidentID string, submittedAt time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE investigations SET submitted_at = $2 WHERE incident_id = $1 AND closed_at IS NULL`,
		incidentID, submittedAt,
	)
	if err != nil {
		return fmt.Errorf("mark investigation submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateViolationStageTx performs the optimistic compare-and-swap stage
// write.
func (r *Repository) UpdateViolationStageTx(ctx context.Context, tx pgx.Tx, v *domain.Violation, expectedVersion int) error {
	query := `
		UPDATE violations SET
			stage = $3,
			decision_notes = $4,
			acknowledged_by = $5,
			acknowledged_at = $6,
			finalized_at = $7,
			version = version + 1
		WHERE id = $1 AND version = $2
	`
	tag, err := tx.Exec(ctx, query,
		v.ID, expectedVersion,
		v.Stage, v.DecisionNotes, v.AcknowledgedBy, v.AcknowledgedAt, v.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("update violation stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleVersion
	}
	return nil
}

// UpdateIncidentStatusTx performs the optimistic compare-and-swap status
// write on the mirrored incident.
func (r *Repository) UpdateIncidentStatusTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, expectedVersion int) error {
	tag, err := tx.Exec(ctx,
		`UPDATE incidents SET status = $3, status_changed_at = $4, version = version + 1
		 WHERE id = $1 AND version = $2 AND deleted_at IS NULL`,
		incident.ID, expectedVersion, incident.Status, incident.StatusChangedAt,
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

func (r *Repository) scanViolation(row pgx.Row) (*domain.Violation, error) {
	var v domain.Violation
	err := row.Scan(
		&v.ID, &v.IncidentID, &v.InvestigationID, &v.TenantID, &v.ContractorID,
		&v.Type, &v.TypeKey, &v.PenaltyType, &v.FineAmount, &v.Occurrence, &v.Stage,
		&v.EvidenceSummary, &v.DecisionNotes, &v.AcknowledgedBy, &v.AcknowledgedAt,
		&v.Version, &v.SubmittedAt, &v.FinalizedAt, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan violation: %w", err)
	}
	return &v, nil
}
