// Package postgres provides the PostgreSQL implementation of the workflow
// repository.
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
	"github.com/safetrack-io/safetrack/internal/workflow"
)

// Repository implements workflow.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const incidentColumns = `
	id, tenant_id, title, description, category, severity, potential_severity,
	status, closure_reason, reporter_id, investigator_id, approver_id,
	department_id, rejection_reason, escalation_reason, rework_required,
	evidence_photos, version, occurred_at, created_at, status_changed_at,
	closed_at, deleted_at
`

// CreateIncident creates a new incident in the database.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	photos, err := json.Marshal(incident.EvidencePhotos)
	if err != nil {
		return fmt.Errorf("marshal evidence photos: %w", err)
	}

	query := `
		INSERT INTO incidents (
			tenant_id, title, description, category, severity, potential_severity,
			status, reporter_id, department_id, evidence_photos,
			occurred_at, created_at, status_changed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, version
	`
	err = r.db.QueryRow(ctx, query,
		incident.TenantID,
		incident.Title,
		incident.Description,
		incident.Category,
		int(incident.Severity),
		severityPtr(incident.PotentialSeverity),
		incident.Status,
		incident.ReporterID,
		incident.DepartmentID,
		photos,
		incident.OccurredAt,
		incident.CreatedAt,
		incident.StatusChangedAt,
	).Scan(&incident.ID, &incident.Version)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves a non-deleted incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 AND deleted_at IS NULL`
	return r.scanIncident(r.db.QueryRow(ctx, query, id))
}

// ListIncidents retrieves incidents with optional filters.
func (r *Repository) ListIncidents(ctx context.Context, filters workflow.IncidentFilters) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE deleted_at IS NULL`
	args := []any{}
	argn := 0

	if filters.TenantID != "" {
		argn++
		query += fmt.Sprintf(" AND tenant_id = $%d", argn)
		args = append(args, filters.TenantID)
	}
	if filters.Status != nil {
		argn++
		query += fmt.Sprintf(" AND status = $%d", argn)
		args = append(args, *filters.Status)
	}
	if filters.Category != nil {
		argn++
		query += fmt.Sprintf(" AND category = $%d", argn)
		args = append(args, *filters.Category)
	}

	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		argn++
		query += fmt.Sprintf(" LIMIT $%d", argn)
		args = append(args, filters.Limit)
	}
	if filters.Offset > 0 {
		argn++
		query += fmt.Sprintf(" OFFSET $%d", argn)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]*domain.Incident, 0)
	for rows.Next() {
		incident, err := r.scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

// SoftDeleteIncident marks an incident deleted without removing it.
func (r *Repository) SoftDeleteIncident(ctx context.Context, id string, deletedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE incidents SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, deletedAt,
	)
	if err != nil {
		return fmt.Errorf("soft delete incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// BeginTx starts a transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// UpdateIncidentStatusTx performs the optimistic compare-and-swap status
// write. The WHERE clause on version makes the first committer win; a
// stale writer sees zero affected rows.
func (r *Repository) UpdateIncidentStatusTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, expectedVersion int) error {
	query := `
		UPDATE incidents SET
			status = $3,
			closure_reason = $4,
			investigator_id = $5,
			approver_id = $6,
			rejection_reason = $7,
			escalation_reason = $8,
			rework_required = $9,
			evidence_photos = $10,
			status_changed_at = $11,
			closed_at = $12,
			version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
	`
	photos, err := json.Marshal(incident.EvidencePhotos)
	if err != nil {
		return fmt.Errorf("marshal evidence photos: %w", err)
	}

	tag, err := tx.Exec(ctx, query,
		incident.ID,
		expectedVersion,
		incident.Status,
		incident.ClosureReason,
		incident.InvestigatorID,
		incident.ApproverID,
		incident.RejectionReason,
		incident.EscalationReason,
		incident.ReworkRequired,
		photos,
		incident.StatusChangedAt,
		incident.ClosedAt,
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
		entry.TenantID,
		entry.IncidentID,
		entry.Tag,
		entry.FromStatus,
		entry.ToStatus,
		entry.ActorID,
		entry.ActorName,
		entry.OriginalApprover,
		entry.Reason,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns the audit trail of an incident, oldest first.
func (r *Repository) ListAuditEntries(ctx context.Context, incidentID string) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, tenant_id, incident_id, tag, from_status, to_status,
			actor_id, actor_name, original_approver, reason, created_at
		FROM audit_log
		WHERE incident_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.IncidentID, &e.Tag, &e.FromStatus, &e.ToStatus,
			&e.ActorID, &e.ActorName, &e.OriginalApprover, &e.Reason, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

const investigationColumns = `
	id, incident_id, investigator_id, violation_identified, violation_type,
	contractor_id, contractor_contribution, evidence_summary, root_cause,
	immediate_cause, actions_completed, actions_verified, hsse_validated,
	submitted_at, created_at, closed_at
`

// CreateInvestigationTx creates the investigation record for an incident
// entering the investigation phase.
func (r *Repository) CreateInvestigationTx(ctx context.Context, tx pgx.Tx, investigation *domain.Investigation) error {
	query := `
		INSERT INTO investigations (incident_id, investigator_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		investigation.IncidentID,
		investigation.InvestigatorID,
		investigation.CreatedAt,
	).Scan(&investigation.ID)
	if err != nil {
		return fmt.Errorf("create investigation: %w", err)
	}
	return nil
}

// GetActiveInvestigation returns the open investigation of an incident.
func (r *Repository) GetActiveInvestigation(ctx context.Context, incidentID string) (*domain.Investigation, error) {
	query := `SELECT ` + investigationColumns + `
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

// UpdateInvestigation persists investigation findings.
func (r *Repository) UpdateInvestigation(ctx context.Context, inv *domain.Investigation) error {
	query := `
		UPDATE investigations SET
			violation_identified = $2,
			violation_type = $3,
			contractor_id = $4,
			contractor_contribution = $5,
			evidence_summary = $6,
			root_cause = $7,
			immediate_cause = $8,
			actions_completed = $9,
			actions_verified = $10,
			hsse_validated = $11,
			submitted_at = $12
		WHERE id = $1 AND closed_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query,
		inv.ID,
		inv.ViolationIdentified,
		inv.ViolationType,
		inv.ContractorID,
		inv.ContractorContribution,
		inv.EvidenceSummary,
		inv.RootCause,
		inv.ImmediateCause,
		inv.ActionsCompleted,
		inv.ActionsVerified,
		inv.HSSEValidated,
		inv.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("update investigation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkInvestigationSubmittedTx stamps the active investigation as
// submitted within the transition transaction.
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

// CloseInvestigationTx closes, never deletes, the active investigation
// when the incident reaches a terminal state. Closing an incident with no
// investigation is a no-op.
func (r *Repository) CloseInvestigationTx(ctx context.Context, tx pgx.Tx, incidentID string, closedAt time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE investigations SET closed_at = $2 WHERE incident_id = $1 AND closed_at IS NULL`,
		incidentID, closedAt,
	)
	if err != nil {
		return fmt.Errorf("close investigation: %w", err)
	}
	return nil
}

// GetViolationByIncident returns the incident's violation record.
func (r *Repository) GetViolationByIncident(ctx context.Context, incidentID string) (*domain.Violation, error) {
	query := `
		SELECT id, incident_id, investigation_id, tenant_id, contractor_id,
			type, type_key, penalty_type, fine_amount, occurrence, stage,
			evidence_summary, decision_notes, acknowledged_by, acknowledged_at,
			version, submitted_at, finalized_at, created_at
		FROM violations
		WHERE incident_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var v domain.Violation
	err := r.db.QueryRow(ctx, query, incidentID).Scan(
		&v.ID, &v.IncidentID, &v.InvestigationID, &v.TenantID, &v.ContractorID,
		&v.Type, &v.TypeKey, &v.PenaltyType, &v.FineAmount, &v.Occurrence, &v.Stage,
		&v.EvidenceSummary, &v.DecisionNotes, &v.AcknowledgedBy, &v.AcknowledgedAt,
		&v.Version, &v.SubmittedAt, &v.FinalizedAt, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get violation: %w", err)
	}
	return &v, nil
}

// CreateEscalatableEventTx registers an entity with the SLA timer.
func (r *Repository) CreateEscalatableEventTx(ctx context.Context, tx pgx.Tx, event *domain.EscalatableEvent) error {
	query := `
		INSERT INTO escalatable_events (tenant_id, category, priority, subject_id, triggered_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version
	`
	err := tx.QueryRow(ctx, query,
		event.TenantID,
		event.Category,
		event.Priority,
		event.SubjectID,
		event.TriggeredAt,
	).Scan(&event.ID, &event.Version)
	if err != nil {
		return fmt.Errorf("create escalatable event: %w", err)
	}
	return nil
}

// AcknowledgeEscalatableTx stops the SLA timer for a subject. Past
// escalation levels are preserved for reporting.
func (r *Repository) AcknowledgeEscalatableTx(ctx context.Context, tx pgx.Tx, subjectID string, at time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE escalatable_events SET acknowledged_at = $2, version = version + 1
		 WHERE subject_id = $1 AND acknowledged_at IS NULL AND resolved_at IS NULL`,
		subjectID, at,
	)
	if err != nil {
		return fmt.Errorf("acknowledge escalatable event: %w", err)
	}
	return nil
}

// scanIncident scans one incident row.
func (r *Repository) scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		incident  domain.Incident
		severity  int
		potential *int
		photos    []byte
	)
	err := row.Scan(
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
		return nil, fmt.Errorf("scan incident: %w", err)
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

func severityPtr(s *domain.Severity) *int {
	if s == nil {
		return nil
	}
	v := int(*s)
	return &v
}
