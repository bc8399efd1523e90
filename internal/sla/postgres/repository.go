// Package postgres provides the PostgreSQL implementation of the SLA
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Repository implements sla.Repository backed by PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// New creates a new SLA repository.
func New(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const eventColumns = `id, tenant_id, category, priority, subject_id, triggered_at,
	acknowledged_at, resolved_at, escalation_level, sla_breach_notified_at, version`

// ListActiveEvents returns unacknowledged, unresolved events oldest
// trigger first, so the longest-waiting subject is always examined
// before a newer one.
func (r *Repository) ListActiveEvents(ctx context.Context) ([]*domain.EscalatableEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM escalatable_events
		WHERE acknowledged_at IS NULL AND resolved_at IS NULL
		ORDER BY triggered_at ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active events: %w", err)
	}
	defer rows.Close()

	var events []*domain.EscalatableEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetEvent retrieves an event by ID.
func (r *Repository) GetEvent(ctx context.Context, id string) (*domain.EscalatableEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM escalatable_events WHERE id = $1`

	event, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// CreateEvent registers a new escalatable event.
func (r *Repository) CreateEvent(ctx context.Context, event *domain.EscalatableEvent) error {
	query := `
		INSERT INTO escalatable_events (tenant_id, category, priority, subject_id, triggered_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version`

	err := r.db.QueryRow(ctx, query,
		event.TenantID,
		event.Category,
		event.Priority,
		event.SubjectID,
		event.TriggeredAt,
	).Scan(&event.ID, &event.Version)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// UpdateEscalation persists the escalation fields under the version
// guard. Zero rows affected means a concurrent sweep already bumped the
// version.
func (r *Repository) UpdateEscalation(ctx context.Context, event *domain.EscalatableEvent, expectedVersion int) error {
	query := `
		UPDATE escalatable_events
		SET escalation_level = $3, sla_breach_notified_at = $4, version = version + 1
		WHERE id = $1 AND version = $2`

	tag, err := r.db.Exec(ctx, query, event.ID, expectedVersion, int(event.EscalationLevel), event.BreachNotifiedAt)
	if err != nil {
		return fmt.Errorf("failed to update escalation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleVersion
	}
	return nil
}

// AcknowledgeEvent stamps acknowledged_at under the version guard.
func (r *Repository) AcknowledgeEvent(ctx context.Context, id string, expectedVersion int) error {
	return r.stamp(ctx, "acknowledged_at", id, expectedVersion)
}

// ResolveEvent stamps resolved_at under the version guard.
func (r *Repository) ResolveEvent(ctx context.Context, id string, expectedVersion int) error {
	return r.stamp(ctx, "resolved_at", id, expectedVersion)
}

func (r *Repository) stamp(ctx context.Context, column, id string, expectedVersion int) error {
	query := fmt.Sprintf(`
		UPDATE escalatable_events
		SET %s = $3, version = version + 1
		WHERE id = $1 AND version = $2 AND %s IS NULL`, column, column)

	tag, err := r.db.Exec(ctx, query, id, expectedVersion, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleVersion
	}
	return nil
}

// ListConfigs returns a tenant's SLA configuration rows.
func (r *Repository) ListConfigs(ctx context.Context, tenantID string) ([]*domain.SLAConfig, error) {
	query := `
		SELECT id, tenant_id, category, priority,
			max_response_seconds, first_escalation_seconds, second_escalation_seconds,
			notify_channels, recipients
		FROM sla_configs
		WHERE tenant_id = $1
		ORDER BY category, priority`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sla configs: %w", err)
	}
	defer rows.Close()

	configs := make([]*domain.SLAConfig, 0)
	for rows.Next() {
		var c domain.SLAConfig
		var maxResponse, first, second int64
		err := rows.Scan(
			&c.ID, &c.TenantID, &c.Category, &c.Priority,
			&maxResponse, &first, &second,
			&c.NotifyChannels, &c.Recipients,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sla config: %w", err)
		}
		c.MaxResponse = time.Duration(maxResponse) * time.Second
		c.FirstEscalation = time.Duration(first) * time.Second
		c.SecondEscalation = time.Duration(second) * time.Second
		configs = append(configs, &c)
	}
	return configs, rows.Err()
}

// UpsertConfig creates or replaces the threshold row for the
// (tenant, category, priority) key.
func (r *Repository) UpsertConfig(ctx context.Context, config *domain.SLAConfig) error {
	query := `
		INSERT INTO sla_configs (tenant_id, category, priority,
			max_response_seconds, first_escalation_seconds, second_escalation_seconds,
			notify_channels, recipients)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, category, priority) DO UPDATE SET
			max_response_seconds = EXCLUDED.max_response_seconds,
			first_escalation_seconds = EXCLUDED.first_escalation_seconds,
			second_escalation_seconds = EXCLUDED.second_escalation_seconds,
			notify_channels = EXCLUDED.notify_channels,
			recipients = EXCLUDED.recipients
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		config.TenantID,
		config.Category,
		config.Priority,
		int64(config.MaxResponse/time.Second),
		int64(config.FirstEscalation/time.Second),
		int64(config.SecondEscalation/time.Second),
		config.NotifyChannels,
		config.Recipients,
	).Scan(&config.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert sla config: %w", err)
	}
	return nil
}

// DeleteConfig removes a threshold row.
func (r *Repository) DeleteConfig(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sla_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sla config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanEvent(row pgx.Row) (*domain.EscalatableEvent, error) {
	var e domain.EscalatableEvent
	var level int
	err := row.Scan(
		&e.ID, &e.TenantID, &e.Category, &e.Priority, &e.SubjectID,
		&e.TriggeredAt, &e.AcknowledgedAt, &e.ResolvedAt,
		&level, &e.BreachNotifiedAt, &e.Version,
	)
	if err != nil {
		return nil, err
	}
	e.EscalationLevel = domain.EscalationLevel(level)
	return &e, nil
}
