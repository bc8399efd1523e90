// Package postgres provides PostgreSQL implementation of notifications repository.
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
	"github.com/safetrack-io/safetrack/internal/notifications"
)

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateChannel creates a new notification channel.
func (r *Repository) CreateChannel(ctx context.Context, channel *domain.NotificationChannel) error {
	query := `
		INSERT INTO notification_channels (tenant_id, name, type, target, is_enabled, kinds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		channel.TenantID,
		channel.Name,
		channel.Type,
		channel.Target,
		channel.IsEnabled,
		channel.Kinds,
	).Scan(&channel.ID, &channel.CreatedAt, &channel.UpdatedAt)
}

// GetChannelByID retrieves a notification channel by ID.
func (r *Repository) GetChannelByID(ctx context.Context, id string) (*domain.NotificationChannel, error) {
	query := `
		SELECT id, tenant_id, name, type, target, is_enabled, kinds, created_at, updated_at
		FROM notification_channels
		WHERE id = $1
	`
	channel, err := scanChannel(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrChannelNotFound
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return channel, nil
}

// ListTenantChannels retrieves all notification channels for a tenant.
func (r *Repository) ListTenantChannels(ctx context.Context, tenantID string) ([]domain.NotificationChannel, error) {
	query := `
		SELECT id, tenant_id, name, type, target, is_enabled, kinds, created_at, updated_at
		FROM notification_channels
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant channels: %w", err)
	}
	defer rows.Close()

	channels := make([]domain.NotificationChannel, 0)
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, *channel)
	}
	return channels, rows.Err()
}

// UpdateChannel updates an existing notification channel.
func (r *Repository) UpdateChannel(ctx context.Context, channel *domain.NotificationChannel) error {
	query := `
		UPDATE notification_channels
		SET is_enabled = $2, kinds = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		channel.ID,
		channel.IsEnabled,
		channel.Kinds,
	).Scan(&channel.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notifications.ErrChannelNotFound
		}
		return fmt.Errorf("update channel: %w", err)
	}
	return nil
}

// DeleteChannel deletes a notification channel and its queued items.
func (r *Repository) DeleteChannel(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notification_channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrChannelNotFound
	}
	return nil
}

// Enqueue inserts queue items in one batch.
func (r *Repository) Enqueue(ctx context.Context, items []*notifications.QueueItem) error {
	batch := &pgx.Batch{}
	query := `
		INSERT INTO notification_queue (tenant_id, channel_id, kind, payload, status, max_attempts, next_attempt_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, NOW())
	`
	for _, item := range items {
		payload, err := json.Marshal(item.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		batch.Queue(query, item.TenantID, item.ChannelID, item.Kind, payload, item.MaxAttempts)
	}

	results := r.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("enqueue item: %w", err)
		}
	}
	return nil
}

// FetchPendingNotifications claims up to limit due items. Claimed rows
// are flipped to processing so concurrent workers never pick the same
// item twice.
func (r *Repository) FetchPendingNotifications(ctx context.Context, limit int) ([]*notifications.QueueItem, error) {
	query := `
		UPDATE notification_queue
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM notification_queue
			WHERE status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, channel_id, kind, payload, status, attempts, max_attempts,
			next_attempt_at, COALESCE(last_error, ''), created_at, updated_at, sent_at
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	defer rows.Close()

	var items []*notifications.QueueItem
	for rows.Next() {
		var item notifications.QueueItem
		var payload []byte
		err := rows.Scan(
			&item.ID, &item.TenantID, &item.ChannelID, &item.Kind, &payload,
			&item.Status, &item.Attempts, &item.MaxAttempts,
			&item.NextAttemptAt, &item.LastError, &item.CreatedAt, &item.UpdatedAt, &item.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		if err := json.Unmarshal(payload, &item.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// MarkAsSent marks a queue item as delivered.
func (r *Repository) MarkAsSent(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'sent', sent_at = NOW(), updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark as sent: %w", err)
	}
	return nil
}

// MarkAsFailed marks a queue item as permanently failed.
func (r *Repository) MarkAsFailed(ctx context.Context, id string, cause error) error {
	_, err := r.db.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, cause.Error())
	if err != nil {
		return fmt.Errorf("mark as failed: %w", err)
	}
	return nil
}

// MarkForRetry reschedules a queue item after a transient failure.
func (r *Repository) MarkForRetry(ctx context.Context, id string, cause error, nextAttemptAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'pending', attempts = attempts + 1, last_error = $2, next_attempt_at = $3, updated_at = NOW()
		WHERE id = $1`, id, cause.Error(), nextAttemptAt)
	if err != nil {
		return fmt.Errorf("mark for retry: %w", err)
	}
	return nil
}

// GetQueueStats returns queue depth by status.
func (r *Repository) GetQueueStats(ctx context.Context) (*notifications.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM notification_queue
	`
	var stats notifications.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Processing, &stats.Sent, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

func scanChannel(row pgx.Row) (*domain.NotificationChannel, error) {
	var channel domain.NotificationChannel
	err := row.Scan(
		&channel.ID,
		&channel.TenantID,
		&channel.Name,
		&channel.Type,
		&channel.Target,
		&channel.IsEnabled,
		&channel.Kinds,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &channel, nil
}
