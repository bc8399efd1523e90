// Package notifications provides queued, best-effort delivery of workflow
// and escalation events to tenant-configured channels.
package notifications

import (
	"context"
	"time"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Repository defines the interface for notifications data access.
type Repository interface {
	// Channel CRUD
	CreateChannel(ctx context.Context, channel *domain.NotificationChannel) error
	GetChannelByID(ctx context.Context, id string) (*domain.NotificationChannel, error)
	ListTenantChannels(ctx context.Context, tenantID string) ([]domain.NotificationChannel, error)
	UpdateChannel(ctx context.Context, channel *domain.NotificationChannel) error
	DeleteChannel(ctx context.Context, id string) error

	// Queue
	Enqueue(ctx context.Context, items []*QueueItem) error
	FetchPendingNotifications(ctx context.Context, limit int) ([]*QueueItem, error)
	MarkAsSent(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id string, cause error) error
	MarkForRetry(ctx context.Context, id string, cause error, nextAttemptAt time.Time) error
	GetQueueStats(ctx context.Context) (*QueueStats, error)
}
