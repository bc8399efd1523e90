package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Notifier enqueues notifications for tenant channels. It satisfies the
// notifier interfaces of the workflow, violations, disputes and sla
// packages. Enqueueing is the engine's only involvement with delivery;
// the worker picks queued items up asynchronously.
type Notifier struct {
	repo        Repository
	maxAttempts int
}

// NewNotifier creates a new Notifier.
func NewNotifier(repo Repository, maxAttempts int) *Notifier {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Notifier{repo: repo, maxAttempts: maxAttempts}
}

// IncidentTransitioned enqueues a status-change notification for every
// subscribed channel of the incident's tenant.
func (n *Notifier) IncidentTransitioned(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus, actor domain.Actor, reason string) error {
	payload := NewTransitionPayload(incident.TenantID, TransitionData{
		IncidentID: incident.ID,
		Title:      incident.Title,
		Category:   string(incident.Category),
		Severity:   incident.Severity.String(),
		FromStatus: string(from),
		ToStatus:   string(incident.Status),
		ActorName:  actor.Name,
		Reason:     reason,
	})
	return n.enqueueForTenant(ctx, incident.TenantID, payload, nil)
}

// EscalationRaised enqueues an escalation notification. When the SLA
// config names specific channels, delivery is restricted to those.
func (n *Notifier) EscalationRaised(ctx context.Context, event *domain.EscalatableEvent, config domain.SLAConfig) error {
	payload := NewEscalationPayload(event.TenantID, EscalationData{
		EventID:     event.ID,
		SubjectID:   event.SubjectID,
		Category:    string(event.Category),
		Priority:    event.Priority,
		Level:       int(event.EscalationLevel),
		TriggeredAt: event.TriggeredAt,
		Recipients:  config.Recipients,
	})
	return n.enqueueForTenant(ctx, event.TenantID, payload, config.NotifyChannels)
}

// enqueueForTenant creates one queue item per eligible channel. An
// empty onlyChannels slice means every subscribed channel.
func (n *Notifier) enqueueForTenant(ctx context.Context, tenantID string, payload NotificationPayload, onlyChannels []string) error {
	channels, err := n.repo.ListTenantChannels(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	var items []*QueueItem
	for i := range channels {
		ch := &channels[i]
		if !ch.IsEnabled || !ch.Subscribed(string(payload.Kind)) {
			continue
		}
		if len(onlyChannels) > 0 && !contains(onlyChannels, ch.ID) {
			continue
		}
		items = append(items, &QueueItem{
			TenantID:    tenantID,
			ChannelID:   ch.ID,
			Kind:        payload.Kind,
			Payload:     payload,
			MaxAttempts: n.maxAttempts,
		})
	}

	if len(items) == 0 {
		slog.Debug("no subscribed channels for notification",
			"tenant_id", tenantID,
			"kind", payload.Kind,
		)
		return nil
	}

	if err := n.repo.Enqueue(ctx, items); err != nil {
		return fmt.Errorf("enqueue notifications: %w", err)
	}

	slog.Debug("notifications enqueued",
		"tenant_id", tenantID,
		"kind", payload.Kind,
		"count", len(items),
	)
	return nil
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
