package notifications

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// ErrChannelNotOwned is returned when a channel belongs to another
// tenant.
var ErrChannelNotOwned = errorString("channel does not belong to tenant")

type errorString string

func (e errorString) Error() string { return string(e) }

// Service provides notification channel management.
type Service struct {
	repo Repository
}

// NewService creates a new notifications service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateChannelInput holds data for registering a channel.
type CreateChannelInput struct {
	TenantID string
	Name     string
	Type     domain.ChannelType
	Target   string
	Kinds    []string
}

// CreateChannel registers a delivery endpoint for a tenant. Channels
// start enabled.
func (s *Service) CreateChannel(ctx context.Context, input CreateChannelInput) (*domain.NotificationChannel, error) {
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid channel type: %s", input.Type)
	}
	if err := validateTarget(input.Type, input.Target); err != nil {
		return nil, err
	}
	if err := validateKinds(input.Kinds); err != nil {
		return nil, err
	}

	channel := &domain.NotificationChannel{
		TenantID:  input.TenantID,
		Name:      input.Name,
		Type:      input.Type,
		Target:    input.Target,
		IsEnabled: true,
		Kinds:     input.Kinds,
	}
	if err := s.repo.CreateChannel(ctx, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// ListChannels returns all channels for a tenant.
func (s *Service) ListChannels(ctx context.Context, tenantID string) ([]domain.NotificationChannel, error) {
	return s.repo.ListTenantChannels(ctx, tenantID)
}

// UpdateChannel updates a channel's enablement and subscriptions.
func (s *Service) UpdateChannel(ctx context.Context, tenantID, channelID string, isEnabled bool, kinds []string) (*domain.NotificationChannel, error) {
	channel, err := s.repo.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.TenantID != tenantID {
		return nil, ErrChannelNotOwned
	}
	if err := validateKinds(kinds); err != nil {
		return nil, err
	}

	channel.IsEnabled = isEnabled
	channel.Kinds = kinds

	if err := s.repo.UpdateChannel(ctx, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// DeleteChannel removes a notification channel.
func (s *Service) DeleteChannel(ctx context.Context, tenantID, channelID string) error {
	channel, err := s.repo.GetChannelByID(ctx, channelID)
	if err != nil {
		return err
	}
	if channel.TenantID != tenantID {
		return ErrChannelNotOwned
	}
	return s.repo.DeleteChannel(ctx, channelID)
}

// QueueStats returns queue depth by status.
func (s *Service) QueueStats(ctx context.Context) (*QueueStats, error) {
	return s.repo.GetQueueStats(ctx)
}

func validateTarget(channelType domain.ChannelType, target string) error {
	switch channelType {
	case domain.ChannelTypeWebhook:
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook target must be an http(s) URL")
		}
	case domain.ChannelTypeEmail:
		if _, err := mail.ParseAddress(target); err != nil {
			return fmt.Errorf("email target is not a valid address")
		}
	}
	return nil
}

func validateKinds(kinds []string) error {
	for _, kind := range kinds {
		switch PayloadKind(kind) {
		case KindIncidentTransition, KindSLAEscalation:
		default:
			return fmt.Errorf("unknown notification kind: %s", kind)
		}
	}
	return nil
}
