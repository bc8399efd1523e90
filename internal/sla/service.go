package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Service manages the timer's surrounding surface: emergency alerts
// (which ride the same event table as incident approvals) and per-tenant
// threshold configuration. The sweep itself lives on Sweeper.
type Service struct {
	repo Repository
}

// NewService creates a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// TriggerAlertInput holds data for raising an emergency alert.
type TriggerAlertInput struct {
	TenantID  string
	SubjectID string
	Priority  string
}

// TriggerAlert registers an emergency alert with the escalation timer.
// The alert starts at level 0 and escalates on subsequent sweeps until
// acknowledged.
func (s *Service) TriggerAlert(ctx context.Context, input TriggerAlertInput) (*domain.EscalatableEvent, error) {
	event := &domain.EscalatableEvent{
		TenantID:    input.TenantID,
		Category:    domain.EscalatableEmergencyAlert,
		Priority:    input.Priority,
		SubjectID:   input.SubjectID,
		TriggeredAt: time.Now(),
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create alert event: %w", err)
	}
	return event, nil
}

// AcknowledgeAlert stops the timer for an event. The reached escalation
// level is preserved; no later sweep changes it.
func (s *Service) AcknowledgeAlert(ctx context.Context, eventID string) error {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !event.Active() {
		return fmt.Errorf("%w: event is no longer active", domain.ErrInvalidTransition)
	}
	return s.repo.AcknowledgeEvent(ctx, eventID, event.Version)
}

// ResolveAlert marks the underlying condition as resolved, which also
// stops the timer.
func (s *Service) ResolveAlert(ctx context.Context, eventID string) error {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !event.Active() {
		return fmt.Errorf("%w: event is no longer active", domain.ErrInvalidTransition)
	}
	return s.repo.ResolveEvent(ctx, eventID, event.Version)
}

// ListConfigs returns a tenant's threshold configuration rows.
func (s *Service) ListConfigs(ctx context.Context, tenantID string) ([]*domain.SLAConfig, error) {
	return s.repo.ListConfigs(ctx, tenantID)
}

// UpsertConfig creates or replaces a threshold row. Thresholds must be
// positive and strictly increasing across the ladder.
func (s *Service) UpsertConfig(ctx context.Context, config *domain.SLAConfig) error {
	if config.MaxResponse <= 0 {
		return fmt.Errorf("max response must be positive")
	}
	if config.FirstEscalation <= config.MaxResponse {
		return fmt.Errorf("first escalation threshold must exceed max response")
	}
	if config.SecondEscalation <= config.FirstEscalation {
		return fmt.Errorf("second escalation threshold must exceed the first")
	}
	if config.Category == "" {
		config.Category = domain.SLAWildcard
	}
	if config.Priority == "" {
		config.Priority = domain.SLAWildcard
	}
	return s.repo.UpsertConfig(ctx, config)
}

// DeleteConfig removes a threshold row. Events matching it fall back to
// the tenant wildcard or the built-in default on the next sweep.
func (s *Service) DeleteConfig(ctx context.Context, id string) error {
	return s.repo.DeleteConfig(ctx, id)
}
