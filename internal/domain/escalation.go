package domain

import "time"

// EscalationLevel is the SLA escalation ladder. Levels are monotonically
// non-decreasing while an event is unacknowledged.
type EscalationLevel int

// Escalation levels.
const (
	EscalationNone     EscalationLevel = 0
	EscalationBreach   EscalationLevel = 1
	EscalationLevel2   EscalationLevel = 2
	EscalationCritical EscalationLevel = 3
)

// EscalatableCategory classifies an entity subject to SLA timing.
type EscalatableCategory string

// Escalatable categories.
const (
	EscalatableIncidentApproval EscalatableCategory = "incident_approval"
	EscalatableEmergencyAlert   EscalatableCategory = "emergency_alert"
)

// EscalatableEvent is any entity subject to SLA timing: incidents pending
// approval and emergency alerts ride the same sweep.
type EscalatableEvent struct {
	ID       string              `json:"id"`
	TenantID string              `json:"tenant_id"`
	Category EscalatableCategory `json:"category"`
	Priority string              `json:"priority"`
	// SubjectID references the underlying incident or alert.
	SubjectID string `json:"subject_id"`

	TriggeredAt    time.Time  `json:"triggered_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`

	EscalationLevel EscalationLevel `json:"escalation_level"`
	// BreachNotifiedAt guards level-1 idempotence: once stamped, the sweep
	// never re-emits the breach notification.
	BreachNotifiedAt *time.Time `json:"sla_breach_notified_at,omitempty"`

	Version int `json:"version"`
}

// Active reports whether the event is still subject to escalation.
func (e *EscalatableEvent) Active() bool {
	return e.AcknowledgedAt == nil && e.ResolvedAt == nil
}

// SLAConfig holds per-tenant, per-category thresholds. Category "*" with
// priority "*" is the tenant-level default.
type SLAConfig struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Category string `json:"category"`
	Priority string `json:"priority"`

	MaxResponse      time.Duration `json:"max_response"`
	FirstEscalation  time.Duration `json:"first_escalation"`
	SecondEscalation time.Duration `json:"second_escalation"`

	NotifyChannels []string `json:"notify_channels,omitempty"`
	Recipients     []string `json:"recipients,omitempty"`
}

// SLAWildcard matches any category or priority in a config row.
const SLAWildcard = "*"

// DefaultSLAConfig is the hard-coded fallback applied when a tenant has no
// configuration at all: 2 min / 5 min / 10 min.
func DefaultSLAConfig() SLAConfig {
	return SLAConfig{
		Category:         SLAWildcard,
		Priority:         SLAWildcard,
		MaxResponse:      2 * time.Minute,
		FirstEscalation:  5 * time.Minute,
		SecondEscalation: 10 * time.Minute,
	}
}
