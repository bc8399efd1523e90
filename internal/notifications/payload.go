package notifications

import "time"

// PayloadKind defines what a notification is about.
type PayloadKind string

// Payload kinds.
const (
	KindIncidentTransition PayloadKind = "incident_transition"
	KindSLAEscalation      PayloadKind = "sla_escalation"
)

// NotificationPayload contains data for rendering a notification.
type NotificationPayload struct {
	Kind        PayloadKind     `json:"kind"`
	TenantID    string          `json:"tenant_id"`
	Transition  *TransitionData `json:"transition,omitempty"`
	Escalation  *EscalationData `json:"escalation,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// TransitionData describes an incident status change.
type TransitionData struct {
	IncidentID string `json:"incident_id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Severity   string `json:"severity"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorName  string `json:"actor_name"`
	Reason     string `json:"reason,omitempty"`
}

// EscalationData describes an SLA escalation level change.
type EscalationData struct {
	EventID     string    `json:"event_id"`
	SubjectID   string    `json:"subject_id"`
	Category    string    `json:"category"`
	Priority    string    `json:"priority"`
	Level       int       `json:"level"`
	TriggeredAt time.Time `json:"triggered_at"`
	Recipients  []string  `json:"recipients,omitempty"`
}

// NewTransitionPayload creates a payload for an incident status change.
func NewTransitionPayload(tenantID string, data TransitionData) NotificationPayload {
	return NotificationPayload{
		Kind:        KindIncidentTransition,
		TenantID:    tenantID,
		Transition:  &data,
		GeneratedAt: time.Now(),
	}
}

// NewEscalationPayload creates a payload for an SLA escalation.
func NewEscalationPayload(tenantID string, data EscalationData) NotificationPayload {
	return NotificationPayload{
		Kind:        KindSLAEscalation,
		TenantID:    tenantID,
		Escalation:  &data,
		GeneratedAt: time.Now(),
	}
}
