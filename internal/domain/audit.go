package domain

import "time"

// AuditTag marks special circumstances of an audit entry.
type AuditTag string

// Audit tags.
const (
	AuditTagTransition    AuditTag = "transition"
	AuditTagAdminOverride AuditTag = "admin_override"
	AuditTagSLAEscalation AuditTag = "sla_escalation"
	AuditTagSoftDelete    AuditTag = "soft_delete"
)

// AuditEntry is one row of the append-only audit trail. Entries are
// written in the same transaction as the status change they record.
type AuditEntry struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	IncidentID string          `json:"incident_id"`
	Tag        AuditTag        `json:"tag"`
	FromStatus *IncidentStatus `json:"from_status,omitempty"`
	ToStatus   *IncidentStatus `json:"to_status,omitempty"`
	ActorID    string          `json:"actor_id"`
	ActorName  string          `json:"actor_name,omitempty"`
	// OriginalApprover is recorded on admin_override entries so the
	// bypassed approver stays traceable.
	OriginalApprover string    `json:"original_approver,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
