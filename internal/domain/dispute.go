package domain

import "time"

// DisputeCategory classifies what a dispute is about.
type DisputeCategory string

// Dispute categories.
const (
	DisputeInvestigationScope DisputeCategory = "investigation_scope"
	DisputeFindingsAccuracy   DisputeCategory = "findings_accuracy"
	DisputeTimeline           DisputeCategory = "timeline"
	DisputeOther              DisputeCategory = "other"
)

// IsValid checks if the dispute category is valid.
func (c DisputeCategory) IsValid() bool {
	switch c {
	case DisputeInvestigationScope, DisputeFindingsAccuracy, DisputeTimeline, DisputeOther:
		return true
	}
	return false
}

// DisputeDecision is a mediator's resolution of a dispute.
type DisputeDecision string

// Dispute decisions.
const (
	// DecisionOverrideRejection overturns the rejection: the incident goes
	// forward to closure (or back to screening for reporter disputes).
	DecisionOverrideRejection DisputeDecision = "override_rejection"
	// DecisionMaintainRejection upholds the rejection: full rework.
	DecisionMaintainRejection DisputeDecision = "maintain_rejection"
	// DecisionPartialRework upholds the rejection but flags that only
	// some items need redoing.
	DecisionPartialRework DisputeDecision = "partial_rework"
)

// IsValid checks if the dispute decision is valid.
func (d DisputeDecision) IsValid() bool {
	return d == DecisionOverrideRejection || d == DecisionMaintainRejection || d == DecisionPartialRework
}

// DisputeStatus is the lifecycle state of a dispute.
type DisputeStatus string

// Dispute statuses.
const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

// Dispute is a disagreement record opened against a rejection. Exactly one
// open dispute may exist per incident.
type Dispute struct {
	ID         string          `json:"id"`
	IncidentID string          `json:"incident_id"`
	TenantID   string          `json:"tenant_id"`
	Category   DisputeCategory `json:"category"`
	Reason     string          `json:"reason"`
	// EvidenceRefs are attachment references preserved verbatim.
	EvidenceRefs []string `json:"evidence_refs,omitempty"`

	// OriginStatus is the rejection state the incident was in when the
	// dispute was opened; it selects the resolution routing.
	OriginStatus IncidentStatus `json:"origin_status"`

	OpenedBy string        `json:"opened_by"`
	Status   DisputeStatus `json:"status"`

	MediatorID    *string          `json:"mediator_id,omitempty"`
	Decision      *DisputeDecision `json:"decision,omitempty"`
	DecisionNotes string           `json:"decision_notes,omitempty"`

	OpenedAt   time.Time  `json:"opened_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// IsOpen reports whether the dispute is unresolved.
func (d *Dispute) IsOpen() bool {
	return d.Status == DisputeOpen
}
