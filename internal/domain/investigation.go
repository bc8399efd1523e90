package domain

import "time"

// Investigation is the work record attached to an incident while it is
// under investigation. At most one active investigation exists per
// incident; it is closed, never deleted, when the incident leaves the
// investigation phase.
type Investigation struct {
	ID             string  `json:"id"`
	IncidentID     string  `json:"incident_id"`
	InvestigatorID string  `json:"investigator_id"`

	ViolationIdentified bool   `json:"violation_identified"`
	ViolationType       string `json:"violation_type,omitempty"`
	ContractorID        string `json:"contractor_id,omitempty"`
	// ContractorContribution is the contractor's share of responsibility
	// in percent, 0-100.
	ContractorContribution int    `json:"contractor_contribution"`
	EvidenceSummary        string `json:"evidence_summary,omitempty"`

	RootCause          string `json:"root_cause,omitempty"`
	ImmediateCause     string `json:"immediate_cause,omitempty"`
	ActionsCompleted   bool   `json:"actions_completed"`
	ActionsVerified    bool   `json:"actions_verified"`
	HSSEValidated      bool   `json:"hsse_validated"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// IsActive reports whether the investigation is still open.
func (inv *Investigation) IsActive() bool {
	return inv.ClosedAt == nil
}
