package domain

import "time"

// ViolationStage represents the approval stage of a contractor violation.
type ViolationStage string

// Violation stages.
const (
	ViolationStageIdentified             ViolationStage = "identified"
	ViolationStageSubmitted              ViolationStage = "submitted"
	ViolationStagePendingDeptManager     ViolationStage = "pending_department_manager_approval"
	ViolationStagePendingContractControl ViolationStage = "pending_contract_controller_confirmation"
	ViolationStagePendingSiteRepAck      ViolationStage = "pending_contractor_site_rep_acknowledgment"
	ViolationStageContested              ViolationStage = "contested"
	ViolationStageFinalized              ViolationStage = "finalized"
	ViolationStageRejected               ViolationStage = "rejected"
)

// IsValid checks if the violation stage is valid.
func (s ViolationStage) IsValid() bool {
	switch s {
	case ViolationStageIdentified, ViolationStageSubmitted,
		ViolationStagePendingDeptManager, ViolationStagePendingContractControl,
		ViolationStagePendingSiteRepAck, ViolationStageContested,
		ViolationStageFinalized, ViolationStageRejected:
		return true
	}
	return false
}

// IsTerminal reports whether the stage ends the violation sub-workflow.
func (s ViolationStage) IsTerminal() bool {
	return s == ViolationStageFinalized || s == ViolationStageRejected
}

// PenaltyType represents the kind of penalty attached to a violation.
type PenaltyType string

// Penalty types.
const (
	PenaltyFine    PenaltyType = "fine"
	PenaltyWarning PenaltyType = "warning"
)

// IsValid checks if the penalty type is valid.
func (p PenaltyType) IsValid() bool {
	return p == PenaltyFine || p == PenaltyWarning
}

// Violation is a contractor non-conformance flagged during investigation.
// It carries its own approval chain nested inside the incident workflow.
type Violation struct {
	ID              string         `json:"id"`
	IncidentID      string         `json:"incident_id"`
	InvestigationID string         `json:"investigation_id"`
	TenantID        string         `json:"tenant_id"`
	ContractorID    string         `json:"contractor_id"`
	// TypeKey is the normalized violation-type key used for occurrence
	// counting; Type keeps the submitted form.
	Type    string `json:"type"`
	TypeKey string `json:"type_key"`

	PenaltyType PenaltyType `json:"penalty_type"`
	// FineAmount is in minor currency units; meaningful only when
	// PenaltyType is fine.
	FineAmount int64 `json:"fine_amount,omitempty"`

	// Occurrence is the ordinal of this violation for the contractor and
	// type: count of prior finalized violations + 1. Never decremented.
	Occurrence int `json:"occurrence"`

	Stage           ViolationStage `json:"stage"`
	EvidenceSummary string         `json:"evidence_summary,omitempty"`
	DecisionNotes   string         `json:"decision_notes,omitempty"`

	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`

	Version     int        `json:"version"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// OccurrenceLabel maps the occurrence ordinal to its display form:
// 1 -> "1st", 2 -> "2nd", 3 and above -> "3rd/Repeated". The label, not
// the raw count, drives the default penalty severity shown to approvers.
func OccurrenceLabel(occurrence int) string {
	switch {
	case occurrence <= 1:
		return "1st"
	case occurrence == 2:
		return "2nd"
	default:
		return "3rd/Repeated"
	}
}

// DefaultPenaltyFor returns the penalty applied when the submitter does
// not choose one: first and second occurrences draw a warning, repeat
// offenses a fine.
func DefaultPenaltyFor(occurrence int) PenaltyType {
	if occurrence >= 3 {
		return PenaltyFine
	}
	return PenaltyWarning
}
