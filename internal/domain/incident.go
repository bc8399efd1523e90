package domain

import "time"

// IncidentCategory represents the kind of reported event.
type IncidentCategory string

// Incident categories.
const (
	CategoryIncident    IncidentCategory = "incident"
	CategoryObservation IncidentCategory = "observation"
	CategorySecurity    IncidentCategory = "security"
	CategoryNearMiss    IncidentCategory = "near_miss"
)

// IsValid checks if the incident category is valid.
func (c IncidentCategory) IsValid() bool {
	switch c {
	case CategoryIncident, CategoryObservation, CategorySecurity, CategoryNearMiss:
		return true
	}
	return false
}

// Severity is the realized impact level of an incident, ordinal 1-5.
// Level 5 is catastrophic.
type Severity int

// Severity levels.
const (
	SeverityLevel1 Severity = 1
	SeverityLevel2 Severity = 2
	SeverityLevel3 Severity = 3
	SeverityLevel4 Severity = 4
	SeverityLevel5 Severity = 5
)

// SeverityCatastrophic is the top severity level, subject to the hard
// closure lock: only HSSE-manager tier may close it.
const SeverityCatastrophic = SeverityLevel5

// IsValid checks if the severity is within the ordinal scale.
func (s Severity) IsValid() bool {
	return s >= SeverityLevel1 && s <= SeverityLevel5
}

// String returns the wire representation, e.g. "level_3".
func (s Severity) String() string {
	switch s {
	case SeverityLevel1:
		return "level_1"
	case SeverityLevel2:
		return "level_2"
	case SeverityLevel3:
		return "level_3"
	case SeverityLevel4:
		return "level_4"
	case SeverityLevel5:
		return "level_5"
	}
	return "unknown"
}

// IncidentStatus represents the current lifecycle state of an incident.
type IncidentStatus string

// Incident statuses.
const (
	StatusSubmitted                   IncidentStatus = "submitted"
	StatusExpertScreening             IncidentStatus = "expert_screening"
	StatusRejectedByExpert            IncidentStatus = "rejected_by_expert"
	StatusClosedRejected              IncidentStatus = "closed_rejected"
	StatusPendingManagerApproval      IncidentStatus = "pending_manager_approval"
	StatusManagerRejected             IncidentStatus = "manager_rejected"
	StatusDisputeResolution           IncidentStatus = "dispute_resolution"
	StatusInvestigationInProgress     IncidentStatus = "investigation_in_progress"
	StatusPendingDeptManagerViolation IncidentStatus = "pending_department_manager_violation_approval"
	StatusPendingContractorSiteRep    IncidentStatus = "pending_contractor_site_rep_approval"
	StatusEscalatedToHSSEManager      IncidentStatus = "escalated_to_hsse_manager"
	StatusPendingClosure              IncidentStatus = "pending_closure"
	StatusPendingFinalClosure         IncidentStatus = "pending_final_closure"
	StatusClosed                      IncidentStatus = "closed"
)

// IsValid checks if the incident status is a defined enum value.
func (s IncidentStatus) IsValid() bool {
	_, ok := incidentTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions exist from the status.
func (s IncidentStatus) IsTerminal() bool {
	return len(incidentTransitions[s]) == 0 && s.IsValid()
}

// IsRejectionState reports whether the status is a rejected state whose
// exit transitions require a written justification.
func (s IncidentStatus) IsRejectionState() bool {
	return s == StatusRejectedByExpert || s == StatusManagerRejected || s == StatusDisputeResolution
}

// DisputeEligible reports whether a dispute may be opened while the
// incident is in this status.
func (s IncidentStatus) DisputeEligible() bool {
	return s == StatusManagerRejected || s == StatusRejectedByExpert
}

// incidentTransitions is the authoritative transition table. Terminal
// statuses map to an empty slice so IsValid covers the whole enum.
var incidentTransitions = map[IncidentStatus][]IncidentStatus{
	StatusSubmitted:       {StatusExpertScreening, StatusClosed},
	StatusExpertScreening: {StatusPendingManagerApproval, StatusRejectedByExpert},
	StatusRejectedByExpert: {
		StatusClosedRejected,
		StatusDisputeResolution,
	},
	StatusPendingManagerApproval: {
		StatusInvestigationInProgress,
		StatusManagerRejected,
	},
	StatusManagerRejected: {
		StatusDisputeResolution,
		StatusInvestigationInProgress,
	},
	StatusDisputeResolution: {
		StatusPendingClosure,
		StatusInvestigationInProgress,
		StatusExpertScreening,
		StatusClosedRejected,
	},
	StatusInvestigationInProgress: {
		StatusPendingClosure,
		StatusPendingDeptManagerViolation,
	},
	StatusPendingDeptManagerViolation: {
		StatusPendingContractorSiteRep,
		StatusPendingFinalClosure,
		StatusPendingClosure,
	},
	StatusPendingContractorSiteRep: {
		StatusPendingClosure,
		StatusEscalatedToHSSEManager,
	},
	StatusPendingFinalClosure:    {StatusPendingClosure},
	StatusEscalatedToHSSEManager: {StatusPendingClosure},
	StatusPendingClosure:         {StatusClosed},
	StatusClosed:                 {},
	StatusClosedRejected:         {},
}

// CanTransitionTo reports whether target is reachable from s in one step.
func (s IncidentStatus) CanTransitionTo(target IncidentStatus) bool {
	for _, next := range incidentTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s.
func (s IncidentStatus) NextStatuses() []IncidentStatus {
	next := incidentTransitions[s]
	out := make([]IncidentStatus, len(next))
	copy(out, next)
	return out
}

// ClosureReason records which closure path produced a terminal status.
type ClosureReason string

// Closure reasons.
const (
	ClosureReasonStandard          ClosureReason = "standard"
	ClosureReasonOnSpot            ClosureReason = "on_spot"
	ClosureReasonReporterConfirmed ClosureReason = "reporter_confirmed_rejection"
)

// EvidencePhoto is a reference to an evidence image held in external
// storage. Only metadata is tracked here.
type EvidencePhoto struct {
	StorageRef  string `json:"storage_ref"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Incident is a reported safety event or observation tracked through the
// workflow. Status is mutated exclusively through validated transitions.
type Incident struct {
	ID                string           `json:"id"`
	TenantID          string           `json:"tenant_id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Category          IncidentCategory `json:"category"`
	Severity          Severity         `json:"severity"`
	PotentialSeverity *Severity        `json:"potential_severity,omitempty"`
	Status            IncidentStatus   `json:"status"`
	ClosureReason     *ClosureReason   `json:"closure_reason,omitempty"`

	ReporterID     string  `json:"reporter_id"`
	InvestigatorID *string `json:"investigator_id,omitempty"`
	ApproverID     *string `json:"approver_id,omitempty"`
	DepartmentID   string  `json:"department_id"`

	RejectionReason  string `json:"rejection_reason,omitempty"`
	EscalationReason string `json:"escalation_reason,omitempty"`
	ReworkRequired   bool   `json:"rework_required"`

	EvidencePhotos []EvidencePhoto `json:"evidence_photos,omitempty"`

	// Version is the optimistic concurrency counter. Every status write
	// compares and increments it; a stale writer loses.
	Version int `json:"version"`

	OccurredAt      time.Time  `json:"occurred_at"`
	CreatedAt       time.Time  `json:"created_at"`
	StatusChangedAt time.Time  `json:"status_changed_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the incident is soft-deleted.
func (i *Incident) IsDeleted() bool {
	return i.DeletedAt != nil
}

// OnSpotEligible reports whether the incident qualifies for the
// on-the-spot closure fast path: low-severity observation with attached
// photo evidence. Photo count and MIME limits are enforced at submission.
func (i *Incident) OnSpotEligible() bool {
	return i.Category == CategoryObservation &&
		i.Severity <= SeverityLevel2 &&
		len(i.EvidencePhotos) >= 1
}
