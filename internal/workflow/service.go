package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/rolegate"
)

// Evidence photo limits for the on-the-spot closure fast path.
const (
	maxEvidencePhotos    = 2
	maxEvidencePhotoSize = 10 << 20 // 10MB
)

// Directory resolves an actor's identity, roles and department.
type Directory interface {
	GetActor(ctx context.Context, actorID string) (domain.Actor, error)
}

// Notifier receives workflow events for best-effort delivery. Failures are
// logged by the service and never affect a committed transition.
type Notifier interface {
	IncidentTransitioned(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus, actor domain.Actor, reason string) error
}

// DisputeOpener opens a dispute against a rejection. Implemented by the
// disputes service; the interface lives here so the reporter-response
// operation can delegate without a package cycle.
type DisputeOpener interface {
	OpenForReporter(ctx context.Context, incidentID, actorID string, category domain.DisputeCategory, reason string) (*domain.Dispute, error)
}

// Service implements the incident state machine.
type Service struct {
	repo      Repository
	gate      *rolegate.Gate
	directory Directory
	disputes  DisputeOpener
	notifier  Notifier
}

// NewService creates a new workflow service. disputes and notifier may be
// wired after construction via SetDisputeOpener when packages are built in
// dependency order.
func NewService(repo Repository, gate *rolegate.Gate, directory Directory, notifier Notifier) *Service {
	return &Service{
		repo:      repo,
		gate:      gate,
		directory: directory,
		notifier:  notifier,
	}
}

// SetDisputeOpener wires the dispute module.
func (s *Service) SetDisputeOpener(opener DisputeOpener) {
	s.disputes = opener
}

// ReportIncidentInput holds data for reporting an incident.
type ReportIncidentInput struct {
	TenantID          string
	Title             string
	Description       string
	Category          domain.IncidentCategory
	Severity          domain.Severity
	PotentialSeverity *domain.Severity
	DepartmentID      string
	OccurredAt        time.Time
	EvidencePhotos    []domain.EvidencePhoto
}

// ReportIncident creates an incident in the submitted status.
func (s *Service) ReportIncident(ctx context.Context, input ReportIncidentInput, reporterID string) (*domain.Incident, error) {
	if !input.Category.IsValid() {
		return nil, fmt.Errorf("invalid incident category: %s", input.Category)
	}
	if !input.Severity.IsValid() {
		return nil, fmt.Errorf("invalid severity: %d", input.Severity)
	}
	if input.PotentialSeverity != nil && !input.PotentialSeverity.IsValid() {
		return nil, fmt.Errorf("invalid potential severity: %d", *input.PotentialSeverity)
	}
	if err := validatePhotos(input.EvidencePhotos); err != nil {
		return nil, err
	}

	now := time.Now()
	incident := &domain.Incident{
		TenantID:          input.TenantID,
		Title:             input.Title,
		Description:       input.Description,
		Category:          input.Category,
		Severity:          input.Severity,
		PotentialSeverity: input.PotentialSeverity,
		Status:            domain.StatusSubmitted,
		ReporterID:        reporterID,
		DepartmentID:      input.DepartmentID,
		EvidencePhotos:    input.EvidencePhotos,
		OccurredAt:        input.OccurredAt,
		CreatedAt:         now,
		StatusChangedAt:   now,
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	return incident, nil
}

// GetIncident retrieves an incident by ID.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// ListIncidents retrieves incidents with optional filters.
func (s *Service) ListIncidents(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, error) {
	return s.repo.ListIncidents(ctx, filters)
}

// GetAuditTrail returns the audit entries of an incident.
func (s *Service) GetAuditTrail(ctx context.Context, incidentID string) ([]*domain.AuditEntry, error) {
	return s.repo.ListAuditEntries(ctx, incidentID)
}

// TransitionInput holds data for a proposed transition.
type TransitionInput struct {
	IncidentID string
	ActorID    string
	Target     domain.IncidentStatus
	// Reason doubles as rejection reason and override/closure
	// justification depending on the transition.
	Reason string
	// InvestigatorID assigns the investigator on manager approval.
	InvestigatorID string
	// ApproverID assigns the approving manager on screening approval.
	ApproverID string
}

// ProposeTransition validates and applies a status transition. On failure
// it returns a typed error without mutating state.
func (s *Service) ProposeTransition(ctx context.Context, input TransitionInput) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, input.IncidentID)
	if err != nil {
		return nil, err
	}

	actor, err := s.directory.GetActor(ctx, input.ActorID)
	if err != nil {
		return nil, err
	}

	if !input.Target.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, input.Target)
	}
	if !incident.Status.CanTransitionTo(input.Target) {
		return nil, fmt.Errorf("%w: %s cannot move to %s", domain.ErrInvalidTransition, incident.Status, input.Target)
	}

	if requiresJustification(incident.Status, input.Target) && !domain.ValidJustification(input.Reason) {
		return nil, domain.ErrMissingJustification
	}

	decision := s.gate.Decide(rolegate.Request{
		Actor:         actor,
		Incident:      incident,
		Target:        input.Target,
		Justification: input.Reason,
	})
	if !decision.Allowed {
		if decision.MissingJustification {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingJustification, decision.Reason)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrForbidden, decision.Reason)
	}

	// Closure re-evaluates the checklist at commit time; the on-the-spot
	// fast path carries its own eligibility checks in CloseOnSpot.
	if input.Target == domain.StatusClosed {
		if incident.Status == domain.StatusSubmitted {
			return s.CloseOnSpot(ctx, input.IncidentID, input.ActorID, nil)
		}
		return s.closeWithReadiness(ctx, incident, actor, decision, input.Reason)
	}

	return s.commitTransition(ctx, incident, actor, decision, input)
}

// ManagerApproveOrReject is the assigned approving manager's decision on
// an incident pending approval.
func (s *Service) ManagerApproveOrReject(ctx context.Context, incidentID, actorID string, approve bool, reason, investigatorID string) (*domain.Incident, error) {
	target := domain.StatusInvestigationInProgress
	if !approve {
		target = domain.StatusManagerRejected
	}
	return s.ProposeTransition(ctx, TransitionInput{
		IncidentID:     incidentID,
		ActorID:        actorID,
		Target:         target,
		Reason:         reason,
		InvestigatorID: investigatorID,
	})
}

// ReporterAction is the reporter's response to a screening rejection.
type ReporterAction string

// Reporter actions.
const (
	ReporterConfirm ReporterAction = "confirm"
	ReporterDispute ReporterAction = "dispute"
)

// ReporterRespondToRejection lets the original reporter accept a screening
// rejection (closing the incident) or dispute it.
func (s *Service) ReporterRespondToRejection(ctx context.Context, incidentID, actorID string, action ReporterAction, category domain.DisputeCategory, notes string) (*domain.Incident, error) {
	switch action {
	case ReporterConfirm:
		return s.ProposeTransition(ctx, TransitionInput{
			IncidentID: incidentID,
			ActorID:    actorID,
			Target:     domain.StatusClosedRejected,
			Reason:     notes,
		})
	case ReporterDispute:
		if s.disputes == nil {
			return nil, errors.New("dispute module not configured")
		}
		if _, err := s.disputes.OpenForReporter(ctx, incidentID, actorID, category, notes); err != nil {
			return nil, err
		}
		return s.repo.GetIncident(ctx, incidentID)
	default:
		return nil, fmt.Errorf("%w: unknown reporter action %q", domain.ErrInvalidTransition, action)
	}
}

// FindingsInput holds investigation findings.
type FindingsInput struct {
	RootCause              string
	ImmediateCause         string
	ActionsCompleted       bool
	ActionsVerified        bool
	HSSEValidated          bool
	ViolationIdentified    bool
	ViolationType          string
	ContractorID           string
	ContractorContribution int
	EvidenceSummary        string
}

// RecordFindings updates the active investigation without moving the
// incident; only the assigned investigator may record findings.
func (s *Service) RecordFindings(ctx context.Context, incidentID, actorID string, input FindingsInput) (*domain.Investigation, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.Status != domain.StatusInvestigationInProgress {
		return nil, fmt.Errorf("%w: incident is not under investigation", domain.ErrInvalidTransition)
	}
	if incident.InvestigatorID == nil || *incident.InvestigatorID != actorID {
		return nil, fmt.Errorf("%w: actor is not the assigned investigator", domain.ErrForbidden)
	}

	investigation, err := s.repo.GetActiveInvestigation(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	investigation.RootCause = input.RootCause
	investigation.ImmediateCause = input.ImmediateCause
	investigation.ActionsCompleted = input.ActionsCompleted
	investigation.ActionsVerified = input.ActionsVerified
	investigation.HSSEValidated = input.HSSEValidated
	investigation.ViolationIdentified = input.ViolationIdentified
	investigation.ViolationType = input.ViolationType
	investigation.ContractorID = input.ContractorID
	investigation.ContractorContribution = input.ContractorContribution
	investigation.EvidenceSummary = input.EvidenceSummary

	if err := s.repo.UpdateInvestigation(ctx, investigation); err != nil {
		return nil, fmt.Errorf("update investigation: %w", err)
	}

	return investigation, nil
}

// SubmitInvestigation closes out the investigation phase without a
// violation, moving the incident to pending closure.
func (s *Service) SubmitInvestigation(ctx context.Context, incidentID, actorID string) (*domain.Incident, error) {
	// The submission stamp is written by the transition's side effects
	// inside the commit transaction: a rejected or stale proposal must
	// leave the investigation untouched.
	return s.ProposeTransition(ctx, TransitionInput{
		IncidentID: incidentID,
		ActorID:    actorID,
		Target:     domain.StatusPendingClosure,
	})
}

// CloseIncident applies the terminal closure transition, re-running the
// closure checklist at commit time.
func (s *Service) CloseIncident(ctx context.Context, incidentID, actorID, justification string) (*domain.Incident, error) {
	return s.ProposeTransition(ctx, TransitionInput{
		IncidentID: incidentID,
		ActorID:    actorID,
		Target:     domain.StatusClosed,
		Reason:     justification,
	})
}

// CloseOnSpot closes a low-severity observation immediately after
// submission, bypassing the approval chain. The path requires photo
// evidence and is recorded with a distinct closure reason.
func (s *Service) CloseOnSpot(ctx context.Context, incidentID, actorID string, photos []domain.EvidencePhoto) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	actor, err := s.directory.GetActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if incident.Status != domain.StatusSubmitted {
		return nil, fmt.Errorf("%w: on-the-spot closure is only available for submitted incidents", domain.ErrInvalidTransition)
	}

	if len(photos) > 0 {
		if err := validatePhotos(photos); err != nil {
			return nil, err
		}
		incident.EvidencePhotos = append(incident.EvidencePhotos, photos...)
	}

	if incident.Category != domain.CategoryObservation ||
		incident.Severity > domain.SeverityLevel2 ||
		len(incident.EvidencePhotos) == 0 {
		return nil, fmt.Errorf("%w: incident does not qualify for on-the-spot closure", domain.ErrPrerequisitesNotMet)
	}
	if len(incident.EvidencePhotos) > maxEvidencePhotos {
		return nil, fmt.Errorf("%w: at most %d evidence photos allowed", domain.ErrPrerequisitesNotMet, maxEvidencePhotos)
	}

	decision := s.gate.Decide(rolegate.Request{
		Actor:    actor,
		Incident: incident,
		Target:   domain.StatusClosed,
	})
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrForbidden, decision.Reason)
	}

	return s.commitTransition(ctx, incident, actor, decision, TransitionInput{
		IncidentID: incidentID,
		Target:     domain.StatusClosed,
	})
}

// DeleteIncident soft-deletes a terminal incident, preserving the audit
// trail. Admin only.
func (s *Service) DeleteIncident(ctx context.Context, incidentID, actorID string) error {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return err
	}
	actor, err := s.directory.GetActor(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins may delete incidents", domain.ErrForbidden)
	}
	if !incident.Status.IsTerminal() {
		return fmt.Errorf("%w: only closed incidents may be deleted", domain.ErrInvalidTransition)
	}
	return s.repo.SoftDeleteIncident(ctx, incidentID, time.Now())
}

// closeWithReadiness re-evaluates the closure checklist and commits the
// closure in one read-evaluate-write sequence guarded by the version CAS.
func (s *Service) closeWithReadiness(ctx context.Context, incident *domain.Incident, actor domain.Actor, decision rolegate.Decision, justification string) (*domain.Incident, error) {
	readiness, err := s.evaluateClosure(ctx, incident)
	if err != nil {
		return nil, err
	}
	if !readiness.Ready {
		return nil, fmt.Errorf("%w: %s", domain.ErrPrerequisitesNotMet, strings.Join(readiness.BlockingReasons, "; "))
	}
	return s.commitTransition(ctx, incident, actor, decision, TransitionInput{
		IncidentID: incident.ID,
		Target:     domain.StatusClosed,
		Reason:     justification,
	})
}

// commitTransition applies the status change, side effects and audit entry
// in a single transaction guarded by the optimistic version counter.
func (s *Service) commitTransition(ctx context.Context, incident *domain.Incident, actor domain.Actor, decision rolegate.Decision, input TransitionInput) (*domain.Incident, error) {
	from := incident.Status
	expectedVersion := incident.Version
	now := time.Now()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	incident.Status = input.Target
	incident.StatusChangedAt = now

	switch decision.Transition {
	case domain.TransitionScreeningReject, domain.TransitionManagerReject:
		incident.RejectionReason = input.Reason
	case domain.TransitionScreeningApprove:
		if input.ApproverID != "" {
			incident.ApproverID = &input.ApproverID
		}
		// The expert may propose an investigator at screening time so
		// that a later manager rejection still has an assigned
		// investigator to accept rework or open a dispute.
		if input.InvestigatorID != "" {
			incident.InvestigatorID = &input.InvestigatorID
		}
	case domain.TransitionManagerApprove:
		if input.InvestigatorID != "" {
			incident.InvestigatorID = &input.InvestigatorID
		}
	}

	switch input.Target {
	case domain.StatusClosed:
		reason := domain.ClosureReasonStandard
		if decision.Transition == domain.TransitionCloseOnSpot {
			reason = domain.ClosureReasonOnSpot
		}
		incident.ClosureReason = &reason
		incident.ClosedAt = &now
	case domain.StatusClosedRejected:
		reason := domain.ClosureReasonReporterConfirmed
		incident.ClosureReason = &reason
		incident.ClosedAt = &now
	}

	if err := s.repo.UpdateIncidentStatusTx(ctx, tx, incident, expectedVersion); err != nil {
		if errors.Is(err, domain.ErrStaleVersion) {
			return nil, fmt.Errorf("%w: incident was modified concurrently", domain.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("update incident: %w", err)
	}
	incident.Version = expectedVersion + 1

	if err := s.applySideEffectsTx(ctx, tx, incident, from, now); err != nil {
		return nil, err
	}

	entry := &domain.AuditEntry{
		TenantID:   incident.TenantID,
		IncidentID: incident.ID,
		Tag:        domain.AuditTagTransition,
		FromStatus: &from,
		ToStatus:   &incident.Status,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Reason:     input.Reason,
	}
	if decision.Override {
		entry.Tag = domain.AuditTagAdminOverride
		entry.OriginalApprover = s.originalApproverName(ctx, incident)
	}
	if err := s.repo.CreateAuditEntryTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("create audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notify(ctx, incident, from, actor, input.Reason)

	return incident, nil
}

// applySideEffectsTx handles the non-status writes tied to a transition:
// the SLA approval timer, and the investigation record lifecycle.
func (s *Service) applySideEffectsTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, from domain.IncidentStatus, now time.Time) error {
	switch incident.Status {
	case domain.StatusPendingManagerApproval:
		event := &domain.EscalatableEvent{
			TenantID:    incident.TenantID,
			Category:    domain.EscalatableIncidentApproval,
			Priority:    incident.Severity.String(),
			SubjectID:   incident.ID,
			TriggeredAt: now,
		}
		if err := s.repo.CreateEscalatableEventTx(ctx, tx, event); err != nil {
			return fmt.Errorf("create approval timer: %w", err)
		}
	case domain.StatusInvestigationInProgress:
		if from == domain.StatusPendingManagerApproval {
			if err := s.repo.AcknowledgeEscalatableTx(ctx, tx, incident.ID, now); err != nil {
				return fmt.Errorf("acknowledge approval timer: %w", err)
			}
		}
		if incident.InvestigatorID == nil {
			return fmt.Errorf("%w: investigator must be assigned on approval", domain.ErrPrerequisitesNotMet)
		}
		// Rework re-entry keeps the existing investigation record; a
		// first entry (including rework accepted after a rejection
		// that preceded any investigation) creates it.
		if _, err := s.repo.GetActiveInvestigation(ctx, incident.ID); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("get investigation: %w", err)
			}
			investigation := &domain.Investigation{
				IncidentID:     incident.ID,
				InvestigatorID: *incident.InvestigatorID,
				CreatedAt:      now,
			}
			if err := s.repo.CreateInvestigationTx(ctx, tx, investigation); err != nil {
				return fmt.Errorf("create investigation: %w", err)
			}
		}
	case domain.StatusManagerRejected:
		if from == domain.StatusPendingManagerApproval {
			if err := s.repo.AcknowledgeEscalatableTx(ctx, tx, incident.ID, now); err != nil {
				return fmt.Errorf("acknowledge approval timer: %w", err)
			}
		}
	case domain.StatusPendingClosure:
		if from == domain.StatusInvestigationInProgress {
			if err := s.repo.MarkInvestigationSubmittedTx(ctx, tx, incident.ID, now); err != nil {
				return fmt.Errorf("mark investigation submitted: %w", err)
			}
		}
	case domain.StatusClosed, domain.StatusClosedRejected:
		if err := s.repo.CloseInvestigationTx(ctx, tx, incident.ID, now); err != nil {
			return fmt.Errorf("close investigation: %w", err)
		}
	}
	return nil
}

// originalApproverName resolves the bypassed approver's name for the
// admin_override audit entry. Best effort: the ID is recorded even when
// the directory lookup fails.
func (s *Service) originalApproverName(ctx context.Context, incident *domain.Incident) string {
	if incident.ApproverID == nil {
		return ""
	}
	approver, err := s.directory.GetActor(ctx, *incident.ApproverID)
	if err != nil {
		return *incident.ApproverID
	}
	if approver.Name != "" {
		return approver.Name
	}
	return approver.ID
}

func (s *Service) notify(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus, actor domain.Actor, reason string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.IncidentTransitioned(ctx, incident, from, actor, reason); err != nil {
		slog.Error("failed to enqueue transition notification",
			"incident_id", incident.ID,
			"status", incident.Status,
			"error", err,
		)
	}
}

// requiresJustification reports whether the transition needs a written
// reason: entering a rejection state, or leaving a rejected/disputed one.
func requiresJustification(from, target domain.IncidentStatus) bool {
	if target == domain.StatusManagerRejected || target == domain.StatusRejectedByExpert {
		return true
	}
	return from.IsRejectionState()
}

// validatePhotos enforces the evidence photo constraints: at most two
// photos, image MIME types only, 10MB each.
func validatePhotos(photos []domain.EvidencePhoto) error {
	if len(photos) > maxEvidencePhotos {
		return fmt.Errorf("at most %d evidence photos allowed", maxEvidencePhotos)
	}
	for _, p := range photos {
		if !strings.HasPrefix(p.ContentType, "image/") {
			return fmt.Errorf("evidence photo %s is not an image", p.StorageRef)
		}
		if p.SizeBytes > maxEvidencePhotoSize {
			return fmt.Errorf("evidence photo %s exceeds 10MB", p.StorageRef)
		}
	}
	return nil
}
