package violations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/rolegate"
)

// Directory resolves an actor's identity, roles and department.
type Directory interface {
	GetActor(ctx context.Context, actorID string) (domain.Actor, error)
}

// Notifier receives workflow events for best-effort delivery.
type Notifier interface {
	IncidentTransitioned(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus, actor domain.Actor, reason string) error
}

// Service implements the violation sub-workflow.
type Service struct {
	repo      Repository
	gate      *rolegate.Gate
	directory Directory
	notifier  Notifier
}

// NewService creates a new violations service.
func NewService(repo Repository, gate *rolegate.Gate, directory Directory, notifier Notifier) *Service {
	return &Service{
		repo:      repo,
		gate:      gate,
		directory: directory,
		notifier:  notifier,
	}
}

// NormalizeTypeKey canonicalizes a violation type for occurrence counting:
// NFKC normalization, lower case, collapsed whitespace. "PPE  Missing" and
// "ppe missing" count against the same ordinal.
func NormalizeTypeKey(violationType string) string {
	normalized := norm.NFKC.String(violationType)
	normalized = strings.ToLower(normalized)
	return strings.Join(strings.Fields(normalized), " ")
}

// SubmitViolationInput holds data for submitting a violation.
type SubmitViolationInput struct {
	IncidentID      string
	ActorID         string
	PenaltyType     domain.PenaltyType
	FineAmount      int64
	EvidenceSummary string
}

// SubmitViolation files the violation flagged by the investigation and
// moves the incident into the department manager approval stage. Only the
// assigned investigator may submit, and only once per incident.
func (s *Service) SubmitViolation(ctx context.Context, input SubmitViolationInput) (*domain.Violation, error) {
	incident, err := s.repo.GetIncident(ctx, input.IncidentID)
	if err != nil {
		return nil, err
	}
	actor, err := s.directory.GetActor(ctx, input.ActorID)
	if err != nil {
		return nil, err
	}

	if !incident.Status.CanTransitionTo(domain.StatusPendingDeptManagerViolation) {
		return nil, fmt.Errorf("%w: %s cannot move to %s", domain.ErrInvalidTransition, incident.Status, domain.StatusPendingDeptManagerViolation)
	}

	investigation, err := s.repo.GetActiveInvestigation(ctx, input.IncidentID)
	if err != nil {
		return nil, err
	}
	if !investigation.ViolationIdentified {
		return nil, fmt.Errorf("%w: investigation has not identified a violation", domain.ErrPrerequisitesNotMet)
	}
	if investigation.ContractorID == "" {
		return nil, fmt.Errorf("%w: violation requires a contractor reference", domain.ErrPrerequisitesNotMet)
	}

	if _, err := s.repo.GetViolationByIncident(ctx, input.IncidentID); err == nil {
		return nil, fmt.Errorf("%w: violation already submitted for this incident", domain.ErrInvalidTransition)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	decision := s.gate.Decide(rolegate.Request{
		Actor:    actor,
		Incident: incident,
		Target:   domain.StatusPendingDeptManagerViolation,
	})
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrForbidden, decision.Reason)
	}

	typeKey := NormalizeTypeKey(investigation.ViolationType)
	priorFinalized, err := s.repo.CountFinalizedViolations(ctx, incident.TenantID, investigation.ContractorID, typeKey)
	if err != nil {
		return nil, fmt.Errorf("count finalized violations: %w", err)
	}

	penalty := input.PenaltyType
	if penalty == "" {
		penalty = domain.DefaultPenaltyFor(priorFinalized + 1)
	}
	if !penalty.IsValid() {
		return nil, fmt.Errorf("invalid penalty type: %s", penalty)
	}
	if penalty == domain.PenaltyFine && input.FineAmount <= 0 {
		return nil, fmt.Errorf("%w: fine penalty requires a positive amount", domain.ErrPrerequisitesNotMet)
	}

	now := time.Now()
	violation := &domain.Violation{
		IncidentID:      input.IncidentID,
		InvestigationID: investigation.ID,
		TenantID:        incident.TenantID,
		ContractorID:    investigation.ContractorID,
		Type:            investigation.ViolationType,
		TypeKey:         typeKey,
		PenaltyType:     penalty,
		FineAmount:      input.FineAmount,
		Occurrence:      priorFinalized + 1,
		Stage:           domain.ViolationStagePendingDeptManager,
		EvidenceSummary: input.EvidenceSummary,
		SubmittedAt:     &now,
		CreatedAt:       now,
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.CreateViolationTx(ctx, tx, violation); err != nil {
			return fmt.Errorf("create violation: %w", err)
		}
		if err := s.repo.MarkInvestigationSubmittedTx(ctx, tx, input.IncidentID, now); err != nil {
			return fmt.Errorf("mark investigation submitted: %w", err)
		}
		return s.transitionIncidentTx(ctx, tx, incident, domain.StatusPendingDeptManagerViolation, actor,
			fmt.Sprintf("violation submitted (%s occurrence)", domain.OccurrenceLabel(violation.Occurrence)), now)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, incident, domain.StatusInvestigationInProgress, actor, "violation submitted")
	return violation, nil
}

// DMDecision is the department manager's verdict on a submitted violation.
type DMDecision string

// Department manager decisions.
const (
	DMApproved DMDecision = "approved"
	DMRejected DMDecision = "rejected"
)

// DepartmentManagerDecide routes an approved violation by penalty type:
// fines go to contract controller confirmation, everything else to
// contractor site-rep acknowledgment. A rejected violation terminates the
// sub-workflow without blocking incident closure.
func (s *Service) DepartmentManagerDecide(ctx context.Context, incidentID, actorID string, decision DMDecision, notes string) (*domain.Violation, error) {
	violation, incident, actor, err := s.load(ctx, incidentID, actorID)
	if err != nil {
		return nil, err
	}
	if violation.Stage != domain.ViolationStagePendingDeptManager {
		return nil, fmt.Errorf("%w: violation is not awaiting department manager approval", domain.ErrInvalidTransition)
	}

	var stage domain.ViolationStage
	var target domain.IncidentStatus
	switch decision {
	case DMApproved:
		if violation.PenaltyType == domain.PenaltyFine {
			stage = domain.ViolationStagePendingContractControl
			target = domain.StatusPendingFinalClosure
		} else {
			stage = domain.ViolationStagePendingSiteRepAck
			target = domain.StatusPendingContractorSiteRep
		}
	case DMRejected:
		stage = domain.ViolationStageRejected
		target = domain.StatusPendingClosure
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", domain.ErrInvalidTransition, decision)
	}

	return s.advance(ctx, violation, incident, actor, stage, target, notes)
}

// ContractorDecision is the site representative's response to a violation.
type ContractorDecision string

// Contractor decisions.
const (
	ContractorAcknowledged ContractorDecision = "acknowledged"
	ContractorContested    ContractorDecision = "contested"
)

// ContractorAcknowledge records the contractor site representative's
// response. Contesting does not auto-reject: it escalates the violation to
// the HSSE manager for a final ruling.
func (s *Service) ContractorAcknowledge(ctx context.Context, incidentID, actorID string, decision ContractorDecision, notes string) (*domain.Violation, error) {
	violation, incident, actor, err := s.load(ctx, incidentID, actorID)
	if err != nil {
		return nil, err
	}
	if violation.Stage != domain.ViolationStagePendingSiteRepAck {
		return nil, fmt.Errorf("%w: violation is not awaiting contractor acknowledgment", domain.ErrInvalidTransition)
	}

	now := time.Now()
	violation.AcknowledgedBy = &actorID
	violation.AcknowledgedAt = &now

	switch decision {
	case ContractorAcknowledged:
		return s.advance(ctx, violation, incident, actor, domain.ViolationStageFinalized, domain.StatusPendingClosure, notes)
	case ContractorContested:
		if !domain.ValidJustification(notes) {
			return nil, fmt.Errorf("%w: contesting a violation requires a written reason", domain.ErrMissingJustification)
		}
		return s.advance(ctx, violation, incident, actor, domain.ViolationStageContested, domain.StatusEscalatedToHSSEManager, notes)
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", domain.ErrInvalidTransition, decision)
	}
}

// ControllerConfirm is the contract controller's confirmation of a fine,
// finalizing the violation.
func (s *Service) ControllerConfirm(ctx context.Context, incidentID, actorID string, notes string) (*domain.Violation, error) {
	violation, incident, actor, err := s.load(ctx, incidentID, actorID)
	if err != nil {
		return nil, err
	}
	if violation.Stage != domain.ViolationStagePendingContractControl {
		return nil, fmt.Errorf("%w: violation is not awaiting fine confirmation", domain.ErrInvalidTransition)
	}
	return s.advance(ctx, violation, incident, actor, domain.ViolationStageFinalized, domain.StatusPendingClosure, notes)
}

// HSSEFinalRuling settles a contested violation: upheld violations
// finalize, dismissed ones terminate as rejected.
func (s *Service) HSSEFinalRuling(ctx context.Context, incidentID, actorID string, uphold bool, notes string) (*domain.Violation, error) {
	violation, incident, actor, err := s.load(ctx, incidentID, actorID)
	if err != nil {
		return nil, err
	}
	if violation.Stage != domain.ViolationStageContested {
		return nil, fmt.Errorf("%w: violation is not contested", domain.ErrInvalidTransition)
	}
	if !domain.ValidJustification(notes) {
		return nil, fmt.Errorf("%w: the final ruling requires written notes", domain.ErrMissingJustification)
	}

	stage := domain.ViolationStageFinalized
	if !uphold {
		stage = domain.ViolationStageRejected
	}
	return s.advance(ctx, violation, incident, actor, stage, domain.StatusPendingClosure, notes)
}

// GetViolationByIncident returns the incident's violation record.
func (s *Service) GetViolationByIncident(ctx context.Context, incidentID string) (*domain.Violation, error) {
	return s.repo.GetViolationByIncident(ctx, incidentID)
}

// ContractorHistory returns the contractor's violations in the tenant.
func (s *Service) ContractorHistory(ctx context.Context, tenantID, contractorID string) ([]*domain.Violation, error) {
	return s.repo.ListViolationsByContractor(ctx, tenantID, contractorID)
}

func (s *Service) load(ctx context.Context, incidentID, actorID string) (*domain.Violation, *domain.Incident, domain.Actor, error) {
	violation, err := s.repo.GetViolationByIncident(ctx, incidentID)
	if err != nil {
		return nil, nil, domain.Actor{}, err
	}
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, nil, domain.Actor{}, err
	}
	actor, err := s.directory.GetActor(ctx, actorID)
	if err != nil {
		return nil, nil, domain.Actor{}, err
	}
	return violation, incident, actor, nil
}

// advance commits a violation stage change together with the mirrored
// incident transition. The gate evaluates the incident edge; stage
// validity was checked by the caller.
func (s *Service) advance(ctx context.Context, violation *domain.Violation, incident *domain.Incident, actor domain.Actor, stage domain.ViolationStage, target domain.IncidentStatus, notes string) (*domain.Violation, error) {
	if violation.Stage.IsTerminal() {
		return nil, fmt.Errorf("%w: violation is already %s", domain.ErrInvalidTransition, violation.Stage)
	}
	if !incident.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: %s cannot move to %s", domain.ErrInvalidTransition, incident.Status, target)
	}

	decision := s.gate.Decide(rolegate.Request{
		Actor:    actor,
		Incident: incident,
		Target:   target,
	})
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrForbidden, decision.Reason)
	}

	from := incident.Status
	now := time.Now()
	violation.Stage = stage
	violation.DecisionNotes = notes
	if stage == domain.ViolationStageFinalized {
		violation.FinalizedAt = &now
	}

	expectedViolationVersion := violation.Version
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.UpdateViolationStageTx(ctx, tx, violation, expectedViolationVersion); err != nil {
			if errors.Is(err, domain.ErrStaleVersion) {
				return fmt.Errorf("%w: violation was modified concurrently", domain.ErrInvalidTransition)
			}
			return fmt.Errorf("update violation: %w", err)
		}
		return s.transitionIncidentTx(ctx, tx, incident, target, actor,
			fmt.Sprintf("violation %s: %s", stage, notes), now)
	})
	if err != nil {
		return nil, err
	}
	violation.Version = expectedViolationVersion + 1

	s.notify(ctx, incident, from, actor, notes)
	return violation, nil
}

// transitionIncidentTx applies the mirrored incident status change and its
// audit entry inside the caller's transaction.
func (s *Service) transitionIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, target domain.IncidentStatus, actor domain.Actor, reason string, now time.Time) error {
	from := incident.Status
	expectedVersion := incident.Version
	incident.Status = target
	incident.StatusChangedAt = now

	if err := s.repo.UpdateIncidentStatusTx(ctx, tx, incident, expectedVersion); err != nil {
		if errors.Is(err, domain.ErrStaleVersion) {
			return fmt.Errorf("%w: incident was modified concurrently", domain.ErrInvalidTransition)
		}
		return fmt.Errorf("update incident: %w", err)
	}
	incident.Version = expectedVersion + 1

	entry := &domain.AuditEntry{
		TenantID:   incident.TenantID,
		IncidentID: incident.ID,
		Tag:        domain.AuditTagTransition,
		FromStatus: &from,
		ToStatus:   &target,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Reason:     reason,
	}
	if err := s.repo.CreateAuditEntryTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
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
