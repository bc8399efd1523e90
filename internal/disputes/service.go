package disputes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

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

// Service implements the dispute module.
type Service struct {
	repo      Repository
	gate      *rolegate.Gate
	directory Directory
	notifier  Notifier
}

// NewService creates a new disputes service.
func NewService(repo Repository, gate *rolegate.Gate, directory Directory, notifier Notifier) *Service {
	return &Service{
		repo:      repo,
		gate:      gate,
		directory: directory,
		notifier:  notifier,
	}
}

// OpenDisputeInput holds data for opening a dispute.
type OpenDisputeInput struct {
	IncidentID   string
	ActorID      string
	Category     domain.DisputeCategory
	Reason       string
	EvidenceRefs []string
}

// Open opens a dispute against a rejection. The incident must currently be
// in a dispute-eligible rejection state, and only one open dispute may
// exist per incident. Evidence references are stored verbatim.
func (s *Service) Open(ctx context.Context, input OpenDisputeInput) (*domain.Dispute, error) {
	incident, err := s.repo.GetIncident(ctx, input.IncidentID)
	if err != nil {
		return nil, err
	}
	actor, err := s.directory.GetActor(ctx, input.ActorID)
	if err != nil {
		return nil, err
	}

	if !input.Category.IsValid() {
		return nil, fmt.Errorf("invalid dispute category: %s", input.Category)
	}
	if !incident.Status.DisputeEligible() {
		return nil, fmt.Errorf("%w: disputes may only be opened against a rejection", domain.ErrInvalidTransition)
	}
	if !domain.ValidJustification(input.Reason) {
		return nil, fmt.Errorf("%w: a dispute requires a written reason", domain.ErrMissingJustification)
	}

	if _, err := s.repo.GetOpenDispute(ctx, input.IncidentID); err == nil {
		return nil, fmt.Errorf("%w: an open dispute already exists for this incident", domain.ErrInvalidTransition)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	decision := s.gate.Decide(rolegate.Request{
		Actor:    actor,
		Incident: incident,
		Target:   domain.StatusDisputeResolution,
	})
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrForbidden, decision.Reason)
	}

	now := time.Now()
	dispute := &domain.Dispute{
		IncidentID:   input.IncidentID,
		TenantID:     incident.TenantID,
		Category:     input.Category,
		Reason:       input.Reason,
		EvidenceRefs: input.EvidenceRefs,
		OriginStatus: incident.Status,
		OpenedBy:     input.ActorID,
		Status:       domain.DisputeOpen,
		OpenedAt:     now,
	}

	from := incident.Status
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.CreateDisputeTx(ctx, tx, dispute); err != nil {
			return fmt.Errorf("create dispute: %w", err)
		}
		return s.transitionIncidentTx(ctx, tx, incident, domain.StatusDisputeResolution, actor,
			fmt.Sprintf("dispute opened (%s): %s", input.Category, input.Reason), now)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, incident, from, actor, input.Reason)
	return dispute, nil
}

// OpenForReporter opens a dispute on behalf of the original reporter
// responding to a screening rejection. Satisfies the workflow module's
// dispute opener interface.
func (s *Service) OpenForReporter(ctx context.Context, incidentID, actorID string, category domain.DisputeCategory, reason string) (*domain.Dispute, error) {
	return s.Open(ctx, OpenDisputeInput{
		IncidentID: incidentID,
		ActorID:    actorID,
		Category:   category,
		Reason:     reason,
	})
}

// Resolve settles the open dispute. Only a mediator (HSSE manager or
// admin) may resolve, notes are mandatory, and the outcome routes the
// incident according to where the dispute came from.
func (s *Service) Resolve(ctx context.Context, incidentID, actorID string, decision domain.DisputeDecision, notes string) (*domain.Dispute, error) {
	dispute, err := s.repo.GetOpenDispute(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	actor, err := s.directory.GetActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if !decision.IsValid() {
		return nil, fmt.Errorf("invalid dispute decision: %s", decision)
	}
	if incident.Status != domain.StatusDisputeResolution {
		return nil, fmt.Errorf("%w: incident is not in dispute resolution", domain.ErrInvalidTransition)
	}
	if !domain.ValidJustification(notes) {
		return nil, fmt.Errorf("%w: a resolution requires written notes", domain.ErrMissingJustification)
	}

	target, rework := resolutionTarget(dispute.OriginStatus, decision)

	gateDecision := s.gate.Decide(rolegate.Request{
		Actor:         actor,
		Incident:      incident,
		Target:        target,
		Justification: notes,
	})
	if !gateDecision.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrForbidden, gateDecision.Reason)
	}

	now := time.Now()
	dispute.Status = domain.DisputeResolved
	dispute.MediatorID = &actorID
	dispute.Decision = &decision
	dispute.DecisionNotes = notes
	dispute.ResolvedAt = &now

	from := incident.Status
	incident.ReworkRequired = rework

	// Routing into the investigation phase needs an investigation record
	// to rework; disputes opened before any investigation existed (a
	// rejection straight out of manager approval) have none yet.
	var missingInvestigation bool
	if target == domain.StatusInvestigationInProgress {
		if incident.InvestigatorID == nil {
			return nil, fmt.Errorf("%w: no investigator assigned to resume the investigation", domain.ErrPrerequisitesNotMet)
		}
		has, err := s.repo.HasActiveInvestigation(ctx, incidentID)
		if err != nil {
			return nil, err
		}
		missingInvestigation = !has
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.ResolveDisputeTx(ctx, tx, dispute); err != nil {
			return fmt.Errorf("resolve dispute: %w", err)
		}
		if missingInvestigation {
			investigation := &domain.Investigation{
				IncidentID:     incidentID,
				InvestigatorID: *incident.InvestigatorID,
				CreatedAt:      now,
			}
			if err := s.repo.CreateInvestigationTx(ctx, tx, investigation); err != nil {
				return err
			}
		}
		return s.transitionIncidentTx(ctx, tx, incident, target, actor,
			fmt.Sprintf("dispute resolved (%s): %s", decision, notes), now)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, incident, from, actor, notes)
	return dispute, nil
}

// GetOpenDispute returns the incident's open dispute.
func (s *Service) GetOpenDispute(ctx context.Context, incidentID string) (*domain.Dispute, error) {
	return s.repo.GetOpenDispute(ctx, incidentID)
}

// ListDisputes returns the incident's dispute history.
func (s *Service) ListDisputes(ctx context.Context, incidentID string) ([]*domain.Dispute, error) {
	return s.repo.ListDisputesByIncident(ctx, incidentID)
}

// resolutionTarget maps a resolution decision onto the incident's next
// status. Investigation disputes (origin manager_rejected) route forward
// to closure or back to rework; reporter disputes (origin
// rejected_by_expert) route back to screening or confirm the rejection.
// partial_rework shares maintain's target but flags that only some items
// need redoing.
func resolutionTarget(origin domain.IncidentStatus, decision domain.DisputeDecision) (domain.IncidentStatus, bool) {
	if origin == domain.StatusRejectedByExpert {
		switch decision {
		case domain.DecisionOverrideRejection:
			return domain.StatusExpertScreening, false
		case domain.DecisionPartialRework:
			return domain.StatusExpertScreening, true
		default:
			return domain.StatusClosedRejected, false
		}
	}

	switch decision {
	case domain.DecisionOverrideRejection:
		return domain.StatusPendingClosure, false
	case domain.DecisionPartialRework:
		return domain.StatusInvestigationInProgress, true
	default:
		return domain.StatusInvestigationInProgress, false
	}
}

// transitionIncidentTx applies the mirrored incident status change and its
// audit entry inside the caller's transaction.
func (s *Service) transitionIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, target domain.IncidentStatus, actor domain.Actor, reason string, now time.Time) error {
	if !incident.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s cannot move to %s", domain.ErrInvalidTransition, incident.Status, target)
	}

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
