// Package rolegate answers whether an actor may perform a workflow
// transition on an incident. Evaluation is pure: the actor arrives with
// roles and department already resolved, and nothing here touches storage.
package rolegate

import (
	"fmt"

	"github.com/casbin/casbin/v2"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Gate evaluates transition permissions.
type Gate struct {
	enforcer *casbin.Enforcer
}

// New creates a Gate with the built-in permission table.
func New() (*Gate, error) {
	e, err := newEnforcer()
	if err != nil {
		return nil, err
	}
	return &Gate{enforcer: e}, nil
}

// Request describes an attempted transition.
type Request struct {
	Actor    domain.Actor
	Incident *domain.Incident
	Target   domain.IncidentStatus
	// Justification backs admin overrides and severity-5 closures.
	Justification string
}

// Decision is the gate's verdict.
type Decision struct {
	Allowed    bool
	Transition domain.Transition
	// Override is set when the decision was reached through the admin
	// override escape hatch; callers must audit it as such.
	Override bool
	// MissingJustification is set when the denial is curable by supplying
	// a long-enough justification rather than by a different actor.
	MissingJustification bool
	Reason               string
}

// Decide evaluates a transition request: edge validity is assumed checked
// by the caller; this combines the severity lock, the static role table,
// the dynamic assignment checks and the admin override, in that order.
func (g *Gate) Decide(req Request) Decision {
	transition, ok := domain.TransitionFor(req.Incident.Status, req.Target)
	if !ok {
		return Decision{Reason: fmt.Sprintf("no transition from %s to %s", req.Incident.Status, req.Target)}
	}

	// The catastrophic-severity closure lock is evaluated first so that
	// no later branch, including admin override, can reach around it.
	if closesIncident(transition) && req.Incident.Severity == domain.SeverityCatastrophic {
		if !req.Actor.ManagerTier() {
			return Decision{
				Transition: transition,
				Reason:     "catastrophic-severity incidents may only be closed by HSSE manager tier",
			}
		}
		if !domain.ValidJustification(req.Justification) {
			return Decision{
				Transition:           transition,
				MissingJustification: true,
				Reason:               "catastrophic-severity closure requires a written justification",
			}
		}
	}

	staticOK := g.roleAllowed(req.Actor, transition)
	dynamicOK, dynamicReason := assignmentSatisfied(req.Actor, req.Incident, transition)

	if staticOK && dynamicOK {
		return Decision{Allowed: true, Transition: transition}
	}

	if d, ok := g.tryOverride(req, transition); ok {
		return d
	}

	reason := dynamicReason
	if !staticOK {
		reason = fmt.Sprintf("role not permitted for %s", transition)
	}
	return Decision{Transition: transition, Reason: reason}
}

// CanPerform is the boolean form of Decide for callers that only need a
// yes/no answer (e.g. computing available actions for a client).
func (g *Gate) CanPerform(actor domain.Actor, incident *domain.Incident, target domain.IncidentStatus) bool {
	return g.Decide(Request{Actor: actor, Incident: incident, Target: target}).Allowed
}

// tryOverride evaluates the admin escape hatch.
func (g *Gate) tryOverride(req Request, transition domain.Transition) (Decision, bool) {
	if !req.Actor.IsAdmin() || !overridableTransitions[transition] {
		return Decision{}, false
	}
	if !domain.ValidJustification(req.Justification) {
		return Decision{
			Transition:           transition,
			MissingJustification: true,
			Reason:               "admin override requires a justification of at least 10 characters",
		}, true
	}
	return Decision{Allowed: true, Transition: transition, Override: true}, true
}

// roleAllowed checks the static table for any of the actor's roles.
func (g *Gate) roleAllowed(actor domain.Actor, transition domain.Transition) bool {
	for _, role := range actor.Roles {
		ok, err := g.enforcer.Enforce(string(role), string(transition))
		if err == nil && ok {
			return true
		}
	}
	return false
}

// assignmentSatisfied applies the dynamic checks: reporter identity,
// assigned investigator/approver, and department representation.
func assignmentSatisfied(actor domain.Actor, incident *domain.Incident, transition domain.Transition) (bool, string) {
	switch transition {
	case domain.TransitionReporterConfirm, domain.TransitionReporterDispute:
		if actor.ID != incident.ReporterID {
			return false, "only the original reporter may respond to the rejection"
		}
	case domain.TransitionManagerApprove, domain.TransitionManagerReject:
		if incident.ApproverID == nil || actor.ID != *incident.ApproverID {
			return false, "actor is not the assigned approving manager"
		}
	case domain.TransitionAcceptRework, domain.TransitionOpenDispute,
		domain.TransitionSubmitInvestigation, domain.TransitionSubmitViolation:
		if incident.InvestigatorID == nil || actor.ID != *incident.InvestigatorID {
			return false, "actor is not the assigned investigator"
		}
	case domain.TransitionViolationDMDecide:
		if actor.DepartmentID != incident.DepartmentID && !actor.IsAdmin() {
			return false, "actor does not represent the incident's department"
		}
	}
	return true, ""
}

// closesIncident reports whether the transition reaches the terminal
// closed status.
func closesIncident(t domain.Transition) bool {
	return t == domain.TransitionCloseIncident || t == domain.TransitionCloseOnSpot
}
