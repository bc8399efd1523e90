package rolegate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safetrack-io/safetrack/internal/domain"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := New()
	require.NoError(t, err)
	return gate
}

func actor(id string, roles ...domain.Role) domain.Actor {
	return domain.Actor{ID: id, Name: id, Roles: roles}
}

func incidentAt(status domain.IncidentStatus, severity domain.Severity) *domain.Incident {
	return &domain.Incident{
		ID:           "inc-1",
		Status:       status,
		Severity:     severity,
		ReporterID:   "reporter-1",
		DepartmentID: "dept-1",
	}
}

func TestDecide_StaticRoleTable(t *testing.T) {
	gate := newTestGate(t)
	incident := incidentAt(domain.StatusSubmitted, domain.SeverityLevel3)

	d := gate.Decide(Request{
		Actor:    actor("expert", domain.RoleHSSEExpert),
		Incident: incident,
		Target:   domain.StatusExpertScreening,
	})
	assert.True(t, d.Allowed)
	assert.Equal(t, domain.TransitionScreenStart, d.Transition)
	assert.False(t, d.Override)

	d = gate.Decide(Request{
		Actor:    actor("worker", domain.RoleEmployee),
		Incident: incident,
		Target:   domain.StatusExpertScreening,
	})
	assert.False(t, d.Allowed)
	assert.NotEmpty(t, d.Reason)
}

func TestDecide_UnknownEdge(t *testing.T) {
	gate := newTestGate(t)

	d := gate.Decide(Request{
		Actor:    actor("admin", domain.RoleAdmin),
		Incident: incidentAt(domain.StatusSubmitted, domain.SeverityLevel3),
		Target:   domain.StatusPendingClosure,
	})
	assert.False(t, d.Allowed)
}

func TestDecide_ReporterAssignment(t *testing.T) {
	gate := newTestGate(t)
	incident := incidentAt(domain.StatusRejectedByExpert, domain.SeverityLevel2)

	d := gate.Decide(Request{
		Actor:    actor("reporter-1", domain.RoleEmployee),
		Incident: incident,
		Target:   domain.StatusClosedRejected,
	})
	assert.True(t, d.Allowed)

	// A senior role does not substitute for being the reporter.
	d = gate.Decide(Request{
		Actor:    actor("manager", domain.RoleHSSEManager),
		Incident: incident,
		Target:   domain.StatusClosedRejected,
	})
	assert.False(t, d.Allowed)
}

func TestDecide_ApproverAssignment(t *testing.T) {
	gate := newTestGate(t)
	incident := incidentAt(domain.StatusPendingManagerApproval, domain.SeverityLevel3)
	approver := "manager-1"
	incident.ApproverID = &approver

	d := gate.Decide(Request{
		Actor:    actor("manager-1", domain.RoleDepartmentManager),
		Incident: incident,
		Target:   domain.StatusInvestigationInProgress,
	})
	assert.True(t, d.Allowed)

	d = gate.Decide(Request{
		Actor:    actor("manager-2", domain.RoleDepartmentManager),
		Incident: incident,
		Target:   domain.StatusInvestigationInProgress,
	})
	assert.False(t, d.Allowed)
}

func TestDecide_AdminOverride(t *testing.T) {
	gate := newTestGate(t)
	incident := incidentAt(domain.StatusPendingManagerApproval, domain.SeverityLevel3)
	approver := "manager-1"
	incident.ApproverID = &approver

	admin := actor("admin", domain.RoleAdmin)

	d := gate.Decide(Request{Actor: admin, Incident: incident, Target: domain.StatusInvestigationInProgress})
	assert.False(t, d.Allowed)
	assert.True(t, d.MissingJustification)

	d = gate.Decide(Request{
		Actor:         admin,
		Incident:      incident,
		Target:        domain.StatusInvestigationInProgress,
		Justification: "assigned manager unavailable this week",
	})
	assert.True(t, d.Allowed)
	assert.True(t, d.Override)
}

func TestDecide_OverrideNotAvailableForOnSpotClosure(t *testing.T) {
	gate := newTestGate(t)
	incident := incidentAt(domain.StatusSubmitted, domain.SeverityLevel1)
	incident.Category = domain.CategoryObservation

	// Admins hold the close_on_spot role directly; an employee cannot be
	// overridden into it because the transition is not overridable and
	// the employee fails the static table.
	d := gate.Decide(Request{
		Actor:         actor("worker", domain.RoleEmployee),
		Incident:      incident,
		Target:        domain.StatusClosed,
		Justification: "closing my own observation right away",
	})
	assert.False(t, d.Allowed)
}

func TestDecide_CatastrophicSeverityLock(t *testing.T) {
	gate := newTestGate(t)
	incident := incidentAt(domain.StatusPendingClosure, domain.SeverityCatastrophic)

	d := gate.Decide(Request{
		Actor:    actor("manager", domain.RoleDepartmentManager),
		Incident: incident,
		Target:   domain.StatusClosed,
	})
	assert.False(t, d.Allowed)
	assert.False(t, d.MissingJustification)

	d = gate.Decide(Request{
		Actor:    actor("hsse", domain.RoleHSSEManager),
		Incident: incident,
		Target:   domain.StatusClosed,
	})
	assert.False(t, d.Allowed)
	assert.True(t, d.MissingJustification)

	d = gate.Decide(Request{
		Actor:         actor("hsse", domain.RoleHSSEManager),
		Incident:      incident,
		Target:        domain.StatusClosed,
		Justification: "board review completed, closure approved",
	})
	assert.True(t, d.Allowed)

	// The lock binds admins too: justification is still mandatory.
	d = gate.Decide(Request{
		Actor:    actor("admin", domain.RoleAdmin),
		Incident: incident,
		Target:   domain.StatusClosed,
	})
	assert.False(t, d.Allowed)
	assert.True(t, d.MissingJustification)
}

func TestDecide_EveryRoleInheritsEmployee(t *testing.T) {
	gate := newTestGate(t)
	incident := incidentAt(domain.StatusRejectedByExpert, domain.SeverityLevel2)
	incident.ReporterID = "expert-1"

	// An HSSE expert who reported an incident responds to its rejection
	// through the inherited employee permission.
	d := gate.Decide(Request{
		Actor:    actor("expert-1", domain.RoleHSSEExpert),
		Incident: incident,
		Target:   domain.StatusClosedRejected,
	})
	assert.True(t, d.Allowed)
}

func TestCanPerform(t *testing.T) {
	gate := newTestGate(t)
	incident := incidentAt(domain.StatusSubmitted, domain.SeverityLevel3)

	assert.True(t, gate.CanPerform(actor("expert", domain.RoleHSSEExpert), incident, domain.StatusExpertScreening))
	assert.False(t, gate.CanPerform(actor("worker", domain.RoleEmployee), incident, domain.StatusExpertScreening))
}
