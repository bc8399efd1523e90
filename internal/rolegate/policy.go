package rolegate

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// rbacModel is the static role-to-transition permission model. Assignment
// checks and the severity lock are evaluated in Go on top of it.
const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

// transitionPolicies is the role→transition permission table.
var transitionPolicies = map[domain.Transition][]domain.Role{
	domain.TransitionScreenStart:      {domain.RoleHSSEExpert, domain.RoleAdmin},
	domain.TransitionCloseOnSpot:      {domain.RoleHSSEExpert, domain.RoleHSSEManager, domain.RoleAdmin},
	domain.TransitionScreeningApprove: {domain.RoleHSSEExpert, domain.RoleAdmin},
	domain.TransitionScreeningReject:  {domain.RoleHSSEExpert, domain.RoleAdmin},

	// Reporter responses: anyone can report, so the static table only
	// requires the base employee role; the assignment check pins the
	// actor to the original reporter.
	domain.TransitionReporterConfirm: {domain.RoleEmployee},
	domain.TransitionReporterDispute: {domain.RoleEmployee},

	domain.TransitionManagerApprove: {domain.RoleDepartmentManager, domain.RoleHSSEManager, domain.RoleAdmin},
	domain.TransitionManagerReject:  {domain.RoleDepartmentManager, domain.RoleHSSEManager, domain.RoleAdmin},

	domain.TransitionAcceptRework:         {domain.RoleInvestigator},
	domain.TransitionOpenDispute:          {domain.RoleInvestigator},
	domain.TransitionResolveDispute:       {domain.RoleHSSEManager, domain.RoleAdmin},
	domain.TransitionSubmitInvestigation:  {domain.RoleInvestigator},
	domain.TransitionSubmitViolation:      {domain.RoleInvestigator},
	domain.TransitionViolationDMDecide:    {domain.RoleDepartmentManager, domain.RoleAdmin},
	domain.TransitionContractorAck:        {domain.RoleContractorSiteRep},
	domain.TransitionControllerConfirm:    {domain.RoleContractController, domain.RoleAdmin},
	domain.TransitionHSSEFinalRuling:      {domain.RoleHSSEManager, domain.RoleAdmin},
	domain.TransitionCloseIncident:        {domain.RoleDepartmentManager, domain.RoleHSSEManager, domain.RoleAdmin},
}

// overridableTransitions lists the transitions an admin may force with a
// written justification when the assignment check would otherwise block
// them. Closure of catastrophic incidents is deliberately absent: the
// severity lock is checked before the override path and always wins.
var overridableTransitions = map[domain.Transition]bool{
	domain.TransitionScreenStart:         true,
	domain.TransitionScreeningApprove:    true,
	domain.TransitionScreeningReject:     true,
	domain.TransitionManagerApprove:      true,
	domain.TransitionManagerReject:       true,
	domain.TransitionAcceptRework:        true,
	domain.TransitionSubmitInvestigation: true,
	domain.TransitionViolationDMDecide:   true,
	domain.TransitionControllerConfirm:   true,
	domain.TransitionCloseIncident:       true,
}

// allRoles enumerates the role set for the employee-base grouping.
var allRoles = []domain.Role{
	domain.RoleHSSEExpert,
	domain.RoleHSSEManager,
	domain.RoleDepartmentManager,
	domain.RoleInvestigator,
	domain.RoleContractController,
	domain.RoleContractorSiteRep,
	domain.RoleAdmin,
}

// newEnforcer builds the in-memory casbin enforcer from the permission
// table. Every role inherits the base employee role.
func newEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parse rbac model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	for transition, roles := range transitionPolicies {
		for _, role := range roles {
			if _, err := e.AddPolicy(string(role), string(transition)); err != nil {
				return nil, fmt.Errorf("add policy %s/%s: %w", role, transition, err)
			}
		}
	}

	for _, role := range allRoles {
		if _, err := e.AddGroupingPolicy(string(role), string(domain.RoleEmployee)); err != nil {
			return nil, fmt.Errorf("add role inheritance for %s: %w", role, err)
		}
	}

	return e, nil
}
