package domain

// Transition names a status change for permission checks and audit. The
// role gate's static policy is keyed by these names rather than by raw
// status pairs so that two edges with the same semantics share one rule.
type Transition string

// Transitions.
const (
	TransitionScreenStart         Transition = "incident:screen_start"
	TransitionCloseOnSpot         Transition = "incident:close_on_spot"
	TransitionScreeningApprove    Transition = "incident:screening_approve"
	TransitionScreeningReject     Transition = "incident:screening_reject"
	TransitionReporterConfirm     Transition = "incident:reporter_confirm_rejection"
	TransitionReporterDispute     Transition = "incident:reporter_dispute_rejection"
	TransitionManagerApprove      Transition = "incident:manager_approve"
	TransitionManagerReject       Transition = "incident:manager_reject"
	TransitionAcceptRework        Transition = "incident:accept_rework"
	TransitionOpenDispute         Transition = "dispute:open"
	TransitionResolveDispute      Transition = "dispute:resolve"
	TransitionSubmitInvestigation Transition = "incident:submit_investigation"
	TransitionSubmitViolation     Transition = "violation:submit"
	TransitionViolationDMDecide   Transition = "violation:department_manager_decide"
	TransitionContractorAck       Transition = "violation:contractor_acknowledge"
	TransitionControllerConfirm   Transition = "violation:controller_confirm"
	TransitionHSSEFinalRuling     Transition = "violation:hsse_final_ruling"
	TransitionCloseIncident       Transition = "incident:close"
)

// transitionEdge identifies a status pair.
type transitionEdge struct {
	from IncidentStatus
	to   IncidentStatus
}

// transitionNames maps every edge of the transition table to its named
// transition. Edges reachable from several origins (dispute resolution
// fan-out) share the resolve name.
var transitionNames = map[transitionEdge]Transition{
	{StatusSubmitted, StatusExpertScreening}:                          TransitionScreenStart,
	{StatusSubmitted, StatusClosed}:                                   TransitionCloseOnSpot,
	{StatusExpertScreening, StatusPendingManagerApproval}:             TransitionScreeningApprove,
	{StatusExpertScreening, StatusRejectedByExpert}:                   TransitionScreeningReject,
	{StatusRejectedByExpert, StatusClosedRejected}:                    TransitionReporterConfirm,
	{StatusRejectedByExpert, StatusDisputeResolution}:                 TransitionReporterDispute,
	{StatusPendingManagerApproval, StatusInvestigationInProgress}:     TransitionManagerApprove,
	{StatusPendingManagerApproval, StatusManagerRejected}:             TransitionManagerReject,
	{StatusManagerRejected, StatusInvestigationInProgress}:            TransitionAcceptRework,
	{StatusManagerRejected, StatusDisputeResolution}:                  TransitionOpenDispute,
	{StatusDisputeResolution, StatusPendingClosure}:                   TransitionResolveDispute,
	{StatusDisputeResolution, StatusInvestigationInProgress}:          TransitionResolveDispute,
	{StatusDisputeResolution, StatusExpertScreening}:                  TransitionResolveDispute,
	{StatusDisputeResolution, StatusClosedRejected}:                   TransitionResolveDispute,
	{StatusInvestigationInProgress, StatusPendingClosure}:             TransitionSubmitInvestigation,
	{StatusInvestigationInProgress, StatusPendingDeptManagerViolation}: TransitionSubmitViolation,
	{StatusPendingDeptManagerViolation, StatusPendingContractorSiteRep}: TransitionViolationDMDecide,
	{StatusPendingDeptManagerViolation, StatusPendingFinalClosure}:    TransitionViolationDMDecide,
	{StatusPendingDeptManagerViolation, StatusPendingClosure}:         TransitionViolationDMDecide,
	{StatusPendingContractorSiteRep, StatusPendingClosure}:            TransitionContractorAck,
	{StatusPendingContractorSiteRep, StatusEscalatedToHSSEManager}:    TransitionContractorAck,
	{StatusPendingFinalClosure, StatusPendingClosure}:                 TransitionControllerConfirm,
	{StatusEscalatedToHSSEManager, StatusPendingClosure}:              TransitionHSSEFinalRuling,
	{StatusPendingClosure, StatusClosed}:                              TransitionCloseIncident,
}

// TransitionFor resolves the named transition for a status pair. The
// second result is false when the pair is not an edge of the table.
func TransitionFor(from, to IncidentStatus) (Transition, bool) {
	t, ok := transitionNames[transitionEdge{from, to}]
	return t, ok
}
