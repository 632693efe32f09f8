package core

import "samplecore/pkg/domain"

// statusOrder lists the lifecycle states in forward order. The machine is
// strictly linear, which lets the guard tell a stale caller apart from an
// illegal one by comparing positions.
var statusOrder = []SampleStatus{
	StatusReceived,
	StatusReceivedAtLab,
	StatusAwaitingPrep,
	StatusAwaitingAnalysis,
	StatusAnalyzing,
	StatusAnalysisDone,
	StatusAwaitingTechReview,
	StatusAwaitingAssocReview,
	StatusComplete,
}

var statusIndex = func() map[SampleStatus]int {
	idx := make(map[SampleStatus]int, len(statusOrder))
	for i, s := range statusOrder {
		idx[s] = i
	}
	return idx
}()

// transition is one forward step of the machine: unique source status, target
// status, and the roles allowed to perform it.
type transition struct {
	From  SampleStatus
	To    SampleStatus
	Roles map[Role]struct{}
}

// annotation is an action that appends evidence at exactly one status without
// advancing the machine.
type annotation struct {
	At    SampleStatus
	Roles map[Role]struct{}
}

var labRoles = roleSet(RoleAnalyst, RoleTechnicalLead, RoleSuperAdmin)

var transitions = map[ActionType]transition{
	ActionReceipt:       {From: StatusReceived, To: StatusReceivedAtLab, Roles: labRoles},
	ActionPrepQueue:     {From: StatusReceivedAtLab, To: StatusAwaitingPrep, Roles: labRoles},
	ActionPrepStart:     {From: StatusAwaitingPrep, To: StatusAwaitingAnalysis, Roles: labRoles},
	ActionAnalysisStart: {From: StatusAwaitingAnalysis, To: StatusAnalyzing, Roles: labRoles},
	ActionAnalysisDone:  {From: StatusAnalyzing, To: StatusAnalysisDone, Roles: labRoles},
	ActionReviewRequest: {From: StatusAnalysisDone, To: StatusAwaitingTechReview, Roles: labRoles},
	ActionTechSignoff:   {From: StatusAwaitingTechReview, To: StatusAwaitingAssocReview, Roles: roleSet(RoleTechnicalLead, RoleSuperAdmin)},
	ActionSignoff:       {From: StatusAwaitingAssocReview, To: StatusComplete, Roles: roleSet(RoleAssociationAdmin, RoleSuperAdmin)},
}

var annotations = map[ActionType]annotation{
	ActionPrepDone:     {At: StatusAwaitingAnalysis, Roles: labRoles},
	ActionResultsSaved: {At: StatusAnalyzing, Roles: labRoles},
}

// receptionRoles may register a new sample. Reception is the creating action
// and has no source status.
var receptionRoles = roleSet(RoleCollector, RoleAnalyst, RoleSuperAdmin)

func roleSet(roles ...Role) map[Role]struct{} {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// derivedStatus maps the last appended history action to the status the
// sample must show. The mapping is total over the action vocabulary, so
// status is always reconstructible from the ledger alone.
var derivedStatus = func() map[ActionType]SampleStatus {
	m := map[ActionType]SampleStatus{ActionReception: StatusReceived}
	for action, t := range transitions {
		m[action] = t.To
	}
	for action, a := range annotations {
		m[action] = a.At
	}
	return m
}()

// guard validates a requested action against the sample's current status and
// the principal's role and office assignment. The returned error discriminates
// between a caller who lost a race (StaleState: the sample already moved past
// the action's source status) and one whose request was never legal
// (InvalidTransition).
func guard(current SampleStatus, action ActionType, p Principal, labID string) (transition, error) {
	var source SampleStatus
	var roles map[Role]struct{}
	var result transition

	if t, ok := transitions[action]; ok {
		source, roles, result = t.From, t.Roles, t
	} else if a, ok := annotations[action]; ok {
		source, roles = a.At, a.Roles
		result = transition{From: a.At, To: a.At, Roles: a.Roles}
	} else {
		return transition{}, domain.InvalidTransitionError{Status: current, Action: action}
	}

	if current != source {
		if statusIndex[current] > statusIndex[source] {
			return transition{}, domain.StaleStateError{Expected: source, Actual: current}
		}
		return transition{}, domain.InvalidTransitionError{Status: current, Action: action}
	}
	if _, ok := roles[p.Role]; !ok {
		return transition{}, domain.ForbiddenError{Role: p.Role, Action: action}
	}
	if !p.AssignedTo(labID) {
		return transition{}, domain.ForbiddenError{Role: p.Role, Action: action}
	}
	return result, nil
}
