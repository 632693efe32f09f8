package core

import "samplecore/pkg/domain"

type (
	EntityType         = domain.EntityType
	SampleStatus       = domain.SampleStatus
	ActionType         = domain.ActionType
	Role               = domain.Role
	Principal          = domain.Principal
	Sample             = domain.Sample
	SamplePatch        = domain.SamplePatch
	HistoryEntry       = domain.HistoryEntry
	ModificationEntry  = domain.ModificationEntry
	NuclideResult      = domain.NuclideResult
	Geo                = domain.Geo
	Signature          = domain.Signature
	HistoryDetails     = domain.HistoryDetails
	SampleSetSnapshot  = domain.SampleSetSnapshot
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	Severity           = domain.Severity
	RuleViolationError = domain.RuleViolationError
)

const (
	EntitySample = domain.EntitySample
)

const (
	StatusReceived            = domain.StatusReceived
	StatusReceivedAtLab       = domain.StatusReceivedAtLab
	StatusAwaitingPrep        = domain.StatusAwaitingPrep
	StatusAwaitingAnalysis    = domain.StatusAwaitingAnalysis
	StatusAnalyzing           = domain.StatusAnalyzing
	StatusAnalysisDone        = domain.StatusAnalysisDone
	StatusAwaitingTechReview  = domain.StatusAwaitingTechReview
	StatusAwaitingAssocReview = domain.StatusAwaitingAssocReview
	StatusComplete            = domain.StatusComplete
)

const (
	ActionReception     = domain.ActionReception
	ActionReceipt       = domain.ActionReceipt
	ActionPrepQueue     = domain.ActionPrepQueue
	ActionPrepStart     = domain.ActionPrepStart
	ActionPrepDone      = domain.ActionPrepDone
	ActionAnalysisStart = domain.ActionAnalysisStart
	ActionAnalysisDone  = domain.ActionAnalysisDone
	ActionResultsSaved  = domain.ActionResultsSaved
	ActionReviewRequest = domain.ActionReviewRequest
	ActionTechSignoff   = domain.ActionTechSignoff
	ActionSignoff       = domain.ActionSignoff
)

const (
	RoleCollector        = domain.RoleCollector
	RoleAnalyst          = domain.RoleAnalyst
	RoleTechnicalLead    = domain.RoleTechnicalLead
	RoleAssociationAdmin = domain.RoleAssociationAdmin
	RoleSuperAdmin       = domain.RoleSuperAdmin
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)
