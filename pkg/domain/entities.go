// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by samplecore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntitySample identifies a tracked specimen record.
	EntitySample EntityType = "sample"
	// EntityLabOffice identifies a registry office entry.
	EntityLabOffice EntityType = "lab_office"
)

// SampleStatus enumerates the canonical lifecycle states of a sample. The
// machine is strictly linear: every status has at most one legal forward
// transition and there are no branches or cycles.
type SampleStatus string

// Lifecycle states in forward order.
const (
	// StatusReceived indicates the specimen was collected and registered.
	StatusReceived SampleStatus = "received"
	// StatusReceivedAtLab indicates the inspection office took custody.
	StatusReceivedAtLab SampleStatus = "received_at_lab"
	// StatusAwaitingPrep indicates the sample is queued for pre-treatment.
	StatusAwaitingPrep SampleStatus = "awaiting_prep"
	// StatusAwaitingAnalysis indicates pre-treatment is underway or finished
	// and the sample is bound for measurement.
	StatusAwaitingAnalysis SampleStatus = "awaiting_analysis"
	// StatusAnalyzing indicates radionuclide measurement is in progress.
	StatusAnalyzing SampleStatus = "analyzing"
	// StatusAnalysisDone indicates measurement finished.
	StatusAnalysisDone SampleStatus = "analysis_done"
	// StatusAwaitingTechReview indicates the result awaits the technical lead.
	StatusAwaitingTechReview SampleStatus = "awaiting_tech_review"
	// StatusAwaitingAssocReview indicates the result awaits association sign-off.
	StatusAwaitingAssocReview SampleStatus = "awaiting_assoc_review"
	// StatusComplete is the terminal, notifiable state.
	StatusComplete SampleStatus = "complete"
)

// ActionType enumerates the closed vocabulary of history entry actions.
type ActionType string

// History actions. Transition actions advance the status by exactly one step;
// annotation actions (PrepDone, ResultsSaved) append evidence without moving
// the machine.
const (
	ActionReception     ActionType = "reception"
	ActionReceipt       ActionType = "receipt"
	ActionPrepQueue     ActionType = "prep_queue"
	ActionPrepStart     ActionType = "prep_start"
	ActionPrepDone      ActionType = "prep_done"
	ActionAnalysisStart ActionType = "analysis_start"
	ActionAnalysisDone  ActionType = "analysis_done"
	ActionResultsSaved  ActionType = "results_saved"
	ActionReviewRequest ActionType = "review_request"
	ActionTechSignoff   ActionType = "tech_signoff"
	ActionSignoff       ActionType = "signoff"
)

// Role names the acting capacity of a principal.
type Role string

// Principal roles recognised by the transition guard.
const (
	RoleCollector        Role = "collector"
	RoleAnalyst          Role = "analyst"
	RoleTechnicalLead    Role = "technical_lead"
	RoleAssociationAdmin Role = "association_admin"
	RoleSuperAdmin       Role = "super_admin"
)

// Principal is the authenticated identity supplied by the external identity
// context. It is consumed, never produced, by the core.
type Principal struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Role        Role     `json:"role"`
	LabIDs      []string `json:"lab_ids"`
}

// AssignedTo reports whether the principal is assigned to the given office.
// SuperAdmin principals are assigned everywhere.
func (p Principal) AssignedTo(labID string) bool {
	if p.Role == RoleSuperAdmin {
		return true
	}
	for _, id := range p.LabIDs {
		if id == labID {
			return true
		}
	}
	return false
}

// Geo is a best-effort device geoposition captured at the time of an action.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Signature records an explicit counter-signature, distinct from the entry
// commit timestamp.
type Signature struct {
	Name     string    `json:"name"`
	SignedAt time.Time `json:"signed_at"`
}

// NuclideResult is one measured row of the radionuclide result set. When
// BelowDetectionLimit is set, Concentration is read as an upper bound and
// Uncertainty does not apply.
type NuclideResult struct {
	Nuclide             string   `json:"nuclide"`
	BelowDetectionLimit bool     `json:"below_detection_limit"`
	Concentration       float64  `json:"concentration"`
	Uncertainty         *float64 `json:"uncertainty,omitempty"`
}

// NormalizeResults returns a copy of rows with Uncertainty cleared wherever
// BelowDetectionLimit is set. The engine applies this on every save; a stale
// uncertainty from a prior edit must never survive alongside a less-than
// value.
func NormalizeResults(rows []NuclideResult) []NuclideResult {
	if rows == nil {
		return nil
	}
	out := make([]NuclideResult, len(rows))
	for i, row := range rows {
		cp := row
		if cp.BelowDetectionLimit {
			cp.Uncertainty = nil
		} else if row.Uncertainty != nil {
			v := *row.Uncertainty
			cp.Uncertainty = &v
		}
		out[i] = cp
	}
	return out
}

// HistoryEntry is one immutable fact about what happened to a sample.
// Entries are only ever appended, never edited or removed.
type HistoryEntry struct {
	Action    ActionType     `json:"action"`
	Actor     string         `json:"actor"`
	ActorID   string         `json:"actor_id"`
	Role      Role           `json:"role"`
	Timestamp time.Time      `json:"timestamp"`
	Location  *Geo           `json:"location,omitempty"`
	Signature *Signature     `json:"signature,omitempty"`
	Details   HistoryDetails `json:"-"`
	PhotoRefs []string       `json:"photo_refs,omitempty"`
}

// ModificationEntry records a corrective edit to descriptive fields. The
// Reason is mandatory; commits with an empty reason are rejected before they
// reach the store.
type ModificationEntry struct {
	Reason    string    `json:"reason"`
	Editor    string    `json:"editor"`
	EditorID  string    `json:"editor_id"`
	Timestamp time.Time `json:"timestamp"`
	Fields    []string  `json:"fields"`
}

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sample is the tracked physical specimen and its compliance record.
type Sample struct {
	Base
	Code                   string              `json:"code"`
	Status                 SampleStatus        `json:"status"`
	LabID                  string              `json:"lab_id"`
	ItemName               string              `json:"item_name"`
	SampleType             string              `json:"sample_type"`
	SampleAmount           string              `json:"sample_amount"`
	CollectionLocation     string              `json:"collection_location"`
	CollectionTimestamp    time.Time           `json:"collection_timestamp"`
	Collector              string              `json:"collector"`
	CollectorContact       string              `json:"collector_contact"`
	CollectingOrganization string              `json:"collecting_organization"`
	Notes                  string              `json:"notes"`
	History                []HistoryEntry      `json:"history"`
	ModificationHistory    []ModificationEntry `json:"modification_history"`
	AnalysisResults        []NuclideResult     `json:"analysis_results,omitempty"`
	PhotoRefs              []string            `json:"photo_refs,omitempty"`
	// Revision counts committed writes and backs the optimistic precondition.
	Revision int `json:"revision"`
}

// LastAction returns the action of the most recently appended history entry.
func (s Sample) LastAction() (ActionType, bool) {
	if len(s.History) == 0 {
		return "", false
	}
	return s.History[len(s.History)-1].Action, true
}

// SamplePatch is a corrective edit over the descriptive attributes. Nil
// fields are left untouched. Status, history, and the modification ledger are
// deliberately not patchable.
type SamplePatch struct {
	Code                   *string    `json:"code,omitempty"`
	ItemName               *string    `json:"item_name,omitempty"`
	SampleType             *string    `json:"sample_type,omitempty"`
	SampleAmount           *string    `json:"sample_amount,omitempty"`
	CollectionLocation     *string    `json:"collection_location,omitempty"`
	CollectionTimestamp    *time.Time `json:"collection_timestamp,omitempty"`
	Collector              *string    `json:"collector,omitempty"`
	CollectorContact       *string    `json:"collector_contact,omitempty"`
	CollectingOrganization *string    `json:"collecting_organization,omitempty"`
	Notes                  *string    `json:"notes,omitempty"`
}

// Fields lists the names of the attributes the patch touches, in declaration
// order, for the modification ledger.
func (p SamplePatch) Fields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.Code != nil, "code")
	add(p.ItemName != nil, "item_name")
	add(p.SampleType != nil, "sample_type")
	add(p.SampleAmount != nil, "sample_amount")
	add(p.CollectionLocation != nil, "collection_location")
	add(p.CollectionTimestamp != nil, "collection_timestamp")
	add(p.Collector != nil, "collector")
	add(p.CollectorContact != nil, "collector_contact")
	add(p.CollectingOrganization != nil, "collecting_organization")
	add(p.Notes != nil, "notes")
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p SamplePatch) IsEmpty() bool { return len(p.Fields()) == 0 }

// Apply writes the patched values onto the sample.
func (p SamplePatch) Apply(s *Sample) {
	if p.Code != nil {
		s.Code = *p.Code
	}
	if p.ItemName != nil {
		s.ItemName = *p.ItemName
	}
	if p.SampleType != nil {
		s.SampleType = *p.SampleType
	}
	if p.SampleAmount != nil {
		s.SampleAmount = *p.SampleAmount
	}
	if p.CollectionLocation != nil {
		s.CollectionLocation = *p.CollectionLocation
	}
	if p.CollectionTimestamp != nil {
		s.CollectionTimestamp = *p.CollectionTimestamp
	}
	if p.Collector != nil {
		s.Collector = *p.Collector
	}
	if p.CollectorContact != nil {
		s.CollectorContact = *p.CollectorContact
	}
	if p.CollectingOrganization != nil {
		s.CollectingOrganization = *p.CollectingOrganization
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
}

// LabOffice is one entry of the read-only inspection office registry.
type LabOffice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

// SampleSetSnapshot is one live-view push: the committed samples visible to a
// subscriber, grouped by status for step-queue display.
type SampleSetSnapshot struct {
	ByStatus map[SampleStatus][]Sample `json:"by_status"`
	At       time.Time                 `json:"at"`
}

// Total returns the number of samples across all status buckets.
func (s SampleSetSnapshot) Total() int {
	n := 0
	for _, bucket := range s.ByStatus {
		n += len(bucket)
	}
	return n
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action ChangeAction
	Before ChangePayload
	After  ChangePayload
}

// ChangeAction indicates the type of modification performed.
type ChangeAction string

// Change actions enumerate the store mutations captured for rule evaluation.
const (
	ChangeCreate ChangeAction = "create"
	ChangeUpdate ChangeAction = "update"
	ChangeDelete ChangeAction = "delete"
)
