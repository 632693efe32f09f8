package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// HistoryDetails is the closed tagged-variant payload of a history entry.
// Each action populates at most one concrete variant; the entry's Action
// decides which variant is decoded at read time, so consumers never guess at
// optional fields.
type HistoryDetails interface {
	isHistoryDetails()
}

// PrepDoneDetails carries the measured weight recorded when pre-treatment
// finishes.
type PrepDoneDetails struct {
	MeasuredWeightGrams float64 `json:"measured_weight_grams"`
}

// AnalysisStartDetails carries the measurement equipment and its start time.
type AnalysisStartDetails struct {
	Equipment string    `json:"equipment"`
	StartedAt time.Time `json:"started_at"`
}

// ResultsSavedDetails carries the nuclide result rows persisted by a save.
type ResultsSavedDetails struct {
	Results []NuclideResult `json:"results"`
}

func (PrepDoneDetails) isHistoryDetails()      {}
func (AnalysisStartDetails) isHistoryDetails() {}
func (ResultsSavedDetails) isHistoryDetails()  {}

type historyEntryAlias HistoryEntry

type historyEntryEnvelope struct {
	historyEntryAlias
	Details json.RawMessage `json:"details,omitempty"`
}

// MarshalJSON serialises the entry with its action-specific details inline.
func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	env := historyEntryEnvelope{historyEntryAlias: historyEntryAlias(e)}
	if e.Details != nil {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return nil, err
		}
		env.Details = raw
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the entry and hydrates the details variant implied by
// the action.
func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	var env historyEntryEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*e = HistoryEntry(env.historyEntryAlias)
	if len(env.Details) == 0 {
		e.Details = nil
		return nil
	}
	details, err := decodeDetails(e.Action, env.Details)
	if err != nil {
		return err
	}
	e.Details = details
	return nil
}

func decodeDetails(action ActionType, raw json.RawMessage) (HistoryDetails, error) {
	switch action {
	case ActionPrepDone:
		var d PrepDoneDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case ActionAnalysisStart:
		var d AnalysisStartDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case ActionResultsSaved:
		var d ResultsSavedDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("action %s carries no details payload", action)
	}
}
