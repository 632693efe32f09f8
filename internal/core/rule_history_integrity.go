package core

import (
	"context"
	"fmt"

	"samplecore/pkg/domain"
)

// HistoryIntegrityRule blocks any commit that rewrites the audit ledger. The
// committed history must survive every update as an unchanged prefix, with
// entry timestamps non-decreasing across the appended suffix.
func HistoryIntegrityRule() domain.Rule {
	return historyIntegrityRule{}
}

type historyIntegrityRule struct{}

func (historyIntegrityRule) Name() string { return "history_integrity" }

func (historyIntegrityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != EntitySample || change.Action != domain.ChangeUpdate {
			continue
		}
		before, ok := decodeChangePayload[Sample](change.Before)
		if !ok {
			continue
		}
		after, ok := decodeChangePayload[Sample](change.After)
		if !ok {
			continue
		}
		if len(after.History) < len(before.History) {
			res.Violations = append(res.Violations, Violation{
				Rule:     "history_integrity",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("sample %s history shrank from %d to %d entries", after.ID, len(before.History), len(after.History)),
				Entity:   EntitySample,
				EntityID: after.ID,
			})
			continue
		}
		for i, prev := range before.History {
			if !entriesEqual(prev, after.History[i]) {
				res.Violations = append(res.Violations, Violation{
					Rule:     "history_integrity",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("sample %s history entry %d was rewritten", after.ID, i),
					Entity:   EntitySample,
					EntityID: after.ID,
				})
				break
			}
		}
		for i := 1; i < len(after.History); i++ {
			if after.History[i].Timestamp.Before(after.History[i-1].Timestamp) {
				res.Violations = append(res.Violations, Violation{
					Rule:     "history_integrity",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("sample %s history timestamps regress at entry %d", after.ID, i),
					Entity:   EntitySample,
					EntityID: after.ID,
				})
				break
			}
		}
	}
	return res, nil
}

// entriesEqual compares the identity-bearing fields of two ledger entries.
// Details payloads already round-tripped through JSON when the payloads were
// captured, so the comparison stays on stable fields.
func entriesEqual(a, b HistoryEntry) bool {
	return a.Action == b.Action &&
		a.Actor == b.Actor &&
		a.ActorID == b.ActorID &&
		a.Role == b.Role &&
		a.Timestamp.Equal(b.Timestamp)
}
