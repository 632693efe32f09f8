package core

import (
	"context"
	"fmt"

	"samplecore/pkg/domain"
)

// StatusDerivationRule blocks commits where the stored status disagrees with
// the status implied by the last ledger entry. Status is a projection of the
// ledger, never independent state.
func StatusDerivationRule() domain.Rule {
	return statusDerivationRule{}
}

type statusDerivationRule struct{}

func (statusDerivationRule) Name() string { return "status_derivation" }

func (statusDerivationRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != EntitySample || change.Action == domain.ChangeDelete {
			continue
		}
		after, ok := decodeChangePayload[Sample](change.After)
		if !ok {
			continue
		}
		last, ok := after.LastAction()
		if !ok {
			res.Violations = append(res.Violations, Violation{
				Rule:     "status_derivation",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("sample %s has no history entries", after.ID),
				Entity:   EntitySample,
				EntityID: after.ID,
			})
			continue
		}
		want, ok := derivedStatus[last]
		if !ok {
			res.Violations = append(res.Violations, Violation{
				Rule:     "status_derivation",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("sample %s last action %s is unknown", after.ID, last),
				Entity:   EntitySample,
				EntityID: after.ID,
			})
			continue
		}
		if after.Status != want {
			res.Violations = append(res.Violations, Violation{
				Rule:     "status_derivation",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("sample %s status %s does not derive from last action %s (want %s)", after.ID, after.Status, last, want),
				Entity:   EntitySample,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
