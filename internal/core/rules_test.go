package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"samplecore/pkg/domain"
)

func payloadFor(t *testing.T, s Sample) domain.ChangePayload {
	t.Helper()
	payload, err := domain.NewChangePayloadFromValue(s)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	return payload
}

func ledgerSample(entries ...HistoryEntry) Sample {
	s := Sample{Code: "FISH-260314-1", LabID: "lab-aomori", History: entries}
	if last, ok := s.LastAction(); ok {
		s.Status = derivedStatus[last]
	}
	return s
}

func entryAt(action ActionType, ts time.Time) HistoryEntry {
	return HistoryEntry{Action: action, Actor: "K. Sato", ActorID: "u-analyst", Role: RoleAnalyst, Timestamp: ts}
}

func TestHistoryIntegrityRuleBlocksShrink(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	before := ledgerSample(entryAt(ActionReception, base), entryAt(ActionReceipt, base.Add(time.Minute)))
	after := ledgerSample(entryAt(ActionReception, base))

	res, err := HistoryIntegrityRule().Evaluate(context.Background(), nil, []Change{{
		Entity: EntitySample,
		Action: domain.ChangeUpdate,
		Before: payloadFor(t, before),
		After:  payloadFor(t, after),
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation for shrunken ledger")
	}
}

func TestHistoryIntegrityRuleBlocksRewrite(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	before := ledgerSample(entryAt(ActionReception, base))
	rewritten := entryAt(ActionReception, base)
	rewritten.Actor = "someone else"
	after := ledgerSample(rewritten, entryAt(ActionReceipt, base.Add(time.Minute)))

	res, err := HistoryIntegrityRule().Evaluate(context.Background(), nil, []Change{{
		Entity: EntitySample,
		Action: domain.ChangeUpdate,
		Before: payloadFor(t, before),
		After:  payloadFor(t, after),
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation for rewritten prefix")
	}
}

func TestHistoryIntegrityRuleBlocksTimestampRegression(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	before := ledgerSample(entryAt(ActionReception, base))
	after := ledgerSample(entryAt(ActionReception, base), entryAt(ActionReceipt, base.Add(-time.Hour)))

	res, err := HistoryIntegrityRule().Evaluate(context.Background(), nil, []Change{{
		Entity: EntitySample,
		Action: domain.ChangeUpdate,
		Before: payloadFor(t, before),
		After:  payloadFor(t, after),
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation for regressing timestamps")
	}
}

func TestHistoryIntegrityRuleAcceptsAppend(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	before := ledgerSample(entryAt(ActionReception, base))
	after := ledgerSample(entryAt(ActionReception, base), entryAt(ActionReceipt, base.Add(time.Minute)))

	res, err := HistoryIntegrityRule().Evaluate(context.Background(), nil, []Change{{
		Entity: EntitySample,
		Action: domain.ChangeUpdate,
		Before: payloadFor(t, before),
		After:  payloadFor(t, after),
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("append must pass, got %+v", res.Violations)
	}
}

func TestStatusDerivationRuleBlocksMismatch(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	after := ledgerSample(entryAt(ActionReception, base))
	after.Status = StatusAnalyzing

	res, err := StatusDerivationRule().Evaluate(context.Background(), nil, []Change{{
		Entity: EntitySample,
		Action: domain.ChangeUpdate,
		Before: domain.UndefinedChangePayload(),
		After:  payloadFor(t, after),
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation for underived status")
	}
}

func TestStatusDerivationRuleBlocksEmptyLedger(t *testing.T) {
	after := Sample{Code: "FISH-260314-9", Status: StatusReceived}
	res, err := StatusDerivationRule().Evaluate(context.Background(), nil, []Change{{
		Entity: EntitySample,
		Action: domain.ChangeCreate,
		Before: domain.UndefinedChangePayload(),
		After:  payloadFor(t, after),
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation for empty ledger")
	}
}

func TestStatusDerivationRuleAcceptsDerivedStatus(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	after := ledgerSample(entryAt(ActionReception, base), entryAt(ActionReceipt, base.Add(time.Minute)))

	res, err := StatusDerivationRule().Evaluate(context.Background(), nil, []Change{{
		Entity: EntitySample,
		Action: domain.ChangeUpdate,
		Before: domain.UndefinedChangePayload(),
		After:  payloadFor(t, after),
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("derived status must pass, got %+v", res.Violations)
	}
}

func TestDefaultRulesEngineWiredIntoStore(t *testing.T) {
	// An annotation that leaves the status underived must be blocked at the
	// store boundary, not only by direct rule evaluation.
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})

	_, err := svc.Store().RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.AdvanceSample(created.ID, StatusReceived, StatusAnalyzing, HistoryEntry{
			Action: ActionReceipt,
			Actor:  "K. Sato",
		})
		return e
	})
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation for underived advance, got %v", err)
	}
}
