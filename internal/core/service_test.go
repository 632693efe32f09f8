package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"samplecore/pkg/domain"
)

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var tick int
	clock := ClockFunc(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	all := append([]ServiceOption{WithClock(clock)}, opts...)
	return NewInMemoryService(NewDefaultRulesEngine(), all...)
}

func register(t *testing.T, svc *Service, p Principal, draft NewSample) Sample {
	t.Helper()
	created, _, err := svc.RegisterSample(context.Background(), p, draft)
	if err != nil {
		t.Fatalf("register sample: %v", err)
	}
	return created
}

func advance(t *testing.T, svc *Service, id string, action ActionType, p Principal) Sample {
	t.Helper()
	updated, _, err := svc.RequestTransition(context.Background(), id, action, p, TransitionInput{})
	if err != nil {
		t.Fatalf("transition %s: %v", action, err)
	}
	return updated
}

func TestFullLifecycleToComplete(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{
		LabID:      "lab-aomori",
		ItemName:   "flathead flounder",
		SampleType: "fish",
		Collector:  "T. Endo",
	})
	if created.Status != StatusReceived {
		t.Fatalf("new sample must start received, got %s", created.Status)
	}
	if created.Revision != 1 || len(created.History) != 1 {
		t.Fatalf("unexpected initial record: rev %d, %d entries", created.Revision, len(created.History))
	}

	advance(t, svc, created.ID, ActionReceipt, analystAomori)
	advance(t, svc, created.ID, ActionPrepQueue, analystAomori)
	advance(t, svc, created.ID, ActionPrepStart, analystAomori)
	if _, _, err := svc.RecordPrepDone(context.Background(), created.ID, analystAomori, 512.5, TransitionInput{}); err != nil {
		t.Fatalf("prep done: %v", err)
	}
	advance(t, svc, created.ID, ActionAnalysisStart, analystAomori)
	u := 0.4
	if _, _, err := svc.SaveResults(context.Background(), created.ID, analystAomori, []NuclideResult{
		{Nuclide: "Cs-137", Concentration: 12.3, Uncertainty: &u},
	}, TransitionInput{}); err != nil {
		t.Fatalf("save results: %v", err)
	}
	advance(t, svc, created.ID, ActionAnalysisDone, analystAomori)
	advance(t, svc, created.ID, ActionReviewRequest, analystAomori)
	advance(t, svc, created.ID, ActionTechSignoff, leadAomori)
	final := advance(t, svc, created.ID, ActionSignoff, adminAomori)

	if final.Status != StatusComplete {
		t.Fatalf("expected complete, got %s", final.Status)
	}
	// reception + 8 transitions + 2 annotations
	if len(final.History) != 11 {
		t.Fatalf("expected 11 ledger entries, got %d", len(final.History))
	}
	for i := 1; i < len(final.History); i++ {
		if final.History[i].Timestamp.Before(final.History[i-1].Timestamp) {
			t.Fatalf("ledger timestamps regress at %d", i)
		}
	}
	last, _ := final.LastAction()
	if derivedStatus[last] != final.Status {
		t.Fatalf("status %s does not derive from last action %s", final.Status, last)
	}
}

func TestPrepStartOnlyLegalAtAwaitingPrep(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})

	_, _, err := svc.RequestTransition(context.Background(), created.ID, ActionPrepStart, analystAomori, TransitionInput{})
	var invalid domain.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid transition before awaiting_prep, got %v", err)
	}

	advance(t, svc, created.ID, ActionReceipt, analystAomori)
	advance(t, svc, created.ID, ActionPrepQueue, analystAomori)
	updated := advance(t, svc, created.ID, ActionPrepStart, analystAomori)
	if updated.Status != StatusAwaitingAnalysis {
		t.Fatalf("prep start must move to awaiting_analysis, got %s", updated.Status)
	}
}

func TestConcurrentTransitionHasExactlyOneWinner(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "water"})

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.RequestTransition(context.Background(), created.ID, ActionReceipt, analystAomori, TransitionInput{})
		}(i)
	}
	wg.Wait()

	var wins, stales int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			var stale domain.StaleStateError
			if !errors.As(err, &stale) {
				t.Fatalf("loser must fail stale, got %v", err)
			}
			stales++
		}
	}
	if wins != 1 || stales != attempts-1 {
		t.Fatalf("expected exactly one winner, got %d winners / %d stale", wins, stales)
	}

	after, err := svc.GetSample(context.Background(), created.ID, analystAomori)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(after.History) != 2 {
		t.Fatalf("losers must not append, history has %d entries", len(after.History))
	}
}

func TestWrongRoleIsForbidden(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})
	advance(t, svc, created.ID, ActionReceipt, analystAomori)
	advance(t, svc, created.ID, ActionPrepQueue, analystAomori)
	advance(t, svc, created.ID, ActionPrepStart, analystAomori)
	advance(t, svc, created.ID, ActionAnalysisStart, analystAomori)
	advance(t, svc, created.ID, ActionAnalysisDone, analystAomori)
	advance(t, svc, created.ID, ActionReviewRequest, analystAomori)

	_, _, err := svc.RequestTransition(context.Background(), created.ID, ActionTechSignoff, analystAomori, TransitionInput{})
	var forbidden domain.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for analyst tech signoff, got %v", err)
	}

	after, _ := svc.GetSample(context.Background(), created.ID, analystAomori)
	if after.Status != StatusAwaitingTechReview {
		t.Fatalf("failed attempt must not move status, got %s", after.Status)
	}
}

func TestModificationRequiresReason(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", ItemName: "unknown flatfish", SampleType: "fish"})

	name := "flathead flounder"
	_, _, err := svc.RecordModification(context.Background(), created.ID, SamplePatch{ItemName: &name}, "   \t", analystAomori)
	var reasonErr domain.ReasonRequiredError
	if !errors.As(err, &reasonErr) {
		t.Fatalf("expected reason required, got %v", err)
	}

	updated, _, err := svc.RecordModification(context.Background(), created.ID, SamplePatch{ItemName: &name}, "species identified after intake", analystAomori)
	if err != nil {
		t.Fatalf("modification: %v", err)
	}
	if updated.ItemName != name {
		t.Fatalf("patch not applied")
	}
	if len(updated.ModificationHistory) != 1 {
		t.Fatalf("expected one modification entry, got %d", len(updated.ModificationHistory))
	}
	if len(updated.History) != 1 {
		t.Fatalf("modification must not touch the workflow ledger")
	}
	entry := updated.ModificationHistory[0]
	if entry.EditorID != analystAomori.UserID || entry.Reason == "" {
		t.Fatalf("modification entry incomplete: %+v", entry)
	}
}

func TestModificationForbiddenForCollector(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})
	notes := "updated"
	_, _, err := svc.RecordModification(context.Background(), created.ID, SamplePatch{Notes: &notes}, "reason", collector)
	var forbidden domain.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for collector modification, got %v", err)
	}
}

func TestSaveResultsNormalizesBelowDetectionLimit(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})
	advance(t, svc, created.ID, ActionReceipt, analystAomori)
	advance(t, svc, created.ID, ActionPrepQueue, analystAomori)
	advance(t, svc, created.ID, ActionPrepStart, analystAomori)
	advance(t, svc, created.ID, ActionAnalysisStart, analystAomori)

	u1, u2 := 0.3, 0.8
	updated, _, err := svc.SaveResults(context.Background(), created.ID, analystAomori, []NuclideResult{
		{Nuclide: "Cs-134", BelowDetectionLimit: true, Concentration: 0.5, Uncertainty: &u1},
		{Nuclide: "Cs-137", Concentration: 12.3, Uncertainty: &u2},
	}, TransitionInput{})
	if err != nil {
		t.Fatalf("save results: %v", err)
	}
	if updated.Status != StatusAnalyzing {
		t.Fatalf("results save must not advance, got %s", updated.Status)
	}
	rows := updated.AnalysisResults
	if len(rows) != 2 {
		t.Fatalf("expected 2 result rows, got %d", len(rows))
	}
	if rows[0].Uncertainty != nil {
		t.Fatalf("uncertainty must be cleared for below-detection-limit rows")
	}
	if rows[1].Uncertainty == nil || *rows[1].Uncertainty != u2 {
		t.Fatalf("measured row uncertainty lost")
	}

	details, ok := updated.History[len(updated.History)-1].Details.(domain.ResultsSavedDetails)
	if !ok {
		t.Fatalf("results entry missing details variant")
	}
	if details.Results[0].Uncertainty != nil {
		t.Fatalf("ledger details must carry normalized rows")
	}
}

func TestSaveResultsOnlyWhileAnalyzing(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})
	_, _, err := svc.SaveResults(context.Background(), created.ID, analystAomori, []NuclideResult{{Nuclide: "Cs-137"}}, TransitionInput{})
	var invalid domain.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid transition for early results save, got %v", err)
	}
}

func TestRegisterGeneratesPerDaySequentialCodes(t *testing.T) {
	svc := newTestService(t)
	first := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})
	second := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})
	third := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "sea water"})

	if first.Code != "FISH-260314-1" {
		t.Fatalf("unexpected first code %s", first.Code)
	}
	if second.Code != "FISH-260314-2" {
		t.Fatalf("unexpected second code %s", second.Code)
	}
	if third.Code != "SEAWATER-260314-1" {
		t.Fatalf("unexpected third code %s", third.Code)
	}
}

func TestRegisterManualCodeDuplicatesRejected(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish", Code: "FISH-CUSTOM-1"})
	_, _, err := svc.RegisterSample(context.Background(), collector, NewSample{LabID: "lab-aomori", SampleType: "fish", Code: "FISH-CUSTOM-1"})
	if err == nil || !strings.Contains(err.Error(), "already in use") {
		t.Fatalf("expected duplicate code rejection, got %v", err)
	}
}

func TestRegisterUnknownOfficeRejected(t *testing.T) {
	svc := newTestService(t, WithOfficeDirectory(officeSet{"lab-aomori": {}}))
	_, _, err := svc.RegisterSample(context.Background(), superAdmin, NewSample{LabID: "lab-nowhere", SampleType: "fish"})
	var notFound domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found for unknown office, got %v", err)
	}
	if notFound.Entity != domain.EntityLabOffice {
		t.Fatalf("expected lab office entity, got %s", notFound.Entity)
	}
}

type officeSet map[string]struct{}

func (s officeSet) Valid(id string) bool {
	_, ok := s[id]
	return ok
}

func TestDeleteSampleRestrictedToAdmins(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})

	_, err := svc.DeleteSample(context.Background(), created.ID, analystAomori)
	var forbidden domain.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for analyst delete, got %v", err)
	}

	if _, err := svc.DeleteSample(context.Background(), created.ID, superAdmin); err != nil {
		t.Fatalf("super admin delete: %v", err)
	}
	if _, err := svc.GetSample(context.Background(), created.ID, superAdmin); err == nil {
		t.Fatalf("expected sample gone after delete")
	}
}

func TestGetSampleHiddenOutsideAssignedOffices(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})

	outsider := Principal{UserID: "u-out", Role: RoleAnalyst, LabIDs: []string{"lab-miyagi"}}
	_, err := svc.GetSample(context.Background(), created.ID, outsider)
	var forbidden domain.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for outsider read, got %v", err)
	}
}

func TestQueuesGroupByStatusWithinOfficeSet(t *testing.T) {
	svc := newTestService(t)
	first := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})
	register(t, svc, superAdmin, NewSample{LabID: "lab-miyagi", SampleType: "water"})
	advance(t, svc, first.ID, ActionReceipt, analystAomori)

	snap := svc.Queues(context.Background(), analystAomori)
	if snap.Total() != 1 {
		t.Fatalf("analyst must only see own office, got %d", snap.Total())
	}
	if len(snap.ByStatus[StatusReceivedAtLab]) != 1 {
		t.Fatalf("sample not grouped under received_at_lab")
	}

	all := svc.Queues(context.Background(), superAdmin)
	if all.Total() != 2 {
		t.Fatalf("super admin must see everything, got %d", all.Total())
	}
}

func TestSubscribeScopedToPrincipalOffices(t *testing.T) {
	svc := newTestService(t)
	ch, cancel := svc.Subscribe(context.Background(), analystAomori)
	defer cancel()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("missing initial snapshot")
	}

	register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})
	select {
	case snap := <-ch:
		if snap.Total() != 1 {
			t.Fatalf("expected 1 sample in pushed snapshot, got %d", snap.Total())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("commit did not reach subscriber")
	}

	register(t, svc, superAdmin, NewSample{LabID: "lab-miyagi", SampleType: "water"})
	select {
	case snap := <-ch:
		if snap.Total() != 1 {
			t.Fatalf("snapshot leaked foreign office samples: %d", snap.Total())
		}
	case <-time.After(100 * time.Millisecond):
		// no push for a foreign office is equally correct
	}
}

func TestTransitionRejectsMismatchedDetails(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, collector, NewSample{LabID: "lab-aomori", SampleType: "fish"})
	_, _, err := svc.RequestTransition(context.Background(), created.ID, ActionReceipt, analystAomori, TransitionInput{
		Details: domain.PrepDoneDetails{MeasuredWeightGrams: 10},
	})
	if err == nil {
		t.Fatalf("expected details mismatch rejection")
	}
}

func TestTransitionNotFound(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.RequestTransition(context.Background(), "missing", ActionReceipt, analystAomori, TransitionInput{})
	var notFound domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
