package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"samplecore/pkg/domain"
)

func TestErrorTaxonomyMatchesWithAs(t *testing.T) {
	var invalid domain.InvalidTransitionError
	err := fmt.Errorf("request failed: %w", domain.InvalidTransitionError{Status: domain.StatusReceived, Action: domain.ActionAnalysisDone})
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError")
	}
	if invalid.Status != domain.StatusReceived {
		t.Fatalf("unexpected status %s", invalid.Status)
	}

	var stale domain.StaleStateError
	if !errors.As(fmt.Errorf("wrapped: %w", domain.StaleStateError{Expected: domain.StatusAwaitingPrep, Actual: domain.StatusAwaitingAnalysis}), &stale) {
		t.Fatalf("expected StaleStateError")
	}
}

func TestStoreUnavailableIsRetryable(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("persist: %w", domain.StoreUnavailableError{Err: base})
	if !domain.IsRetryable(err) {
		t.Fatalf("store unavailability must be retryable")
	}
	if !errors.Is(err, base) {
		t.Fatalf("wrapped cause must remain reachable")
	}
	if domain.IsRetryable(domain.ReasonRequiredError{}) {
		t.Fatalf("reason-required is not retryable")
	}
}
