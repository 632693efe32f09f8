package domain

import (
	"errors"
	"fmt"
)

// InvalidTransitionError reports an action that is not legal from the
// sample's current status. This is a programming or UI error; callers surface
// it and do not retry.
type InvalidTransitionError struct {
	Status SampleStatus
	Action ActionType
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("action %s is not valid from status %s", e.Action, e.Status)
}

// ForbiddenError reports a role that lacks permission for an action.
type ForbiddenError struct {
	Role   Role
	Action ActionType
}

func (e ForbiddenError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("role %s is not permitted", e.Role)
	}
	return fmt.Sprintf("role %s may not perform %s", e.Role, e.Action)
}

// StaleStateError reports that another actor advanced the sample before this
// commit landed. The caller must re-read current state before retrying.
type StaleStateError struct {
	Expected SampleStatus
	Actual   SampleStatus
}

func (e StaleStateError) Error() string {
	return fmt.Sprintf("sample advanced from %s to %s by a concurrent actor", e.Expected, e.Actual)
}

// ReasonRequiredError reports a corrective edit submitted without a
// justification.
type ReasonRequiredError struct{}

func (ReasonRequiredError) Error() string {
	return "corrective edits require a non-empty reason"
}

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// StoreUnavailableError wraps a transient infrastructure failure. Commits are
// atomic, so no partial state is visible; callers may retry with backoff.
type StoreUnavailableError struct {
	Err error
}

func (e StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e StoreUnavailableError) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is transient and safe to retry.
func IsRetryable(err error) bool {
	var unavailable StoreUnavailableError
	return errors.As(err, &unavailable)
}
