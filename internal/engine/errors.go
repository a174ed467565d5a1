package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBusy is returned when a completion is already in flight for this
// engine. Callers disable the finish action for the duration of a call, but
// timers and navigation can still race; re-entry is rejected outright.
var ErrBusy = errors.New("a session completion is already in flight")

// UnloggedError is the confirmation gate of step 1: the caller should
// confirm with the user and retry with ConfirmUnlogged set. Not a failure.
type UnloggedError struct {
	Exercises []string
}

func (e *UnloggedError) Error() string {
	return fmt.Sprintf("unlogged exercises need confirmation: %s", strings.Join(e.Exercises, ", "))
}

// ResolutionError means the owning program instance could not be resolved.
// Fatal to this attempt, no side effects occurred; the user should be sent
// back to the program list.
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string { return "resolving program instance: " + e.Err.Error() }
func (e *ResolutionError) Unwrap() error { return e.Err }

// CreationError means the session or exercise instance bootstrap failed
// before any performance data was sent. Safe to retry from scratch: the
// idempotent resolution step reuses whatever was created.
type CreationError struct {
	Err error
}

func (e *CreationError) Error() string { return "creating session instance: " + e.Err.Error() }
func (e *CreationError) Unwrap() error { return e.Err }

// SubmissionError means the atomic performance call failed. By the
// atomicity contract no partial data was persisted, so nothing local
// changed and the whole completion is safe to retry.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return "submitting performance: " + e.Err.Error() }
func (e *SubmissionError) Unwrap() error { return e.Err }
