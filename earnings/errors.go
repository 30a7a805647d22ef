/*
errors.go - Error types for the earnings engine

ERROR CATEGORIES:
  1. Approval errors - state machine refusals
  2. Gate errors - saves the persistence gate does not permit
  3. Lookup errors - missing pilots, dates, reference data

USAGE:
  if errors.Is(err, earnings.ErrSaveNotPermitted) {
      var gateErr *earnings.GateError
      errors.As(err, &gateErr) // gateErr.Label == "completed"
  }
*/
package earnings

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrReasonRequired is returned when Approved is requested without a
	// downtime reason. The approval state is left untouched.
	ErrReasonRequired = errors.New("downtime approval requires a reason")

	// ErrNotAwaitingReason is returned when a reason is selected but no
	// approval was started for that pilot-day.
	ErrNotAwaitingReason = errors.New("no approval awaiting a reason")

	// ErrUnknownReason is returned when a reason id is not in the reason list.
	ErrUnknownReason = errors.New("unknown downtime reason")

	// ErrUnknownApprovalStatus is returned for status codes outside 0..2.
	ErrUnknownApprovalStatus = errors.New("unknown approval status")

	// ErrSaveNotPermitted is returned when the persistence gate blocks a save.
	ErrSaveNotPermitted = errors.New("save not permitted")

	// ErrSaveInFlight is returned when a save for the same pilot-day is
	// already running.
	ErrSaveInFlight = errors.New("save already in flight")

	// ErrDuplicateReason is returned when a reason id or text already exists.
	ErrDuplicateReason = errors.New("downtime reason already exists")

	ErrPilotNotFound    = errors.New("pilot not found for date")
	ErrDefaultsNotFound = errors.New("default parameters not found")
	ErrInvalidDate      = errors.New("invalid date")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// GateError carries the gate label that explains why a save was refused.
type GateError struct {
	Key   Key
	Label GateLabel
}

func (e *GateError) Error() string {
	return fmt.Sprintf("save not permitted for %s: %s", e.Key, e.Label)
}

func (e *GateError) Unwrap() error {
	if e.Label == LabelSaving {
		return ErrSaveInFlight
	}
	return ErrSaveNotPermitted
}

// TransitionError describes a refused approval transition.
type TransitionError struct {
	From  ApprovalStatus
	Event EventType
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("approval %s: %s refused: %v", e.From, e.Event, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrNotAwaitingReason) ||
		errors.Is(err, ErrUnknownReason) ||
		errors.Is(err, ErrUnknownApprovalStatus) ||
		errors.Is(err, ErrInvalidDate)
}

// IsConflict returns true if the error reflects the current state of the
// pilot-day rather than bad input.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSaveNotPermitted) ||
		errors.Is(err, ErrSaveInFlight) ||
		errors.Is(err, ErrDuplicateReason)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPilotNotFound) || errors.Is(err, ErrDefaultsNotFound)
}
