// Package staging provides the staged-record status state machine.
// Handles transition validation for single-row and bulk mutations.
//
// Architecture:
//   - Application layer (this file): validates transitions before issuing SQL
//   - Storage layer: UPDATE statements are additionally constrained to
//     status='pending' rows, so an invalid transition that slips past the
//     application check affects zero rows
//
// Why both layers? The application check produces a precise error for the
// caller; the conditional UPDATE guarantees the invariant even when two
// writers race on the same row.
package staging

import (
	"errors"
	"fmt"
)

// Sentinel errors for status transition validation.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidStatus indicates a status value outside the known lifecycle.
	ErrInvalidStatus = errors.New("invalid status value")

	// ErrTerminalStatusImmutable indicates an attempt to transition a row that
	// already reached pushed or failed.
	ErrTerminalStatusImmutable = errors.New("terminal status is immutable")

	// ErrInvalidTransition indicates a transition the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidateStatusTransition validates a staged-record status transition.
//
// Valid transitions:
//   - pending → pushed
//   - pending → failed
//   - pending → pending (no-op, idempotent)
//
// Invalid transitions:
//   - pushed → anything (terminal)
//   - failed → anything, including back to pending (history is append-only;
//     a VIN is retried via a new staged row, never by reviving an old one)
func ValidateStatusTransition(from, to Status) error {
	if !from.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, from)
	}

	if !to.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	// Terminal rows never move again, not even to the same status. A repeated
	// mark-pushed indicates a caller bug, not an idempotent retry: the store's
	// conditional UPDATE already reported the first application.
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s → %s", ErrTerminalStatusImmutable, from, to)
	}

	// from == pending at this point; pending may stay pending or move to
	// either terminal state.
	return nil
}
