/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error kinds in one place so callers can classify failures with
  errors.Is and translate them to transport responses.

ERROR CATEGORIES:
  1. InvalidArgument - malformed input (unknown kind, negative range, ...)
  2. InvalidState    - precondition violated (ending an ended session, ...)
  3. Conflict        - overlapping day-off, break budget exhausted, races
  4. Unauthorized    - role or ownership check failed
  5. NotFound        - entity absent or hidden by soft-delete

USAGE:
  if errors.Is(err, engine.ErrConflict) { ... }

  var budget *engine.BreakBudgetError
  if errors.As(err, &budget) { ... budget.UsedMinutes ... }
*/
package engine

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when an entity is absent or soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for malformed or out-of-range input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when an operation's precondition does
	// not hold (e.g. ending an already-ended session).
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict is returned when a write would violate a uniqueness or
	// budget invariant.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized is returned when the caller lacks the required role
	// or does not own the record.
	ErrUnauthorized = errors.New("unauthorized")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// BreakBudgetError reports an exhausted daily break budget.
type BreakBudgetError struct {
	UserID      UserID
	UsedMinutes int
	MaxMinutes  int
}

func (e *BreakBudgetError) Error() string {
	return fmt.Sprintf("break budget exhausted: used %d of %d minutes today", e.UsedMinutes, e.MaxMinutes)
}

func (e *BreakBudgetError) Unwrap() error { return ErrConflict }

// OpenSessionError reports that a user already has an open session of the
// given kind. Raised by stores enforcing the one-open-per-kind invariant.
type OpenSessionError struct {
	UserID UserID
	Kind   SessionKind
}

func (e *OpenSessionError) Error() string {
	return fmt.Sprintf("user %s already has an open %s session", e.UserID, e.Kind)
}

func (e *OpenSessionError) Unwrap() error { return ErrConflict }

// InvalidSpanError reports a time or date range whose end precedes its
// start.
type InvalidSpanError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidSpanError) Error() string {
	return fmt.Sprintf("end %s precedes start %s",
		e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
}

func (e *InvalidSpanError) Unwrap() error { return ErrInvalidArgument }

// OverlapError reports a day-off range colliding with an existing request.
type OverlapError struct {
	UserID    UserID
	DateStart time.Time
	DateEnd   time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("day-off range %s..%s overlaps an existing request",
		e.DateStart.Format("2006-01-02"), e.DateEnd.Format("2006-01-02"))
}

func (e *OverlapError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing or hidden record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError reports whether err is the caller's fault rather than an
// infrastructure failure. Such errors map to 4xx responses.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotFound)
}

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func invalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}
