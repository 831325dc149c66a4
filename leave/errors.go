/*
errors.go - Error kinds for the leave workflow

PURPOSE:
  All error types in one place. Callers test the kind with errors.Is
  against a sentinel; structured errors carry context and unwrap to
  their sentinel.

ERROR KINDS:
  NotFound            request or user id does not resolve
  Forbidden           role or ownership check failed
  InsufficientBalance balance check failed (apply, or approval re-check)
  Validation          missing or malformed input
  Unauthorized        no or bad credentials (identity provider)
  Conflict            uniqueness violation (e.g. email already registered)

USAGE:
  if errors.Is(err, leave.ErrInsufficientBalance) { ... }

  var ibe *leave.InsufficientBalanceError
  if errors.As(err, &ibe) { log(ibe.Available, ibe.Requested) }

SEE ALSO:
  - api/errors.go: maps these kinds to HTTP statuses
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInsufficientBalance = errors.New("insufficient leave balance")
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrConflict            = errors.New("conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID    string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient leave balance: available %s, requested %s",
		e.Available.String(), e.Requested.String())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Shortfall is how many days the request exceeds the balance by.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError identifies what could not be resolved.
type NotFoundError struct {
	Kind string // "user", "leave request"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ForbiddenError names the action the caller was not allowed to perform.
type ForbiddenError struct {
	Action Action
}

func (e *ForbiddenError) Error() string { return fmt.Sprintf("not authorized to %s", e.Action) }

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to caller input or permissions.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsInsufficientBalance(err error) bool { return errors.Is(err, ErrInsufficientBalance) }
