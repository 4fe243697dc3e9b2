/*
errors.go - Error taxonomy for the consignment core

PURPOSE:
  Every operation in the core returns one of five error kinds. Callers
  branch with errors.Is on the sentinel; the structured types carry the
  entity, field and expected/actual values needed to render a message.

ERROR KINDS:
  ErrNotFound          - a referenced entity is absent
  ErrInvalidState      - operation not permitted in the current lifecycle state
  ErrInsufficientFunds - ledger balance too low for a debit
  ErrInvalidArgument   - malformed input to a pure component
  ErrUnavailable       - storage cannot be reached
  ErrForbidden         - actor may not touch another user's data

PROPAGATION:
  Precondition failures abort the unit of work before any write. Nothing
  is retried inside the core; IsRetryable tells the caller which errors
  may succeed on a second attempt.

SEE ALSO:
  - api/handlers.go: maps each kind to an HTTP status
*/
package parcel

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnavailable       = errors.New("storage unavailable")
	ErrForbidden         = errors.New("forbidden")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound is shorthand for &NotFoundError{...}.
func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvalidStateError describes a lifecycle violation. Expected and Actual
// are optional and only rendered when set.
type InvalidStateError struct {
	Entity   string
	ID       any
	Field    string
	Reason   string
	Expected any
	Actual   any
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("%s %v: %s", e.Entity, e.ID, e.Reason)
	if e.Expected != nil || e.Actual != nil {
		msg += fmt.Sprintf(" (%s: expected %v, got %v)", e.Field, e.Expected, e.Actual)
	}
	return msg
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

type InsufficientFundsError struct {
	UserID   UserID
	Balance  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for user %d: balance %s, required %s",
		e.UserID, e.Balance, e.Required)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field == "" {
		return "invalid argument: " + e.Reason
	}
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// InvalidArgument is shorthand for &InvalidArgumentError{...}.
func InvalidArgument(field, reason string) error {
	return &InvalidArgumentError{Field: field, Reason: reason}
}

// UnavailableError wraps a driver error so callers see ErrUnavailable while
// the cause stays reachable through errors.As.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

// Unavailable wraps err unless it is nil or already a core error.
func Unavailable(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

type ForbiddenError struct {
	Actor  UserID
	Action string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %d may not %s", e.Actor, e.Action)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrForbidden)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDomainError reports whether err already belongs to the taxonomy above.
func IsDomainError(err error) bool {
	return IsNotFound(err) || IsClientError(err) || errors.Is(err, ErrUnavailable)
}

// Kind returns a short label for the error's category.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	}
	return "internal"
}
