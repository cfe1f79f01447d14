/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Financial-integrity errors - abort the transaction, no partial effect,
     surfaced as hard failures (no automatic retry)
  2. Concurrency errors - transaction conflict after bounded retry, safe for
     the caller to re-invoke
  3. Notification errors - recorded on the request, never thrown from the
     financial path

SEE ALSO:
  - engine.go: Raises these errors
  - store.go: Transaction contract that maps store conflicts onto them
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrBookingNotFound is returned when the booking no longer exists.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrBookingExists is returned when creating a booking whose id is
	// already taken.
	ErrBookingExists = errors.New("booking already exists")

	// ErrRequestNotFound is returned when a cited payment request does not
	// exist under the booking.
	ErrRequestNotFound = errors.New("payment request not found")

	// ErrEntryNotFound is returned when a cited payment entry does not exist.
	ErrEntryNotFound = errors.New("payment entry not found")

	// ErrCabinNotFound is returned when a cabin index does not address an
	// existing cabin in the booking's current cabin list.
	ErrCabinNotFound = errors.New("cabin index out of range")

	// ErrCabinRequired is returned when applying a request that has no
	// assigned target cabin.
	ErrCabinRequired = errors.New("target cabin required")

	// ErrInvalidAmount is returned for amounts that are zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrRequestAlreadyProcessed is returned when a request has already left
	// pending at commit time. Exactly one of two racing applications
	// observes pending; the other gets this error.
	ErrRequestAlreadyProcessed = errors.New("request already processed")

	// ErrRequestPending is returned when a notification is asked for a
	// request that has not been processed yet.
	ErrRequestPending = errors.New("request still pending")

	// ErrTransactionConflict is returned when the optimistic transaction
	// could not commit within its retry budget. Safe to re-invoke: all
	// preconditions are re-validated from fresh state on each attempt.
	ErrTransactionConflict = errors.New("transaction conflict: retry budget exhausted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CabinNotFoundError reports an index that falls outside the booking's
// current cabin list.
type CabinNotFoundError struct {
	BookingID  BookingID
	CabinIndex int
	CabinCount int
}

func (e *CabinNotFoundError) Error() string {
	return fmt.Sprintf("booking %s: cabin index %d out of range (have %d cabins)",
		e.BookingID, e.CabinIndex, e.CabinCount)
}

func (e *CabinNotFoundError) Unwrap() error { return ErrCabinNotFound }

// RequestStateError reports an attempted financial transition on a request
// that has already reached a terminal state.
type RequestStateError struct {
	RequestID RequestID
	Status    RequestStatus
}

func (e *RequestStateError) Error() string {
	return fmt.Sprintf("request %s is %s, only pending requests can be processed",
		e.RequestID, e.Status)
}

func (e *RequestStateError) Unwrap() error { return ErrRequestAlreadyProcessed }

// InvalidAmountError reports a non-positive payment amount.
type InvalidAmountError struct {
	Amount string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid payment amount %s: must be > 0", e.Amount)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on re-invocation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionConflict)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrCabinRequired) ||
		errors.Is(err, ErrRequestAlreadyProcessed) ||
		errors.Is(err, ErrRequestPending)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrCabinNotFound)
}
