/*
store.go - Persistence interface for bookings, entries, and requests

PURPOSE:
  Defines the interface between the ledger engine and the database.
  The store behaves like a document collection of bookings with two
  per-booking sub-collections (payment entries, payment requests), and
  supports optimistic multi-document transactions scoped to one booking.

TRANSACTION CONTRACT:
  RunTransaction executes fn against a transactional view. Every mutation
  of a booking's cabins/globals and every request transition out of
  pending happens inside such a transaction:
    (a) fn reads the current document state through the view,
    (b) validates preconditions against that freshly-read state,
    (c) stages new values,
    (d) the store commits conditionally on nothing else having modified
        the booking since the read.
  On conflict the whole read-compute-write cycle is retried a bounded
  number of times; exhaustion surfaces as ErrTransactionConflict, which
  is safe to retry from the caller.

  Transactions are scoped to exactly one booking plus its sub-collections.
  Operations on different bookings never contend.

NOTIFICATION STATUS:
  SetRequestNotification is deliberately NOT transactional with the
  financial commit. The financial transition must commit even when the
  notification channel is down, and a failed notification is retried
  without re-running the financial transaction.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing/dev

SEE ALSO:
  - engine.go: The only writer of financial state
  - notify.go: The only writer of notification state
*/
package ledger

import "context"

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// Tx is the view fn receives inside RunTransaction. All reads reflect the
// state at (or after) transaction start; all writes are staged and commit
// together or not at all.
type Tx interface {
	// Booking returns the booking the transaction is scoped to.
	// Returns ErrBookingNotFound if it no longer exists.
	Booking(ctx context.Context) (*Booking, error)

	// PutBooking stages the updated booking document.
	PutBooking(ctx context.Context, b *Booking) error

	// Request returns a payment request by id within the booking.
	// Returns ErrRequestNotFound if it does not exist.
	Request(ctx context.Context, id RequestID) (*PaymentRequest, error)

	// PutRequest stages the updated request.
	PutRequest(ctx context.Context, r *PaymentRequest) error

	// Entry returns a payment entry by id within the booking.
	// Returns ErrEntryNotFound if it does not exist.
	Entry(ctx context.Context, id EntryID) (*PaymentEntry, error)

	// AppendEntry stages a new immutable payment entry.
	AppendEntry(ctx context.Context, e PaymentEntry) error

	// DeleteEntry stages removal of an entry. Admin override only; the
	// engine pairs it with a compensating booking update.
	DeleteEntry(ctx context.Context, id EntryID) error
}

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of bookings and their sub-collections.
type Store interface {
	// RunTransaction executes fn atomically against one booking document
	// plus its sub-collections, with bounded retry on write conflict.
	RunTransaction(ctx context.Context, bookingID BookingID, fn func(Tx) error) error

	// CreateBooking inserts a new booking document.
	CreateBooking(ctx context.Context, b *Booking) error

	// Booking reads one booking. Returns ErrBookingNotFound if missing.
	// Reflects only committed state.
	Booking(ctx context.Context, id BookingID) (*Booking, error)

	// ListBookings returns all bookings.
	ListBookings(ctx context.Context) ([]*Booking, error)

	// Entries returns the booking's payment-entry history, oldest first.
	Entries(ctx context.Context, bookingID BookingID) ([]PaymentEntry, error)

	// CreateRequest inserts a family-submitted payment request.
	// The core never originates a request; this is the boundary the
	// family-facing collaborator calls.
	CreateRequest(ctx context.Context, r *PaymentRequest) error

	// Request reads one request. Returns ErrRequestNotFound if missing.
	Request(ctx context.Context, bookingID BookingID, id RequestID) (*PaymentRequest, error)

	// Requests returns the booking's requests, optionally filtered by
	// status (empty status means all), oldest first.
	Requests(ctx context.Context, bookingID BookingID, status RequestStatus) ([]*PaymentRequest, error)

	// SetRequestNotification records the outcome of a notification
	// delivery attempt. Non-transactional by design.
	SetRequestNotification(ctx context.Context, bookingID BookingID, id RequestID, status NotificationStatus, errMsg string) error
}
