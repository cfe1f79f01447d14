/*
Package ledger provides the payment ledger and balance-reconciliation engine
for cruise-group bookings.

PURPOSE:
  This package contains the domain types and algorithms for managing a
  booking's per-cabin finances. A booking owns one or more cabins; each cabin
  carries its own cost, payment, and deadline data, and the booking exposes
  global totals aggregated across all cabins. Payments arrive either as
  admin-entered manual entries or as family-submitted payment requests that
  an agent approves or rejects.

KEY CONCEPTS IN THIS FILE (types.go):
  - Booking: Aggregate root (cabin list + global totals)
  - CabinAccount: Per-cabin financial sub-ledger, addressed by position
  - PaymentEntry: An immutable ledger line recording money applied to a cabin
  - PaymentRequest: A family-submitted claim awaiting agent approval

DESIGN PRINCIPLES:
  1. Immutability: Payment entries are never modified after creation
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Recomputed aggregates: Globals are always re-derived from the full cabin
     list, never adjusted incrementally
  4. Auditability: Every mutation records who did it and when

SEE ALSO:
  - recalc.go: Global aggregate recomputation
  - engine.go: Atomic ledger transactions
  - store.go: Persistence interface
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - CAD amounts with cent-level rounding
// =============================================================================

// RoundCad rounds a CAD amount to cents, half away from zero.
func RoundCad(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Cad builds a CAD amount from a float. Convenience for handlers and tests.
func Cad(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// MustCad parses a CAD amount from a string, panicking on malformed input.
// For literals in tests and fixtures; untrusted input goes through
// decimal.NewFromString so the error can propagate.
func MustCad(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid CAD amount %q: %v", s, err))
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BookingID string
type EntryID string
type RequestID string

// =============================================================================
// PAYMENT DEADLINES
// =============================================================================

type DeadlineStatus string

const (
	DeadlineUpcoming DeadlineStatus = "upcoming"
	DeadlinePaid     DeadlineStatus = "paid"
	DeadlineOverdue  DeadlineStatus = "overdue"
)

// PaymentDeadline is one scheduled installment on a cabin.
type PaymentDeadline struct {
	Label     string          `json:"label"`
	DueAt     time.Time       `json:"due_at"`
	AmountCad decimal.Decimal `json:"amount_cad"`
	Status    DeadlineStatus  `json:"status"`
}

// =============================================================================
// CABIN ACCOUNT - Per-cabin sub-ledger, owned by exactly one booking
// =============================================================================

// CabinAccount is referenced by position in the booking's cabin arrays,
// not as an independent entity. Mutated only inside engine transactions
// or explicit admin cost edits.
type CabinAccount struct {
	CabinNumber   string            `json:"cabin_number"`
	BookingNumber string            `json:"booking_number"`
	SubtotalCad   decimal.Decimal   `json:"subtotal_cad"`
	GratuitiesCad decimal.Decimal   `json:"gratuities_cad"`
	TotalCad      decimal.Decimal   `json:"total_cad"`
	PaidCad       decimal.Decimal   `json:"paid_cad"`
	BalanceCad    decimal.Decimal   `json:"balance_cad"`
	DepositCad    decimal.Decimal   `json:"deposit_cad"`
	DepositPaid   bool              `json:"deposit_paid"`
	Deadlines     []PaymentDeadline `json:"deadlines,omitempty"`
}

// Clone returns a deep copy, including deadlines.
func (c CabinAccount) Clone() CabinAccount {
	out := c
	out.Deadlines = append([]PaymentDeadline(nil), c.Deadlines...)
	return out
}

// =============================================================================
// BOOKING - Aggregate root
// =============================================================================

// Booking is a cruise-group account. CabinNumbers and Cabins are
// index-aligned; the five global fields are always recomputed from the
// full cabin list (see recalc.go).
//
// INVARIANT (holds after every committed transaction):
//   TotalCadGlobal   == Σ Cabins[i].TotalCad
//   PaidCadGlobal    == Σ Cabins[i].PaidCad
//   BalanceCadGlobal == round(TotalCadGlobal - PaidCadGlobal, 2)
type Booking struct {
	ID           BookingID
	ContactEmail string
	AgentNotes   string

	CabinNumbers []string
	Cabins       []CabinAccount

	SubtotalCadGlobal   decimal.Decimal
	GratuitiesCadGlobal decimal.Decimal
	TotalCadGlobal      decimal.Decimal
	PaidCadGlobal       decimal.Decimal
	BalanceCadGlobal    decimal.Decimal

	// Version is the optimistic-concurrency token maintained by the store.
	// Callers never set it.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CabinAt returns a pointer to the cabin at index i, or nil when the index
// does not address an existing cabin.
func (b *Booking) CabinAt(i int) *CabinAccount {
	if i < 0 || i >= len(b.Cabins) {
		return nil
	}
	return &b.Cabins[i]
}

// Clone returns a deep copy of the booking and its cabins.
func (b *Booking) Clone() *Booking {
	out := *b
	out.CabinNumbers = append([]string(nil), b.CabinNumbers...)
	out.Cabins = make([]CabinAccount, len(b.Cabins))
	for i, c := range b.Cabins {
		out.Cabins[i] = c.Clone()
	}
	return &out
}

// =============================================================================
// PAYMENT ENTRY - Immutable ledger line
// =============================================================================

// PaymentEntry records one application of money to a cabin. Created once,
// never mutated. Deletion exists only as an admin override that runs a
// compensating transaction (see engine.go).
type PaymentEntry struct {
	ID        EntryID
	BookingID BookingID

	AmountCad decimal.Decimal
	AppliedAt time.Time
	Method    string
	Reference string
	Note      string
	CreatedBy string

	CabinIndex  int
	CabinNumber string

	// FromRequestID links back to the originating payment request.
	// Empty for manual entries.
	FromRequestID RequestID

	CreatedAt time.Time
}

// =============================================================================
// PAYMENT REQUEST - Family-submitted, agent-processed
// =============================================================================

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApplied  RequestStatus = "applied"
	RequestRejected RequestStatus = "rejected"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

type NotificationType string

const (
	NotifyApproved NotificationType = "approved"
	NotifyRejected NotificationType = "rejected"
)

// PaymentRequest is created by the family-facing collaborator with
// status pending. Applied and rejected are terminal; no financial
// transition is permitted from either. The notification sub-state is
// orthogonal and independently retryable (see request.go, notify.go).
type PaymentRequest struct {
	ID        RequestID
	BookingID BookingID

	AmountCad    decimal.Decimal
	CabinNumbers []string
	Note         string

	Status RequestStatus

	NotificationStatus NotificationStatus
	NotificationType   NotificationType
	NotificationError  string

	// Audit fields, set when the request leaves pending.
	AppliedAmountCad *decimal.Decimal
	AppliedAt        *time.Time
	RejectedReason   string
	RejectedAt       *time.Time
	ProcessedBy      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the request.
func (r *PaymentRequest) Clone() *PaymentRequest {
	out := *r
	out.CabinNumbers = append([]string(nil), r.CabinNumbers...)
	if r.AppliedAmountCad != nil {
		v := *r.AppliedAmountCad
		out.AppliedAmountCad = &v
	}
	if r.AppliedAt != nil {
		t := *r.AppliedAt
		out.AppliedAt = &t
	}
	if r.RejectedAt != nil {
		t := *r.RejectedAt
		out.RejectedAt = &t
	}
	return &out
}

// Terminal reports whether the request has left pending.
func (r *PaymentRequest) Terminal() bool {
	return r.Status == RequestApplied || r.Status == RequestRejected
}
