/*
engine.go - Atomic ledger transactions

PURPOSE:
  The Engine is the only component allowed to mutate a booking's financial
  state. On every payment event it atomically:
    (a) appends an immutable payment entry,
    (b) updates the owning cabin's paid/balance amounts,
    (c) recomputes the booking's global aggregates from the full cabin list,
    (d) advances the originating request's state when there is one.
  All four happen inside one store transaction or not at all.

ENTRY POINTS:
  ApplyManualPayment    Admin-entered payment against a cabin
  ApplyPaymentRequest   Approve a pending family request (same mutation,
                        plus the request transition)
  RejectPaymentRequest  Reject a pending request, no monetary effect
  ApplyDeposits         Per-cabin deposit bulk-apply (independent
                        transactions, idempotent per cabin)
  RemovePaymentEntry    Admin override: delete an entry with a
                        compensating recalculation

PRECONDITIONS ARE RE-CHECKED INSIDE THE TRANSACTION:
  Cabin indexes are validated against the booking state re-read inside the
  transaction, never against caller-cached state. Request status is
  re-read the same way, which is what makes two racing approvals resolve
  to exactly one applied state.

NOTIFICATION:
  The engine never talks to the notification channel. Callers invoke the
  Notifier (notify.go) after a commit; its outcome is recorded on the
  request via a separate non-transactional update.

SEE ALSO:
  - recalc.go: Aggregate recomputation used in every transaction
  - store.go: Transaction contract
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine executes ledger transactions against a Store.
type Engine struct {
	Store Store

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{Store: store, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// =============================================================================
// MANUAL PAYMENT
// =============================================================================

// ManualPayment is an admin-entered payment against one cabin.
type ManualPayment struct {
	AmountCad  decimal.Decimal
	CabinIndex int
	Method     string
	Reference  string
	Note       string
	ActorID    string

	// AppliedAt defaults to the current time when nil (back-dated entries
	// are an admin affordance).
	AppliedAt *time.Time
}

// ApplyManualPayment records a manual payment as one atomic transaction
// and returns the new entry's id.
func (e *Engine) ApplyManualPayment(ctx context.Context, bookingID BookingID, p ManualPayment) (EntryID, error) {
	if !p.AmountCad.IsPositive() {
		return "", &InvalidAmountError{Amount: p.AmountCad.String()}
	}

	entryID := EntryID(uuid.NewString())
	err := e.Store.RunTransaction(ctx, bookingID, func(tx Tx) error {
		b, err := tx.Booking(ctx)
		if err != nil {
			return err
		}

		cabin, err := e.applyToCabin(b, p.CabinIndex, p.AmountCad)
		if err != nil {
			return err
		}
		if err := tx.PutBooking(ctx, b); err != nil {
			return err
		}

		appliedAt := e.now()
		if p.AppliedAt != nil {
			appliedAt = p.AppliedAt.UTC()
		}
		return tx.AppendEntry(ctx, PaymentEntry{
			ID:          entryID,
			BookingID:   bookingID,
			AmountCad:   RoundCad(p.AmountCad),
			AppliedAt:   appliedAt,
			Method:      p.Method,
			Reference:   p.Reference,
			Note:        p.Note,
			CreatedBy:   p.ActorID,
			CabinIndex:  p.CabinIndex,
			CabinNumber: cabin.CabinNumber,
			CreatedAt:   e.now(),
		})
	})
	if err != nil {
		return "", err
	}
	return entryID, nil
}

// =============================================================================
// REQUEST APPROVAL / REJECTION
// =============================================================================

// RequestApproval carries the agent's decision when applying a pending
// request. CabinIndex is required: a request with no assigned cabin cannot
// be applied. AmountCad is the amount the ledger uses, which may differ
// from the amount the family originally requested.
type RequestApproval struct {
	AmountCad  decimal.Decimal
	CabinIndex *int
	Method     string
	Reference  string
	AdminNote  string
	ActorID    string
}

// ApplyPaymentRequest approves a pending request: same cabin/global
// mutation as a manual payment, plus the entry is linked back via
// FromRequestID and the request transitions to applied with its audit
// fields and notification sub-state set.
func (e *Engine) ApplyPaymentRequest(ctx context.Context, bookingID BookingID, requestID RequestID, a RequestApproval) error {
	if !a.AmountCad.IsPositive() {
		return &InvalidAmountError{Amount: a.AmountCad.String()}
	}
	if a.CabinIndex == nil {
		return fmt.Errorf("apply request %s: %w", requestID, ErrCabinRequired)
	}

	return e.Store.RunTransaction(ctx, bookingID, func(tx Tx) error {
		// Status is re-read inside the transaction: of two racing
		// approvals exactly one observes pending.
		req, err := tx.Request(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return &RequestStateError{RequestID: req.ID, Status: req.Status}
		}

		b, err := tx.Booking(ctx)
		if err != nil {
			return err
		}
		cabin, err := e.applyToCabin(b, *a.CabinIndex, a.AmountCad)
		if err != nil {
			return err
		}
		if err := tx.PutBooking(ctx, b); err != nil {
			return err
		}

		now := e.now()
		if err := tx.AppendEntry(ctx, PaymentEntry{
			ID:            EntryID(uuid.NewString()),
			BookingID:     bookingID,
			AmountCad:     RoundCad(a.AmountCad),
			AppliedAt:     now,
			Method:        a.Method,
			Reference:     a.Reference,
			Note:          a.AdminNote,
			CreatedBy:     a.ActorID,
			CabinIndex:    *a.CabinIndex,
			CabinNumber:   cabin.CabinNumber,
			FromRequestID: requestID,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		if err := req.MarkApplied(a.AmountCad, a.ActorID, now); err != nil {
			return err
		}
		return tx.PutRequest(ctx, req)
	})
}

// RejectPaymentRequest rejects a pending request. No cabin or global
// value changes; the transition is still atomic with respect to
// concurrent applications of the same request.
func (e *Engine) RejectPaymentRequest(ctx context.Context, bookingID BookingID, requestID RequestID, reason, actorID string) error {
	return e.Store.RunTransaction(ctx, bookingID, func(tx Tx) error {
		req, err := tx.Request(ctx, requestID)
		if err != nil {
			return err
		}
		if err := req.MarkRejected(reason, actorID, e.now()); err != nil {
			return err
		}
		return tx.PutRequest(ctx, req)
	})
}

// =============================================================================
// DEPOSIT BULK-APPLY
// =============================================================================

// DepositResult reports the outcome for one cabin of a bulk deposit run.
type DepositResult struct {
	CabinIndex  int
	CabinNumber string
	Marked      bool
	AlreadyPaid bool
	EntryID     EntryID
	Err         error
}

// ApplyDeposits marks depositPaid on the selected cabins and, for each
// newly-marked cabin, appends a payment entry for that cabin's configured
// deposit amount. Each cabin is its own independent transaction: a partial
// failure leaves some cabins marked and others not, and the per-cabin
// results let the caller retry only the unmarked subset. Re-marking an
// already-paid cabin is a no-op with no duplicate entry.
func (e *Engine) ApplyDeposits(ctx context.Context, bookingID BookingID, cabinIndexes []int, actorID string) []DepositResult {
	results := make([]DepositResult, 0, len(cabinIndexes))

	for _, idx := range cabinIndexes {
		res := DepositResult{CabinIndex: idx}

		err := e.Store.RunTransaction(ctx, bookingID, func(tx Tx) error {
			b, err := tx.Booking(ctx)
			if err != nil {
				return err
			}
			cabin := b.CabinAt(idx)
			if cabin == nil {
				return &CabinNotFoundError{BookingID: b.ID, CabinIndex: idx, CabinCount: len(b.Cabins)}
			}
			res.CabinNumber = cabin.CabinNumber

			if cabin.DepositPaid {
				res.AlreadyPaid = true
				return nil
			}

			cabin.DepositPaid = true
			now := e.now()

			// A cabin without a configured deposit amount is marked
			// without a ledger entry.
			if cabin.DepositCad.IsPositive() {
				cabin.PaidCad = RoundCad(cabin.PaidCad.Add(cabin.DepositCad))
				RecalcCabin(cabin)
				RefreshDeadlines(cabin, now)

				entryID := EntryID(uuid.NewString())
				if err := tx.AppendEntry(ctx, PaymentEntry{
					ID:          entryID,
					BookingID:   bookingID,
					AmountCad:   RoundCad(cabin.DepositCad),
					AppliedAt:   now,
					Method:      "deposit",
					Note:        "deposit marked paid",
					CreatedBy:   actorID,
					CabinIndex:  idx,
					CabinNumber: cabin.CabinNumber,
					CreatedAt:   now,
				}); err != nil {
					return err
				}
				res.EntryID = entryID
			}

			b.RefreshGlobals()
			res.Marked = true
			return tx.PutBooking(ctx, b)
		})
		if err != nil {
			res.Err = err
			res.Marked = false
		}
		results = append(results, res)
	}
	return results
}

// =============================================================================
// ENTRY DELETION (admin override)
// =============================================================================

// RemovePaymentEntry deletes a payment entry and compensates the cabin and
// global amounts in the same transaction, so the aggregate invariant holds
// after deletion too. If the entry's cabin index no longer addresses a
// cabin (cabins were edited since), only the entry is removed and globals
// are recomputed from the surviving cabin list.
func (e *Engine) RemovePaymentEntry(ctx context.Context, bookingID BookingID, entryID EntryID, actorID string) error {
	_ = actorID // reserved for an audit trail on deletions
	return e.Store.RunTransaction(ctx, bookingID, func(tx Tx) error {
		entry, err := tx.Entry(ctx, entryID)
		if err != nil {
			return err
		}
		b, err := tx.Booking(ctx)
		if err != nil {
			return err
		}

		if cabin := b.CabinAt(entry.CabinIndex); cabin != nil {
			cabin.PaidCad = RoundCad(cabin.PaidCad.Sub(entry.AmountCad))
			RecalcCabin(cabin)
			RefreshDeadlines(cabin, e.now())
		}
		b.RefreshGlobals()

		if err := tx.DeleteEntry(ctx, entryID); err != nil {
			return err
		}
		return tx.PutBooking(ctx, b)
	})
}

// =============================================================================
// SHARED CABIN MUTATION
// =============================================================================

// applyToCabin increments the cabin's paid amount and re-derives its
// balance, deadline statuses, and the booking globals. The index is
// validated against the freshly-read cabin list.
func (e *Engine) applyToCabin(b *Booking, index int, amount decimal.Decimal) (*CabinAccount, error) {
	cabin := b.CabinAt(index)
	if cabin == nil {
		return nil, &CabinNotFoundError{BookingID: b.ID, CabinIndex: index, CabinCount: len(b.Cabins)}
	}
	cabin.PaidCad = RoundCad(cabin.PaidCad.Add(amount))
	RecalcCabin(cabin)
	RefreshDeadlines(cabin, e.now())
	b.RefreshGlobals()
	return cabin, nil
}
