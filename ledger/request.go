/*
request.go - Payment request state machine

PURPOSE:
  Governs the lifecycle of a family-submitted payment request:

      pending ──▶ applied   (terminal)
              └─▶ rejected  (terminal)

  Orthogonal to the financial state, each request carries a notification
  sub-state:

      pending ──▶ sent
              └─▶ failed ──▶ sent   (failed is retryable)

  The financial transition and the notification transition are never
  combined into one store transaction. A retry re-sends using the
  RECORDED outcome (applied amount or rejection reason), never by
  re-running the financial transaction.

SEE ALSO:
  - engine.go: Invokes MarkApplied/MarkRejected inside transactions
  - notify.go: Drives the notification sub-state
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewPaymentRequest builds a pending request as submitted by the
// family-facing collaborator. CabinNumbers is a snapshot of the cabins the
// family may intend the payment for; the agent picks the actual target
// cabin at application time.
func NewPaymentRequest(bookingID BookingID, amount decimal.Decimal, cabinNumbers []string, note string, now time.Time) *PaymentRequest {
	return &PaymentRequest{
		ID:                 RequestID(uuid.NewString()),
		BookingID:          bookingID,
		AmountCad:          RoundCad(amount),
		CabinNumbers:       append([]string(nil), cabinNumbers...),
		Note:               note,
		Status:             RequestPending,
		NotificationStatus: NotificationPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// MarkApplied transitions pending -> applied and records the audit fields.
// The applied amount may differ from the originally requested amount; the
// original AmountCad is preserved unchanged.
func (r *PaymentRequest) MarkApplied(amount decimal.Decimal, actorID string, at time.Time) error {
	if r.Status != RequestPending {
		return &RequestStateError{RequestID: r.ID, Status: r.Status}
	}
	applied := RoundCad(amount)
	r.Status = RequestApplied
	r.AppliedAmountCad = &applied
	r.AppliedAt = &at
	r.ProcessedBy = actorID
	r.NotificationStatus = NotificationPending
	r.NotificationType = NotifyApproved
	r.NotificationError = ""
	r.UpdatedAt = at
	return nil
}

// MarkRejected transitions pending -> rejected. No monetary effect.
func (r *PaymentRequest) MarkRejected(reason, actorID string, at time.Time) error {
	if r.Status != RequestPending {
		return &RequestStateError{RequestID: r.ID, Status: r.Status}
	}
	r.Status = RequestRejected
	r.RejectedReason = reason
	r.RejectedAt = &at
	r.ProcessedBy = actorID
	r.NotificationStatus = NotificationPending
	r.NotificationType = NotifyRejected
	r.NotificationError = ""
	r.UpdatedAt = at
	return nil
}
