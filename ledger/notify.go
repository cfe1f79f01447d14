/*
notify.go - Commit-then-notify glue

PURPOSE:
  After a request's financial transition commits, the caller asks the
  Notifier to deliver the outcome email and record what happened. The
  delivery is a separate step joined to the ledger only by the request's
  notification sub-state:

    - a send failure never aborts or reverses the committed transaction,
    - a failed notification is retried idempotently from the RECORDED
      outcome (applied amount or rejection reason),
    - an already-sent notification is not re-sent.

SEE ALSO:
  - request.go: Notification sub-state transitions
  - notify/ (package): HTTP mail dispatcher implementation
*/
package ledger

import (
	"context"
	"fmt"
)

// Notification is what the dispatcher delivers.
type Notification struct {
	Recipient string
	Template  string
	Variables map[string]string
}

// Dispatcher is the external notification channel. Implementations live
// outside the core; the core's only responsibility is to persist whichever
// status results.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) error
}

// Notifier drives the notification sub-state of processed requests.
type Notifier struct {
	Store      Store
	Dispatcher Dispatcher
}

func NewNotifier(store Store, d Dispatcher) *Notifier {
	return &Notifier{Store: store, Dispatcher: d}
}

// NotifyRequestOutcome sends (or retries) the outcome notification for a
// processed request and records the resulting status. Returns the status
// that was recorded. A send failure is recorded, not returned; the error
// return covers only reads and the status write itself.
func (n *Notifier) NotifyRequestOutcome(ctx context.Context, bookingID BookingID, requestID RequestID) (NotificationStatus, error) {
	req, err := n.Store.Request(ctx, bookingID, requestID)
	if err != nil {
		return "", err
	}
	if !req.Terminal() {
		return "", fmt.Errorf("notify request %s: %w", requestID, ErrRequestPending)
	}
	if req.NotificationStatus == NotificationSent {
		return NotificationSent, nil
	}

	b, err := n.Store.Booking(ctx, bookingID)
	if err != nil {
		return "", err
	}

	msg := buildOutcomeNotification(b, req)

	status := NotificationSent
	errMsg := ""
	if sendErr := n.Dispatcher.Send(ctx, msg); sendErr != nil {
		status = NotificationFailed
		errMsg = sendErr.Error()
	}

	if err := n.Store.SetRequestNotification(ctx, bookingID, requestID, status, errMsg); err != nil {
		return "", err
	}
	return status, nil
}

// buildOutcomeNotification assembles the template variables from the
// recorded outcome, never from caller-supplied state.
func buildOutcomeNotification(b *Booking, req *PaymentRequest) Notification {
	vars := map[string]string{
		"booking_id": string(b.ID),
	}
	template := "payment_rejected"
	if req.NotificationType == NotifyApproved {
		template = "payment_approved"
		if req.AppliedAmountCad != nil {
			vars["amount_cad"] = req.AppliedAmountCad.StringFixed(2)
		}
	} else {
		vars["reason"] = req.RejectedReason
	}
	return Notification{
		Recipient: b.ContactEmail,
		Template:  template,
		Variables: vars,
	}
}
