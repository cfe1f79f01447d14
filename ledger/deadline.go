/*
deadline.go - Payment deadline status evaluation

PURPOSE:
  Each cabin carries an ordered schedule of payment deadlines. A deadline
  is considered paid once the cabin's cumulative payments cover the
  cumulative deadline amounts up to and including it. An unpaid deadline
  past its due date is overdue; everything else is upcoming.

  Statuses are refreshed inside every ledger transaction that changes a
  cabin's paid amount, so the stored schedule always reflects committed
  state.
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefreshDeadlines re-evaluates the status of every deadline on the cabin
// against its current paid amount, as of now.
func RefreshDeadlines(c *CabinAccount, now time.Time) {
	covered := c.PaidCad
	for i := range c.Deadlines {
		d := &c.Deadlines[i]
		if covered.GreaterThanOrEqual(d.AmountCad) {
			d.Status = DeadlinePaid
			covered = covered.Sub(d.AmountCad)
			continue
		}
		// A partial payment counts toward the first unpaid deadline but
		// does not mark it paid.
		covered = decimal.Zero
		if d.DueAt.Before(now) {
			d.Status = DeadlineOverdue
		} else {
			d.Status = DeadlineUpcoming
		}
	}
}
