package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func deadlineCabin(paid string) CabinAccount {
	return CabinAccount{
		PaidCad: MustCad(paid),
		Deadlines: []PaymentDeadline{
			{Label: "deposit", DueAt: time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC), AmountCad: MustCad("500.00")},
			{Label: "second", DueAt: time.Date(2026, time.April, 15, 0, 0, 0, 0, time.UTC), AmountCad: MustCad("1000.00")},
			{Label: "final", DueAt: time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC), AmountCad: MustCad("1180.00")},
		},
	}
}

func TestRefreshDeadlines_CumulativeCoverage(t *testing.T) {
	// GIVEN: Payments covering the first deadline and part of the second
	// WHEN: Statuses are refreshed before any due date
	// THEN: First is paid, the rest upcoming

	c := deadlineCabin("700.00")
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	RefreshDeadlines(&c, now)

	assert.Equal(t, DeadlinePaid, c.Deadlines[0].Status)
	assert.Equal(t, DeadlineUpcoming, c.Deadlines[1].Status)
	assert.Equal(t, DeadlineUpcoming, c.Deadlines[2].Status)
}

func TestRefreshDeadlines_PastDueUnpaid_Overdue(t *testing.T) {
	// GIVEN: Only the first deadline covered
	// WHEN: Evaluated after the second deadline's due date
	// THEN: Second is overdue, third still upcoming

	c := deadlineCabin("500.00")
	now := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

	RefreshDeadlines(&c, now)

	assert.Equal(t, DeadlinePaid, c.Deadlines[0].Status)
	assert.Equal(t, DeadlineOverdue, c.Deadlines[1].Status)
	assert.Equal(t, DeadlineUpcoming, c.Deadlines[2].Status)
}

func TestRefreshDeadlines_PartialPayment_DoesNotMarkPaid(t *testing.T) {
	// A partial payment counts toward the first unpaid deadline but
	// never marks it paid, and never leaks into later deadlines.

	c := deadlineCabin("499.99")
	now := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)

	RefreshDeadlines(&c, now)

	assert.Equal(t, DeadlineOverdue, c.Deadlines[0].Status)
	assert.Equal(t, DeadlineUpcoming, c.Deadlines[1].Status)
	assert.Equal(t, DeadlineUpcoming, c.Deadlines[2].Status)
}

func TestRefreshDeadlines_FullyPaid_AllPaid(t *testing.T) {
	c := deadlineCabin("2680.00")
	now := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)

	RefreshDeadlines(&c, now)

	for i, d := range c.Deadlines {
		assert.Equal(t, DeadlinePaid, d.Status, "deadline %d", i)
	}
}

func TestRefreshDeadlines_StatusesRecoverWhenPaymentRemoved(t *testing.T) {
	// GIVEN: A cabin once fully covered
	// WHEN: The paid amount drops (compensating deletion) and statuses refresh
	// THEN: Later deadlines fall back to unpaid statuses

	c := deadlineCabin("2680.00")
	now := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	RefreshDeadlines(&c, now)

	c.PaidCad = MustCad("500.00")
	RefreshDeadlines(&c, now)

	assert.Equal(t, DeadlinePaid, c.Deadlines[0].Status)
	assert.Equal(t, DeadlineOverdue, c.Deadlines[1].Status)
	assert.Equal(t, DeadlineUpcoming, c.Deadlines[2].Status)
}
