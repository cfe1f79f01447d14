/*
recalc.go - Aggregate recalculation

PURPOSE:
  The booking's five global fields are always recomputed from the full
  in-memory cabin list, never adjusted incrementally. Incremental deltas
  would drift under any out-of-band cabin cost edit; a full reduction
  cannot.

CONTRACT:
  Recompute is a pure, total function. It sums the cabin list the caller
  supplies - never a second store read - so the caller always sees values
  consistent with whatever cabin mutation it is about to commit.

ROUNDING:
  All monetary outputs are rounded to 2 decimal places, half away from
  zero, at each aggregation step. This matches the cent-level rounding of
  each cabin's own balance.

SEE ALSO:
  - engine.go: Invokes Recompute inside every transaction
  - deadline.go: Deadline statuses refreshed alongside
*/
package ledger

import "github.com/shopspring/decimal"

// GlobalTotals is the result of aggregating a booking's cabin list.
type GlobalTotals struct {
	SubtotalCad   decimal.Decimal
	GratuitiesCad decimal.Decimal
	TotalCad      decimal.Decimal
	PaidCad       decimal.Decimal
	BalanceCad    decimal.Decimal
}

// Recompute derives the global sums from the supplied cabin list.
// Pure function, no failure mode; an empty list yields all zeros.
func Recompute(cabins []CabinAccount) GlobalTotals {
	var t GlobalTotals
	for _, c := range cabins {
		t.SubtotalCad = t.SubtotalCad.Add(c.SubtotalCad)
		t.GratuitiesCad = t.GratuitiesCad.Add(c.GratuitiesCad)
		t.TotalCad = t.TotalCad.Add(c.TotalCad)
		t.PaidCad = t.PaidCad.Add(c.PaidCad)
	}
	t.SubtotalCad = RoundCad(t.SubtotalCad)
	t.GratuitiesCad = RoundCad(t.GratuitiesCad)
	t.TotalCad = RoundCad(t.TotalCad)
	t.PaidCad = RoundCad(t.PaidCad)
	t.BalanceCad = RoundCad(t.TotalCad.Sub(t.PaidCad))
	return t
}

// RecalcCabin re-derives a cabin's total and balance from its cost and
// paid fields. Called after any mutation of those fields.
func RecalcCabin(c *CabinAccount) {
	c.TotalCad = RoundCad(c.SubtotalCad.Add(c.GratuitiesCad))
	c.BalanceCad = RoundCad(c.TotalCad.Sub(c.PaidCad))
}

// RefreshGlobals recomputes the booking's global fields from its own
// cabin list.
func (b *Booking) RefreshGlobals() {
	t := Recompute(b.Cabins)
	b.SubtotalCadGlobal = t.SubtotalCad
	b.GratuitiesCadGlobal = t.GratuitiesCad
	b.TotalCadGlobal = t.TotalCad
	b.PaidCadGlobal = t.PaidCad
	b.BalanceCadGlobal = t.BalanceCad
}
