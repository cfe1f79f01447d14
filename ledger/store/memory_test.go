package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/cruise-ledger/ledger"
	memstore "github.com/harborline/cruise-ledger/ledger/store"
)

func seedBooking(t *testing.T, m *memstore.Memory, id ledger.BookingID) {
	t.Helper()
	b := &ledger.Booking{
		ID:           id,
		CabinNumbers: []string{"A101"},
		Cabins: []ledger.CabinAccount{
			{CabinNumber: "A101", SubtotalCad: ledger.MustCad("1000.00")},
		},
	}
	ledger.RecalcCabin(&b.Cabins[0])
	b.RefreshGlobals()
	require.NoError(t, m.CreateBooking(context.Background(), b))
}

func TestCreateBooking_DuplicateID_Refused(t *testing.T) {
	// Same contract as the sqlite store: a taken id is never overwritten.

	m := memstore.NewMemory()
	ctx := context.Background()
	seedBooking(t, m, "bk-1")

	dup := &ledger.Booking{ID: "bk-1"}
	err := m.CreateBooking(ctx, dup)
	assert.ErrorIs(t, err, ledger.ErrBookingExists)

	b, err := m.Booking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Len(t, b.Cabins, 1, "original document untouched")
}

func TestRunTransaction_FnError_RestoresSnapshot(t *testing.T) {
	// GIVEN: A transaction that stages booking and entry writes
	// WHEN: fn returns an error
	// THEN: Every staged write is rolled back

	m := memstore.NewMemory()
	ctx := context.Background()
	seedBooking(t, m, "bk-1")

	boom := assert.AnError
	err := m.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		b, err := tx.Booking(ctx)
		if err != nil {
			return err
		}
		b.Cabins[0].PaidCad = ledger.MustCad("9999.00")
		b.RefreshGlobals()
		if err := tx.PutBooking(ctx, b); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, ledger.PaymentEntry{ID: "e-1", BookingID: "bk-1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	b, err := m.Booking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "0.00", b.Cabins[0].PaidCad.StringFixed(2))
	assert.Equal(t, int64(1), b.Version)

	entries, err := m.Entries(ctx, "bk-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
