package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/cruise-ledger/ledger"
	"github.com/harborline/cruise-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedBooking(t *testing.T, store *sqlite.Store, id ledger.BookingID) {
	t.Helper()

	b := &ledger.Booking{
		ID:           id,
		ContactEmail: "family@example.com",
		AgentNotes:   "group of 12, two cabins",
		CabinNumbers: []string{"A101", "A102"},
		Cabins: []ledger.CabinAccount{
			{
				CabinNumber:   "A101",
				SubtotalCad:   ledger.MustCad("2500.00"),
				GratuitiesCad: ledger.MustCad("180.00"),
				DepositCad:    ledger.MustCad("500.00"),
				Deadlines: []ledger.PaymentDeadline{
					{Label: "final", DueAt: time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC), AmountCad: ledger.MustCad("2680.00"), Status: ledger.DeadlineUpcoming},
				},
			},
			{
				CabinNumber:   "A102",
				SubtotalCad:   ledger.MustCad("3000.00"),
				GratuitiesCad: ledger.MustCad("300.00"),
			},
		},
	}
	for i := range b.Cabins {
		ledger.RecalcCabin(&b.Cabins[i])
	}
	b.RefreshGlobals()
	require.NoError(t, store.CreateBooking(context.Background(), b))
}

func intPtr(i int) *int { return &i }

// newFileStore opens a file-backed store plus a second raw connection to
// the same database, for committing out-of-band writes between a
// transaction's read and its conditional commit.
func newFileStore(t *testing.T) (*sqlite.Store, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	raw, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return store, raw
}

// =============================================================================
// BOOKING ROUND-TRIP
// =============================================================================

func TestBooking_RoundTrip(t *testing.T) {
	// GIVEN: A booking persisted with cabins, deadlines, and globals
	// WHEN: It is read back
	// THEN: Decimal amounts, cabin structure, and version survive intact

	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	b, err := store.Booking(ctx, "bk-1")
	require.NoError(t, err)

	assert.Equal(t, ledger.BookingID("bk-1"), b.ID)
	assert.Equal(t, "family@example.com", b.ContactEmail)
	assert.Equal(t, []string{"A101", "A102"}, b.CabinNumbers)
	require.Len(t, b.Cabins, 2)
	assert.Equal(t, "2680.00", b.Cabins[0].TotalCad.StringFixed(2))
	assert.Equal(t, "500.00", b.Cabins[0].DepositCad.StringFixed(2))
	require.Len(t, b.Cabins[0].Deadlines, 1)
	assert.Equal(t, "final", b.Cabins[0].Deadlines[0].Label)
	assert.Equal(t, "5980.00", b.TotalCadGlobal.StringFixed(2))
	assert.Equal(t, int64(1), b.Version)
}

func TestBooking_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Booking(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrBookingNotFound)
}

func TestCreateBooking_DuplicateID_Refused(t *testing.T) {
	// The primary key rejects a second document under the same id.

	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	dup := &ledger.Booking{ID: "bk-1", CabinNumbers: []string{}, Cabins: []ledger.CabinAccount{}}
	err := store.CreateBooking(ctx, dup)
	assert.ErrorIs(t, err, ledger.ErrBookingExists)
}

func TestBooking_CorruptStoredAmount_SurfacesError(t *testing.T) {
	// GIVEN: A stored amount that no longer parses as a decimal
	// WHEN: The document is read back
	// THEN: The read fails loudly instead of silently yielding 0.00

	store, raw := newFileStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	_, err := raw.ExecContext(ctx,
		"UPDATE bookings SET paid_global = 'not-a-number' WHERE id = ?", "bk-1")
	require.NoError(t, err)

	_, err = store.Booking(ctx, "bk-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt stored amount")
}

func TestEntries_CorruptStoredAmount_SurfacesError(t *testing.T) {
	store, raw := newFileStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	now := time.Now().UTC()
	err := store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		return tx.AppendEntry(ctx, ledger.PaymentEntry{
			ID: "e-1", BookingID: "bk-1",
			AmountCad: ledger.MustCad("100.00"),
			AppliedAt: now, CreatedAt: now,
		})
	})
	require.NoError(t, err)

	_, err = raw.ExecContext(ctx,
		"UPDATE payment_entries SET amount_cad = '12,34' WHERE id = 'e-1'")
	require.NoError(t, err)

	_, err = store.Entries(ctx, "bk-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt stored amount")
}

func TestListBookings_ReturnsAll(t *testing.T) {
	store := newTestStore(t)
	seedBooking(t, store, "bk-1")
	seedBooking(t, store, "bk-2")

	bookings, err := store.ListBookings(context.Background())
	require.NoError(t, err)
	assert.Len(t, bookings, 2)
}

// =============================================================================
// TRANSACTIONS AND VERSIONING
// =============================================================================

func TestRunTransaction_CommitBumpsVersion(t *testing.T) {
	// GIVEN: A booking at version 1
	// WHEN: A transaction mutates and commits it
	// THEN: The stored version is 2 and the mutation is visible

	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	err := store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		b, err := tx.Booking(ctx)
		if err != nil {
			return err
		}
		b.Cabins[0].PaidCad = ledger.MustCad("100.00")
		ledger.RecalcCabin(&b.Cabins[0])
		b.RefreshGlobals()
		return tx.PutBooking(ctx, b)
	})
	require.NoError(t, err)

	b, err := store.Booking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Version)
	assert.Equal(t, "100.00", b.Cabins[0].PaidCad.StringFixed(2))
	assert.Equal(t, "100.00", b.PaidCadGlobal.StringFixed(2))
}

func TestRunTransaction_FnError_RollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	boom := assert.AnError
	err := store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		b, err := tx.Booking(ctx)
		if err != nil {
			return err
		}
		b.Cabins[0].PaidCad = ledger.MustCad("9999.00")
		b.RefreshGlobals()
		if err := tx.PutBooking(ctx, b); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, ledger.PaymentEntry{
			ID: "e-1", BookingID: "bk-1",
			AmountCad: ledger.MustCad("9999.00"),
			AppliedAt: time.Now().UTC(), CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	b, err := store.Booking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "0.00", b.Cabins[0].PaidCad.StringFixed(2), "write rolled back")
	assert.Equal(t, int64(1), b.Version)

	entries, err := store.Entries(ctx, "bk-1")
	require.NoError(t, err)
	assert.Empty(t, entries, "entry rolled back with the booking write")
}

func TestRunTransaction_ConcurrentWrites_Serialized(t *testing.T) {
	// Concurrent transactions against the same booking must all commit,
	// each one observing the previous one's state.

	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
				b, err := tx.Booking(ctx)
				if err != nil {
					return err
				}
				b.Cabins[0].PaidCad = ledger.RoundCad(b.Cabins[0].PaidCad.Add(ledger.MustCad("25.00")))
				ledger.RecalcCabin(&b.Cabins[0])
				b.RefreshGlobals()
				return tx.PutBooking(ctx, b)
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "tx %d", i)
	}

	b, err := store.Booking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "200.00", b.Cabins[0].PaidCad.StringFixed(2))
	assert.Equal(t, int64(1+n), b.Version)
}

// =============================================================================
// OPTIMISTIC CONFLICTS
// =============================================================================

func TestRunTransaction_ConflictOnFirstAttempt_RetrySucceeds(t *testing.T) {
	// GIVEN: An out-of-band writer commits between our read and our write
	// WHEN: The conflict happens only on the first attempt
	// THEN: The retry re-runs the full cycle against fresh state and commits

	store, raw := newFileStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	attempts := 0
	err := store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		attempts++
		b, err := tx.Booking(ctx)
		if err != nil {
			return err
		}
		if attempts == 1 {
			_, err := raw.ExecContext(ctx,
				"UPDATE bookings SET version = version + 1 WHERE id = ?", "bk-1")
			require.NoError(t, err)
		}
		b.Cabins[0].PaidCad = ledger.RoundCad(b.Cabins[0].PaidCad.Add(ledger.MustCad("100.00")))
		ledger.RecalcCabin(&b.Cabins[0])
		b.RefreshGlobals()
		return tx.PutBooking(ctx, b)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts, "first attempt conflicts, second commits")

	b, err := store.Booking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "100.00", b.Cabins[0].PaidCad.StringFixed(2), "the increment landed exactly once")
}

func TestRunTransaction_PersistentConflict_ExhaustsRetryBudget(t *testing.T) {
	// GIVEN: An out-of-band writer that conflicts with every attempt
	// WHEN: The retry budget runs out
	// THEN: The operation surfaces the retryable conflict error and the
	//       staged mutation never commits

	store, raw := newFileStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	attempts := 0
	err := store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		attempts++
		b, err := tx.Booking(ctx)
		if err != nil {
			return err
		}
		_, err = raw.ExecContext(ctx,
			"UPDATE bookings SET version = version + 1 WHERE id = ?", "bk-1")
		require.NoError(t, err)

		b.Cabins[0].PaidCad = ledger.MustCad("9999.00")
		ledger.RecalcCabin(&b.Cabins[0])
		b.RefreshGlobals()
		return tx.PutBooking(ctx, b)
	})

	require.ErrorIs(t, err, ledger.ErrTransactionConflict)
	assert.True(t, ledger.IsRetryable(err))
	assert.Equal(t, 5, attempts, "every attempt re-ran the full read-compute-write cycle")

	b, err := store.Booking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "0.00", b.Cabins[0].PaidCad.StringFixed(2), "no attempt committed")
}

func TestPutRequest_OutOfBandTransition_AlreadyProcessed(t *testing.T) {
	// GIVEN: A request moved out of pending by an out-of-band writer after
	//        our transactional read observed it pending
	// WHEN: The transaction tries to commit its own transition
	// THEN: The conditional status predicate refuses it

	store, raw := newFileStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	now := time.Now().UTC()
	req := ledger.NewPaymentRequest("bk-1", ledger.MustCad("500.00"), nil, "", now)
	require.NoError(t, store.CreateRequest(ctx, req))

	err := store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		r, err := tx.Request(ctx, req.ID)
		if err != nil {
			return err
		}
		if r.Status == ledger.RequestPending {
			_, err := raw.ExecContext(ctx,
				"UPDATE payment_requests SET status = 'rejected' WHERE id = ?", string(req.ID))
			require.NoError(t, err)
		}
		if err := r.MarkApplied(ledger.MustCad("500.00"), "agent-7", now); err != nil {
			return err
		}
		return tx.PutRequest(ctx, r)
	})

	assert.ErrorIs(t, err, ledger.ErrRequestAlreadyProcessed)

	got, err := store.Request(ctx, "bk-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RequestRejected, got.Status, "the out-of-band transition stands")
	assert.Nil(t, got.AppliedAmountCad)
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestEntries_AppendAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	now := time.Now().UTC().Truncate(time.Second)
	err := store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		return tx.AppendEntry(ctx, ledger.PaymentEntry{
			ID:            "e-1",
			BookingID:     "bk-1",
			AmountCad:     ledger.MustCad("350.75"),
			AppliedAt:     now,
			Method:        "e-transfer",
			Reference:     "ET-001",
			CreatedBy:     "agent-7",
			CabinIndex:    0,
			CabinNumber:   "A101",
			FromRequestID: "req-1",
			CreatedAt:     now,
		})
	})
	require.NoError(t, err)

	entries, err := store.Entries(ctx, "bk-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "350.75", entries[0].AmountCad.StringFixed(2))
	assert.Equal(t, ledger.RequestID("req-1"), entries[0].FromRequestID)
	assert.Equal(t, "A101", entries[0].CabinNumber)
	assert.True(t, entries[0].AppliedAt.Equal(now))

	err = store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		return tx.DeleteEntry(ctx, "e-1")
	})
	require.NoError(t, err)

	entries, err = store.Entries(ctx, "bk-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		return tx.DeleteEntry(ctx, "e-1")
	})
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestRequests_LifecyclePersistence(t *testing.T) {
	// GIVEN: A persisted pending request
	// WHEN: It is applied inside a transaction
	// THEN: Audit fields and notification sub-state round-trip

	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	now := time.Now().UTC().Truncate(time.Second)
	req := ledger.NewPaymentRequest("bk-1", ledger.MustCad("750.00"), []string{"A101"}, "sent e-transfer", now)
	require.NoError(t, store.CreateRequest(ctx, req))

	err := store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		r, err := tx.Request(ctx, req.ID)
		if err != nil {
			return err
		}
		if err := r.MarkApplied(ledger.MustCad("600.00"), "agent-7", now); err != nil {
			return err
		}
		return tx.PutRequest(ctx, r)
	})
	require.NoError(t, err)

	got, err := store.Request(ctx, "bk-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RequestApplied, got.Status)
	assert.Equal(t, "750.00", got.AmountCad.StringFixed(2))
	require.NotNil(t, got.AppliedAmountCad)
	assert.Equal(t, "600.00", got.AppliedAmountCad.StringFixed(2))
	require.NotNil(t, got.AppliedAt)
	assert.True(t, got.AppliedAt.Equal(now))
	assert.Equal(t, "agent-7", got.ProcessedBy)
	assert.Equal(t, ledger.NotifyApproved, got.NotificationType)
	assert.Equal(t, []string{"A101"}, got.CabinNumbers)
}

func TestPutRequest_StaleStatus_Conflicts(t *testing.T) {
	// The conditional status predicate refuses a transition computed from
	// a stale read: the request was already moved out of pending.

	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	now := time.Now().UTC()
	req := ledger.NewPaymentRequest("bk-1", ledger.MustCad("500.00"), nil, "", now)
	require.NoError(t, store.CreateRequest(ctx, req))

	apply := func() error {
		return store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
			r, err := tx.Request(ctx, req.ID)
			if err != nil {
				return err
			}
			if err := r.MarkApplied(ledger.MustCad("500.00"), "agent-7", now); err != nil {
				return err
			}
			return tx.PutRequest(ctx, r)
		})
	}

	require.NoError(t, apply())

	err := apply()
	assert.ErrorIs(t, err, ledger.ErrRequestAlreadyProcessed)
}

func TestRequests_StatusFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	now := time.Now().UTC()
	pending := ledger.NewPaymentRequest("bk-1", ledger.MustCad("100.00"), nil, "", now)
	rejected := ledger.NewPaymentRequest("bk-1", ledger.MustCad("200.00"), nil, "", now.Add(time.Second))
	require.NoError(t, store.CreateRequest(ctx, pending))
	require.NoError(t, store.CreateRequest(ctx, rejected))

	err := store.RunTransaction(ctx, "bk-1", func(tx ledger.Tx) error {
		r, err := tx.Request(ctx, rejected.ID)
		if err != nil {
			return err
		}
		if err := r.MarkRejected("no", "agent-7", now); err != nil {
			return err
		}
		return tx.PutRequest(ctx, r)
	})
	require.NoError(t, err)

	got, err := store.Requests(ctx, "bk-1", ledger.RequestPending)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)

	all, err := store.Requests(ctx, "bk-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSetRequestNotification_Persists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	req := ledger.NewPaymentRequest("bk-1", ledger.MustCad("100.00"), nil, "", time.Now().UTC())
	require.NoError(t, store.CreateRequest(ctx, req))

	err := store.SetRequestNotification(ctx, "bk-1", req.ID, ledger.NotificationFailed, "mail API returned 503")
	require.NoError(t, err)

	got, err := store.Request(ctx, "bk-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.NotificationFailed, got.NotificationStatus)
	assert.Equal(t, "mail API returned 503", got.NotificationError)

	err = store.SetRequestNotification(ctx, "bk-1", "missing", ledger.NotificationSent, "")
	assert.ErrorIs(t, err, ledger.ErrRequestNotFound)
}

// =============================================================================
// ENGINE OVER SQLITE (end to end)
// =============================================================================

func TestEngineOverSqlite_ApproveRequest(t *testing.T) {
	// The full approval path against the real store: one committed
	// transaction covering booking update, entry append, and transition.

	store := newTestStore(t)
	ctx := context.Background()
	seedBooking(t, store, "bk-1")

	engine := ledger.NewEngine(store)
	req := ledger.NewPaymentRequest("bk-1", ledger.MustCad("750.00"), []string{"A101"}, "", time.Now().UTC())
	require.NoError(t, store.CreateRequest(ctx, req))

	err := engine.ApplyPaymentRequest(ctx, "bk-1", req.ID, ledger.RequestApproval{
		AmountCad:  ledger.MustCad("750.00"),
		CabinIndex: intPtr(0),
		ActorID:    "agent-7",
	})
	require.NoError(t, err)

	b, err := store.Booking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "750.00", b.Cabins[0].PaidCad.StringFixed(2))
	assert.Equal(t, "750.00", b.PaidCadGlobal.StringFixed(2))
	assert.Equal(t, int64(2), b.Version)

	entries, err := store.Entries(ctx, "bk-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, req.ID, entries[0].FromRequestID)

	// Re-applying is refused with no second entry
	err = engine.ApplyPaymentRequest(ctx, "bk-1", req.ID, ledger.RequestApproval{
		AmountCad:  ledger.MustCad("750.00"),
		CabinIndex: intPtr(0),
	})
	assert.ErrorIs(t, err, ledger.ErrRequestAlreadyProcessed)

	entries, err = store.Entries(ctx, "bk-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
