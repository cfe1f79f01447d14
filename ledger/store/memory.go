// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/harborline/cruise-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.Mutex
	bookings map[ledger.BookingID]*ledger.Booking
	entries  map[ledger.BookingID][]ledger.PaymentEntry
	requests map[ledger.BookingID][]*ledger.PaymentRequest
}

func NewMemory() *Memory {
	return &Memory{
		bookings: make(map[ledger.BookingID]*ledger.Booking),
		entries:  make(map[ledger.BookingID][]ledger.PaymentEntry),
		requests: make(map[ledger.BookingID][]*ledger.PaymentRequest),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// RunTransaction executes fn under the store lock with snapshot/rollback.
// The lock serialises writers, so the optimistic commit never actually
// conflicts here; concurrent engine calls still observe each other's
// committed state because every attempt re-reads inside the lock.
func (m *Memory) RunTransaction(_ context.Context, bookingID ledger.BookingID, fn func(ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot(bookingID)
	view := &txView{m: m, bookingID: bookingID}

	if err := fn(view); err != nil {
		m.restore(bookingID, snap)
		return err
	}

	if view.bookingPut {
		if b, ok := m.bookings[bookingID]; ok {
			b.Version++
			b.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

type memorySnapshot struct {
	booking  *ledger.Booking
	had      bool
	entries  []ledger.PaymentEntry
	requests []*ledger.PaymentRequest
}

func (m *Memory) snapshot(id ledger.BookingID) memorySnapshot {
	snap := memorySnapshot{
		entries: append([]ledger.PaymentEntry(nil), m.entries[id]...),
	}
	if b, ok := m.bookings[id]; ok {
		snap.booking = b.Clone()
		snap.had = true
	}
	for _, r := range m.requests[id] {
		snap.requests = append(snap.requests, r.Clone())
	}
	return snap
}

func (m *Memory) restore(id ledger.BookingID, snap memorySnapshot) {
	if snap.had {
		m.bookings[id] = snap.booking
	} else {
		delete(m.bookings, id)
	}
	m.entries[id] = snap.entries
	m.requests[id] = snap.requests
}

type txView struct {
	m          *Memory
	bookingID  ledger.BookingID
	bookingPut bool
}

func (v *txView) Booking(_ context.Context) (*ledger.Booking, error) {
	b, ok := v.m.bookings[v.bookingID]
	if !ok {
		return nil, ledger.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (v *txView) PutBooking(_ context.Context, b *ledger.Booking) error {
	prev, ok := v.m.bookings[v.bookingID]
	if !ok {
		return ledger.ErrBookingNotFound
	}
	staged := b.Clone()
	staged.Version = prev.Version
	staged.CreatedAt = prev.CreatedAt
	v.m.bookings[v.bookingID] = staged
	v.bookingPut = true
	return nil
}

func (v *txView) Request(_ context.Context, id ledger.RequestID) (*ledger.PaymentRequest, error) {
	for _, r := range v.m.requests[v.bookingID] {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return nil, ledger.ErrRequestNotFound
}

func (v *txView) PutRequest(_ context.Context, req *ledger.PaymentRequest) error {
	rs := v.m.requests[v.bookingID]
	for i, r := range rs {
		if r.ID == req.ID {
			rs[i] = req.Clone()
			return nil
		}
	}
	return ledger.ErrRequestNotFound
}

func (v *txView) Entry(_ context.Context, id ledger.EntryID) (*ledger.PaymentEntry, error) {
	for _, e := range v.m.entries[v.bookingID] {
		if e.ID == id {
			out := e
			return &out, nil
		}
	}
	return nil, ledger.ErrEntryNotFound
}

func (v *txView) AppendEntry(_ context.Context, e ledger.PaymentEntry) error {
	v.m.entries[v.bookingID] = append(v.m.entries[v.bookingID], e)
	return nil
}

func (v *txView) DeleteEntry(_ context.Context, id ledger.EntryID) error {
	es := v.m.entries[v.bookingID]
	for i, e := range es {
		if e.ID == id {
			v.m.entries[v.bookingID] = append(es[:i:i], es[i+1:]...)
			return nil
		}
	}
	return ledger.ErrEntryNotFound
}

// =============================================================================
// NON-TRANSACTIONAL READS AND BOUNDARY WRITES
// =============================================================================

func (m *Memory) CreateBooking(_ context.Context, b *ledger.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bookings[b.ID]; ok {
		return ledger.ErrBookingExists
	}

	now := time.Now().UTC()
	stored := b.Clone()
	stored.Version = 1
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.bookings[b.ID] = stored
	return nil
}

func (m *Memory) Booking(_ context.Context, id ledger.BookingID) (*ledger.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, ledger.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (m *Memory) ListBookings(_ context.Context) ([]*ledger.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*ledger.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Entries(_ context.Context, bookingID ledger.BookingID) ([]ledger.PaymentEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]ledger.PaymentEntry(nil), m.entries[bookingID]...), nil
}

func (m *Memory) CreateRequest(_ context.Context, r *ledger.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bookings[r.BookingID]; !ok {
		return ledger.ErrBookingNotFound
	}
	m.requests[r.BookingID] = append(m.requests[r.BookingID], r.Clone())
	return nil
}

func (m *Memory) Request(_ context.Context, bookingID ledger.BookingID, id ledger.RequestID) (*ledger.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.requests[bookingID] {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return nil, ledger.ErrRequestNotFound
}

func (m *Memory) Requests(_ context.Context, bookingID ledger.BookingID, status ledger.RequestStatus) ([]*ledger.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ledger.PaymentRequest
	for _, r := range m.requests[bookingID] {
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

func (m *Memory) SetRequestNotification(_ context.Context, bookingID ledger.BookingID, id ledger.RequestID, status ledger.NotificationStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.requests[bookingID] {
		if r.ID == id {
			r.NotificationStatus = status
			r.NotificationError = errMsg
			r.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ledger.ErrRequestNotFound
}
