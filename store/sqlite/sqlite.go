/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists bookings, payment entries, and payment requests. The booking
  row is treated as a document: the cabin list is a JSON column, and a
  version counter implements the optimistic read-validate-write commit
  the ledger engine requires. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  bookings:          One row per booking; cabins as JSON, five global sums,
                     version counter for optimistic concurrency
  payment_entries:   Immutable ledger lines (deleted only by the engine's
                     compensating admin override)
  payment_requests:  Family-submitted requests with notification sub-state

OPTIMISTIC CONCURRENCY:
  RunTransaction re-reads the booking inside a SQL transaction and commits
  the update conditionally on the version being unchanged
  (UPDATE ... WHERE version = ?). A failed condition aborts the attempt and
  the whole read-compute-write cycle retries, up to maxTxAttempts; after
  that the operation surfaces ledger.ErrTransactionConflict. Request
  transitions out of pending are guarded the same way with a conditional
  status predicate.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers don't
  block, single writer at a time, better crash recovery.

MONEY:
  Decimal amounts are persisted as strings and re-parsed on load, never as
  floats.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/harborline/cruise-ledger/ledger"
)

// maxTxAttempts bounds the optimistic retry budget per operation.
const maxTxAttempts = 5

// errWriteConflict aborts one attempt of an optimistic transaction.
var errWriteConflict = errors.New("write conflict")

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Bookings (document per booking; cabins embedded as JSON)
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		contact_email TEXT NOT NULL DEFAULT '',
		agent_notes TEXT NOT NULL DEFAULT '',
		cabin_numbers_json TEXT NOT NULL,
		cabins_json TEXT NOT NULL,
		subtotal_global TEXT NOT NULL,
		gratuities_global TEXT NOT NULL,
		total_global TEXT NOT NULL,
		paid_global TEXT NOT NULL,
		balance_global TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Payment entries (immutable ledger lines)
	CREATE TABLE IF NOT EXISTS payment_entries (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		amount_cad TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		method TEXT,
		reference TEXT,
		note TEXT,
		created_by TEXT,
		cabin_index INTEGER NOT NULL,
		cabin_number TEXT,
		from_request_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_booking
		ON payment_entries(booking_id, applied_at);
	CREATE INDEX IF NOT EXISTS idx_entries_request
		ON payment_entries(from_request_id) WHERE from_request_id IS NOT NULL;

	-- Payment requests (family-submitted, agent-processed)
	CREATE TABLE IF NOT EXISTS payment_requests (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		amount_cad TEXT NOT NULL,
		cabin_numbers_json TEXT NOT NULL,
		note TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		notification_status TEXT NOT NULL DEFAULT 'pending',
		notification_type TEXT,
		notification_error TEXT,
		applied_amount_cad TEXT,
		applied_at TEXT,
		rejected_reason TEXT,
		rejected_at TEXT,
		processed_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_booking_status
		ON payment_requests(booking_id, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (ledger.Store RunTransaction)
// =============================================================================

// RunTransaction executes fn with optimistic retry. Each attempt re-reads
// state inside a fresh SQL transaction, so preconditions are re-validated
// on every retry.
//
// The store-wide lock mirrors go-sqlite3's single-writer connection:
// without it, concurrent writers burn the retry budget on "database is
// locked" instead of on version conflicts. Transactions on different
// bookings therefore contend here even though they can never conflict;
// a multi-writer backend would lock per booking instead.
func (s *Store) RunTransaction(ctx context.Context, bookingID ledger.BookingID, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.runOnce(ctx, bookingID, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, errWriteConflict) || isBusyError(err) {
			continue
		}
		return err
	}
	return ledger.ErrTransactionConflict
}

func (s *Store) runOnce(ctx context.Context, bookingID ledger.BookingID, fn func(ledger.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &txView{
		tx:         sqlTx,
		bookingID:  bookingID,
		readStatus: make(map[ledger.RequestID]ledger.RequestStatus),
	}
	if err := fn(view); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txView struct {
	tx        *sql.Tx
	bookingID ledger.BookingID

	// readVersion is the booking version observed inside this attempt;
	// the commit is conditional on it.
	readVersion int64
	bookingRead bool

	// readStatus guards request transitions out of pending.
	readStatus map[ledger.RequestID]ledger.RequestStatus
}

func (v *txView) Booking(ctx context.Context) (*ledger.Booking, error) {
	b, err := queryBooking(ctx, v.tx, v.bookingID)
	if err != nil {
		return nil, err
	}
	v.readVersion = b.Version
	v.bookingRead = true
	return b, nil
}

func (v *txView) PutBooking(ctx context.Context, b *ledger.Booking) error {
	if !v.bookingRead {
		// The engine always reads first; enforce it for stray callers.
		if _, err := v.Booking(ctx); err != nil {
			return err
		}
	}

	cabinNumbersJSON, err := json.Marshal(b.CabinNumbers)
	if err != nil {
		return err
	}
	cabinsJSON, err := json.Marshal(b.Cabins)
	if err != nil {
		return err
	}

	res, err := v.tx.ExecContext(ctx, `
		UPDATE bookings SET
			contact_email = ?, agent_notes = ?,
			cabin_numbers_json = ?, cabins_json = ?,
			subtotal_global = ?, gratuities_global = ?, total_global = ?,
			paid_global = ?, balance_global = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		b.ContactEmail, b.AgentNotes,
		string(cabinNumbersJSON), string(cabinsJSON),
		b.SubtotalCadGlobal.String(), b.GratuitiesCadGlobal.String(), b.TotalCadGlobal.String(),
		b.PaidCadGlobal.String(), b.BalanceCadGlobal.String(),
		time.Now().UTC().Format(time.RFC3339), b.ID, v.readVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errWriteConflict
	}
	return nil
}

func (v *txView) Request(ctx context.Context, id ledger.RequestID) (*ledger.PaymentRequest, error) {
	r, err := queryRequest(ctx, v.tx, v.bookingID, id)
	if err != nil {
		return nil, err
	}
	v.readStatus[id] = r.Status
	return r, nil
}

func (v *txView) PutRequest(ctx context.Context, r *ledger.PaymentRequest) error {
	prior, ok := v.readStatus[r.ID]
	if !ok {
		if _, err := v.Request(ctx, r.ID); err != nil {
			return err
		}
		prior = v.readStatus[r.ID]
	}

	res, err := v.tx.ExecContext(ctx, `
		UPDATE payment_requests SET
			status = ?, notification_status = ?, notification_type = ?,
			notification_error = ?, applied_amount_cad = ?, applied_at = ?,
			rejected_reason = ?, rejected_at = ?, processed_by = ?, updated_at = ?
		WHERE id = ? AND booking_id = ? AND status = ?
	`,
		string(r.Status), string(r.NotificationStatus), string(r.NotificationType),
		r.NotificationError, nullDecimal(r.AppliedAmountCad), nullTime(r.AppliedAt),
		r.RejectedReason, nullTime(r.RejectedAt), r.ProcessedBy,
		time.Now().UTC().Format(time.RFC3339),
		r.ID, r.BookingID, string(prior),
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Someone else moved the request since our read.
		return &ledger.RequestStateError{RequestID: r.ID, Status: r.Status}
	}
	return nil
}

func (v *txView) Entry(ctx context.Context, id ledger.EntryID) (*ledger.PaymentEntry, error) {
	return queryEntry(ctx, v.tx, v.bookingID, id)
}

func (v *txView) AppendEntry(ctx context.Context, e ledger.PaymentEntry) error {
	_, err := v.tx.ExecContext(ctx, `
		INSERT INTO payment_entries
		(id, booking_id, amount_cad, applied_at, method, reference, note,
		 created_by, cabin_index, cabin_number, from_request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.BookingID, e.AmountCad.String(),
		e.AppliedAt.UTC().Format(time.RFC3339),
		e.Method, e.Reference, e.Note, e.CreatedBy,
		e.CabinIndex, e.CabinNumber,
		nullString(string(e.FromRequestID)),
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (v *txView) DeleteEntry(ctx context.Context, id ledger.EntryID) error {
	res, err := v.tx.ExecContext(ctx,
		"DELETE FROM payment_entries WHERE id = ? AND booking_id = ?", id, v.bookingID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

// CreateBooking inserts a booking document at version 1.
func (s *Store) CreateBooking(ctx context.Context, b *ledger.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cabinNumbersJSON, err := json.Marshal(b.CabinNumbers)
	if err != nil {
		return err
	}
	cabinsJSON, err := json.Marshal(b.Cabins)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookings
		(id, contact_email, agent_notes, cabin_numbers_json, cabins_json,
		 subtotal_global, gratuities_global, total_global, paid_global,
		 balance_global, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`,
		b.ID, b.ContactEmail, b.AgentNotes,
		string(cabinNumbersJSON), string(cabinsJSON),
		b.SubtotalCadGlobal.String(), b.GratuitiesCadGlobal.String(),
		b.TotalCadGlobal.String(), b.PaidCadGlobal.String(), b.BalanceCadGlobal.String(),
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("booking %s: %w", b.ID, ledger.ErrBookingExists)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// Booking reads one committed booking document.
func (s *Store) Booking(ctx context.Context, id ledger.BookingID) (*ledger.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryBooking(ctx, s.db, id)
}

// ListBookings returns all bookings ordered by creation time.
func (s *Store) ListBookings(ctx context.Context) ([]*ledger.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, bookingSelect+" ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// =============================================================================
// ENTRIES
// =============================================================================

// Entries returns the booking's payment history, oldest first.
func (s *Store) Entries(ctx context.Context, bookingID ledger.BookingID) ([]ledger.PaymentEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, entrySelect+`
		WHERE booking_id = ?
		ORDER BY applied_at ASC, created_at ASC
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.PaymentEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// =============================================================================
// REQUESTS
// =============================================================================

// CreateRequest inserts a family-submitted request.
func (s *Store) CreateRequest(ctx context.Context, r *ledger.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := queryBooking(ctx, s.db, r.BookingID); err != nil {
		return err
	}

	cabinNumbersJSON, err := json.Marshal(r.CabinNumbers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payment_requests
		(id, booking_id, amount_cad, cabin_numbers_json, note, status,
		 notification_status, notification_type, notification_error,
		 applied_amount_cad, applied_at, rejected_reason, rejected_at,
		 processed_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.BookingID, r.AmountCad.String(), string(cabinNumbersJSON), r.Note,
		string(r.Status), string(r.NotificationStatus), string(r.NotificationType),
		r.NotificationError, nullDecimal(r.AppliedAmountCad), nullTime(r.AppliedAt),
		r.RejectedReason, nullTime(r.RejectedAt), r.ProcessedBy,
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// Request reads one committed request.
func (s *Store) Request(ctx context.Context, bookingID ledger.BookingID, id ledger.RequestID) (*ledger.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRequest(ctx, s.db, bookingID, id)
}

// Requests returns the booking's requests, optionally filtered by status.
func (s *Store) Requests(ctx context.Context, bookingID ledger.BookingID, status ledger.RequestStatus) ([]*ledger.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := requestSelect + " WHERE booking_id = ?"
	args := []any{bookingID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []*ledger.PaymentRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetRequestNotification records a delivery outcome. Deliberately outside
// RunTransaction: the financial commit stands regardless of what happens
// on the notification channel.
func (s *Store) SetRequestNotification(ctx context.Context, bookingID ledger.BookingID, id ledger.RequestID, status ledger.NotificationStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_requests
		SET notification_status = ?, notification_error = ?, updated_at = ?
		WHERE id = ? AND booking_id = ?
	`, string(status), errMsg, time.Now().UTC().Format(time.RFC3339), id, bookingID)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrRequestNotFound
	}
	return nil
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const bookingSelect = `
	SELECT id, contact_email, agent_notes, cabin_numbers_json, cabins_json,
	       subtotal_global, gratuities_global, total_global, paid_global,
	       balance_global, version, created_at, updated_at
	FROM bookings`

func queryBooking(ctx context.Context, q querier, id ledger.BookingID) (*ledger.Booking, error) {
	row := q.QueryRowContext(ctx, bookingSelect+" WHERE id = ?", id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrBookingNotFound
	}
	return b, err
}

func scanBooking(row rowScanner) (*ledger.Booking, error) {
	var (
		b                            ledger.Booking
		cabinNumbersJSON, cabinsJSON string
		subtotal, gratuities, total  string
		paid, balance                string
		createdAt, updatedAt         string
	)
	err := row.Scan(
		&b.ID, &b.ContactEmail, &b.AgentNotes, &cabinNumbersJSON, &cabinsJSON,
		&subtotal, &gratuities, &total, &paid, &balance,
		&b.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(cabinNumbersJSON), &b.CabinNumbers); err != nil {
		return nil, fmt.Errorf("failed to decode cabin numbers: %w", err)
	}
	if err := json.Unmarshal([]byte(cabinsJSON), &b.Cabins); err != nil {
		return nil, fmt.Errorf("failed to decode cabins: %w", err)
	}
	if b.SubtotalCadGlobal, err = parseCad(subtotal); err != nil {
		return nil, err
	}
	if b.GratuitiesCadGlobal, err = parseCad(gratuities); err != nil {
		return nil, err
	}
	if b.TotalCadGlobal, err = parseCad(total); err != nil {
		return nil, err
	}
	if b.PaidCadGlobal, err = parseCad(paid); err != nil {
		return nil, err
	}
	if b.BalanceCadGlobal, err = parseCad(balance); err != nil {
		return nil, err
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &b, nil
}

const entrySelect = `
	SELECT id, booking_id, amount_cad, applied_at, method, reference, note,
	       created_by, cabin_index, cabin_number, from_request_id, created_at
	FROM payment_entries`

func queryEntry(ctx context.Context, q querier, bookingID ledger.BookingID, id ledger.EntryID) (*ledger.PaymentEntry, error) {
	row := q.QueryRowContext(ctx, entrySelect+" WHERE id = ? AND booking_id = ?", id, bookingID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrEntryNotFound
	}
	return e, err
}

func scanEntry(row rowScanner) (*ledger.PaymentEntry, error) {
	var (
		e                            ledger.PaymentEntry
		amount, appliedAt, createdAt string
		method, reference, note      sql.NullString
		createdBy, cabinNumber       sql.NullString
		fromRequestID                sql.NullString
	)
	err := row.Scan(
		&e.ID, &e.BookingID, &amount, &appliedAt, &method, &reference, &note,
		&createdBy, &e.CabinIndex, &cabinNumber, &fromRequestID, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if e.AmountCad, err = parseCad(amount); err != nil {
		return nil, err
	}
	e.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
	e.Method = method.String
	e.Reference = reference.String
	e.Note = note.String
	e.CreatedBy = createdBy.String
	e.CabinNumber = cabinNumber.String
	e.FromRequestID = ledger.RequestID(fromRequestID.String)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

const requestSelect = `
	SELECT id, booking_id, amount_cad, cabin_numbers_json, note, status,
	       notification_status, notification_type, notification_error,
	       applied_amount_cad, applied_at, rejected_reason, rejected_at,
	       processed_by, created_at, updated_at
	FROM payment_requests`

func queryRequest(ctx context.Context, q querier, bookingID ledger.BookingID, id ledger.RequestID) (*ledger.PaymentRequest, error) {
	row := q.QueryRowContext(ctx, requestSelect+" WHERE id = ? AND booking_id = ?", id, bookingID)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrRequestNotFound
	}
	return r, err
}

func scanRequest(row rowScanner) (*ledger.PaymentRequest, error) {
	var (
		r                           ledger.PaymentRequest
		amount, cabinNumbersJSON    string
		note, notifType, notifError sql.NullString
		appliedAmount, appliedAt    sql.NullString
		rejectedReason, rejectedAt  sql.NullString
		processedBy                 sql.NullString
		createdAt, updatedAt        string
	)
	err := row.Scan(
		&r.ID, &r.BookingID, &amount, &cabinNumbersJSON, &note, &r.Status,
		&r.NotificationStatus, &notifType, &notifError,
		&appliedAmount, &appliedAt, &rejectedReason, &rejectedAt,
		&processedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.AmountCad, err = parseCad(amount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cabinNumbersJSON), &r.CabinNumbers); err != nil {
		return nil, fmt.Errorf("failed to decode request cabins: %w", err)
	}
	r.Note = note.String
	r.NotificationType = ledger.NotificationType(notifType.String)
	r.NotificationError = notifError.String
	if appliedAmount.Valid {
		d, err := parseCad(appliedAmount.String)
		if err != nil {
			return nil, err
		}
		r.AppliedAmountCad = &d
	}
	if appliedAt.Valid {
		if t, err := time.Parse(time.RFC3339, appliedAt.String); err == nil {
			r.AppliedAt = &t
		}
	}
	r.RejectedReason = rejectedReason.String
	if rejectedAt.Valid {
		if t, err := time.Parse(time.RFC3339, rejectedAt.String); err == nil {
			r.RejectedAt = &t
		}
	}
	r.ProcessedBy = processedBy.String
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseCad(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("corrupt stored amount %q: %w", s, err)
	}
	return d, nil
}

func isBusyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
