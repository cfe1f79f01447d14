/*
handlers.go - HTTP API handlers for the booking payment ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine, store, and notifier.

ENDPOINTS:
  Bookings:
    GET    /api/bookings                         List bookings
    POST   /api/bookings                         Create booking with cabins
    GET    /api/bookings/{id}                    Booking with cabins + globals
    GET    /api/bookings/{id}/entries            Payment-entry history
    DELETE /api/bookings/{id}/entries/{entryID}  Admin override (compensating)

  Payments:
    POST   /api/bookings/{id}/payments           Manual payment
    POST   /api/bookings/{id}/deposits           Deposit bulk-apply

  Requests:
    POST   /api/bookings/{id}/requests           Family submission
    GET    /api/bookings/{id}/requests           List (filter ?status=)
    POST   /api/bookings/{id}/requests/{rid}/approve
    POST   /api/bookings/{id}/requests/{rid}/reject
    POST   /api/bookings/{id}/requests/{rid}/notify  Send / retry notification

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input (amount, missing cabin)
  - 404: Booking / cabin / request / entry not found
  - 409: Request already processed, transaction conflict (retryable)
  - 500: Internal errors

SECURITY NOTE:
  Actor identity arrives as the opaque X-Actor-ID header and is used only
  for audit fields. Authentication and role checks are an external
  concern and not performed here.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/harborline/cruise-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    ledger.Store
	Engine   *ledger.Engine
	Notifier *ledger.Notifier
}

// NewHandler wires a handler over the given store and dispatcher.
func NewHandler(store ledger.Store, dispatcher ledger.Dispatcher) *Handler {
	return &Handler{
		Store:    store,
		Engine:   ledger.NewEngine(store),
		Notifier: ledger.NewNotifier(store, dispatcher),
	}
}

func actorID(r *http.Request) string {
	if id := r.Header.Get("X-Actor-ID"); id != "" {
		return id
	}
	return "unknown"
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// ListBookings returns all bookings.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Store.ListBookings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bookings", err)
		return
	}

	dtos := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		dtos[i] = toBookingDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBooking returns a single booking with cabins and globals.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := ledger.BookingID(chi.URLParam(r, "id"))

	b, err := h.Store.Booking(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// CreateBooking creates a booking with its initial cabin list. Cabin and
// global totals are derived server-side from the submitted cost fields.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Cabins) == 0 {
		writeError(w, http.StatusBadRequest, "At least one cabin is required", nil)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	b := &ledger.Booking{
		ID:           ledger.BookingID(id),
		ContactEmail: req.ContactEmail,
		AgentNotes:   req.AgentNotes,
	}
	for _, in := range req.Cabins {
		cabin := ledger.CabinAccount{
			CabinNumber:   in.CabinNumber,
			BookingNumber: in.BookingNumber,
			SubtotalCad:   ledger.RoundCad(ledger.Cad(in.SubtotalCad)),
			GratuitiesCad: ledger.RoundCad(ledger.Cad(in.GratuitiesCad)),
			DepositCad:    ledger.RoundCad(ledger.Cad(in.DepositCad)),
		}
		for _, d := range in.Deadlines {
			dueAt, err := time.Parse(time.RFC3339, d.DueAt)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid deadline due_at (use RFC3339)", err)
				return
			}
			cabin.Deadlines = append(cabin.Deadlines, ledger.PaymentDeadline{
				Label:     d.Label,
				DueAt:     dueAt,
				AmountCad: ledger.RoundCad(ledger.Cad(d.AmountCad)),
				Status:    ledger.DeadlineUpcoming,
			})
		}
		ledger.RecalcCabin(&cabin)
		ledger.RefreshDeadlines(&cabin, time.Now().UTC())
		b.CabinNumbers = append(b.CabinNumbers, in.CabinNumber)
		b.Cabins = append(b.Cabins, cabin)
	}
	b.RefreshGlobals()

	if err := h.Store.CreateBooking(r.Context(), b); err != nil {
		writeLedgerError(w, err)
		return
	}

	created, err := h.Store.Booking(r.Context(), b.ID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(created))
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// ListEntries returns the booking's payment history.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	bookingID := ledger.BookingID(chi.URLParam(r, "id"))

	entries, err := h.Store.Entries(r.Context(), bookingID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteEntry removes a payment entry with a compensating recalculation
// of the cabin and global amounts. Admin override.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	bookingID := ledger.BookingID(chi.URLParam(r, "id"))
	entryID := ledger.EntryID(chi.URLParam(r, "entryID"))

	if err := h.Engine.RemovePaymentEntry(r.Context(), bookingID, entryID, actorID(r)); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CreateManualPayment records an admin-entered payment against a cabin.
func (h *Handler) CreateManualPayment(w http.ResponseWriter, r *http.Request) {
	bookingID := ledger.BookingID(chi.URLParam(r, "id"))

	var req ManualPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p := ledger.ManualPayment{
		AmountCad:  ledger.Cad(req.AmountCad),
		CabinIndex: req.CabinIndex,
		Method:     req.Method,
		Reference:  req.Reference,
		Note:       req.Note,
		ActorID:    actorID(r),
	}
	if req.AppliedAt != "" {
		at, err := time.Parse(time.RFC3339, req.AppliedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid applied_at (use RFC3339)", err)
			return
		}
		p.AppliedAt = &at
	}

	entryID, err := h.Engine.ApplyManualPayment(r.Context(), bookingID, p)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ManualPaymentResponse{EntryID: string(entryID)})
}

// ApplyDeposits marks deposits on the selected cabins. Always returns
// 200 with per-cabin results; partial failures are reported inline so
// the caller can retry the unmarked subset.
func (h *Handler) ApplyDeposits(w http.ResponseWriter, r *http.Request) {
	bookingID := ledger.BookingID(chi.URLParam(r, "id"))

	var req DepositApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.CabinIndexes) == 0 {
		writeError(w, http.StatusBadRequest, "cabin_indexes is required", nil)
		return
	}

	results := h.Engine.ApplyDeposits(r.Context(), bookingID, req.CabinIndexes, actorID(r))
	dtos := make([]DepositResultDTO, len(results))
	for i, res := range results {
		dtos[i] = toDepositResultDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// SubmitRequest creates a pending payment request (family-facing boundary).
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	bookingID := ledger.BookingID(chi.URLParam(r, "id"))

	var req SubmitRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount := ledger.Cad(req.AmountCad)
	if !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount_cad must be positive", ledger.ErrInvalidAmount)
		return
	}

	pr := ledger.NewPaymentRequest(bookingID, amount, req.CabinNumbers, req.Note, time.Now().UTC())
	if err := h.Store.CreateRequest(r.Context(), pr); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(pr))
}

// ListRequests returns the booking's requests, optionally filtered by
// ?status=pending|applied|rejected.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	bookingID := ledger.BookingID(chi.URLParam(r, "id"))
	status := ledger.RequestStatus(r.URL.Query().Get("status"))

	requests, err := h.Store.Requests(r.Context(), bookingID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}

	dtos := make([]RequestDTO, len(requests))
	for i, pr := range requests {
		dtos[i] = toRequestDTO(pr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveRequest applies a pending request to a cabin. The approved
// amount may differ from the requested amount.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	bookingID := ledger.BookingID(chi.URLParam(r, "id"))
	requestID := ledger.RequestID(chi.URLParam(r, "requestID"))

	var req ApproveRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Engine.ApplyPaymentRequest(r.Context(), bookingID, requestID, ledger.RequestApproval{
		AmountCad:  ledger.Cad(req.AmountCad),
		CabinIndex: req.CabinIndex,
		Method:     req.Method,
		Reference:  req.Reference,
		AdminNote:  req.Note,
		ActorID:    actorID(r),
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	h.respondWithRequest(w, r, bookingID, requestID, http.StatusOK)
}

// RejectRequest rejects a pending request. No monetary effect.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	bookingID := ledger.BookingID(chi.URLParam(r, "id"))
	requestID := ledger.RequestID(chi.URLParam(r, "requestID"))

	var req RejectRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.RejectPaymentRequest(r.Context(), bookingID, requestID, req.Reason, actorID(r)); err != nil {
		writeLedgerError(w, err)
		return
	}

	h.respondWithRequest(w, r, bookingID, requestID, http.StatusOK)
}

// NotifyRequest sends (or retries) the outcome notification for a
// processed request. A delivery failure is recorded on the request and
// reported in the response, never as a request failure.
func (h *Handler) NotifyRequest(w http.ResponseWriter, r *http.Request) {
	bookingID := ledger.BookingID(chi.URLParam(r, "id"))
	requestID := ledger.RequestID(chi.URLParam(r, "requestID"))

	status, err := h.Notifier.NotifyRequestOutcome(r.Context(), bookingID, requestID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NotifyResponse{NotificationStatus: string(status)})
}

func (h *Handler) respondWithRequest(w http.ResponseWriter, r *http.Request, bookingID ledger.BookingID, requestID ledger.RequestID, status int) {
	pr, err := h.Store.Request(r.Context(), bookingID, requestID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, status, toRequestDTO(pr))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps ledger errors onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrBookingExists):
		writeError(w, http.StatusConflict, "Booking already exists", err)
	case errors.Is(err, ledger.ErrRequestAlreadyProcessed):
		writeError(w, http.StatusConflict, "Request already processed", err)
	case errors.Is(err, ledger.ErrTransactionConflict):
		// Retryable: preconditions are re-validated on re-invocation.
		writeError(w, http.StatusConflict, "Transaction conflict, please retry", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
