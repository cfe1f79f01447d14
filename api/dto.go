/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and in the ledger engine; DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborline/cruise-ledger/ledger"
)

// =============================================================================
// BOOKINGS
// =============================================================================

// BookingDTO represents a booking with its cabins and global totals.
type BookingDTO struct {
	ID           string `json:"id"`
	ContactEmail string `json:"contact_email,omitempty"`
	AgentNotes   string `json:"agent_notes,omitempty"`

	CabinNumbers []string   `json:"cabin_numbers"`
	Cabins       []CabinDTO `json:"cabins"`

	SubtotalCadGlobal   float64 `json:"subtotal_cad_global"`
	GratuitiesCadGlobal float64 `json:"gratuities_cad_global"`
	TotalCadGlobal      float64 `json:"total_cad_global"`
	PaidCadGlobal       float64 `json:"paid_cad_global"`
	BalanceCadGlobal    float64 `json:"balance_cad_global"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// CabinDTO represents one cabin account.
type CabinDTO struct {
	CabinNumber   string        `json:"cabin_number"`
	BookingNumber string        `json:"booking_number,omitempty"`
	SubtotalCad   float64       `json:"subtotal_cad"`
	GratuitiesCad float64       `json:"gratuities_cad"`
	TotalCad      float64       `json:"total_cad"`
	PaidCad       float64       `json:"paid_cad"`
	BalanceCad    float64       `json:"balance_cad"`
	DepositCad    float64       `json:"deposit_cad,omitempty"`
	DepositPaid   bool          `json:"deposit_paid"`
	Deadlines     []DeadlineDTO `json:"deadlines,omitempty"`
}

// DeadlineDTO represents one scheduled installment.
type DeadlineDTO struct {
	Label     string  `json:"label"`
	DueAt     string  `json:"due_at"`
	AmountCad float64 `json:"amount_cad"`
	Status    string  `json:"status"`
}

// CreateBookingRequest creates a booking with its initial cabin list.
type CreateBookingRequest struct {
	ID           string             `json:"id,omitempty"`
	ContactEmail string             `json:"contact_email"`
	AgentNotes   string             `json:"agent_notes"`
	Cabins       []CreateCabinInput `json:"cabins"`
}

// CreateCabinInput is one cabin in a booking creation request.
type CreateCabinInput struct {
	CabinNumber   string                `json:"cabin_number"`
	BookingNumber string                `json:"booking_number"`
	SubtotalCad   float64               `json:"subtotal_cad"`
	GratuitiesCad float64               `json:"gratuities_cad"`
	DepositCad    float64               `json:"deposit_cad"`
	Deadlines     []CreateDeadlineInput `json:"deadlines,omitempty"`
}

// CreateDeadlineInput is one installment in a cabin creation request.
type CreateDeadlineInput struct {
	Label     string  `json:"label"`
	DueAt     string  `json:"due_at"` // RFC3339
	AmountCad float64 `json:"amount_cad"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// ManualPaymentRequest records an admin-entered payment.
type ManualPaymentRequest struct {
	AmountCad  float64 `json:"amount_cad"`
	CabinIndex int     `json:"cabin_index"`
	Method     string  `json:"method"`
	Reference  string  `json:"reference,omitempty"`
	Note       string  `json:"note,omitempty"`
	AppliedAt  string  `json:"applied_at,omitempty"` // RFC3339, defaults to now
}

// ManualPaymentResponse returns the new entry id.
type ManualPaymentResponse struct {
	EntryID string `json:"entry_id"`
}

// EntryDTO represents one immutable ledger line.
type EntryDTO struct {
	ID            string  `json:"id"`
	AmountCad     float64 `json:"amount_cad"`
	AppliedAt     string  `json:"applied_at"`
	Method        string  `json:"method,omitempty"`
	Reference     string  `json:"reference,omitempty"`
	Note          string  `json:"note,omitempty"`
	CreatedBy     string  `json:"created_by,omitempty"`
	CabinIndex    int     `json:"cabin_index"`
	CabinNumber   string  `json:"cabin_number,omitempty"`
	FromRequestID string  `json:"from_request_id,omitempty"`
}

// DepositApplyRequest selects cabins for a deposit bulk-apply.
type DepositApplyRequest struct {
	CabinIndexes []int `json:"cabin_indexes"`
}

// DepositResultDTO reports the per-cabin outcome so the caller can retry
// only the unmarked subset.
type DepositResultDTO struct {
	CabinIndex  int    `json:"cabin_index"`
	CabinNumber string `json:"cabin_number,omitempty"`
	Marked      bool   `json:"marked"`
	AlreadyPaid bool   `json:"already_paid,omitempty"`
	EntryID     string `json:"entry_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// =============================================================================
// PAYMENT REQUESTS
// =============================================================================

// SubmitRequestRequest is the family-facing submission body.
type SubmitRequestRequest struct {
	AmountCad    float64  `json:"amount_cad"`
	CabinNumbers []string `json:"cabin_numbers,omitempty"`
	Note         string   `json:"note,omitempty"`
}

// ApproveRequestRequest is the agent's approval decision. AmountCad may
// differ from the originally requested amount; CabinIndex is required.
type ApproveRequestRequest struct {
	AmountCad  float64 `json:"amount_cad"`
	CabinIndex *int    `json:"cabin_index"`
	Method     string  `json:"method,omitempty"`
	Reference  string  `json:"reference,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// RejectRequestRequest is the agent's rejection decision.
type RejectRequestRequest struct {
	Reason string `json:"reason"`
}

// RequestDTO represents a payment request with its notification sub-state.
type RequestDTO struct {
	ID           string   `json:"id"`
	BookingID    string   `json:"booking_id"`
	AmountCad    float64  `json:"amount_cad"`
	CabinNumbers []string `json:"cabin_numbers,omitempty"`
	Note         string   `json:"note,omitempty"`
	Status       string   `json:"status"`

	NotificationStatus string `json:"notification_status"`
	NotificationType   string `json:"notification_type,omitempty"`
	NotificationError  string `json:"notification_error,omitempty"`

	AppliedAmountCad *float64 `json:"applied_amount_cad,omitempty"`
	AppliedAt        string   `json:"applied_at,omitempty"`
	RejectedReason   string   `json:"rejected_reason,omitempty"`
	RejectedAt       string   `json:"rejected_at,omitempty"`
	ProcessedBy      string   `json:"processed_by,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
}

// NotifyResponse reports the recorded notification status after a
// delivery attempt.
type NotifyResponse struct {
	NotificationStatus string `json:"notification_status"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBookingDTO(b *ledger.Booking) BookingDTO {
	cabins := make([]CabinDTO, len(b.Cabins))
	for i, c := range b.Cabins {
		cabins[i] = toCabinDTO(c)
	}
	return BookingDTO{
		ID:                  string(b.ID),
		ContactEmail:        b.ContactEmail,
		AgentNotes:          b.AgentNotes,
		CabinNumbers:        b.CabinNumbers,
		Cabins:              cabins,
		SubtotalCadGlobal:   f64(b.SubtotalCadGlobal),
		GratuitiesCadGlobal: f64(b.GratuitiesCadGlobal),
		TotalCadGlobal:      f64(b.TotalCadGlobal),
		PaidCadGlobal:       f64(b.PaidCadGlobal),
		BalanceCadGlobal:    f64(b.BalanceCadGlobal),
		CreatedAt:           formatTime(b.CreatedAt),
		UpdatedAt:           formatTime(b.UpdatedAt),
	}
}

func toCabinDTO(c ledger.CabinAccount) CabinDTO {
	deadlines := make([]DeadlineDTO, len(c.Deadlines))
	for i, d := range c.Deadlines {
		deadlines[i] = DeadlineDTO{
			Label:     d.Label,
			DueAt:     formatTime(d.DueAt),
			AmountCad: f64(d.AmountCad),
			Status:    string(d.Status),
		}
	}
	return CabinDTO{
		CabinNumber:   c.CabinNumber,
		BookingNumber: c.BookingNumber,
		SubtotalCad:   f64(c.SubtotalCad),
		GratuitiesCad: f64(c.GratuitiesCad),
		TotalCad:      f64(c.TotalCad),
		PaidCad:       f64(c.PaidCad),
		BalanceCad:    f64(c.BalanceCad),
		DepositCad:    f64(c.DepositCad),
		DepositPaid:   c.DepositPaid,
		Deadlines:     deadlines,
	}
}

func toEntryDTO(e ledger.PaymentEntry) EntryDTO {
	return EntryDTO{
		ID:            string(e.ID),
		AmountCad:     f64(e.AmountCad),
		AppliedAt:     formatTime(e.AppliedAt),
		Method:        e.Method,
		Reference:     e.Reference,
		Note:          e.Note,
		CreatedBy:     e.CreatedBy,
		CabinIndex:    e.CabinIndex,
		CabinNumber:   e.CabinNumber,
		FromRequestID: string(e.FromRequestID),
	}
}

func toRequestDTO(r *ledger.PaymentRequest) RequestDTO {
	dto := RequestDTO{
		ID:                 string(r.ID),
		BookingID:          string(r.BookingID),
		AmountCad:          f64(r.AmountCad),
		CabinNumbers:       r.CabinNumbers,
		Note:               r.Note,
		Status:             string(r.Status),
		NotificationStatus: string(r.NotificationStatus),
		NotificationType:   string(r.NotificationType),
		NotificationError:  r.NotificationError,
		RejectedReason:     r.RejectedReason,
		ProcessedBy:        r.ProcessedBy,
		CreatedAt:          formatTime(r.CreatedAt),
	}
	if r.AppliedAmountCad != nil {
		v := f64(*r.AppliedAmountCad)
		dto.AppliedAmountCad = &v
	}
	if r.AppliedAt != nil {
		dto.AppliedAt = formatTime(*r.AppliedAt)
	}
	if r.RejectedAt != nil {
		dto.RejectedAt = formatTime(*r.RejectedAt)
	}
	return dto
}

func toDepositResultDTO(res ledger.DepositResult) DepositResultDTO {
	dto := DepositResultDTO{
		CabinIndex:  res.CabinIndex,
		CabinNumber: res.CabinNumber,
		Marked:      res.Marked,
		AlreadyPaid: res.AlreadyPaid,
		EntryID:     string(res.EntryID),
	}
	if res.Err != nil {
		dto.Error = res.Err.Error()
	}
	return dto
}

func f64(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
