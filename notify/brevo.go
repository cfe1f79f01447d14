/*
Package notify provides ledger.Dispatcher implementations.

The production dispatcher delivers transactional email through the Brevo
HTTP API. Delivery failures are returned to the caller, which records them
on the payment request; nothing here touches financial state.
*/
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/harborline/cruise-ledger/ledger"
)

const brevoURL = "https://api.brevo.com/v3/smtp/email"

// Brevo sends outcome emails through the Brevo transactional API.
type Brevo struct {
	APIKey      string
	SenderEmail string
	SenderName  string

	// HTTPClient is overridable for tests; defaults to a 10s-timeout client.
	HTTPClient *http.Client
}

func NewBrevo(apiKey, senderEmail, senderName string) *Brevo {
	return &Brevo{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// Send implements ledger.Dispatcher.
func (b *Brevo) Send(ctx context.Context, n ledger.Notification) error {
	if n.Recipient == "" || !strings.Contains(n.Recipient, "@") {
		return fmt.Errorf("invalid recipient email: %q", n.Recipient)
	}

	payload := brevoPayload{
		Sender:      map[string]string{"name": b.SenderName, "email": b.SenderEmail},
		To:          []map[string]string{{"email": n.Recipient}},
		Subject:     subjectFor(n),
		HTMLContent: renderBody(n),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", b.APIKey)
	req.Header.Set("content-type", "application/json")

	client := b.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mail API returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func subjectFor(n ledger.Notification) string {
	if n.Template == "payment_approved" {
		return "Your payment has been applied"
	}
	return "Update on your payment request"
}

func renderBody(n ledger.Notification) string {
	var sb strings.Builder
	if n.Template == "payment_approved" {
		fmt.Fprintf(&sb, "<p>Your payment of $%s CAD has been applied to booking %s.</p>",
			n.Variables["amount_cad"], n.Variables["booking_id"])
	} else {
		fmt.Fprintf(&sb, "<p>Your payment request for booking %s could not be applied.</p>",
			n.Variables["booking_id"])
		if reason := n.Variables["reason"]; reason != "" {
			fmt.Fprintf(&sb, "<p>Reason: %s</p>", reason)
		}
	}
	sb.WriteString("<p>Please contact your travel agent with any questions.</p>")
	return sb.String()
}

// =============================================================================
// LOG DISPATCHER - dev fallback when mail is not configured
// =============================================================================

// Log writes notifications to the process log instead of sending them.
type Log struct{}

func (Log) Send(_ context.Context, n ledger.Notification) error {
	log.Printf("notification (mail not configured): to=%s template=%s vars=%v",
		n.Recipient, n.Template, n.Variables)
	return nil
}
