// Package purchase converts a successful admission and payment into actual
// ticket records via the authoritative inventory API. All at-most-N
// enforcement lives on the server; this client only shapes requests and
// classifies failures.
package purchase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ticket-acquisition/models"
)

// ReconciliationError is a finalize failure after money has already moved.
// It always carries the payment reference verbatim so support can match the
// charge to the unfulfilled purchase. Never retried automatically.
type ReconciliationError struct {
	Reference string
	Message   string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("purchase failed after payment was taken; quote reference %s to support: %s", e.Reference, e.Message)
}

// Request is one finalize attempt.
type Request struct {
	EventID  string
	TierID   string
	Quantity int
	Buyer    models.BuyerInfo

	// Outcome is nil for free tiers; otherwise it must be a success outcome.
	Outcome *models.PaymentOutcome
}

// Finalizer is the HTTP client to the purchase API.
type Finalizer struct {
	baseURL string

	// authToken authenticates purchases for logged-in buyers.
	authToken string

	// hc is the http client.
	hc *http.Client
}

func NewFinalizer(baseURL, authToken string) *Finalizer {
	return &Finalizer{
		baseURL:   baseURL,
		authToken: authToken,

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type finalizeBody struct {
	EventID  string `json:"event_id"`
	TierID   string `json:"tier_id"`
	Quantity int    `json:"quantity"`
	Phone    string `json:"phone"`

	// Guest contact fields; omitted for authenticated buyers.
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`

	// Payment fields; omitted on the free paths.
	PaymentRef    string `json:"payment_ref,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Currency      string `json:"currency,omitempty"`
}

// path picks the purchase API variant: authenticated vs guest, paid vs free.
func path(req *Request) string {
	switch {
	case req.Buyer.Kind == models.BuyerGuest && req.Outcome == nil:
		return "/api/guest-purchase/free"
	case req.Buyer.Kind == models.BuyerGuest:
		return "/api/guest-purchase"
	case req.Outcome == nil:
		return "/api/purchase/free"
	default:
		return "/api/purchase"
	}
}

// Finalize calls the purchase API once and interprets the result. Callers
// guarantee at-most-once invocation per payment outcome; this function does
// not retry.
func (f *Finalizer) Finalize(ctx context.Context, req *Request) ([]models.Ticket, error) {
	if err := req.Buyer.Validate(); err != nil {
		return nil, err
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("finalize: quantity must be at least 1")
	}
	if req.Outcome != nil {
		if err := req.Outcome.Validate(); err != nil {
			return nil, err
		}
		if req.Outcome.Status != models.PaymentSuccess {
			return nil, fmt.Errorf("finalize: refusing non-success payment outcome %q", req.Outcome.Status)
		}
	}

	body := finalizeBody{
		EventID:  req.EventID,
		TierID:   req.TierID,
		Quantity: req.Quantity,
		Phone:    req.Buyer.Phone,
	}
	if req.Buyer.Kind == models.BuyerGuest {
		body.Name = req.Buyer.Name
		body.Email = req.Buyer.Email
	}
	if req.Outcome != nil {
		body.PaymentRef = req.Outcome.Reference
		body.TransactionID = req.Outcome.TransactionID
		body.Currency = req.Outcome.Currency
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("finalize: json.Marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path(req), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("finalize: http.NewReq: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Buyer.Kind == models.BuyerAuthenticated && f.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+f.authToken)
	}

	resp, err := f.hc.Do(httpReq)
	if err != nil {
		return nil, f.classify(req, fmt.Sprintf("finalize: http.Do: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var failure struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		if failure.Message == "" {
			failure.Message = fmt.Sprintf("purchase API returned status %d", resp.StatusCode)
		}
		return nil, f.classify(req, failure.Message)
	}

	var reply struct {
		Tickets []models.Ticket `json:"tickets"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, f.classify(req, fmt.Sprintf("finalize: json.Decode: %v", err))
	}
	if len(reply.Tickets) == 0 {
		return nil, f.classify(req, "purchase API returned no tickets")
	}

	return reply.Tickets, nil
}

// classify upgrades failures that happen after a captured payment to
// reconciliation grade; everything else stays an ordinary error.
func (f *Finalizer) classify(req *Request, message string) error {
	if req.Outcome != nil && req.Outcome.Status == models.PaymentSuccess {
		return &ReconciliationError{Reference: req.Outcome.Reference, Message: message}
	}
	return fmt.Errorf("finalize: %s", message)
}
