package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ticket-acquisition/models"
)

// Client is the HTTP transport to the admission service. It knows nothing
// about recovery policy; QueueClient layers the sentinel and rejoin rules on
// top of it.
type Client struct {
	baseURL string

	// hc is the http client.
	hc *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type joinRequest struct {
	EventID    string `json:"event_id"`
	GuestName  string `json:"guest_name,omitempty"`
	GuestEmail string `json:"guest_email,omitempty"`
	GuestPhone string `json:"guest_phone,omitempty"`
}

type positionReply struct {
	QueueID      string `json:"queue_id"`
	Position     int    `json:"position"`
	Total        int    `json:"total"`
	IsProcessing bool   `json:"is_processing"`
}

func (r *positionReply) toTicket(eventID string) *models.QueueTicket {
	return &models.QueueTicket{
		QueueID:      r.QueueID,
		EventID:      eventID,
		Position:     r.Position,
		Total:        r.Total,
		IsProcessing: r.IsProcessing,
	}
}

// Join enqueues the caller into the per-event waiting room.
func (c *Client) Join(ctx context.Context, eventID string, guest *models.BuyerInfo) (*models.QueueTicket, error) {
	reqBody := joinRequest{EventID: eventID}
	if guest != nil {
		reqBody.GuestName = guest.Name
		reqBody.GuestEmail = guest.Email
		reqBody.GuestPhone = guest.Phone
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("joinQueue: json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/queue/join", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("joinQueue: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("joinQueue: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("joinQueue: resp.StatusCode: %d", resp.StatusCode)
	}

	var reply positionReply
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("joinQueue: json.Decode: %w", err)
	}

	return reply.toTicket(eventID), nil
}

// CheckPosition fetches the caller's current spot. A missing queue id is
// allowed; the service resolves the caller from its session cookie and
// reports position -1 if it does not know them.
func (c *Client) CheckPosition(ctx context.Context, eventID, queueID string) (*models.QueueTicket, error) {
	q := url.Values{"event_id": []string{eventID}}
	if queueID != "" {
		q.Set("queue_id", queueID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/queue/position?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("checkPosition: http.NewReq: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkPosition: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checkPosition: resp.StatusCode: %d", resp.StatusCode)
	}

	var reply positionReply
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkPosition: json.Decode: %w", err)
	}

	return reply.toTicket(eventID), nil
}

// Complete releases the admission slot after purchase or abandonment.
func (c *Client) Complete(ctx context.Context, eventID, holderID string) error {
	body := fmt.Sprintf(`{"event_id":%q,"queue_id":%q}`, eventID, holderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/queue/complete", bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("completeQueue: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("completeQueue: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("completeQueue: resp.StatusCode: %d", resp.StatusCode)
	}
	return nil
}
