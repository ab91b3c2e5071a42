// Package orberpay adapts the asynchronous order provider: a remote order is
// created, the payer approves it out of band, and the charge settles only on
// an explicit capture call. Amounts are in major currency units.
package orberpay

import (
	"context"
	"fmt"
	"sync"

	"ticket-acquisition/internal/payment"
	"ticket-acquisition/models"
)

type Config struct {
	BaseURL      string `json:"base_url" mapstructure:"base_url"`
	TokenURL     string `json:"token_url" mapstructure:"token_url"`
	ClientID     string `json:"client_id" mapstructure:"client_id"`
	ClientSecret string `json:"client_secret" mapstructure:"client_secret"`
	BrandName    string `json:"brand_name" mapstructure:"brand_name"`
	ReturnURL    string `json:"return_url" mapstructure:"return_url"`
}

// configLoad is the in-flight token for a client-config fetch. A second load
// request while one is pending waits on the same token instead of issuing a
// duplicate fetch.
type configLoad struct {
	done chan struct{}
	cfg  *ClientConfig
	err  error
}

type OrberPay struct {
	client *client

	mu        sync.Mutex
	clientCfg *ClientConfig
	loading   *configLoad
	sessions  map[string]*payment.Session // order id -> live session
}

// New returns a new OrberPay adapter with its token refresher running.
func New(ctx context.Context, cfg *Config) (*OrberPay, error) {
	c := newClient(ctx, cfg)

	// Connect to OrberPay backend. Get access token.
	token, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.setAccessToken(token)

	// Notify access token expired.
	go c.notifyAccessTokenExpired(ctx)

	return &OrberPay{
		client:   c,
		sessions: make(map[string]*payment.Session),
	}, nil
}

func (p *OrberPay) Kind() payment.Kind { return payment.KindOrberPay }

// loadClientConfig fetches the server-issued checkout configuration lazily
// and idempotently. Concurrent callers share one fetch; a failed fetch is
// not cached, so the next open retries it.
func (p *OrberPay) loadClientConfig(ctx context.Context) (*ClientConfig, error) {
	p.mu.Lock()
	if p.clientCfg != nil {
		cfg := p.clientCfg
		p.mu.Unlock()
		return cfg, nil
	}
	if p.loading != nil {
		load := p.loading
		p.mu.Unlock()
		<-load.done
		return load.cfg, load.err
	}

	load := &configLoad{done: make(chan struct{})}
	p.loading = load
	p.mu.Unlock()

	cfg, err := p.client.fetchClientConfig(ctx)

	p.mu.Lock()
	p.loading = nil
	if err == nil {
		p.clientCfg = cfg
	}
	p.mu.Unlock()

	load.cfg = cfg
	load.err = err
	close(load.done)

	return cfg, err
}

// Open creates a remote order. The returned session carries the approval URL
// and stays unresolved until Capture or Dismiss.
func (p *OrberPay) Open(ctx context.Context, req *payment.CheckoutRequest) (*payment.Session, error) {
	if _, err := p.loadClientConfig(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrConfigUnavailable, err)
	}

	reply, err := p.client.createOrder(ctx, req.Amount, req.Currency, req.Description)
	if err != nil {
		return nil, &payment.RenderError{Provider: payment.KindOrberPay, Err: err}
	}

	session := payment.NewSession(payment.KindOrberPay, reply.OrderID, reply.ApprovalURL)

	p.mu.Lock()
	p.sessions[reply.OrderID] = session
	p.mu.Unlock()

	return session, nil
}

// Capture settles an approved order and resolves its session. A settlement
// failure after approval is the reconcile-with-reference error class, so the
// order id always rides along.
func (p *OrberPay) Capture(ctx context.Context, orderID string) (models.PaymentOutcome, error) {
	p.mu.Lock()
	session, ok := p.sessions[orderID]
	p.mu.Unlock()

	if !ok {
		return models.PaymentOutcome{}, fmt.Errorf("orberpay: no open session for order %s", orderID)
	}

	reply, err := p.client.captureOrder(ctx, orderID)
	if err != nil {
		return models.PaymentOutcome{}, &payment.CaptureError{Reference: orderID, Err: err}
	}
	if reply.Status != "COMPLETED" {
		return models.PaymentOutcome{}, &payment.CaptureError{
			Reference: orderID,
			Err:       fmt.Errorf("capture status %q", reply.Status),
		}
	}

	outcome := models.PaymentOutcome{
		Status:        models.PaymentSuccess,
		Reference:     orderID,
		TransactionID: reply.CaptureID,
		Currency:      reply.Currency,
	}

	p.mu.Lock()
	delete(p.sessions, orderID)
	p.mu.Unlock()

	session.Resolve(outcome)
	return outcome, nil
}

// Dismiss discards a stale order session, e.g. when the payer switches
// providers before approving.
func (p *OrberPay) Dismiss(_ context.Context, session *payment.Session) error {
	p.mu.Lock()
	for id, live := range p.sessions {
		if live == session {
			delete(p.sessions, id)
			break
		}
	}
	p.mu.Unlock()

	session.Cancel()
	return nil
}

// Close cancels every outstanding order session.
func (p *OrberPay) Close(_ context.Context) error {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*payment.Session)
	p.mu.Unlock()

	for _, session := range sessions {
		session.Cancel()
	}
	return nil
}
