// Package swiftpay adapts the synchronous redirect/callback checkout
// provider. A session is opened with an amount in minor currency units, the
// payer completes or abandons it in SwiftPay's own surface, and SwiftPay
// fires exactly one completion or cancel callback per opened session over its
// per-session push channel.
package swiftpay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	pubnub "github.com/pubnub/go/v7"

	"ticket-acquisition/internal/payment"
	"ticket-acquisition/models"
)

type Config struct {
	BaseURL    string `json:"base_url" mapstructure:"base_url"`
	MerchantID string `json:"merchant_id" mapstructure:"merchant_id"`
	APIKey     string `json:"api_key" mapstructure:"api_key"`
	HMACKey    string `json:"hmac_key" mapstructure:"hmac_key"`

	PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
	PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
	PNCipherKey string `json:"pn_cipherkey" mapstructure:"pn_cipherkey"`
}

type SwiftPay struct {
	merchantID string
	hmacKey    string

	client *client
	sub    *subscribe

	mu       sync.Mutex
	sessions map[string]*payment.Session // checkout session id -> live session
}

// callbackPayload is SwiftPay's wire shape for checkout callbacks.
type callbackPayload struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"` // completed, cancelled, failed
	Reference string `json:"refNo"`
	TxnID     string `json:"txnId"`
	Ccy       string `json:"currency"`
	Signature string `json:"signature"`
}

// New returns a new SwiftPay adapter subscribed to its callback channels.
func New(ctx context.Context, cfg *Config) (*SwiftPay, error) {
	s := &SwiftPay{
		merchantID: cfg.MerchantID,
		hmacKey:    cfg.HMACKey,
		client: newClient(ctx, &ClientConfig{
			BaseURL:    cfg.BaseURL,
			MerchantID: cfg.MerchantID,
			APIKey:     cfg.APIKey,
			HMACKey:    cfg.HMACKey,
		}),
		sessions: make(map[string]*payment.Session),
	}

	// Set SwiftPay's PubNub config.
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PNUUID))
	pnCfg.SubscribeKey = cfg.PNSubKey
	pnCfg.CipherKey = cfg.PNCipherKey

	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
		on:  s.handleCallback,
	}
	sub.pn.AddListener(sub.lis)
	go sub.processSubscription(ctx)
	s.sub = sub

	return s, nil
}

func (s *SwiftPay) Kind() payment.Kind { return payment.KindSwiftPay }

// Open creates a checkout session and starts listening for its callback.
// The returned session resolves once: on the completion callback, the cancel
// callback, or a Dismiss when the payer walks away without either.
func (s *SwiftPay) Open(ctx context.Context, req *payment.CheckoutRequest) (*payment.Session, error) {
	// SwiftPay bills in minor units.
	amountMinor := req.Amount.Shift(2).IntPart()

	reply, err := s.client.createSession(ctx, amountMinor, req.Currency, req.PayerEmail, req.Description)
	if err != nil {
		return nil, &payment.RenderError{Provider: payment.KindSwiftPay, Err: err}
	}

	session := payment.NewSession(payment.KindSwiftPay, reply.Reference, reply.CheckoutURL)

	s.mu.Lock()
	s.sessions[reply.SessionID] = session
	s.mu.Unlock()

	s.addChannel(ctx, reply.SessionID)

	return session, nil
}

// Dismiss treats a session with no callback the same as a cancellation and
// drops its callback channel.
func (s *SwiftPay) Dismiss(ctx context.Context, session *payment.Session) error {
	s.mu.Lock()
	var sessionID string
	for id, live := range s.sessions {
		if live == session {
			sessionID = id
			delete(s.sessions, id)
			break
		}
	}
	s.mu.Unlock()

	session.Cancel()
	if sessionID != "" {
		s.unsubscribe(ctx, sessionID)
	}
	return nil
}

// Close cancels every outstanding session.
func (s *SwiftPay) Close(ctx context.Context) error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*payment.Session)
	s.mu.Unlock()

	for sessionID, session := range sessions {
		session.Cancel()
		s.unsubscribe(ctx, sessionID)
	}
	return nil
}

func (s *SwiftPay) handleCallback(p *callbackPayload) {
	if !VerifyCallbackSignature(s.hmacKey, p.SessionID, p.Status, p.Reference, p.Signature) {
		log.Printf("swiftpay: dropping callback with bad signature for session %s", p.SessionID)
		return
	}

	s.mu.Lock()
	session, ok := s.sessions[p.SessionID]
	if ok {
		delete(s.sessions, p.SessionID)
	}
	s.mu.Unlock()

	if !ok {
		// Duplicate delivery or a session already dismissed.
		return
	}

	session.Resolve(outcomeFrom(p))
	s.unsubscribe(context.Background(), p.SessionID)
}

// outcomeFrom normalizes SwiftPay's callback statuses. Anything that is not
// an explicit completion or cancellation counts as a failure.
func outcomeFrom(p *callbackPayload) models.PaymentOutcome {
	outcome := models.PaymentOutcome{
		Reference:     p.Reference,
		TransactionID: p.TxnID,
		Currency:      p.Ccy,
	}
	switch p.Status {
	case "completed":
		outcome.Status = models.PaymentSuccess
	case "cancelled":
		outcome.Status = models.PaymentCancelled
	default:
		outcome.Status = models.PaymentFailed
	}
	return outcome
}

func (s *SwiftPay) channelFor(sessionID string) string {
	return fmt.Sprintf("%s_%s", s.merchantID, sessionID)
}

func (s *SwiftPay) addChannel(_ context.Context, sessionID string) {
	// Get last 2 minutes timetoken so a callback racing the subscription is
	// still delivered.
	tt := time.Now().Add(time.Duration(-2*time.Minute)).Unix() * 10000

	s.sub.pn.Subscribe().Channels([]string{s.channelFor(sessionID)}).Timetoken(tt).Execute()
}

func (s *SwiftPay) unsubscribe(_ context.Context, sessionID string) {
	s.sub.pn.Unsubscribe().Channels([]string{s.channelFor(sessionID)}).Execute()
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	on  func(*callbackPayload)
}

func (s *subscribe) processSubscription(ctx context.Context) {
	listener := s.lis
	for {
		select {
		case status := <-listener.Status:
			switch status.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to pubnub")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to pubnub")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from pubnub")

			default:
				log.Printf("pubnub status category: %v", status.Category)
			}

		case message := <-listener.Message:
			raw, ok := message.Message.(string)
			if !ok {
				data, err := json.Marshal(message.Message)
				if err != nil {
					log.Println(err)
					continue
				}
				raw = string(data)
			}

			var p callbackPayload
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			s.on(&p)

		case <-ctx.Done():
			log.Println("close subscribe")
			return
		}
	}
}
