// Package payment defines the common contract for the two checkout
// providers. Both normalize to a single PaymentOutcome regardless of their
// wire shape: SwiftPay is a synchronous open-then-callback flow billed in
// minor currency units, OrberPay a create-order/approve/capture flow billed
// in major units.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"ticket-acquisition/models"
)

// Kind identifies a payment provider.
type Kind string

const (
	KindSwiftPay Kind = "swiftpay"
	KindOrberPay Kind = "orberpay"
)

// ErrConfigUnavailable means the server could not issue provider
// configuration. Not retryable without switching providers.
var ErrConfigUnavailable = errors.New("payment: provider configuration unavailable")

// ErrUserCancelled is terminal for the attempt but not a failure to toast.
var ErrUserCancelled = errors.New("payment: cancelled by user")

// RenderError means the interactive checkout surface failed to mount.
// Retryable by opening a fresh session.
type RenderError struct {
	Provider Kind
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("payment: %s checkout failed to open: %v", e.Provider, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// CaptureError means the payment was authorized but settlement failed. The
// reference must reach support so the charge can be reconciled.
type CaptureError struct {
	Reference string
	Err       error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("payment: capture failed for order %s: %v", e.Reference, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// CheckoutRequest describes one payment attempt. Amount is in major units;
// each adapter converts to its provider's expected unit.
type CheckoutRequest struct {
	EventID     string
	TierID      string
	Amount      decimal.Decimal
	Currency    string
	PayerEmail  string
	Description string
}

// Provider is the common adapter surface. Open mounts one interactive
// checkout session; Dismiss tears it down, resolving it as cancelled if no
// outcome has landed. At most one session per orchestrator is live at a time;
// switching providers dismisses the old session first.
type Provider interface {
	Kind() Kind
	Open(ctx context.Context, req *CheckoutRequest) (*Session, error)
	Dismiss(ctx context.Context, s *Session) error
	Close(ctx context.Context) error
}

// Capturer is implemented by providers whose outcome arrives in a separate
// settle step after user approval.
type Capturer interface {
	Capture(ctx context.Context, reference string) (models.PaymentOutcome, error)
}

// Registry manages the configured providers.
type Registry struct {
	providers map[Kind]Provider
	primary   Kind
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[Kind]Provider)}
}

// Register adds a provider. The first registered provider becomes primary.
func (r *Registry) Register(p Provider) {
	r.providers[p.Kind()] = p
	if r.primary == "" {
		r.primary = p.Kind()
	}
}

func (r *Registry) Get(kind Kind) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("payment: provider %s not registered", kind)
	}
	return p, nil
}

func (r *Registry) Primary() (Provider, error) {
	if r.primary == "" {
		return nil, errors.New("payment: no provider configured")
	}
	return r.Get(r.primary)
}

func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.providers))
	for kind := range r.providers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Close shuts every provider down, continuing past individual failures.
func (r *Registry) Close(ctx context.Context) error {
	var firstErr error
	for kind, p := range r.providers {
		if err := p.Close(ctx); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Printf("closing %s provider: %v", kind, err)
		}
	}
	return firstErr
}
