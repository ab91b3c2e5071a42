package payment

import (
	"sync"

	"ticket-acquisition/models"
)

// Session is one live interactive checkout. It resolves to exactly one
// PaymentOutcome no matter how many times the provider's callback fires;
// duplicate resolutions are dropped.
type Session struct {
	Provider Kind

	// Reference is the provider-assigned identifier: the checkout session id
	// for SwiftPay, the remote order id for OrberPay.
	Reference string

	// ApprovalURL is where the payer approves an asynchronous order. Empty
	// for the synchronous provider.
	ApprovalURL string

	once    sync.Once
	outcome chan models.PaymentOutcome
}

func NewSession(provider Kind, reference, approvalURL string) *Session {
	return &Session{
		Provider:    provider,
		Reference:   reference,
		ApprovalURL: approvalURL,
		outcome:     make(chan models.PaymentOutcome, 1),
	}
}

// Resolve records the outcome. Returns true the first time only.
func (s *Session) Resolve(o models.PaymentOutcome) bool {
	resolved := false
	s.once.Do(func() {
		s.outcome <- o
		resolved = true
	})
	return resolved
}

// Cancel resolves the session as user-cancelled if still unresolved.
func (s *Session) Cancel() bool {
	return s.Resolve(models.PaymentOutcome{
		Status:    models.PaymentCancelled,
		Reference: s.Reference,
	})
}

// Outcome delivers the single normalized result of this session.
func (s *Session) Outcome() <-chan models.PaymentOutcome {
	return s.outcome
}
