package models

import "fmt"

// PaymentStatus is the normalized terminal status of a payment attempt.
type PaymentStatus string

const (
	PaymentSuccess   PaymentStatus = "success"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentOutcome is the normalized result of either payment provider. It is
// produced once per attempt and consumed exactly once by the finalizer.
type PaymentOutcome struct {
	Status        PaymentStatus `json:"status"`
	Reference     string        `json:"reference"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Currency      string        `json:"currency,omitempty"`
}

func (o *PaymentOutcome) Validate() error {
	switch o.Status {
	case PaymentSuccess:
		if o.Reference == "" {
			return fmt.Errorf("payment outcome: success without provider reference")
		}
	case PaymentCancelled, PaymentFailed:
	default:
		return fmt.Errorf("payment outcome: unknown status %q", o.Status)
	}
	return nil
}
