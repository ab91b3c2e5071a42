package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticket is a confirmed ticket instance issued by the purchase API.
type Ticket struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	EventID      string          `json:"event_id"`
	TierID       string          `json:"tier_id"`
	HolderName   string          `json:"holder_name,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	PaymentRef   string          `json:"payment_ref,omitempty"`
	IssuedAt     time.Time       `json:"issued_at"`
}
