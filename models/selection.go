package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TicketSelection is the tier a user intends to buy. The inventory counters
// are advisory copies of the server's numbers; the purchase API is the only
// writer.
type TicketSelection struct {
	TierID         string          `json:"tier_id"`
	EventID        string          `json:"event_id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	TotalInventory int             `json:"total_inventory"`
	UnitsSold      int             `json:"units_sold"`
}

func (s *TicketSelection) Validate() error {
	if s.TierID == "" {
		return fmt.Errorf("selection: missing tier id")
	}
	if s.EventID == "" {
		return fmt.Errorf("selection: missing event id")
	}
	if s.Price.IsNegative() {
		return fmt.Errorf("selection: negative price")
	}
	if s.UnitsSold > s.TotalInventory {
		return fmt.Errorf("selection: units sold %d exceeds inventory %d", s.UnitsSold, s.TotalInventory)
	}
	return nil
}

// Free reports whether the tier bypasses the payment providers entirely.
func (s *TicketSelection) Free() bool {
	return s.Price.IsZero()
}

// HighDemand reports whether admission control applies for this tier.
func (s *TicketSelection) HighDemand(threshold int) bool {
	return s.UnitsSold > threshold
}

// StoredSelection is the serialized shadow of an in-progress acquisition kept
// in the durable selection store. It also carries the queue identifier and
// guest info so a reloaded session can resume an admission wait.
type StoredSelection struct {
	Selection TicketSelection `json:"selection"`
	Quantity  int             `json:"quantity"`
	QueueID   string          `json:"queue_id,omitempty"`
	Guest     *BuyerInfo      `json:"guest,omitempty"`
	SavedAt   time.Time       `json:"saved_at"`
}
