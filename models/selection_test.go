package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTicketSelectionValidate(t *testing.T) {
	sel := TicketSelection{
		TierID:         "tier-vip",
		EventID:        "event-1",
		Name:           "VIP",
		Price:          decimal.NewFromInt(150),
		Currency:       "USD",
		TotalInventory: 100,
		UnitsSold:      40,
	}
	assert.NoError(t, sel.Validate())

	missing := sel
	missing.TierID = ""
	assert.Error(t, missing.Validate())

	oversold := sel
	oversold.UnitsSold = 101
	assert.Error(t, oversold.Validate())

	negative := sel
	negative.Price = decimal.NewFromInt(-1)
	assert.Error(t, negative.Validate())
}

func TestTicketSelectionFree(t *testing.T) {
	free := TicketSelection{TierID: "t", EventID: "e", Price: decimal.Zero}
	paid := TicketSelection{TierID: "t", EventID: "e", Price: decimal.NewFromFloat(9.99)}

	assert.True(t, free.Free())
	assert.False(t, paid.Free())
}

func TestTicketSelectionHighDemand(t *testing.T) {
	sel := TicketSelection{UnitsSold: 10}

	// The threshold is exclusive: exactly at it is still low demand.
	assert.False(t, sel.HighDemand(10))
	sel.UnitsSold = 11
	assert.True(t, sel.HighDemand(10))
}

func TestBuyerInfoValidate(t *testing.T) {
	assert.NoError(t, ptr(AuthenticatedBuyer("+1555000")).Validate())
	assert.Error(t, ptr(AuthenticatedBuyer("")).Validate())

	assert.NoError(t, ptr(GuestBuyer("Ana", "ana@example.com", "+1555000")).Validate())
	assert.Error(t, ptr(GuestBuyer("", "ana@example.com", "+1555000")).Validate())
	assert.Error(t, ptr(GuestBuyer("Ana", "not-an-email", "+1555000")).Validate())
	assert.Error(t, ptr(GuestBuyer("Ana", "ana@example.com", "")).Validate())

	unknown := BuyerInfo{Kind: "robot", Phone: "+1555000"}
	assert.Error(t, unknown.Validate())
}

func ptr(b BuyerInfo) *BuyerInfo { return &b }
