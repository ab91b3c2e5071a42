package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-acquisition/models"
)

func sampleSelection() *models.StoredSelection {
	guest := models.GuestBuyer("Ana", "ana@example.com", "+1555000")
	return &models.StoredSelection{
		Selection: models.TicketSelection{
			TierID:         "tier-vip",
			EventID:        "event-1",
			Name:           "VIP",
			Price:          decimal.NewFromFloat(125.50),
			Currency:       "USD",
			TotalInventory: 100,
			UnitsSold:      40,
		},
		Quantity: 2,
		QueueID:  "q-1",
		Guest:    &guest,
	}
}

func TestRedisStoreSetAndGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, "sess-1", time.Hour)

	sel := sampleSelection()
	mock.Regexp().ExpectSet("selection:sess-1:event-1", `.*"queue_id":"q-1".*`, time.Hour).SetVal("OK")
	require.NoError(t, s.Set(context.Background(), "event-1", sel))

	data, err := json.Marshal(sel)
	require.NoError(t, err)
	mock.ExpectGet("selection:sess-1:event-1").SetVal(string(data))

	got, err := s.Get(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, "tier-vip", got.Selection.TierID)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, "q-1", got.QueueID)
	require.NotNil(t, got.Guest)
	assert.Equal(t, "ana@example.com", got.Guest.Email)
	assert.True(t, got.Selection.Price.Equal(decimal.NewFromFloat(125.50)))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreGetMissing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, "sess-1", time.Hour)

	mock.ExpectGet("selection:sess-1:event-404").RedisNil()

	_, err := s.Get(context.Background(), "event-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreRemove(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, "sess-1", time.Hour)

	mock.ExpectDel("selection:sess-1:event-1").SetVal(1)
	assert.NoError(t, s.Remove(context.Background(), "event-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreKeysAreOwnerScoped(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mine := NewRedisStore(db, "sess-1", time.Hour)
	theirs := NewRedisStore(db, "sess-2", time.Hour)

	mock.ExpectGet("selection:sess-1:event-1").RedisNil()
	mock.ExpectGet("selection:sess-2:event-1").RedisNil()

	_, err := mine.Get(context.Background(), "event-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = theirs.Get(context.Background(), "event-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "event-1")
	assert.ErrorIs(t, err, ErrNotFound)

	sel := sampleSelection()
	require.NoError(t, s.Set(ctx, "event-1", sel))

	got, err := s.Get(ctx, "event-1")
	require.NoError(t, err)
	assert.Equal(t, sel.Selection.TierID, got.Selection.TierID)
	assert.False(t, got.SavedAt.IsZero())

	// Returned values are copies: mutating one must not leak back.
	got.Quantity = 99
	again, err := s.Get(ctx, "event-1")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Quantity)

	require.NoError(t, s.Remove(ctx, "event-1"))
	_, err = s.Get(ctx, "event-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
