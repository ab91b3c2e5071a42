package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-acquisition/models"
)

type fakeAPI struct {
	mu        sync.Mutex
	joins     int
	completes int
	joinErr   error
	checkErr  error
	positions []*models.QueueTicket
	checks    int
}

func (f *fakeAPI) Join(_ context.Context, eventID string, _ *models.BuyerInfo) (*models.QueueTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	return &models.QueueTicket{QueueID: "q-1", EventID: eventID, Position: 5, Total: 10}, nil
}

func (f *fakeAPI) CheckPosition(_ context.Context, eventID, queueID string) (*models.QueueTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	ticket := f.positions[f.checks%len(f.positions)]
	f.checks++
	return ticket, nil
}

func (f *fakeAPI) Complete(_ context.Context, eventID, holderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	return f.joinErr
}

func (f *fakeAPI) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joins
}

type fakePusher struct {
	handlers []func()
}

func (f *fakePusher) Subscribe(_ string, onUpdate func()) func() {
	f.handlers = append(f.handlers, onUpdate)
	return func() {}
}

func TestQueueClientJoinIsIdempotent(t *testing.T) {
	api := &fakeAPI{positions: []*models.QueueTicket{{QueueID: "q-1", Position: 4, Total: 10}}}
	qc := NewQueueClient(api, &fakePusher{}, 3)

	first, err := qc.Join(context.Background(), "event-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "q-1", first.QueueID)

	// Second join must reuse the cached queue id, not enqueue again.
	second, err := qc.Join(context.Background(), "event-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "q-1", second.QueueID)
	assert.Equal(t, 1, api.joinCount())
}

func TestQueueClientCheckPositionNeverErrors(t *testing.T) {
	api := &fakeAPI{checkErr: errors.New("connection refused")}
	qc := NewQueueClient(api, &fakePusher{}, 3)
	qc.Seed("event-1", "q-1", nil)

	ticket := qc.CheckPosition(context.Background(), "event-1")
	require.NotNil(t, ticket)
	assert.Equal(t, models.PositionLost, ticket.Position)
	assert.NotEmpty(t, ticket.Err)
	assert.False(t, ticket.Ready())
}

func TestQueueClientRejoinsAfterConsecutiveLosses(t *testing.T) {
	api := &fakeAPI{
		positions: []*models.QueueTicket{{QueueID: "q-1", Position: models.PositionLost}},
	}
	guest := models.GuestBuyer("Ana", "ana@example.com", "+1555000")
	qc := NewQueueClient(api, &fakePusher{}, 3)
	qc.Seed("event-1", "q-stale", &guest)

	// Two losses: still just reporting lost, no rejoin yet.
	qc.CheckPosition(context.Background(), "event-1")
	qc.CheckPosition(context.Background(), "event-1")
	assert.Equal(t, 0, api.joinCount())

	// Third consecutive loss triggers exactly one rejoin with stored info.
	fresh := qc.CheckPosition(context.Background(), "event-1")
	assert.Equal(t, 1, api.joinCount())
	assert.Equal(t, "q-1", fresh.QueueID)
	assert.Equal(t, 5, fresh.Position)

	// Counter reset: the next loss starts the count over.
	qc.CheckPosition(context.Background(), "event-1")
	assert.Equal(t, 1, api.joinCount())
}

func TestQueueClientLossCounterResetsOnRecovery(t *testing.T) {
	api := &fakeAPI{
		positions: []*models.QueueTicket{
			{QueueID: "q-1", Position: models.PositionLost},
			{QueueID: "q-1", Position: models.PositionLost},
			{QueueID: "q-1", Position: 2, Total: 10},
			{QueueID: "q-1", Position: models.PositionLost},
		},
	}
	qc := NewQueueClient(api, &fakePusher{}, 3)
	qc.Seed("event-1", "q-1", nil)

	for i := 0; i < 4; i++ {
		qc.CheckPosition(context.Background(), "event-1")
	}
	// loss, loss, recovery, loss: never three in a row, so no rejoin.
	assert.Equal(t, 0, api.joinCount())
}

func TestQueueClientRefreshCoalesces(t *testing.T) {
	api := &fakeAPI{positions: []*models.QueueTicket{{QueueID: "q-1", Position: 3, Total: 10}}}
	qc := NewQueueClient(api, &fakePusher{}, 3)
	qc.Seed("event-1", "q-1", nil)

	done := make(chan *models.QueueTicket, 2)
	started := qc.Refresh(context.Background(), "event-1", func(ticket *models.QueueTicket) {
		done <- ticket
	})
	require.True(t, started)

	// Trigger bursts while the first check is still in flight are dropped.
	dropped := 0
	for i := 0; i < 5; i++ {
		if !qc.Refresh(context.Background(), "event-1", func(ticket *models.QueueTicket) {
			done <- ticket
		}) {
			dropped++
		}
	}
	assert.Positive(t, dropped)

	select {
	case ticket := <-done:
		assert.Equal(t, 3, ticket.Position)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh callback never fired")
	}
}

func TestQueueClientCompleteSwallowsErrors(t *testing.T) {
	api := &fakeAPI{joinErr: errors.New("boom")}
	qc := NewQueueClient(api, &fakePusher{}, 3)
	qc.Seed("event-1", "q-1", nil)

	// Must not panic or surface the transport error.
	qc.Complete(context.Background(), "event-1")
	assert.Equal(t, 1, api.completes)
	assert.Empty(t, qc.QueueID("event-1"))
}

func TestQueueClientPushTriggersRefresh(t *testing.T) {
	api := &fakeAPI{positions: []*models.QueueTicket{{QueueID: "q-1", Position: 1, Total: 10}}}
	push := &fakePusher{}
	qc := NewQueueClient(api, push, 3)
	qc.Seed("event-1", "q-1", nil)

	done := make(chan *models.QueueTicket, 1)
	unsubscribe := qc.Subscribe(context.Background(), "event-1", func(ticket *models.QueueTicket) {
		done <- ticket
	})
	defer unsubscribe()

	require.Len(t, push.handlers, 1)
	push.handlers[0]()

	select {
	case ticket := <-done:
		assert.True(t, ticket.Ready())
	case <-time.After(2 * time.Second):
		t.Fatal("push ping did not produce a position check")
	}
}
