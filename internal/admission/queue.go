package admission

import (
	"context"
	"log"
	"sync"

	"ticket-acquisition/models"
	"ticket-acquisition/monitoring"
	"ticket-acquisition/utils"
)

// API is the admission service transport consumed by QueueClient.
type API interface {
	Join(ctx context.Context, eventID string, guest *models.BuyerInfo) (*models.QueueTicket, error)
	CheckPosition(ctx context.Context, eventID, queueID string) (*models.QueueTicket, error)
	Complete(ctx context.Context, eventID, holderID string) error
}

// Pusher is the best-effort push channel for queue updates.
type Pusher interface {
	Subscribe(eventID string, onUpdate func()) func()
}

type entry struct {
	queueID    string
	guest      *models.BuyerInfo
	lost       int
	refreshing bool
}

// QueueClient maintains the local view of the caller's spot in each event's
// waiting room. Position checks never surface transport errors; they return
// a lost-position sentinel so the orchestrator applies one recovery path for
// every failure mode.
type QueueClient struct {
	api         API
	push        Pusher
	breaker     *utils.CircuitBreaker
	rejoinAfter int

	mu      sync.Mutex
	entries map[string]*entry
}

func NewQueueClient(api API, push Pusher, rejoinAfter int) *QueueClient {
	if rejoinAfter <= 0 {
		rejoinAfter = 3
	}
	return &QueueClient{
		api:         api,
		push:        push,
		breaker:     utils.NewCircuitBreaker("admission"),
		rejoinAfter: rejoinAfter,
		entries:     make(map[string]*entry),
	}
}

// Join enters the event's waiting room. Idempotent: a locally cached queue id
// is reused so a retry never enqueues the caller twice.
func (c *QueueClient) Join(ctx context.Context, eventID string, guest *models.BuyerInfo) (*models.QueueTicket, error) {
	c.mu.Lock()
	e, ok := c.entries[eventID]
	c.mu.Unlock()

	if ok && e.queueID != "" {
		return c.CheckPosition(ctx, eventID), nil
	}

	ticket, err := c.api.Join(ctx, eventID, guest)
	if err != nil {
		monitoring.TrackQueueOperation("join", eventID, "error")
		return nil, err
	}
	monitoring.TrackQueueOperation("join", eventID, "success")

	c.mu.Lock()
	c.entries[eventID] = &entry{queueID: ticket.QueueID, guest: guest}
	c.mu.Unlock()

	return ticket, nil
}

// Seed installs a queue id recovered from the selection store without
// re-joining. The next position check confirms whether it is still live.
func (c *QueueClient) Seed(eventID, queueID string, guest *models.BuyerInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[eventID] = &entry{queueID: queueID, guest: guest}
}

// QueueID returns the cached queue identifier for the event, if any.
func (c *QueueClient) QueueID(eventID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[eventID]; ok {
		return e.queueID
	}
	return ""
}

// CheckPosition refreshes the caller's spot. It never returns an error:
// transport failures come back as a sentinel ticket with position -1 and a
// message. After rejoinAfter consecutive lost responses while a queue id is
// cached, a single rejoin is issued with the stored guest info and the lost
// counter resets on success.
func (c *QueueClient) CheckPosition(ctx context.Context, eventID string) *models.QueueTicket {
	queueID := c.QueueID(eventID)

	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.api.CheckPosition(ctx, eventID, queueID)
	})
	if err != nil {
		monitoring.TrackQueueOperation("check", eventID, "error")
		return c.observe(ctx, eventID, &models.QueueTicket{
			QueueID:  queueID,
			EventID:  eventID,
			Position: models.PositionLost,
			Err:      err.Error(),
		})
	}

	monitoring.TrackQueueOperation("check", eventID, "success")
	return c.observe(ctx, eventID, result.(*models.QueueTicket))
}

func (c *QueueClient) observe(ctx context.Context, eventID string, ticket *models.QueueTicket) *models.QueueTicket {
	c.mu.Lock()
	e, ok := c.entries[eventID]
	if !ok {
		c.mu.Unlock()
		return ticket
	}

	if !ticket.Lost() {
		e.lost = 0
		if ticket.QueueID != "" {
			e.queueID = ticket.QueueID
		}
		c.mu.Unlock()
		return ticket
	}

	e.lost++
	if e.lost < c.rejoinAfter {
		c.mu.Unlock()
		return ticket
	}

	// Third consecutive lost response: the service has forgotten us.
	// Rejoin with the guest info stored at the original join.
	e.lost = 0
	guest := e.guest
	c.mu.Unlock()

	fresh, err := c.api.Join(ctx, eventID, guest)
	if err != nil {
		monitoring.TrackQueueOperation("rejoin", eventID, "error")
		log.Printf("queue rejoin failed for event %s: %v", eventID, err)
		return ticket
	}
	monitoring.TrackQueueOperation("rejoin", eventID, "success")

	c.mu.Lock()
	c.entries[eventID] = &entry{queueID: fresh.QueueID, guest: guest}
	c.mu.Unlock()

	return fresh
}

// Refresh runs one position check on its own goroutine unless a check for
// this event is already in flight, in which case the trigger is dropped.
// Both the poll timer and the push channel funnel through here so bursts of
// updates never produce overlapping checks.
func (c *QueueClient) Refresh(ctx context.Context, eventID string, onTicket func(*models.QueueTicket)) bool {
	c.mu.Lock()
	e, ok := c.entries[eventID]
	if !ok {
		e = &entry{}
		c.entries[eventID] = e
	}
	if e.refreshing {
		c.mu.Unlock()
		return false
	}
	e.refreshing = true
	c.mu.Unlock()

	go func() {
		ticket := c.CheckPosition(ctx, eventID)

		c.mu.Lock()
		if e, ok := c.entries[eventID]; ok {
			e.refreshing = false
		}
		c.mu.Unlock()

		onTicket(ticket)
	}()
	return true
}

// Subscribe attaches to the event's push channel. Each ping triggers at most
// one refresh; onTicket receives its result.
func (c *QueueClient) Subscribe(ctx context.Context, eventID string, onTicket func(*models.QueueTicket)) func() {
	return c.push.Subscribe(eventID, func() {
		c.Refresh(ctx, eventID, onTicket)
	})
}

// Complete releases the admission slot and clears the local cache. Failures
// are logged and swallowed: releasing a slot must never block reporting a
// successful purchase.
func (c *QueueClient) Complete(ctx context.Context, eventID string) {
	queueID := c.QueueID(eventID)

	c.mu.Lock()
	delete(c.entries, eventID)
	c.mu.Unlock()

	if queueID == "" {
		return
	}
	if err := c.api.Complete(ctx, eventID, queueID); err != nil {
		monitoring.TrackQueueOperation("complete", eventID, "error")
		log.Printf("queue complete failed for event %s: %v", eventID, err)
		return
	}
	monitoring.TrackQueueOperation("complete", eventID, "success")
}
