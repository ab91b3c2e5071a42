package admission

import (
	"log"
	"sync"

	pubnub "github.com/pubnub/go"
)

// PushManager owns the process-wide PubNub connection used for queue updates.
// Any number of orchestrator sessions share it; each gets its own
// subscription handle and the underlying channel subscription is dropped when
// the last handle for an event unsubscribes. Delivery is best-effort and
// at-least-once; subscribers must treat every ping as "go check your
// position", never as state.
type PushManager struct {
	pn       *pubnub.PubNub
	listener *pubnub.Listener

	mu       sync.Mutex
	handlers map[string]map[int]func() // channel -> subscription id -> callback
	nextID   int
	started  bool
	stop     chan struct{}
}

func NewPushManager(publishKey, subscribeKey, secretKey, uuid string) *PushManager {
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = publishKey
	pnConfig.SubscribeKey = subscribeKey
	pnConfig.SecretKey = secretKey
	pnConfig.UUID = uuid

	return &PushManager{
		pn:       pubnub.NewPubNub(pnConfig),
		listener: pubnub.NewListener(),
		handlers: make(map[string]map[int]func()),
		stop:     make(chan struct{}),
	}
}

func queueChannel(eventID string) string {
	return "queue-" + eventID
}

// EnsureConnected starts the dispatch loop once. Safe to call repeatedly.
func (m *PushManager) EnsureConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	m.pn.AddListener(m.listener)
	go m.dispatch()
}

func (m *PushManager) dispatch() {
	for {
		select {
		case status := <-m.listener.Status:
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

		case message := <-m.listener.Message:
			m.mu.Lock()
			subs := make([]func(), 0, len(m.handlers[message.Channel]))
			for _, fn := range m.handlers[message.Channel] {
				subs = append(subs, fn)
			}
			m.mu.Unlock()

			for _, fn := range subs {
				fn()
			}

		case <-m.stop:
			log.Println("push manager stopping")
			return
		}
	}
}

// Subscribe registers onUpdate for the event's queue channel and returns an
// unsubscribe func. onUpdate runs on the dispatch goroutine and must not
// block; the queue client only flips a refresh flag in it.
func (m *PushManager) Subscribe(eventID string, onUpdate func()) func() {
	m.EnsureConnected()

	channel := queueChannel(eventID)

	m.mu.Lock()
	id := m.nextID
	m.nextID++

	fresh := m.handlers[channel] == nil
	if fresh {
		m.handlers[channel] = make(map[int]func())
	}
	m.handlers[channel][id] = onUpdate
	m.mu.Unlock()

	if fresh {
		m.pn.Subscribe().Channels([]string{channel}).Execute()
	}

	return func() {
		m.mu.Lock()
		delete(m.handlers[channel], id)
		last := len(m.handlers[channel]) == 0
		if last {
			delete(m.handlers, channel)
		}
		m.mu.Unlock()

		if last {
			m.pn.Unsubscribe().Channels([]string{channel}).Execute()
		}
	}
}

// Teardown drops every subscription and stops the dispatch loop.
func (m *PushManager) Teardown() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.handlers = make(map[string]map[int]func())
	m.mu.Unlock()

	m.pn.UnsubscribeAll()
	close(m.stop)
}
