// Package events provides the in-process pub/sub bus that fans room
// lifecycle events out to the SSE stream and the per-room websocket hubs.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a category of system event.
type EventType string

const (
	RoomCreated   EventType = "room_created"
	PlayerJoined  EventType = "player_joined"
	RoomStarted   EventType = "room_started"
	DayAdvanced   EventType = "day_advanced"
	PlayerReady   EventType = "player_ready"
	TradeExecuted EventType = "trade_executed"
	GameEnded     EventType = "game_ended"
	TimerUpdated  EventType = "timer_updated"
)

// Event is one published occurrence. RoomCode is set on every room-scoped
// event so subscribers can filter without inspecting the payload.
type Event struct {
	Type      EventType   `json:"type"`
	RoomCode  string      `json:"room_code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Handler receives published events. Handlers must not block: slow consumers
// buffer on their own channels and drop when full.
type Handler func(*Event)

// Bus is a process-wide publish/subscribe hub.
type Bus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]Handler
	log         zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[int]Handler),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for all events and returns an unsubscribe
// function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every subscriber synchronously. The publish
// path sits inside request handling, so handlers are required to be cheap.
func (b *Bus) Publish(eventType EventType, roomCode string, data interface{}) {
	event := &Event{
		Type:      eventType,
		RoomCode:  roomCode,
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}

	b.log.Debug().
		Str("type", string(eventType)).
		Str("room_code", roomCode).
		Int("subscribers", len(handlers)).
		Msg("Event published")
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
