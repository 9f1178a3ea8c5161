// Package events is the in-process bus between the scheduling services and the notifier.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published by the scheduling core.
const (
	BookingCreated   = "booking.created"
	BookingMoved     = "booking.moved"
	BookingCancelled = "booking.cancelled"
	ComboCreated     = "combo.created"
	ComboMoved       = "combo.moved"
	FullyBooked      = "resource.fully_booked"
	ImportStarted    = "sync.import_started"
	DraftsPublished  = "sync.published"
	DraftsDiscarded  = "sync.discarded"
	ShiftChanged     = "shift.changed"
)

// Event is one published change. Payload holds the JSON of the typed result.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

type EventHandler func(event Event) error

// EventBus fans events out to handlers keyed by type.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	onError     func(Event, error)
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a callback for handler failures. Failures never reach the publisher.
func (b *EventBus) OnError(fn func(Event, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish calls each handler of event.Type in the caller's goroutine.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}
