package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published by the booking service.
const (
	AppointmentCreated       = "appointment.created"
	AppointmentStatusChanged = "appointment.status_changed"
	CalendarChanged          = "calendar.changed"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// AppointmentPayload describes an appointment that was booked or moved.
type AppointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
}

// CalendarPayload names the day whose availability changed. An empty Date
// means every day may have changed.
type CalendarPayload struct {
	Date   string `json:"date,omitempty"`
	Reason string `json:"reason"`
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the subscribers of the event type synchronously and returns
// the first handler error. Every handler runs regardless.
func (b *EventBus) Publish(event Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON encodes payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.Publish(Event{Type: eventType, Payload: data})
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
