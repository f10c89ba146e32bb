// Package events is the in-process event layer of the dispatch core.
// Modules publish assignment and order events here; anything that must
// reach the external workflow engine goes through the outbox instead
// of this bus.
package events

import (
	"context"
	"time"
)

// Event is implemented by every dispatch event. EventName doubles as
// the subscription key on the bus.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent stamps an event with its emission time. Domain events
// embed it.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns the emission time.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler reacts to one kind of event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus fans dispatch events out to subscribed handlers.
type Bus interface {
	// Publish delivers asynchronously; the publisher never waits and
	// handler errors are only logged.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the handlers inline and returns the first
	// handler error.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under an event name as returned
	// by Event.EventName.
	Subscribe(eventName string, handler Handler)
}
