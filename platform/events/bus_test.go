package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dispatchcore/platform/logger"
)

type offerEvent struct {
	BaseEvent
	name string
}

func (e offerEvent) EventName() string { return e.name }

func TestPublishSyncDeliversToSubscribedHandlers(t *testing.T) {
	bus := NewInMemoryBus(logger.New("test"))

	var seen []string
	bus.Subscribe("dispatch.offer.accepted", HandlerFunc(func(_ context.Context, e Event) error {
		seen = append(seen, e.EventName())
		return nil
	}))

	err := bus.PublishSync(context.Background(), offerEvent{NewBaseEvent(), "dispatch.offer.accepted"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 1 || seen[0] != "dispatch.offer.accepted" {
		t.Fatalf("expected one delivery, got %v", seen)
	}
}

func TestPublishSyncReturnsFirstHandlerError(t *testing.T) {
	bus := NewInMemoryBus(logger.New("test"))
	boom := errors.New("handler failed")

	second := false
	bus.Subscribe("dispatch.offer.declined", HandlerFunc(func(context.Context, Event) error {
		return boom
	}))
	bus.Subscribe("dispatch.offer.declined", HandlerFunc(func(context.Context, Event) error {
		second = true
		return nil
	}))

	err := bus.PublishSync(context.Background(), offerEvent{NewBaseEvent(), "dispatch.offer.declined"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the handler error, got %v", err)
	}
	if second {
		t.Fatal("expected delivery to stop at the failing handler")
	}
}

func TestPublishSyncIgnoresEventsWithoutSubscribers(t *testing.T) {
	bus := NewInMemoryBus(logger.New("test"))

	if err := bus.PublishSync(context.Background(), offerEvent{NewBaseEvent(), "dispatch.unheard"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPublishFansOutWithoutBlockingThePublisher(t *testing.T) {
	bus := NewInMemoryBus(logger.New("test"))

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		bus.Subscribe("dispatch.assignment.created", HandlerFunc(func(context.Context, Event) error {
			wg.Done()
			return nil
		}))
	}

	bus.Publish(context.Background(), offerEvent{NewBaseEvent(), "dispatch.assignment.created"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected both handlers to run")
	}
}
