// Package events provides a typed publish/subscribe bus shared by all loaded
// modules. Every event name belongs to a closed catalog and carries its own
// payload type; there is no untyped event.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is a published event. It exists only for the duration of one Publish.
type Event[P Payload] struct {
	// Name is the catalog name bound to P.
	Name Name

	// Payload is the typed event data.
	Payload P

	// Timestamp is when Publish was called.
	Timestamp time.Time

	// Source identifies the publishing module instance.
	Source string
}

// Handler processes one event. A returned error is logged and does not stop
// sibling handlers.
type Handler[P Payload] func(ctx context.Context, event Event[P]) error

// Unsubscribe deactivates a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Observer receives bus activity, typically a metrics collector.
type Observer interface {
	EventPublished(name string, subscribers int)
	HandlerFailed(name string)
}

// subscription is a registered handler with its active flag.
type subscription struct {
	id     uint64
	name   Name
	active bool
	call   func(ctx context.Context, p Payload, ts time.Time, source string) error
}

// Bus is a synchronous publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Name][]*subscription
	nextID   uint64
	now      func() time.Time
	observer Observer
	logger   zerolog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithObserver attaches an observer for published events and handler failures.
func WithObserver(o Observer) Option {
	return func(b *Bus) { b.observer = o }
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger, opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[Name][]*subscription),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for the event bound to P.
// The handler is called for every Publish of a P until unsubscribed.
func Subscribe[P Payload](b *Bus, handler Handler[P]) Unsubscribe {
	var zero P
	name := zero.EventName()

	call := func(ctx context.Context, p Payload, ts time.Time, source string) error {
		typed, ok := p.(P)
		if !ok {
			return fmt.Errorf("payload %T does not match %s", p, name)
		}
		return handler(ctx, Event[P]{
			Name:      name,
			Payload:   typed,
			Timestamp: ts,
			Source:    source,
		})
	}

	return b.add(name, call)
}

// Binding pairs an event with its handler for SubscribeToMultiple.
type Binding struct {
	name Name
	call func(b *Bus) Unsubscribe
}

// Name returns the bound event name.
func (bd Binding) Name() Name {
	return bd.name
}

// On creates a Binding for the event bound to P.
func On[P Payload](handler Handler[P]) Binding {
	var zero P
	return Binding{
		name: zero.EventName(),
		call: func(b *Bus) Unsubscribe { return Subscribe(b, handler) },
	}
}

// SubscribeToMultiple registers every binding and returns one Unsubscribe
// that tears all of them down together.
func (b *Bus) SubscribeToMultiple(bindings ...Binding) Unsubscribe {
	unsubs := make([]Unsubscribe, 0, len(bindings))
	for _, bd := range bindings {
		unsubs = append(unsubs, bd.call(b))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, u := range unsubs {
				u()
			}
		})
	}
}

func (b *Bus) add(name Name, call func(context.Context, Payload, time.Time, string) error) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, name: name, active: true, call: call}
	b.handlers[name] = append(b.handlers[name], sub)
	b.mu.Unlock()

	return func() { b.remove(sub) }
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !sub.active {
		return
	}
	sub.active = false

	subs := b.handlers[sub.name]
	for i, s := range subs {
		if s.id == sub.id {
			// Copy so an in-flight Publish keeps iterating its own snapshot.
			next := make([]*subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, sub.name)
			} else {
				b.handlers[sub.name] = next
			}
			break
		}
	}
}

// Publish invokes every active subscriber for the payload's event,
// synchronously and in subscription order, before returning.
// Publishing with no subscribers is a no-op. A handler that returns an error
// or panics is logged and skipped; the remaining handlers still run.
func (b *Bus) Publish(ctx context.Context, source string, payload Payload) {
	if payload == nil {
		return
	}
	name := payload.EventName()

	b.mu.RLock()
	matched := b.handlers[name]
	b.mu.RUnlock()

	b.logger.Debug().
		Str("event", string(name)).
		Str("source", source).
		Int("subscribers", len(matched)).
		Msg("event published")

	if b.observer != nil {
		b.observer.EventPublished(string(name), len(matched))
	}

	ts := b.now()
	for _, sub := range matched {
		if !b.isActive(sub) {
			continue
		}
		if err := b.invoke(ctx, sub, payload, ts, source); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", string(name)).
				Str("source", source).
				Msg("event handler error")
			if b.observer != nil {
				b.observer.HandlerFailed(string(name))
			}
		}
	}
}

// isActive checks whether a subscription was cancelled by an earlier handler
// in the same Publish.
func (b *Bus) isActive(sub *subscription) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sub.active
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, p Payload, ts time.Time, source string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.call(ctx, p, ts, source)
}

// HasSubscribers checks if any active handlers are registered for an event.
func (b *Bus) HasSubscribers(name Name) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name]) > 0
}

// SubscriberCount returns the number of active handlers for an event.
func (b *Bus) SubscriberCount(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}
