// Package eventbus implements the fleet's in-process publish/subscribe
// bus: thread-safe, bounded history, one callback list per event type,
// callbacks invoked outside the internal lock.
package eventbus

import (
	"log"
	"sync"
	"time"

	"github.com/torqfleet/botfleet/internal/models"
)

const defaultMaxHistory = 1000

// Callback is invoked for every published event of the subscribed type.
type Callback func(models.Event)

// PauseChecker reports whether the fleet is currently globally paused.
// internal/globalstate.State implements this.
type PauseChecker interface {
	IsGloballyPaused() bool
}

// subscription pairs a callback with the id Unsubscribe needs to remove
// it again. Go func values aren't comparable (unlike Python, where
// unsubscribe removes by callback identity), so Subscribe hands back an
// opaque id instead.
type subscription struct {
	id int
	cb Callback
}

// Bus is a thread-safe, bounded-history event bus. The zero value is not
// usable; construct with New.
type Bus struct {
	mu          sync.Mutex
	subscribers map[models.EventType][]subscription
	nextSubID   int
	history     []models.Event
	maxHistory  int
	pause       PauseChecker
	logger      *log.Logger
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithMaxHistory overrides the default 1000-event bounded history.
func WithMaxHistory(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxHistory = n
		}
	}
}

// WithPauseChecker wires the bus to Global State so signal_generated,
// trade_opened and trade_closed events are suppressed while paused.
func WithPauseChecker(p PauseChecker) Option {
	return func(b *Bus) { b.pause = p }
}

// WithLogger overrides the default stderr logger used for subscriber
// callback panics/errors.
func WithLogger(l *log.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New constructs a Bus ready for Subscribe/Publish.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[models.EventType][]subscription),
		maxHistory:  defaultMaxHistory,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SubscriptionID identifies one Subscribe call for a later Unsubscribe.
type SubscriptionID int

// Subscribe registers callback for eventType. Callbacks for the same type
// are invoked in registration order. The returned id can be passed to
// Unsubscribe to remove this callback later.
func (b *Bus) Subscribe(eventType models.EventType, callback Callback) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := SubscriptionID(b.nextSubID)
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, cb: callback})
	return id
}

// Unsubscribe removes the callback registered under id for eventType. It
// is a no-op if id is unknown or already removed.
func (b *Bus) Unsubscribe(eventType models.EventType, id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish appends event to the bounded history and invokes every
// subscriber for event.Type, outside the lock, swallowing per-callback
// panics with a log line so one bad subscriber can't break publication for
// the rest.
func (b *Bus) Publish(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if b.pause != nil && event.Type.SuppressedWhenPaused() && b.pause.IsGloballyPaused() {
		return
	}

	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.maxHistory {
		b.history = b.history[len(b.history)-b.maxHistory:]
	}
	subs := b.subscribers[event.Type]
	callbacks := make([]Callback, len(subs))
	for i, s := range subs {
		callbacks[i] = s.cb
	}
	b.mu.Unlock()

	for _, cb := range callbacks {
		b.invoke(cb, event)
	}
}

// invoke calls cb, recovering from panics so a broken subscriber never
// takes down the publisher goroutine.
func (b *Bus) invoke(cb Callback, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("eventbus: subscriber panic for %s: %v", event.Type, r)
		}
	}()
	cb(event)
}

// Emit is a convenience wrapper around Publish for the common case of
// building the Event inline.
func (b *Bus) Emit(eventType models.EventType, data map[string]any, source string) {
	b.Publish(models.Event{Type: eventType, Data: data, Source: source})
}

// History returns up to limit most-recent events, optionally filtered by
// type. A zero or negative limit returns the full retained history.
func (b *Bus) History(eventType models.EventType, limit int) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filtered []models.Event
	if eventType == "" {
		filtered = make([]models.Event, len(b.history))
		copy(filtered, b.history)
	} else {
		for _, e := range b.history {
			if e.Type == eventType {
				filtered = append(filtered, e)
			}
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

// ClearHistory empties the retained event history. Test helper.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// ClearSubscribers removes every registered callback. Test helper.
func (b *Bus) ClearSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[models.EventType][]subscription)
}
