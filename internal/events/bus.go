// Package events carries daemon state changes to connected UI clients.
package events

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Event is one named payload pushed to subscribers.
type Event struct {
	Name string
	Data json.RawMessage
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than block publishers: the UI renders current state, not a history.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int64]chan Event
	nextID int64
	closed bool
	log    zerolog.Logger
}

const subscriberBuffer = 32

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[int64]chan Event),
		log:  log.With().Str("component", "events").Logger(),
	}
}

// Publish marshals the payload and delivers it to every subscriber.
func (b *Bus) Publish(name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error().Err(err).Str("event", name).Msg("failed to marshal event payload")
		return
	}
	event := Event{Name: name, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.log.Warn().Int64("subscriber", id).Str("event", name).Msg("subscriber full, dropping event")
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called when the subscriber disconnects.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of connected subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down and disconnects all subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
