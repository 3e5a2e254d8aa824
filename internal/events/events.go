// Package events publishes program events after a request commits.
package events

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"github.com/Klingon-tech/pumpbox/internal/curve"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// Topic names.
const (
	TopicCreated         = "token:created"
	TopicFulfilled       = "token:fulfilled"
	TopicReclaimed       = "token:reclaimed"
	TopicTrade           = "token:trade"
	TopicLaunchStarted   = "launch:started"
	TopicLaunchFinalized = "launch:finalized"

	// TopicAll receives every event.
	TopicAll = "program:*"
)

// Event describes one committed operation.
type Event struct {
	Topic  string        `json:"topic"`
	TxHash types.Hash    `json:"tx_hash"`
	Kind   string        `json:"kind"`
	Record types.Address `json:"record"`
	Mint   types.Address `json:"mint"`
	Signer types.Address `json:"signer"`
	Phase  types.Phase   `json:"phase"`
	Trade  *curve.Trade  `json:"trade,omitempty"`
	At     int64         `json:"at"`
}

// Handler receives events.
type Handler func(*Event)

// Bus fans events out to subscribers.
type Bus struct {
	bus evbus.Bus
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Publish delivers ev to subscribers of its topic and of TopicAll.
func (b *Bus) Publish(ev *Event) {
	b.bus.Publish(ev.Topic, ev)
	b.bus.Publish(TopicAll, ev)
}

// Subscribe runs fn synchronously for every event on topic.
func (b *Bus) Subscribe(topic string, fn Handler) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeAsync runs fn off the publisher's goroutine for every event on
// topic. Calls to fn never overlap but may arrive out of order.
func (b *Bus) SubscribeAsync(topic string, fn Handler) error {
	return b.bus.SubscribeAsync(topic, fn, true)
}

// Unsubscribe removes fn from topic.
func (b *Bus) Unsubscribe(topic string, fn Handler) error {
	return b.bus.Unsubscribe(topic, fn)
}

// WaitAsync blocks until async handlers have drained.
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}

// Recorder keeps the most recent events in a ring.
type Recorder struct {
	mu   sync.RWMutex
	ring []*Event
	next int
	full bool
}

// NewRecorder creates a recorder holding up to size events.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 1
	}
	return &Recorder{ring: make([]*Event, size)}
}

// Record stores ev. Usable directly as a Handler.
func (r *Recorder) Record(ev *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[r.next] = ev
	r.next = (r.next + 1) % len(r.ring)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit events, newest first.
func (r *Recorder) Recent(limit int) []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.next
	if r.full {
		n = len(r.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Event, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.ring)) % len(r.ring)
		out = append(out, r.ring[idx])
	}
	return out
}
