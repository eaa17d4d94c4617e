// Package events is a best-effort fan-out bus for sidecar output.
//
// Publish never blocks: each subscriber owns a bounded channel and an event
// that does not fit is dropped for that subscriber only.
package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Channel names exposed to the UI layer.
const (
	TopicStdout = "sidecar-stdout"
	TopicStderr = "sidecar-stderr"
)

// DefaultBuffer is the per-subscriber queue length used when none is given.
const DefaultBuffer = 256

// ErrClosed is returned by Subscribe after the bus was closed.
var ErrClosed = errors.New("event bus closed")

// Event is one published payload.
type Event struct {
	Topic   string    `json:"topic"`
	Payload string    `json:"payload"`
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`
}

// Stats are cumulative bus counters.
type Stats struct {
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithDropHook is called (synchronously, without locks held) for every dropped delivery.
func WithDropHook(fn func(topic string)) Option {
	return func(b *Bus) { b.onDrop = fn }
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
	buffer int
	onDrop func(topic string)

	seq       atomic.Uint64
	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates an open bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{subs: make(map[string]*Subscription), buffer: DefaultBuffer}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers a listener for the given topics; no topics means all.
func (b *Bus) Subscribe(topics ...string) (*Subscription, error) {
	s := &Subscription{
		id:  uuid.NewString(),
		bus: b,
		ch:  make(chan Event, b.buffer),
	}
	if len(topics) > 0 {
		s.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			s.topics[t] = struct{}{}
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.subs[s.id] = s
	return s, nil
}

// Publish delivers payload on topic to every matching subscriber and returns
// how many received it. It never waits for a listener.
func (b *Bus) Publish(topic, payload string) int {
	ev := Event{Topic: topic, Payload: payload, Seq: b.seq.Add(1), At: time.Now()}
	b.published.Add(1)

	var dropped []string
	n := 0
	b.mu.RLock()
	for _, s := range b.subs {
		if !s.wants(topic) {
			continue
		}
		select {
		case s.ch <- ev:
			n++
		default:
			s.dropped.Add(1)
			dropped = append(dropped, topic)
		}
	}
	b.mu.RUnlock()

	b.delivered.Add(uint64(n))
	if len(dropped) > 0 {
		b.dropped.Add(uint64(len(dropped)))
		if b.onDrop != nil {
			for _, t := range dropped {
				b.onDrop(t)
			}
		}
	}
	return n
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: n,
	}
}

// Close cancels every subscription. Publishing afterwards is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()
	for _, s := range subs {
		s.closeChan()
	}
}

func (b *Bus) remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return false
	}
	delete(b.subs, id)
	return true
}
