package events

import (
	"sync"
	"sync/atomic"
)

// Subscription is a listener's handle on the bus.
type Subscription struct {
	id      string
	bus     *Bus
	topics  map[string]struct{} // nil = all topics
	ch      chan Event
	dropped atomic.Uint64
	once    sync.Once
}

func (s *Subscription) ID() string { return s.id }

// C returns the delivery channel. It is closed by Cancel or Bus.Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events did not fit this subscriber's queue.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Cancel unregisters the subscription and closes its channel.
func (s *Subscription) Cancel() {
	if s.bus.remove(s.id) {
		s.closeChan()
	}
}

func (s *Subscription) wants(topic string) bool {
	if s.topics == nil {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// closeChan must only run once the subscription is no longer reachable from
// the bus map, so Publish can never send on a closed channel.
func (s *Subscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}
