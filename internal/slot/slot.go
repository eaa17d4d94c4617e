// Package slot provides a single-value register guarded by one mutex.
//
// A Slot holds at most one value. Writers go through TryAcquire/Install/Release
// so that a check-then-act spawn sequence never lets two values in, and
// readers remove the value with Take or TakeIf so it is handed out exactly once.
package slot

import "sync"

// Slot is a mutually exclusive single-value container.
//
// States: empty, reserved (a writer won TryAcquire and has not installed yet),
// occupied. The lock is only held for the duration of each method.
type Slot[T comparable] struct {
	mu       sync.Mutex
	val      T
	full     bool
	reserved bool
}

// New returns an empty slot.
func New[T comparable]() *Slot[T] { return &Slot[T]{} }

// TryAcquire reports whether the slot was empty and, if so, reserves it for
// the caller. A reserved slot is not empty: concurrent TryAcquire calls fail
// until the reservation is either installed or released.
func (s *Slot[T]) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full || s.reserved {
		return false
	}
	s.reserved = true
	return true
}

// Install stores v, replacing whatever was there, and clears the reservation.
// Callers must hold a reservation obtained from TryAcquire.
func (s *Slot[T]) Install(v T) {
	s.mu.Lock()
	s.val = v
	s.full = true
	s.reserved = false
	s.mu.Unlock()
}

// Release drops a reservation without installing anything.
func (s *Slot[T]) Release() {
	s.mu.Lock()
	s.reserved = false
	s.mu.Unlock()
}

// Take removes and returns the current value.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if !s.full {
		return zero, false
	}
	v := s.val
	s.val = zero
	s.full = false
	return v, true
}

// TakeIf empties the slot only when it currently holds v.
func (s *Slot[T]) TakeIf(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full || s.val != v {
		return false
	}
	var zero T
	s.val = zero
	s.full = false
	return true
}

// Peek returns the current value without removing it.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val, s.full
}

// Busy reports whether the slot is occupied or reserved.
func (s *Slot[T]) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full || s.reserved
}
