package timers

import (
	"sync"
	"time"
)

// KeyedScheduler collapses a burst of same-key schedules into the last one:
// scheduling a key that already has a pending timer stops the old timer and
// replaces its callback, trailing edge. Close stops every pending timer
// atomically so no callback outlives the owning component.
type KeyedScheduler struct {
	clock Clock

	mu      sync.Mutex
	pending map[string]Timer
	closed  bool
}

func NewKeyedScheduler(clock Clock) *KeyedScheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &KeyedScheduler{
		clock:   clock,
		pending: map[string]Timer{},
	}
}

// Schedule arranges for fn to run after delay, replacing any pending timer
// for the same key. Returns false if the scheduler is closed.
func (s *KeyedScheduler) Schedule(key string, delay time.Duration, fn func()) bool {
	if key == "" || fn == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if old, ok := s.pending[key]; ok {
		old.Stop()
	}
	s.pending[key] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.pending, key)
		s.mu.Unlock()
		fn()
	})
	return true
}

// Cancel stops the pending timer for key, if any.
func (s *KeyedScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.pending[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.pending, key)
	return true
}

// PendingCount reports how many keys currently have a scheduled callback.
func (s *KeyedScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops all pending timers. Callbacks that have not fired never fire.
func (s *KeyedScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for key, timer := range s.pending {
		timer.Stop()
		delete(s.pending, key)
	}
}
