package timers

import (
	"sync"
	"time"
)

// SuppressionTable blocks repeated calls for the same key within a window.
// Entries older than twice the window are pruned on access and by Sweep.
type SuppressionTable struct {
	clock  Clock
	window time.Duration

	mu      sync.Mutex
	lastHit map[string]time.Time
}

func NewSuppressionTable(clock Clock, window time.Duration) *SuppressionTable {
	if clock == nil {
		clock = RealClock()
	}
	if window <= 0 {
		window = 5 * time.Second
	}
	return &SuppressionTable{
		clock:   clock,
		window:  window,
		lastHit: map[string]time.Time{},
	}
}

// Allow records an attempt for key and reports whether it may proceed.
// A second attempt within the window is suppressed.
func (t *SuppressionTable) Allow(key string) bool {
	if key == "" {
		return false
	}
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.lastHit[key]; ok && now.Sub(last) < t.window {
		return false
	}
	t.lastHit[key] = now
	t.pruneLocked(now)
	return true
}

// Sweep drops entries older than twice the window.
func (t *SuppressionTable) Sweep() int {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pruneLocked(now)
}

func (t *SuppressionTable) pruneLocked(now time.Time) int {
	horizon := 2 * t.window
	removed := 0
	for key, last := range t.lastHit {
		if now.Sub(last) >= horizon {
			delete(t.lastHit, key)
			removed++
		}
	}
	return removed
}

// Size reports the number of tracked keys.
func (t *SuppressionTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastHit)
}

// Clear empties the table. Used on teardown.
func (t *SuppressionTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastHit = map[string]time.Time{}
}
