package realtime

import (
	"sync"
	"time"
)

// DefaultDedupWindow is how long a fact key suppresses redeliveries.
const DefaultDedupWindow = 5 * time.Second

// Guard makes at-least-once event delivery appear exactly-once: the first
// time a fact key is seen it is recorded with a short expiry, and repeats
// inside the window are rejected. Keys must be built from fields that
// identify the fact, never from delivery metadata (see events.FactKey*).
type Guard struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewGuard creates a guard with the given expiry window.
func NewGuard(window time.Duration) *Guard {
	return NewGuardWithClock(window, time.Now)
}

// NewGuardWithClock creates a guard with an injectable clock, so tests can
// simulate window expiry without sleeping.
func NewGuardWithClock(window time.Duration, now func() time.Time) *Guard {
	return &Guard{
		window: window,
		now:    now,
		seen:   make(map[string]time.Time),
	}
}

// MarkProcessed records the key and returns true the first time it is seen
// within the expiry window; it returns false for repeats. Callers must check
// this before any side effect.
func (g *Guard) MarkProcessed(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	// Sweep expired entries so the map stays bounded by the window.
	for k, expires := range g.seen {
		if now.After(expires) {
			delete(g.seen, k)
		}
	}

	if expires, ok := g.seen[key]; ok && !now.After(expires) {
		return false
	}

	g.seen[key] = now.Add(g.window)
	return true
}
