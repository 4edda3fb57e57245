package executor

import (
	"sync"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// entryGuard blocks a second entry on the same symbol and side until the
// window after the first one has passed. A retry from the oracle's next
// cycle would otherwise stack a duplicate position while the first order is
// still settling.
type entryGuard struct {
	mu      sync.Mutex
	window  time.Duration
	expires map[string]time.Time
	now     func() time.Time
}

func newEntryGuard(window time.Duration, now func() time.Time) *entryGuard {
	return &entryGuard{window: window, expires: make(map[string]time.Time), now: now}
}

func guardKey(symbol string, side domain.Side) string {
	return symbol + "|" + string(side)
}

// claim reserves key and reports whether it was free.
func (g *entryGuard) claim(key string) bool {
	if g.window <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if until, held := g.expires[key]; held && now.Before(until) {
		return false
	}
	g.expires[key] = now.Add(g.window)
	return true
}

// release frees key early, after an entry that never reached the exchange.
func (g *entryGuard) release(key string) {
	g.mu.Lock()
	delete(g.expires, key)
	g.mu.Unlock()
}

// prune drops expired reservations.
func (g *entryGuard) prune() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for key, until := range g.expires {
		if !now.Before(until) {
			delete(g.expires, key)
		}
	}
}
