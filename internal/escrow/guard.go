package escrow

import (
	"sync"
	"time"
)

// txGuard throttles gateway submissions so a slow or failing transaction is
// not resubmitted on every reconcile tick. The gateway's reference dedup is
// the authoritative double-spend guard; this only spaces out retries.
type txGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func newTxGuard(ttl time.Duration) *txGuard {
	return &txGuard{seen: make(map[string]time.Time), ttl: ttl}
}

// busy reports whether key was marked within the TTL window, marking it
// when it was not.
func (g *txGuard) busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if at, ok := g.seen[key]; ok && time.Since(at) < g.ttl {
		return true
	}
	g.seen[key] = time.Now()
	return false
}

// cleanup drops entries older than the TTL.
func (g *txGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, at := range g.seen {
		if time.Since(at) >= g.ttl {
			delete(g.seen, key)
		}
	}
}
