package service

import (
	"sync"
	"time"

	"watgbridge/internal/constants"
)

// leaseGuard serializes event processing per key. A colliding event is
// dropped rather than queued, and a released lease lingers for a short TTL
// so near-simultaneous duplicates from the gateway are absorbed too.
type leaseGuard struct {
	mu     sync.Mutex
	leases map[string]time.Time // key -> expiry
	ttl    time.Duration
	now    func() time.Time
}

func newLeaseGuard() *leaseGuard {
	return &leaseGuard{
		leases: make(map[string]time.Time),
		ttl:    time.Duration(constants.InFlightLeaseTTLMs) * time.Millisecond,
		now:    time.Now,
	}
}

// Acquire takes the lease for key. It reports false when the key is already
// leased and not yet expired.
func (g *leaseGuard) Acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, held := g.leases[key]; held && now.Before(expiry) {
		return false
	}

	// Held until released; the far expiry covers a holder that never
	// releases (crashed goroutine) so the key cannot jam forever.
	g.leases[key] = now.Add(10 * g.ttl)
	return true
}

// Release starts the lease's linger window instead of freeing it outright.
func (g *leaseGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leases[key] = g.now().Add(g.ttl)
	g.purgeLocked()
}

// purgeLocked drops expired entries so the table stays small.
func (g *leaseGuard) purgeLocked() {
	now := g.now()
	for key, expiry := range g.leases {
		if now.After(expiry) {
			delete(g.leases, key)
		}
	}
}
