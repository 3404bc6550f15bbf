// ABOUTME: TTL-bounded cache of recently broadcast message ids.
// ABOUTME: Suppresses network redeliveries after reconnects.

package broadcast

import (
	"sync"
	"time"
)

const (
	seenTTL     = 5 * time.Minute
	seenMaxSize = 10_000
)

// seenCache tracks message ids already broadcast. Expired entries are
// pruned lazily on insert, so no background goroutine is needed.
type seenCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	maxSize int
}

func newSeenCache(ttl time.Duration, maxSize int) *seenCache {
	return &seenCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// checkAndMark reports whether the id was already seen within the TTL, and
// marks it either way. Check and mark are one atomic step.
func (c *seenCache) checkAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	at, seen := c.entries[id]
	c.entries[id] = now

	if seen && now.Sub(at) < c.ttl {
		return true
	}

	if len(c.entries) > c.maxSize {
		c.prune(now)
	}
	return false
}

// prune drops expired entries; if the cache is still over capacity it is
// reset entirely rather than tracking insertion order. Must hold mu.
func (c *seenCache) prune(now time.Time) {
	for id, at := range c.entries {
		if now.Sub(at) >= c.ttl {
			delete(c.entries, id)
		}
	}
	if len(c.entries) > c.maxSize {
		c.entries = make(map[string]time.Time)
	}
}
