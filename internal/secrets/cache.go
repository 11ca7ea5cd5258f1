package secrets

import (
	"sync"
	"time"
)

// Cache holds a resolved secret map for a bounded lifetime. The zero TTL
// means the entries never expire, which assumes secrets do not rotate within
// a process's lifetime; long-lived deployments should set a TTL.
type Cache struct {
	mu       sync.RWMutex
	values   map[string]string
	loadedAt time.Time

	ttl time.Duration
	now func() time.Time
}

// NewCache constructs a Cache with the given TTL and an injectable clock.
// A nil clock uses time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now}
}

// Values returns the cached map and whether it is still fresh.
func (c *Cache) Values() (map[string]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.values == nil {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(c.loadedAt) >= c.ttl {
		return nil, false
	}
	return c.values, true
}

// Store replaces the cached map and resets its load time.
func (c *Cache) Store(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = values
	c.loadedAt = c.now()
}
