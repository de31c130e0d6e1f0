package channelkey

import (
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long an unwrapped channel key stays in
// session memory before it is re-fetched and re-unwrapped.
const DefaultCacheTTL = 24 * time.Hour

type cacheEntry struct {
	key     []byte
	expires time.Time
}

// Cache holds unwrapped channel keys for the session lifetime, at most
// one entry per scope. Entries are immutable value copies; Get hands out
// a fresh copy so callers can never mutate the cached material.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *Cache) Get(scopeKey string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[scopeKey]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, scopeKey)
		return nil, false
	}
	out := make([]byte, len(e.key))
	copy(out, e.key)
	return out, true
}

func (c *Cache) Put(scopeKey string, key []byte) {
	stored := make([]byte, len(key))
	copy(stored, key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[scopeKey] = cacheEntry{key: stored, expires: c.now().Add(c.ttl)}
}

// Clear zeroes and drops every entry. Called at logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		for i := range e.key {
			e.key[i] = 0
		}
		delete(c.entries, k)
	}
}
