// Package cache memoizes successful LLM responses keyed by the exact call
// tuple, so an identical call within the TTL never issues a second outbound
// request.
//
// Eviction is TTL-only: an expired read is a miss and lazily removes the
// entry. Failures are never cached.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the entry lifetime used when callers have no override.
const DefaultTTL = 3600 * time.Second

type entry struct {
	value     string
	expiresAt time.Time
}

// Cache is a thread-safe TTL cache of response text.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Key derives the stable cache key for one call tuple. The input is
// normalized (whitespace-trimmed) before hashing so formatting-only
// differences still hit.
func Key(modelID, input, action, language string) string {
	h := sha256.New()
	for _, part := range []string{modelID, strings.TrimSpace(input), action, language} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for key. An expired entry is a miss and is
// removed.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}

	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another caller may have replaced it.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false
	}
	return e.value, true
}

// Put stores value under key for ttl. A non-positive ttl falls back to
// DefaultTTL.
func (c *Cache) Put(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
