package llmmap

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// cacheKey identifies a response by prompt template and input text, each
// reduced to a 16-character SHA-256 hex prefix.
type cacheKey struct {
	template string
	input    string
}

// responseCache is the in-process LLM response cache. It stores the raw
// completion text (for structured calls, the JSON document) and lives for
// the process lifetime; there is no eviction, only an explicit clear.
type responseCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]string
}

func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[cacheKey]string)}
}

func (c *responseCache) get(key cacheKey) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *responseCache) put(key cacheKey, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *responseCache) clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[cacheKey]string)
	return n
}

// cache is the process-wide response cache shared by all Map calls.
var cache = newResponseCache()

// ClearCache empties the response cache and returns the number of entries
// removed.
func ClearCache() int {
	return cache.clear()
}

// digest returns the 16-character hex prefix of SHA-256(s).
func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
