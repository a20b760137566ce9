// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache memoizes extraction results keyed by extractor, input text,
// and extractor config. Entries expire after a TTL and are removed lazily
// when a read finds them expired; there is no background sweeper.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pdiddy/kbforge/pkg/types"
)

const keyPrefix = "kbforge:v1:"

// Entry is a cached result and the time it was stored.
type Entry struct {
	Result    *types.ExtractionResult
	Timestamp time.Time
}

// ResultCache is a TTL cache of extraction results. A single mutex guards
// both the expiry check on read and the insert on write.
type ResultCache struct {
	mu    sync.Mutex
	store *gocache.Cache
	ttl   time.Duration
}

// NewResultCache creates a cache whose entries live for ttl. A ttl of zero
// keeps entries until Clear.
func NewResultCache(ttl time.Duration) *ResultCache {
	exp := ttl
	if exp <= 0 {
		exp = gocache.NoExpiration
	}
	// A cleanup interval of zero disables go-cache's janitor goroutine.
	return &ResultCache{
		store: gocache.New(exp, 0),
		ttl:   ttl,
	}
}

// Get returns the cached entry for key. An expired entry is deleted and
// reported as a miss.
func (c *ResultCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, found := c.store.Get(key)
	if !found {
		// go-cache hides expired items from Get but keeps them in its map.
		c.store.Delete(key)
		return Entry{}, false
	}
	return val.(Entry), true
}

// Put stores result under key with the cache TTL.
func (c *ResultCache) Put(key string, result *types.ExtractionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(key, Entry{Result: result, Timestamp: time.Now()}, gocache.DefaultExpiration)
}

// Len returns the number of stored entries, including expired ones not yet read.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ItemCount()
}

// Clear removes every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Flush()
}

// Key derives a stable cache key from the extractor name, the full input
// text, and the serialized per-extractor config. encoding/json sorts map
// keys, so equal configs serialize identically.
func Key(extractor, text string, cfg map[string]any) (string, error) {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("serializing config for %s: %w", extractor, err)
	}
	h := sha256.New()
	h.Write([]byte(extractor))
	h.Write([]byte{0})
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write(encoded)
	return keyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
