// Package cache holds rendered markdown fragments so unchanged columns are not
// re-rendered on every broadcast.
package cache

import (
	"sync"
	"time"
)

// Entry is one cached fragment.
type Entry struct {
	HTML      string
	ExpiresAt time.Time
}

// IsExpired returns true if the entry has expired
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// MemoryCache is an in-memory fragment cache with TTL support and an upper
// bound on the number of entries.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	maxEntries int

	// For background cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryCache creates a cache holding at most maxEntries fragments.
// maxEntries <= 0 means unbounded.
func NewMemoryCache(maxEntries int) *MemoryCache {
	c := &MemoryCache{
		entries:         make(map[string]*Entry),
		maxEntries:      maxEntries,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a fragment. Expired entries are removed and reported as misses.
func (c *MemoryCache) Get(key string) (string, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return "", false
	}
	if entry.IsExpired() {
		c.Invalidate(key)
		return "", false
	}
	return entry.HTML, true
}

// Set stores a fragment with the given TTL. When the cache is full the entry
// closest to expiry is evicted first.
func (c *MemoryCache) Set(key, html string, ttl time.Duration) {
	entry := &Entry{
		HTML:      html,
		ExpiresAt: time.Now().Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = entry
}

// evictOldest removes the entry that expires first. Callers hold c.mu.
func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.ExpiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.ExpiresAt
		}
	}
	delete(c.entries, oldestKey)
}

// Invalidate removes an entry from the cache
func (c *MemoryCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAll removes all entries from the cache
func (c *MemoryCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

// cleanupLoop periodically removes expired entries
func (c *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}

// Stop stops the background cleanup goroutine
// Safe to call multiple times
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// Len returns the number of entries in the cache (for testing)
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fragments binds a MemoryCache to a fixed TTL so it can be handed to the
// renderer.
type Fragments struct {
	cache *MemoryCache
	ttl   time.Duration
}

// NewFragments returns a fragment store backed by c.
func NewFragments(c *MemoryCache, ttl time.Duration) *Fragments {
	return &Fragments{cache: c, ttl: ttl}
}

// Get returns the cached fragment for key.
func (f *Fragments) Get(key string) (string, bool) {
	return f.cache.Get(key)
}

// Set caches html under key.
func (f *Fragments) Set(key, html string) {
	f.cache.Set(key, html, f.ttl)
}
