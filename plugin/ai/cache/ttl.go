package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// TTLCache is an in-memory cache with per-entry expiry and an optional LRU bound.
//
// Expiry is lazy: an entry is logically absent once now >= expiresAt, and it is
// physically removed only when read, invalidated, or swept by CleanupExpired.
// Expired entries that are never read again stay resident until evicted by the
// capacity bound or a sweep; with capacity 0 and no sweeper they accumulate.
type TTLCache struct {
	capacity   int // 0 means unbounded
	defaultTTL time.Duration
	now        func() time.Time

	mu     sync.Mutex
	cache  map[string]*entry
	order  *list.List // front is most recently used
	hits   int64
	misses int64
}

type entry struct {
	key          string
	value        []byte
	createdAt    time.Time
	expiresAt    time.Time
	lastAccessed time.Time
	accessCount  int64
	element      *list.Element
}

// EntryInfo describes a live entry without exposing its value.
type EntryInfo struct {
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastAccessed time.Time
	AccessCount  int64
}

// NewTTLCache creates a new TTL cache. A nil clock uses time.Now.
func NewTTLCache(capacity int, defaultTTL time.Duration, clock func() time.Time) *TTLCache {
	if capacity < 0 {
		capacity = 0
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	if clock == nil {
		clock = time.Now
	}

	return &TTLCache{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		now:        clock,
		cache:      make(map[string]*entry),
		order:      list.New(),
	}
}

// Get retrieves a value from the cache, purging it if it has expired.
func (c *TTLCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[key]
	if !ok {
		c.misses++
		return nil, false
	}

	now := c.now()
	if !now.Before(e.expiresAt) {
		c.removeEntry(e)
		c.misses++
		return nil, false
	}

	e.accessCount++
	e.lastAccessed = now
	c.order.MoveToFront(e.element)
	c.hits++
	return e.value, true
}

// Set stores a value, resetting its timestamps and access count.
func (c *TTLCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if e, ok := c.cache[key]; ok {
		e.value = value
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		e.lastAccessed = now
		e.accessCount = 0
		c.order.MoveToFront(e.element)
		return
	}

	for c.capacity > 0 && len(c.cache) >= c.capacity {
		c.evictOldest()
	}

	e := &entry{
		key:          key,
		value:        value,
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
	e.element = c.order.PushFront(e)
	c.cache[key] = e
}

// Delete removes a single key. Missing keys are ignored.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.cache[key]; ok {
		c.removeEntry(e)
	}
}

// Invalidate removes entries matching the pattern.
// Supports * wildcard at the end (e.g., "embeddings:*").
func (c *TTLCache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.HasSuffix(pattern, "*") {
		if e, ok := c.cache[pattern]; ok {
			c.removeEntry(e)
			return 1
		}
		return 0
	}

	count := 0
	prefix := strings.TrimSuffix(pattern, "*")
	for key, e := range c.cache {
		if strings.HasPrefix(key, prefix) {
			c.removeEntry(e)
			count++
		}
	}
	return count
}

// Info returns metadata for a live entry without touching its access stats.
func (c *TTLCache) Info(key string) (EntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return EntryInfo{}, false
	}
	return EntryInfo{
		CreatedAt:    e.createdAt,
		ExpiresAt:    e.expiresAt,
		LastAccessed: e.lastAccessed,
		AccessCount:  e.accessCount,
	}, true
}

// Size returns the number of resident entries, expired or not.
func (c *TTLCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Clear removes all entries from the cache.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*entry)
	c.order.Init()
}

// Stats counts resident entries by liveness.
func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	active := 0
	for _, e := range c.cache {
		if now.Before(e.expiresAt) {
			active++
		}
	}
	return Stats{
		Total:   len(c.cache),
		Active:  active,
		Expired: len(c.cache) - active,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// CleanupExpired removes all expired entries.
// Returns the number of entries removed.
func (c *TTLCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []*entry
	now := c.now()
	for _, e := range c.cache {
		if !now.Before(e.expiresAt) {
			toDelete = append(toDelete, e)
		}
	}
	for _, e := range toDelete {
		c.removeEntry(e)
	}
	return len(toDelete)
}

// evictOldest removes the least recently used entry.
// Must be called with lock held.
func (c *TTLCache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeEntry(oldest.Value.(*entry))
}

// removeEntry removes an entry from the cache.
// Must be called with lock held.
func (c *TTLCache) removeEntry(e *entry) {
	c.order.Remove(e.element)
	delete(c.cache, e.key)
}
