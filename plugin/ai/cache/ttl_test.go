package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTTLCache_BasicOperations(t *testing.T) {
	cache := NewTTLCache(100, time.Minute, nil)

	t.Run("SetAndGet", func(t *testing.T) {
		cache.Set("key1", []byte("value1"), 0)

		val, ok := cache.Get("key1")
		assert.True(t, ok)
		assert.Equal(t, []byte("value1"), val)
	})

	t.Run("GetNonExistent", func(t *testing.T) {
		val, ok := cache.Get("nonexistent")
		assert.False(t, ok)
		assert.Nil(t, val)
	})

	t.Run("UpdateExisting", func(t *testing.T) {
		cache.Set("key2", []byte("original"), 0)
		cache.Set("key2", []byte("updated"), 0)

		val, ok := cache.Get("key2")
		assert.True(t, ok)
		assert.Equal(t, []byte("updated"), val)
	})

	t.Run("Delete", func(t *testing.T) {
		cache.Set("key3", []byte("3"), 0)
		cache.Delete("key3")
		cache.Delete("never-set")

		_, ok := cache.Get("key3")
		assert.False(t, ok)
	})
}

func TestTTLCache_ExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	cache := NewTTLCache(0, time.Hour, clock.Now)

	const ttl = 10 * time.Second
	cache.Set("k", []byte("v"), ttl)

	clock.Advance(ttl - time.Nanosecond)
	val, ok := cache.Get("k")
	require.True(t, ok, "entry must be visible just before expiry")
	assert.Equal(t, []byte("v"), val)

	clock.Advance(time.Nanosecond)
	_, ok = cache.Get("k")
	assert.False(t, ok, "entry must be absent at now == expires_at")
	assert.Equal(t, 0, cache.Size(), "expired entry is purged on read")
}

func TestTTLCache_LazyExpiryKeepsUnreadEntries(t *testing.T) {
	clock := newFakeClock()
	cache := NewTTLCache(0, time.Minute, clock.Now)

	cache.Set("a", []byte("1"), time.Second)
	cache.Set("b", []byte("2"), time.Hour)
	clock.Advance(2 * time.Second)

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Expired)

	assert.Equal(t, 1, cache.CleanupExpired())
	assert.Equal(t, 1, cache.Size())
}

func TestTTLCache_SetResetsEntry(t *testing.T) {
	clock := newFakeClock()
	cache := NewTTLCache(0, time.Minute, clock.Now)

	cache.Set("k", []byte("v1"), 10*time.Second)
	cache.Get("k")
	cache.Get("k")

	info, ok := cache.Info("k")
	require.True(t, ok)
	assert.Equal(t, int64(2), info.AccessCount)

	clock.Advance(8 * time.Second)
	cache.Set("k", []byte("v2"), 10*time.Second)

	info, ok = cache.Info("k")
	require.True(t, ok)
	assert.Equal(t, int64(0), info.AccessCount)
	assert.Equal(t, clock.Now(), info.CreatedAt)
	assert.Equal(t, clock.Now().Add(10*time.Second), info.ExpiresAt)

	clock.Advance(5 * time.Second)
	val, ok := cache.Get("k")
	assert.True(t, ok, "overwrite restarts the ttl")
	assert.Equal(t, []byte("v2"), val)
}

func TestTTLCache_Eviction(t *testing.T) {
	cache := NewTTLCache(3, time.Minute, nil)

	cache.Set("key1", []byte("1"), 0)
	cache.Set("key2", []byte("2"), 0)
	cache.Set("key3", []byte("3"), 0)
	assert.Equal(t, 3, cache.Size())

	// Access key1 to make it recently used
	cache.Get("key1")

	// Add new entry, should evict key2 (LRU)
	cache.Set("key4", []byte("4"), 0)
	assert.Equal(t, 3, cache.Size())

	_, ok := cache.Get("key2")
	assert.False(t, ok)

	_, ok = cache.Get("key1")
	assert.True(t, ok)
}

func TestTTLCache_Invalidate(t *testing.T) {
	cache := NewTTLCache(100, time.Minute, nil)

	t.Run("ExactMatch", func(t *testing.T) {
		cache.Set("embeddings:1", []byte("1"), 0)
		cache.Set("embeddings:2", []byte("2"), 0)

		count := cache.Invalidate("embeddings:1")
		assert.Equal(t, 1, count)

		_, ok := cache.Get("embeddings:1")
		assert.False(t, ok)

		_, ok = cache.Get("embeddings:2")
		assert.True(t, ok)
	})

	t.Run("WildcardPattern", func(t *testing.T) {
		cache.Clear()
		cache.Set("embeddings:a", []byte("1"), 0)
		cache.Set("embeddings:b", []byte("2"), 0)
		cache.Set("llm_response:a", []byte("3"), 0)

		count := cache.Invalidate("embeddings:*")
		assert.Equal(t, 2, count)

		_, ok := cache.Get("embeddings:a")
		assert.False(t, ok)

		_, ok = cache.Get("llm_response:a")
		assert.True(t, ok)
	})
}

func TestTTLCache_HitMissCounters(t *testing.T) {
	cache := NewTTLCache(0, time.Minute, nil)
	cache.Set("k", []byte("v"), 0)

	cache.Get("k")
	cache.Get("k")
	cache.Get("missing")

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestTTLCache_ConcurrentAccess(t *testing.T) {
	cache := NewTTLCache(1000, time.Minute, nil)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%26))
			cache.Set(key, []byte{byte(n)}, 0)
		}(i)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%26))
			cache.Get(key)
		}(i)
	}

	wg.Wait()
	assert.LessOrEqual(t, cache.Size(), 26)
}
