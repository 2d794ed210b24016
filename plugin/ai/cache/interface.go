// Package cache provides the TTL cache shared by the embedding and generation adapters.
package cache

import (
	"context"
	"time"
)

// CacheService defines the cache service interface.
// Values are opaque bytes; callers own their encoding.
type CacheService interface {
	// Get retrieves a value from cache.
	// Returns: value, whether it exists and has not expired
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value in cache, replacing any previous entry.
	// ttl <= 0 selects the default TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key.
	Delete(ctx context.Context, key string) error

	// Invalidate invalidates cache entries.
	// pattern: exact key, or a prefix ending in * (embeddings:*)
	Invalidate(ctx context.Context, pattern string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Stats reports entry counts and hit ratios.
	Stats() Stats
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Total   int   `json:"total_entries"`
	Active  int   `json:"active_entries"`
	Expired int   `json:"expired_entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// HitRate returns hits over lookups, or 0 before any lookup.
func (s Stats) HitRate() float64 {
	lookups := s.Hits + s.Misses
	if lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(lookups)
}
