package cache

import (
	"context"
	"sync"
	"time"
)

// ServiceConfig configures the cache service.
type ServiceConfig struct {
	Capacity        int           // Maximum number of entries, 0 for unbounded (default: 10000)
	DefaultTTL      time.Duration // Default TTL for entries (default: 1 hour)
	CleanupInterval time.Duration // Sweep interval; 0 keeps expiry purely lazy
	Clock           func() time.Time
}

// DefaultServiceConfig returns default cache service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Capacity:   10000,
		DefaultTTL: time.Hour,
	}
}

// Service implements CacheService on top of TTLCache.
type Service struct {
	ttl *TTLCache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cleanupInterval time.Duration
}

// NewService creates a new cache service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		ttl:             NewTTLCache(cfg.Capacity, cfg.DefaultTTL, cfg.Clock),
		ctx:             ctx,
		cancel:          cancel,
		cleanupInterval: cfg.CleanupInterval,
	}

	if s.cleanupInterval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop()
	}

	return s
}

// Close stops the cache service.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Get retrieves a value from cache.
func (s *Service) Get(_ context.Context, key string) ([]byte, bool) {
	return s.ttl.Get(key)
}

// Set stores a value in cache.
func (s *Service) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.ttl.Set(key, value, ttl)
	return nil
}

// Delete removes a single key.
func (s *Service) Delete(_ context.Context, key string) error {
	s.ttl.Delete(key)
	return nil
}

// Invalidate invalidates cache entries matching the pattern.
func (s *Service) Invalidate(_ context.Context, pattern string) error {
	s.ttl.Invalidate(pattern)
	return nil
}

// Clear removes all entries from the cache.
func (s *Service) Clear(_ context.Context) error {
	s.ttl.Clear()
	return nil
}

// Stats returns cache statistics.
func (s *Service) Stats() Stats {
	return s.ttl.Stats()
}

// Size returns the number of resident entries.
func (s *Service) Size() int {
	return s.ttl.Size()
}

// cleanupLoop periodically removes expired entries.
func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.ttl.CleanupExpired()
		}
	}
}

// Ensure Service implements CacheService
var _ CacheService = (*Service)(nil)
