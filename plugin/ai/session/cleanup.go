package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultIdleTTL is how long an untouched session is kept.
	DefaultIdleTTL = 24 * time.Hour
	// maxCleanupInterval caps the sweep period.
	maxCleanupInterval = time.Hour
)

// Evictor removes idle sessions.
type Evictor interface {
	EvictIdle(idle time.Duration) int
}

// CleanupConfig holds configuration for the cleanup job.
type CleanupConfig struct {
	IdleTTL         time.Duration // Sessions idle longer than this are evicted (default: 24h)
	CleanupInterval time.Duration // Interval between runs (default: min(IdleTTL/2, 1h))
}

// DefaultCleanupConfig returns the default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		IdleTTL:         DefaultIdleTTL,
		CleanupInterval: maxCleanupInterval,
	}
}

// SessionCleanupJob handles periodic eviction of idle sessions.
type SessionCleanupJob struct {
	evictor Evictor
	config  CleanupConfig

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewSessionCleanupJob creates a new cleanup job.
func NewSessionCleanupJob(evictor Evictor, config CleanupConfig) *SessionCleanupJob {
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultIdleTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = min(config.IdleTTL/2, maxCleanupInterval)
	}

	return &SessionCleanupJob{
		evictor: evictor,
		config:  config,
	}
}

// Start begins the periodic cleanup job.
// This method is non-blocking and starts the cleanup in a goroutine.
func (j *SessionCleanupJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return nil // Already running
	}

	j.running = true
	j.stopChan = make(chan struct{})

	go j.run(ctx, j.stopChan)

	slog.Info("session cleanup job started",
		"idle_ttl", j.config.IdleTTL,
		"interval", j.config.CleanupInterval)

	return nil
}

// Stop stops the cleanup job.
func (j *SessionCleanupJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}

	close(j.stopChan)
	j.running = false

	slog.Info("session cleanup job stopped")
}

// RunOnce executes a single cleanup run immediately.
func (j *SessionCleanupJob) RunOnce() int {
	return j.evictor.EvictIdle(j.config.IdleTTL)
}

// run is the main loop for the cleanup job.
func (j *SessionCleanupJob) run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(j.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if evicted := j.RunOnce(); evicted > 0 {
				slog.Info("session cleanup completed", "evicted", evicted)
			}
		}
	}
}

// IsRunning returns whether the cleanup job is currently running.
func (j *SessionCleanupJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}
