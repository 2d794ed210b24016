package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	aierrors "github.com/hrygo/atabot/server/internal/errors"
)

// DefaultRequestsPerMinute is the per-client budget when none is configured.
const DefaultRequestsPerMinute = 20

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-key token bucket rate limiting.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*visitor
	limit  rate.Limit
	burst  int
	clock  func() time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per key, with a
// burst of the same size.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultRequestsPerMinute
	}
	return &RateLimiter{
		limits: make(map[string]*visitor),
		limit:  rate.Every(time.Minute / time.Duration(perMinute)),
		burst:  perMinute,
		clock:  time.Now,
	}
}

// getLimiter gets or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock()
	if v, ok := rl.limits[key]; ok {
		v.lastSeen = now
		return v.limiter
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limits[key] = &visitor{limiter: limiter, lastSeen: now}
	return limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).AllowN(rl.clock(), 1)
}

// Wait waits for a request to be allowed.
// Returns error if the context is cancelled or rate limit exceeded.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.getLimiter(key).Wait(ctx)
}

// Prune forgets keys not seen for idle and returns how many were removed.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.clock().Add(-idle)
	removed := 0
	for key, v := range rl.limits {
		if v.lastSeen.Before(cutoff) {
			delete(rl.limits, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}

// Middleware limits requests per client IP and answers 429 when exceeded.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(c.RealIP()) {
				err := aierrors.RateLimitExceeded("Rate limit exceeded. Please try again later.")
				return ErrorJSON(c, aierrors.HTTPStatus(err.Code), err.Code, err.Message)
			}
			return next(c)
		}
	}
}

// ErrorJSON writes the error envelope used by every endpoint.
func ErrorJSON(c echo.Context, status int, code aierrors.ErrorCode, message string) error {
	return c.JSON(status, map[string]any{
		"success": false,
		"message": message,
		"code":    code,
	})
}
