package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hrygo/atabot/plugin/ai/cache"
	"github.com/hrygo/atabot/plugin/ai/timeout"
)

// embeddingKey is hashed into the embeddings cache key. Text order is significant.
type embeddingKey struct {
	Texts []string `json:"texts"`
}

// CachedEmbedder decorates an EmbeddingService with a long-lived vector cache.
// Every failure, including a missing capability, is reported as an absent
// result so callers can fall back to keyword matching.
type CachedEmbedder struct {
	inner     EmbeddingService // nil when no embedding capability is configured
	cache     cache.CacheService
	ttl       time.Duration
	timeout   time.Duration
	group     singleflight.Group
	onFailure func(error)
}

// EmbedderOption customises a CachedEmbedder.
type EmbedderOption func(*CachedEmbedder)

// WithFailureHook registers fn to observe provider failures.
func WithFailureHook(fn func(error)) EmbedderOption {
	return func(e *CachedEmbedder) {
		e.onFailure = fn
	}
}

// NewCachedEmbedder wraps inner, which may be nil. ttl <= 0 uses 24 hours.
func NewCachedEmbedder(inner EmbeddingService, c cache.CacheService, ttl time.Duration, opts ...EmbedderOption) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	e := &CachedEmbedder{
		inner:   inner,
		cache:   c,
		ttl:     ttl,
		timeout: timeout.EmbeddingTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Available reports whether an embedding capability is configured.
func (e *CachedEmbedder) Available() bool {
	return e != nil && e.inner != nil
}

// Embed returns one vector per text, index-aligned, or false when no vectors
// could be produced.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, bool) {
	if !e.Available() {
		return nil, false
	}
	if len(texts) == 0 {
		return [][]float32{}, true
	}

	key, err := cache.GenerateKey(cache.NamespaceEmbeddings, embeddingKey{Texts: texts})
	if err != nil {
		slog.Warn("failed to build embedding cache key", "error", err)
		return nil, false
	}

	if e.cache != nil {
		if data, ok := e.cache.Get(ctx, key); ok {
			var vectors [][]float32
			if err := json.Unmarshal(data, &vectors); err == nil && len(vectors) == len(texts) {
				return vectors, true
			}
			slog.Warn("discarding corrupt embedding cache entry", "key", key)
		}
	}

	// The shared call outlives any single caller so one client leaving does
	// not fail the others waiting on the same batch.
	ch := e.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		vectors, err := e.inner.EmbedBatch(callCtx, texts)
		if err != nil {
			return nil, err
		}
		if err := checkDimensions(vectors, len(texts), e.inner.Dimensions()); err != nil {
			return nil, err
		}

		if e.cache != nil {
			if data, err := json.Marshal(vectors); err != nil {
				slog.Warn("failed to encode embeddings", "error", err)
			} else if err := e.cache.Set(context.WithoutCancel(ctx), key, data, e.ttl); err != nil {
				slog.Warn("failed to cache embeddings", "key", key, "error", err)
			}
		}
		return vectors, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			slog.Warn("embedding request failed", "texts", len(texts), "error", res.Err)
			if e.onFailure != nil {
				e.onFailure(res.Err)
			}
			return nil, false
		}
		return res.Val.([][]float32), true
	case <-ctx.Done():
		slog.Debug("embedding request abandoned", "texts", len(texts), "error", ctx.Err())
		return nil, false
	}
}

// checkDimensions rejects a response with the wrong vector count or with
// vectors whose length differs from dims, or from each other when dims is 0.
func checkDimensions(vectors [][]float32, count, dims int) error {
	if len(vectors) != count {
		return fmt.Errorf("embedding response has %d vectors for %d texts", len(vectors), count)
	}
	for i, v := range vectors {
		want := dims
		if want <= 0 {
			want = len(vectors[0])
		}
		if len(v) == 0 || len(v) != want {
			return fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), want)
		}
	}
	return nil
}
