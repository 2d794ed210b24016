package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hrygo/atabot/plugin/ai/cache"
	"github.com/hrygo/atabot/plugin/ai/timeout"
)

const (
	// MaxCacheableTemperature is the highest temperature whose responses are reused.
	MaxCacheableTemperature = 0.1

	// cacheKeyPromptLength bounds how much of the prompt feeds the response key.
	cacheKeyPromptLength = 500
)

// responseKey is hashed into the llm_response cache key.
type responseKey struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// CachedLLM decorates an LLMService with a response cache for
// near-deterministic calls.
type CachedLLM struct {
	inner   LLMService
	cache   cache.CacheService
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
}

// NewCachedLLM wraps inner. A nil cache disables reuse; ttl <= 0 uses 30 minutes.
func NewCachedLLM(inner LLMService, c cache.CacheService, ttl, callTimeout time.Duration) *CachedLLM {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if callTimeout <= 0 {
		callTimeout = timeout.ProviderTimeout
	}
	return &CachedLLM{
		inner:   inner,
		cache:   c,
		ttl:     ttl,
		timeout: callTimeout,
	}
}

// Chat returns a cached response when the call is cacheable, otherwise
// delegates to the provider under a bounded timeout.
func (l *CachedLLM) Chat(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	key, cacheable := l.cacheKey(messages, opts)
	if cacheable {
		if data, ok := l.cache.Get(ctx, key); ok {
			return string(data), nil
		}
	}

	call := func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()

		text, err := l.inner.Chat(callCtx, messages, opts)
		if err != nil {
			return "", asGenerationError(callCtx, "llm", err)
		}
		if cacheable {
			l.store(ctx, key, text)
		}
		return text, nil
	}

	if !cacheable {
		return call(ctx)
	}

	// Identical misses share one provider call. It runs detached from the
	// first caller, bounded by the call timeout, and each caller waits on its
	// own context.
	ch := l.group.DoChan(key, func() (any, error) {
		return call(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", asGenerationError(ctx, "llm", ctx.Err())
	}
}

// ChatStream streams a response. A cache hit is delivered as a single chunk;
// a miss accumulates the streamed text and caches it on success.
func (l *CachedLLM) ChatStream(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan string, <-chan error) {
	key, cacheable := l.cacheKey(messages, opts)
	if cacheable {
		if data, ok := l.cache.Get(ctx, key); ok {
			contentChan := make(chan string, 1)
			errChan := make(chan error)
			contentChan <- string(data)
			close(contentChan)
			close(errChan)
			return contentChan, errChan
		}
	}

	contentChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(errChan)
		defer close(contentChan)

		streamCtx, cancel := context.WithTimeout(ctx, timeout.StreamTimeout)
		defer cancel()

		innerContent, innerErr := l.inner.ChatStream(streamCtx, messages, opts)

		var full strings.Builder
		for chunk := range innerContent {
			full.WriteString(chunk)
			select {
			case contentChan <- chunk:
			case <-ctx.Done():
				// Drain so the provider goroutine can exit.
				for range innerContent {
				}
				errChan <- asGenerationError(streamCtx, "llm", ctx.Err())
				return
			}
		}

		if err := <-innerErr; err != nil {
			errChan <- asGenerationError(streamCtx, "llm", err)
			return
		}

		if cacheable && full.Len() > 0 {
			l.store(ctx, key, full.String())
		}
	}()

	return contentChan, errChan
}

// cacheKey reports the response key and whether the call may be cached.
func (l *CachedLLM) cacheKey(messages []Message, opts GenerateOptions) (string, bool) {
	if l.cache == nil || opts.Temperature > MaxCacheableTemperature || len(messages) == 0 {
		return "", false
	}

	prompt := messages[len(messages)-1].Content
	if runes := []rune(prompt); len(runes) > cacheKeyPromptLength {
		prompt = string(runes[:cacheKeyPromptLength])
	}

	key, err := cache.GenerateKey(cache.NamespaceLLMResponse, responseKey{
		Prompt:      prompt,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		slog.Warn("failed to build response cache key", "error", err)
		return "", false
	}
	return key, true
}

// store writes a response; failures never reach the caller.
func (l *CachedLLM) store(ctx context.Context, key, text string) {
	if err := l.cache.Set(context.WithoutCancel(ctx), key, []byte(text), l.ttl); err != nil {
		slog.Warn("failed to cache llm response", "key", key, "error", err)
	}
}

var _ LLMService = (*CachedLLM)(nil)
