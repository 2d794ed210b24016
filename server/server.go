package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/atabot/internal/profile"
	"github.com/hrygo/atabot/plugin/ai"
	"github.com/hrygo/atabot/plugin/ai/cache"
	"github.com/hrygo/atabot/plugin/ai/session"
	"github.com/hrygo/atabot/server/internal/observability"
	apiv1 "github.com/hrygo/atabot/server/router/api/v1"
	"github.com/hrygo/atabot/server/service/chat"
	"github.com/hrygo/atabot/server/stats"
	"github.com/hrygo/atabot/store"
)

// rateLimiterIdle is how long an idle client keeps its rate limit state.
const rateLimiterIdle = 10 * time.Minute

type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
	apiV1      *apiv1.APIV1Service
	chat       *chat.Service
	cache      *cache.Service
	sessions   *session.MemoryStore
	cleanup    *session.SessionCleanupJob
	analytics  *stats.Recorder
	watcher    *store.Watcher

	runCancel context.CancelFunc
}

func NewServer(ctx context.Context, profile *profile.Profile) (*Server, error) {
	s := &Server{Profile: profile}

	aiConfig := ai.NewConfigFromProfile(profile)
	if err := aiConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid AI configuration")
	}

	llmService, err := ai.NewLLMService(&aiConfig.LLM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create LLM service")
	}

	metrics := observability.NewMetrics()
	s.analytics = stats.NewRecorder(stats.DefaultQueueSize, nil)
	s.analytics.RegisterMetrics(metrics)

	s.cache = cache.NewService(cache.ServiceConfig{
		Capacity:        profile.CacheCapacity,
		DefaultTTL:      profile.CacheDefaultTTL,
		CleanupInterval: 5 * time.Minute,
	})

	var embeddingService ai.EmbeddingService
	if aiConfig.Embedding.Enabled() {
		embeddingService, err = ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			slog.Warn("embeddings disabled", "provider", aiConfig.Embedding.Provider, "error", err)
			embeddingService = nil
		}
	} else {
		slog.Info("no embedding API key configured, FAQ matching uses keywords")
	}
	embedder := ai.NewCachedEmbedder(embeddingService, s.cache, aiConfig.EmbeddingCacheTTL,
		ai.WithFailureHook(func(err error) {
			s.analytics.TrackError("embedding", err.Error())
		}))

	s.sessions = session.NewMemoryStore(profile.MaxContextTurns, nil)
	s.cleanup = session.NewSessionCleanupJob(s.sessions, session.CleanupConfig{IdleTTL: profile.SessionIdleTTL})

	knowledge := store.New(profile.KnowledgePath(), profile.BackupPath())
	s.chat = chat.NewService(chat.Config{
		MaxContextTurns:       profile.MaxContextTurns,
		SimilarityThreshold:   profile.SimilarityThreshold,
		MaxConcurrentRequests: profile.MaxConcurrentRequests,
	}, chat.Deps{
		Knowledge: knowledge,
		LLM:       ai.NewCachedLLM(llmService, s.cache, aiConfig.ResponseCacheTTL, aiConfig.RequestTimeout),
		Embedder:  embedder,
		Sessions:  s.sessions,
		Analytics: s.analytics,
		Metrics:   metrics,
		Cache:     s.cache,
	})
	if err := s.chat.Reload(ctx); err != nil {
		slog.Error("initial knowledge load failed, serving defaults", "path", knowledge.Path(), "error", err)
	}

	metrics.RegisterGaugeFunc("sessions", "active", "Sessions currently held in memory",
		func() float64 { return float64(s.sessions.Count()) })
	metrics.RegisterGaugeFunc("cache", "entries", "Entries in the shared cache",
		func() float64 { return float64(s.cache.Size()) })
	metrics.RegisterCounterFunc("cache", "hits_total", "Shared cache hits",
		func() float64 { return float64(s.cache.Stats().Hits) })
	metrics.RegisterCounterFunc("cache", "misses_total", "Shared cache misses",
		func() float64 { return float64(s.cache.Stats().Misses) })

	s.apiV1, err = apiv1.NewAPIV1Service(profile, s.chat, knowledge, s.analytics, metrics)
	if err != nil {
		return nil, err
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	s.apiV1.RegisterRoutes(echoServer)
	s.echoServer = echoServer

	if profile.WatchKnowledge {
		s.watcher, err = store.NewWatcher(knowledge.Path(), store.DefaultDebounce, func() {
			if err := s.chat.Reload(context.Background()); err != nil {
				slog.Error("knowledge reload after file change failed", "error", err)
			}
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create knowledge watcher")
		}
	}

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	s.analytics.Start(runCtx)
	if err := s.cleanup.Start(runCtx); err != nil {
		return errors.Wrap(err, "failed to start session cleanup")
	}
	if s.watcher != nil {
		if err := s.watcher.Start(runCtx); err != nil {
			return errors.Wrap(err, "failed to watch knowledge file")
		}
	}
	go s.pruneRateLimiter(runCtx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			slog.Error("failed to close knowledge watcher", slog.String("error", err.Error()))
		}
	}
	s.cleanup.Stop()
	if s.runCancel != nil {
		s.runCancel()
	}
	s.analytics.Stop()
	s.cache.Close()

	slog.Info("server stopped properly")
}

// pruneRateLimiter forgets idle clients until ctx is done.
func (s *Server) pruneRateLimiter(ctx context.Context) {
	ticker := time.NewTicker(rateLimiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.apiV1.Limiter().Prune(rateLimiterIdle); n > 0 {
				slog.Debug("pruned rate limiter clients", "count", n)
			}
		}
	}
}
