// Package chat orchestrates retrieval, prompt assembly, generation and
// session bookkeeping for single-shot and streaming chat requests.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/atabot/plugin/ai"
	"github.com/hrygo/atabot/plugin/ai/cache"
	"github.com/hrygo/atabot/plugin/ai/prompt"
	"github.com/hrygo/atabot/plugin/ai/rag"
	"github.com/hrygo/atabot/plugin/ai/session"
	"github.com/hrygo/atabot/plugin/ai/timeout"
	aierrors "github.com/hrygo/atabot/server/internal/errors"
	"github.com/hrygo/atabot/server/internal/observability"
	"github.com/hrygo/atabot/store"
)

// Analytics receives usage events. Calls must not block.
type Analytics interface {
	TrackMessage(sessionID, query string, latency time.Duration)
	TrackSession(sessionID string)
	TrackError(kind, detail string)
}

// KnowledgeSource loads the knowledge document.
type KnowledgeSource interface {
	Load() (*store.Document, error)
}

// Config tunes the orchestrator.
type Config struct {
	MaxContextTurns       int
	SimilarityThreshold   float64
	MaxConcurrentRequests int
	AdmissionTimeout      time.Duration
}

// Deps are the collaborators of the orchestrator. Embedder, Analytics,
// Metrics, Cache and Logger are optional.
type Deps struct {
	Knowledge KnowledgeSource
	LLM       ai.LLMService
	Embedder  rag.Embedder
	Sessions  session.SessionService
	Analytics Analytics
	Metrics   *observability.Metrics
	Cache     cache.CacheService
	Logger    *slog.Logger
}

// Request is one user message.
type Request struct {
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"session_id,omitempty"`
}

// Response is a completed single-shot answer.
type Response struct {
	Response  string    `json:"response"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// snapshot is an immutable view of the knowledge base. Requests keep the
// snapshot they started with across a reload.
type snapshot struct {
	doc       *store.Document
	retriever *rag.Retriever
	loadedAt  time.Time
}

// Service is the chat orchestrator.
type Service struct {
	cfg       Config
	knowledge KnowledgeSource
	llm       ai.LLMService
	embedder  rag.Embedder
	sessions  session.SessionService
	analytics Analytics
	metrics   *observability.Metrics
	cache     cache.CacheService
	logger    *slog.Logger

	admission *semaphore.Weighted
	current   atomic.Pointer[snapshot]
	reloadMu  sync.Mutex
}

// NewService creates the orchestrator serving the default knowledge document
// until Reload succeeds.
func NewService(cfg Config, deps Deps) *Service {
	if cfg.MaxContextTurns <= 0 {
		cfg.MaxContextTurns = session.DefaultMaxContextTurns
	}
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 100
	}
	if cfg.AdmissionTimeout <= 0 {
		cfg.AdmissionTimeout = timeout.AdmissionTimeout
	}
	if deps.Analytics == nil {
		deps.Analytics = noopAnalytics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Service{
		cfg:       cfg,
		knowledge: deps.Knowledge,
		llm:       deps.LLM,
		embedder:  deps.Embedder,
		sessions:  deps.Sessions,
		analytics: deps.Analytics,
		metrics:   deps.Metrics,
		cache:     deps.Cache,
		logger:    deps.Logger,
		admission: semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
	}
	s.current.Store(s.newSnapshot(context.Background(), store.DefaultDocument(), false))
	return s
}

// Reload loads the knowledge document, rebuilds the FAQ index in full and
// swaps it in atomically. On failure the previous knowledge stays active.
func (s *Service) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.knowledge == nil {
		return aierrors.ReloadFailed(errors.New("no knowledge source configured"))
	}

	doc, err := s.knowledge.Load()
	if err != nil {
		s.analytics.TrackError(string(aierrors.ErrCodeReloadFailed), err.Error())
		s.logger.Error("knowledge reload failed", "error", err)
		return aierrors.ReloadFailed(err)
	}

	reloadCtx, cancel := context.WithTimeout(ctx, timeout.ReloadTimeout)
	defer cancel()

	snap := s.newSnapshot(reloadCtx, doc, true)
	s.current.Store(snap)

	s.logger.Info("knowledge reloaded",
		"company", doc.CompanyData.CompanyName,
		"services", len(doc.CompanyData.Services),
		"faq", len(doc.CompanyData.FAQ),
		"faq_indexed", snap.retriever.HasIndex())
	return nil
}

func (s *Service) newSnapshot(ctx context.Context, doc *store.Document, buildIndex bool) *snapshot {
	var index [][]float32
	if buildIndex {
		index = rag.BuildFAQIndex(ctx, s.embedder, doc.CompanyData.FAQ)
	}
	return &snapshot{
		doc:       doc,
		retriever: rag.NewRetriever(doc.CompanyData, index, s.embedder, s.cfg.SimilarityThreshold),
		loadedAt:  time.Now(),
	}
}

// Document returns the active knowledge document. Callers must not modify it.
func (s *Service) Document() *store.Document {
	return s.current.Load().doc
}

// CreateSession registers a new session and returns its id.
func (s *Service) CreateSession() string {
	id := s.sessions.Create("")
	s.analytics.TrackSession(id)
	return id
}

// History returns the session's messages, oldest first.
func (s *Service) History(sessionID string) []session.Message {
	return s.sessions.History(sessionID)
}

// ClearSession removes the session.
func (s *Service) ClearSession(sessionID string) {
	s.sessions.Clear(sessionID)
}

// Send answers one message with a single blocking generation.
func (s *Service) Send(ctx context.Context, req Request) (*Response, error) {
	message, err := validateMessage(req.Message)
	if err != nil {
		return nil, err
	}

	release, err := s.admit(ctx, observability.ModeSingle)
	if err != nil {
		return nil, err
	}
	defer release()

	sessionID := s.resolveSession(req.SessionID)
	rc := s.requestContext(ctx, observability.ModeSingle, sessionID)
	rc.Info("chat started", slog.Int(observability.LogFieldMessageLen, len(message)))

	started := time.Now()
	messages, opts := s.prepare(ctx, sessionID, message)
	rc.Debug("prompt assembled", slog.Int("history_messages", len(messages)-1))

	text, err := s.llm.Chat(ctx, messages, opts)
	if err != nil {
		return nil, s.fail(ctx, rc, err)
	}

	// The user message is stored only together with its reply.
	s.sessions.AppendTurn(sessionID,
		session.Message{Role: session.RoleUser, Content: message, Timestamp: started},
		session.Message{Role: session.RoleAssistant, Content: text},
	)
	s.analytics.TrackMessage(sessionID, message, time.Since(started))
	rc.Info("chat completed", slog.Int64(observability.LogFieldDuration, rc.DurationMs()))

	return &Response{
		Response:  text,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}, nil
}

// prepare takes the context window before the current message, retrieves the
// relevant knowledge and builds the generation input.
func (s *Service) prepare(ctx context.Context, sessionID, message string) ([]ai.Message, ai.GenerateOptions) {
	history := s.contextWindow(sessionID)

	snap := s.current.Load()
	bundle := snap.retriever.Retrieve(ctx, message)
	bot := snap.doc.BotConfig
	text := prompt.Assemble(message, bundle, bot, snap.doc.CompanyData.CompanyName)

	return ai.FormatMessages("", text, history), ai.GenerateOptions{
		Temperature: bot.Temperature,
		MaxTokens:   bot.MaxResponseLength,
	}
}

// contextWindow returns the last MaxContextTurns messages of the session.
func (s *Service) contextWindow(sessionID string) []ai.Message {
	history := s.sessions.History(sessionID)
	if over := len(history) - s.cfg.MaxContextTurns; over > 0 {
		history = history[over:]
	}
	messages := make([]ai.Message, len(history))
	for i, m := range history {
		messages[i] = ai.Message{Role: m.Role, Content: m.Content}
	}
	return messages
}

// requestContext scopes logging to one chat request, reusing the request id
// the transport attached to ctx.
func (s *Service) requestContext(ctx context.Context, mode, sessionID string) *observability.RequestContext {
	if rc, ok := observability.FromContext(ctx); ok && rc.RequestID != "" {
		return observability.NewRequestContextWithID(s.logger, rc.RequestID, mode, sessionID)
	}
	return observability.NewRequestContext(s.logger, mode, sessionID)
}

// resolveSession returns the caller's session id, creating the session when
// it is new.
func (s *Service) resolveSession(id string) string {
	if id != "" && s.sessions.Exists(id) {
		return id
	}
	id = s.sessions.Create(id)
	s.analytics.TrackSession(id)
	return id
}

// admit blocks for an admission slot, bounded by the admission timeout.
func (s *Service) admit(ctx context.Context, mode string) (func(), error) {
	admitCtx, cancel := context.WithTimeout(ctx, s.cfg.AdmissionTimeout)
	defer cancel()

	if err := s.admission.Acquire(admitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, aierrors.ContextCanceled(ctx.Err())
		}
		s.metrics.RecordFailure(mode, string(aierrors.ErrCodeServiceUnavailable))
		return nil, aierrors.ServiceUnavailable("too many concurrent requests")
	}

	started := time.Now()
	s.metrics.RecordRequest(mode)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.admission.Release(1)
			s.metrics.RecordDone(mode, time.Since(started))
		})
	}, nil
}

// fail classifies a generation error, reports it and returns the caller-facing error.
func (s *Service) fail(ctx context.Context, rc *observability.RequestContext, err error) error {
	var aiErr *aierrors.AIError
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		aiErr = aierrors.ContextCanceled(err)
	case ai.IsTimeout(err):
		aiErr = aierrors.Timeout("generation timed out", err)
	default:
		aiErr = aierrors.GenerationFailed("generation failed", err)
	}
	aiErr.WithContext("session_id", rc.SessionID).WithContext("request_id", rc.RequestID)

	s.analytics.TrackError(string(aiErr.Code), truncate(err.Error(), timeout.MaxTruncateLength))
	s.metrics.RecordFailure(rc.Mode, string(aiErr.Code))
	rc.Error("chat failed", err,
		slog.String(observability.LogFieldErrorCode, string(aiErr.Code)),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
	return aiErr
}

// MaxMessageLength bounds a user message, in characters.
const MaxMessageLength = 1000

func validateMessage(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", aierrors.InvalidArgument("message is required")
	}
	if len([]rune(message)) > MaxMessageLength {
		return "", aierrors.InvalidArgument("message is too long").WithContext("max_length", MaxMessageLength)
	}
	return message, nil
}

// Stats describes the orchestrator's shared state.
type Stats struct {
	ActiveSessions    int         `json:"active_sessions"`
	Cache             cache.Stats `json:"cache"`
	EmbeddingsEnabled bool        `json:"embeddings_enabled"`
	FAQIndexed        bool        `json:"faq_indexed"`
	KnowledgeLoadedAt time.Time   `json:"knowledge_loaded_at"`
}

// Stats returns cache and session statistics.
func (s *Service) Stats() Stats {
	snap := s.current.Load()
	st := Stats{
		ActiveSessions:    s.sessions.Count(),
		EmbeddingsEnabled: s.embedder != nil && s.embedder.Available(),
		FAQIndexed:        snap.retriever.HasIndex(),
		KnowledgeLoadedAt: snap.loadedAt,
	}
	if s.cache != nil {
		st.Cache = s.cache.Stats()
	}
	return st
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

type noopAnalytics struct{}

func (noopAnalytics) TrackMessage(string, string, time.Duration) {}
func (noopAnalytics) TrackSession(string)                        {}
func (noopAnalytics) TrackError(string, string)                  {}
