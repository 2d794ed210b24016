// Package stats aggregates chat usage analytics in memory.
// Tracking calls never block the caller: events are queued and applied by a
// single goroutine, and are dropped when the queue is full.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/lithammer/shortuuid/v4"

	aierrors "github.com/hrygo/atabot/server/internal/errors"
	"github.com/hrygo/atabot/server/internal/observability"
)

const (
	// DefaultQueueSize bounds pending tracking events.
	DefaultQueueSize = 1024
	// maxResponseTimes and maxFeedback bound the rolling windows.
	maxResponseTimes = 1000
	maxFeedback      = 1000
	maxRecentErrors  = 100
	// topKeywords is the number of keywords reported.
	topKeywords = 10
	// keywordsPerMessage caps keywords counted from one message.
	keywordsPerMessage = 5
)

var stopWords = map[string]struct{}{
	"apa": {}, "bagaimana": {}, "dimana": {}, "kapan": {}, "siapa": {}, "kenapa": {},
	"adalah": {}, "dan": {}, "atau": {}, "dengan": {}, "untuk": {}, "dari": {}, "ke": {},
	"what": {}, "how": {}, "where": {}, "when": {}, "who": {}, "why": {}, "is": {}, "are": {},
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventSession
	eventError
)

type event struct {
	kind      eventKind
	at        time.Time
	sessionID string
	query     string
	latency   time.Duration
	errKind   string
	detail    string
}

// Feedback is one user rating.
type Feedback struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Rating    int       `json:"rating"`
	Text      string    `json:"feedback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent is one recorded failure.
type ErrorEvent struct {
	Kind      string    `json:"type"`
	Detail    string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// KeywordCount is a keyword and its frequency.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int64  `json:"count"`
}

// Snapshot is a point-in-time view of the aggregates.
type Snapshot struct {
	TotalMessages     int64            `json:"total_messages"`
	TotalSessions     int64            `json:"total_sessions"`
	DailyStats        map[string]int64 `json:"daily_stats"`
	TopKeywords       []KeywordCount   `json:"popular_keywords"`
	AvgResponseTimeMs float64          `json:"avg_response_time_ms"`
	ErrorCount        int64            `json:"error_count"`
	RecentErrors      []ErrorEvent     `json:"recent_errors"`
	Satisfaction      float64          `json:"satisfaction_score"`
	FeedbackCount     int              `json:"feedback_count"`
	DroppedEvents     int64            `json:"dropped_events"`
	Uptime            string           `json:"uptime"`
}

// Recorder is the analytics sink.
type Recorder struct {
	events    chan event
	clock     func() time.Time
	startedAt time.Time
	dropped   atomic.Int64

	mu            sync.RWMutex
	totalMessages int64
	totalSessions int64
	errorCount    int64
	daily         map[string]int64
	keywords      map[string]int64
	responseTimes []float64
	feedback      []Feedback
	recentErrors  []ErrorEvent

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewRecorder creates a recorder. queueSize <= 0 uses DefaultQueueSize; a nil clock means time.Now.
func NewRecorder(queueSize int, clock func() time.Time) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{
		events:    make(chan event, queueSize),
		clock:     clock,
		startedAt: clock(),
		daily:     make(map[string]int64),
		keywords:  make(map[string]int64),
		stopChan:  make(chan struct{}),
	}
}

// Start begins applying queued events until ctx is canceled or Stop is called.
func (r *Recorder) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.run(ctx)
	})
}

// Stop stops the consumer after applying what is already queued.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

func (r *Recorder) run(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.events:
			r.apply(ev)
		case <-ctx.Done():
			r.drain()
			return
		case <-r.stopChan:
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case ev := <-r.events:
			r.apply(ev)
		default:
			return
		}
	}
}

// TrackMessage records a completed generation.
func (r *Recorder) TrackMessage(sessionID, query string, latency time.Duration) {
	r.enqueue(event{kind: eventMessage, sessionID: sessionID, query: query, latency: latency})
}

// TrackSession records a newly created session.
func (r *Recorder) TrackSession(sessionID string) {
	r.enqueue(event{kind: eventSession, sessionID: sessionID})
}

// TrackError records a failure.
func (r *Recorder) TrackError(kind, detail string) {
	r.enqueue(event{kind: eventError, errKind: kind, detail: detail})
}

func (r *Recorder) enqueue(ev event) {
	ev.at = r.clock()
	select {
	case r.events <- ev:
	default:
		if r.dropped.Add(1)%100 == 1 {
			slog.Warn("analytics queue full, dropping events", "dropped", r.dropped.Load())
		}
	}
}

func (r *Recorder) apply(ev event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.kind {
	case eventMessage:
		r.totalMessages++
		r.daily[ev.at.Format("2006-01-02")]++
		for _, kw := range extractKeywords(ev.query) {
			r.keywords[kw]++
		}
		r.responseTimes = appendBounded(r.responseTimes, float64(ev.latency.Microseconds())/1000, maxResponseTimes)
	case eventSession:
		r.totalSessions++
	case eventError:
		r.errorCount++
		r.recentErrors = appendBounded(r.recentErrors, ErrorEvent{Kind: ev.errKind, Detail: ev.detail, Timestamp: ev.at}, maxRecentErrors)
	}
}

// AddFeedback stores a rating from 1 to 5.
func (r *Recorder) AddFeedback(sessionID string, rating int, text string) (Feedback, error) {
	if rating < 1 || rating > 5 {
		return Feedback{}, aierrors.InvalidArgument("rating must be between 1 and 5").
			WithContext("rating", rating)
	}

	fb := Feedback{
		ID:        shortuuid.New(),
		SessionID: sessionID,
		Rating:    rating,
		Text:      text,
		Timestamp: r.clock(),
	}

	r.mu.Lock()
	r.feedback = appendBounded(r.feedback, fb, maxFeedback)
	r.mu.Unlock()
	return fb, nil
}

// Snapshot returns the current aggregates.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	daily := make(map[string]int64, len(r.daily))
	for day, n := range r.daily {
		daily[day] = n
	}

	var ratingSum int
	for _, fb := range r.feedback {
		ratingSum += fb.Rating
	}

	return Snapshot{
		TotalMessages:     r.totalMessages,
		TotalSessions:     r.totalSessions,
		DailyStats:        daily,
		TopKeywords:       topN(r.keywords, topKeywords),
		AvgResponseTimeMs: round2(mean(r.responseTimes)),
		ErrorCount:        r.errorCount,
		RecentErrors:      append([]ErrorEvent{}, r.recentErrors...),
		Satisfaction:      round2(safeDiv(float64(ratingSum), float64(len(r.feedback)))),
		FeedbackCount:     len(r.feedback),
		DroppedEvents:     r.dropped.Load(),
		Uptime:            r.clock().Sub(r.startedAt).Truncate(time.Second).String(),
	}
}

// GetSummary returns a short human-readable summary.
func (s Snapshot) GetSummary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("messages: %d, sessions: %d, errors: %d\n", s.TotalMessages, s.TotalSessions, s.ErrorCount))
	sb.WriteString(fmt.Sprintf("avg response: %.2fms, satisfaction: %.2f (%d ratings)\n", s.AvgResponseTimeMs, s.Satisfaction, s.FeedbackCount))
	if len(s.TopKeywords) > 0 {
		words := make([]string, len(s.TopKeywords))
		for i, kw := range s.TopKeywords {
			words[i] = fmt.Sprintf("%s(%d)", kw.Keyword, kw.Count)
		}
		sb.WriteString("top keywords: " + strings.Join(words, ", ") + "\n")
	}
	sb.WriteString("uptime: " + s.Uptime)
	return sb.String()
}

// RegisterMetrics mirrors the aggregates into Prometheus.
func (r *Recorder) RegisterMetrics(m *observability.Metrics) {
	read := func(fn func() float64) func() float64 {
		return func() float64 {
			r.mu.RLock()
			defer r.mu.RUnlock()
			return fn()
		}
	}
	m.RegisterCounterFunc("analytics", "messages_total", "Completed chat messages", read(func() float64 { return float64(r.totalMessages) }))
	m.RegisterCounterFunc("analytics", "sessions_total", "Created chat sessions", read(func() float64 { return float64(r.totalSessions) }))
	m.RegisterCounterFunc("analytics", "errors_total", "Recorded chat failures", read(func() float64 { return float64(r.errorCount) }))
	m.RegisterCounterFunc("analytics", "dropped_events_total", "Analytics events dropped on a full queue", func() float64 { return float64(r.dropped.Load()) })
}

// extractKeywords returns up to five lower-cased words longer than three
// characters that are not stop words.
func extractKeywords(query string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(word) <= 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == keywordsPerMessage {
			break
		}
	}
	return keywords
}

func topN(counts map[string]int64, n int) []KeywordCount {
	out := make([]KeywordCount, 0, len(counts))
	for kw, c := range counts {
		out = append(out, KeywordCount{Keyword: kw, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = append(s[:0:0], s[len(s)-limit:]...)
	}
	return s
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return safeDiv(sum, float64(len(values)))
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
