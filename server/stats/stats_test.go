package stats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/atabot/server/internal/errors"
	"github.com/hrygo/atabot/server/internal/observability"
)

func fixedClock() func() time.Time {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{"filters short and stop words", "Bagaimana cara membuat website di Jakarta", []string{"cara", "membuat", "website", "jakarta"}},
		{"drops stop words", "what is your pricing", []string{"your", "pricing"}},
		{"caps at five", "alpha bravo charlie delta echoo foxtrot", []string{"alpha", "bravo", "charlie", "delta", "echoo"}},
		{"counts characters not bytes", "café", []string{"café"}},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractKeywords(tt.query))
		})
	}
}

func TestRecorder_Aggregates(t *testing.T) {
	r := NewRecorder(16, fixedClock())

	r.apply(event{kind: eventSession})
	r.apply(event{kind: eventMessage, at: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), query: "website pricing", latency: 100 * time.Millisecond})
	r.apply(event{kind: eventMessage, at: time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC), query: "website hosting", latency: 201 * time.Millisecond})
	r.apply(event{kind: eventError, errKind: "GENERATION_FAILED", detail: "upstream 500"})

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.TotalMessages)
	assert.Equal(t, int64(1), snap.TotalSessions)
	assert.Equal(t, map[string]int64{"2026-05-01": 1, "2026-05-02": 1}, snap.DailyStats)
	assert.Equal(t, KeywordCount{Keyword: "website", Count: 2}, snap.TopKeywords[0])
	assert.Equal(t, 150.5, snap.AvgResponseTimeMs)
	assert.Equal(t, int64(1), snap.ErrorCount)
	require.Len(t, snap.RecentErrors, 1)
	assert.Equal(t, "GENERATION_FAILED", snap.RecentErrors[0].Kind)
	assert.Equal(t, "0s", snap.Uptime)
	assert.Contains(t, snap.GetSummary(), "messages: 2, sessions: 1, errors: 1")
}

func TestRecorder_TopKeywordsLimit(t *testing.T) {
	r := NewRecorder(16, fixedClock())
	for i := 0; i < 15; i++ {
		r.apply(event{kind: eventMessage, query: fmt.Sprintf("keyword%02d", i)})
	}
	assert.Len(t, r.Snapshot().TopKeywords, topKeywords)
}

func TestRecorder_ResponseTimeWindow(t *testing.T) {
	r := NewRecorder(16, fixedClock())
	for i := 0; i < maxResponseTimes; i++ {
		r.apply(event{kind: eventMessage, latency: time.Second})
	}
	for i := 0; i < maxResponseTimes; i++ {
		r.apply(event{kind: eventMessage, latency: 0})
	}
	assert.Equal(t, 0.0, r.Snapshot().AvgResponseTimeMs, "only the last window counts")
}

func TestRecorder_Feedback(t *testing.T) {
	r := NewRecorder(16, fixedClock())

	for _, rating := range []int{0, 6, -1} {
		_, err := r.AddFeedback("s", rating, "")
		assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeInvalidArgument), "rating %d", rating)
	}

	fb, err := r.AddFeedback("s", 5, "great")
	require.NoError(t, err)
	assert.NotEmpty(t, fb.ID)
	_, err = r.AddFeedback("s", 2, "")
	require.NoError(t, err)
	_, err = r.AddFeedback("s", 4, "")
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, 3, snap.FeedbackCount)
	assert.Equal(t, 3.67, snap.Satisfaction)
}

func TestRecorder_AsyncTracking(t *testing.T) {
	r := NewRecorder(16, nil)
	r.Start(context.Background())
	defer r.Stop()

	r.TrackSession("s1")
	r.TrackMessage("s1", "hello there", 10*time.Millisecond)
	r.TrackError("TIMEOUT", "provider timeout")

	assert.Eventually(t, func() bool {
		snap := r.Snapshot()
		return snap.TotalSessions == 1 && snap.TotalMessages == 1 && snap.ErrorCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecorder_FullQueueDrops(t *testing.T) {
	// Not started: nothing consumes the queue.
	r := NewRecorder(2, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.TrackMessage("s", "q", 0)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tracking blocked on a full queue")
	}
	assert.Equal(t, int64(8), r.Snapshot().DroppedEvents)

	r.Start(context.Background())
	r.Stop()
	assert.Equal(t, int64(2), r.Snapshot().TotalMessages, "queued events are applied on stop")
}

func TestRecorder_RegisterMetrics(t *testing.T) {
	m := observability.NewMetrics()
	r := NewRecorder(16, nil)
	r.RegisterMetrics(m)
	r.apply(event{kind: eventMessage})

	count, err := testutil.GatherAndCount(m.Registry(), "atabot_analytics_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
