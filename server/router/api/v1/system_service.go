package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/atabot/server/service/chat"
)

// HealthResponse reports readiness and shared state.
type HealthResponse struct {
	Status    string     `json:"status"`
	Version   string     `json:"version"`
	Timestamp time.Time  `json:"timestamp"`
	Chat      chat.Stats `json:"chat"`
}

// OverviewResponse summarises usage over a time range.
type OverviewResponse struct {
	TimeRange         string           `json:"time_range"`
	Messages          int64            `json:"messages"`
	DailyStats        map[string]int64 `json:"daily_stats"`
	AvgResponseTimeMs float64          `json:"avg_response_time_ms"`
	ErrorCount        int64            `json:"error_count"`
	Satisfaction      float64          `json:"satisfaction_score"`
	ActiveSessions    int              `json:"active_sessions"`
	CacheHitRate      float64          `json:"cache_hit_rate"`
}

// Health reports service readiness.
// GET /api/v1/health
func (s *APIV1Service) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   s.Profile.Version,
		Timestamp: time.Now(),
		Chat:      s.Chat.Stats(),
	})
}

// GetOverview returns the usage overview for a time range.
// GET /api/v1/analytics/overview?range=7d
func (s *APIV1Service) GetOverview(c echo.Context) error {
	timeRange := c.QueryParam("range")
	if timeRange == "" {
		timeRange = "7d"
	}
	since, err := parseTimeRange(timeRange)
	if err != nil {
		slog.Warn("Invalid time range parameter in overview request", "range", timeRange, "error", err)
		return badRequest(c, err.Error())
	}

	snap := s.Analytics.Snapshot()
	chatStats := s.Chat.Stats()

	sinceDay := since.Format(time.DateOnly)
	days := make([]string, 0, len(snap.DailyStats))
	for day := range snap.DailyStats {
		if day >= sinceDay {
			days = append(days, day)
		}
	}
	sort.Strings(days)

	daily := make(map[string]int64, len(days))
	var messages int64
	for _, day := range days {
		daily[day] = snap.DailyStats[day]
		messages += snap.DailyStats[day]
	}

	return ok(c, "", OverviewResponse{
		TimeRange:         timeRange,
		Messages:          messages,
		DailyStats:        daily,
		AvgResponseTimeMs: snap.AvgResponseTimeMs,
		ErrorCount:        snap.ErrorCount,
		Satisfaction:      snap.Satisfaction,
		ActiveSessions:    chatStats.ActiveSessions,
		CacheHitRate:      chatStats.Cache.HitRate(),
	})
}

// Landing serves the rendered landing page.
// GET /
func (s *APIV1Service) Landing(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, s.landing)
}

// parseTimeRange parses time range string and returns the start time
func parseTimeRange(timeRange string) (time.Time, error) {
	now := time.Now()
	switch timeRange {
	case "1d", "24h":
		return now.Add(-24 * time.Hour), nil
	case "7d":
		return now.Add(-7 * 24 * time.Hour), nil
	case "30d":
		return now.Add(-30 * 24 * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("invalid time range: %s (valid: 24h, 7d, 30d)", timeRange)
	}
}
