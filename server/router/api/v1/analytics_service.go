package v1

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/atabot/server/middleware"
)

// GetStats returns the usage analytics.
// GET /api/v1/analytics/stats
func (s *APIV1Service) GetStats(c echo.Context) error {
	return ok(c, "", s.Analytics.Snapshot())
}

// SubmitFeedback records a 1 to 5 rating for a session.
// POST /api/v1/analytics/feedback?session_id=..&rating=..&feedback=..
func (s *APIV1Service) SubmitFeedback(c echo.Context) error {
	sessionID := c.FormValue("session_id")
	if sessionID == "" {
		return badRequest(c, "session_id is required")
	}
	rating, err := strconv.Atoi(c.FormValue("rating"))
	if err != nil {
		return badRequest(c, "rating must be an integer between 1 and 5")
	}
	text := middleware.SanitizeInput(c.FormValue("feedback"))

	fb, err := s.Analytics.AddFeedback(sessionID, rating, text)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "Feedback submitted", map[string]string{"feedback_id": fb.ID})
}
