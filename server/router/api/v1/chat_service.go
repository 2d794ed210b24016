package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	aierrors "github.com/hrygo/atabot/server/internal/errors"
	"github.com/hrygo/atabot/server/middleware"
	"github.com/hrygo/atabot/server/service/chat"
)

// streamErrorMessage is shown to the client instead of provider details.
const streamErrorMessage = "Sorry, I could not generate a response right now. Please try again."

type chatMessageRequest struct {
	Message   string `json:"message" form:"message" validate:"required"`
	SessionID string `json:"session_id" form:"session_id" validate:"omitempty,max=128"`
}

// streamEvent is the SSE payload.
type streamEvent struct {
	Type      chat.EventType `json:"type"`
	Content   string         `json:"content,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Done      bool           `json:"done"`
	Code      string         `json:"code,omitempty"`
}

// bindMessage decodes, validates and sanitizes a chat request.
func (s *APIV1Service) bindMessage(c echo.Context) (chat.Request, error) {
	var req chatMessageRequest
	if err := c.Bind(&req); err != nil {
		return chat.Request{}, aierrors.InvalidArgument("Invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return chat.Request{}, aierrors.InvalidArgument("Message is required")
	}
	if err := middleware.ValidateMessage(req.Message); err != nil {
		return chat.Request{}, aierrors.InvalidArgument(err.Error())
	}

	message := middleware.SanitizeInput(req.Message)
	if message == "" {
		return chat.Request{}, aierrors.InvalidArgument("Message is empty after sanitization")
	}
	return chat.Request{Message: message, SessionID: req.SessionID}, nil
}

// SendMessage answers one chat message.
// POST /api/v1/chat/message
func (s *APIV1Service) SendMessage(c echo.Context) error {
	req, err := s.bindMessage(c)
	if err != nil {
		return fail(c, err)
	}

	resp, err := s.Chat.Send(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// SendMessageStream answers one chat message as server-sent events.
// POST /api/v1/chat/message/stream
func (s *APIV1Service) SendMessageStream(c echo.Context) error {
	req, err := s.bindMessage(c)
	if err != nil {
		return fail(c, err)
	}

	events, err := s.Chat.SendStream(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		if err := writeEvent(w, toStreamEvent(ev)); err != nil {
			slog.Warn("stream write failed", "session_id", req.SessionID, "error", err)
			return nil
		}
	}
	return nil
}

func toStreamEvent(ev chat.Event) streamEvent {
	out := streamEvent{
		Type:      ev.Type,
		Content:   ev.Content,
		SessionID: ev.SessionID,
		Done:      ev.Done,
	}
	if ev.Type == chat.EventError {
		out.Content = streamErrorMessage
		out.Code = string(ev.ErrorCode())
		out.Done = true
	}
	return out
}

func writeEvent(w *echo.Response, ev streamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// CreateSession starts an empty session.
// GET /api/v1/chat/session/create
func (s *APIV1Service) CreateSession(c echo.Context) error {
	id := s.Chat.CreateSession()
	return ok(c, "Session created", map[string]string{"session_id": id})
}

// GetHistory returns a session's messages, oldest first.
// GET /api/v1/chat/history/:session_id
func (s *APIV1Service) GetHistory(c echo.Context) error {
	id := c.Param("session_id")
	return ok(c, "", map[string]any{
		"session_id": id,
		"messages":   s.Chat.History(id),
	})
}

// ClearSession deletes a session.
// DELETE /api/v1/chat/session/:session_id
func (s *APIV1Service) ClearSession(c echo.Context) error {
	s.Chat.ClearSession(c.Param("session_id"))
	return ok(c, "Session cleared", nil)
}

// Reload re-reads the knowledge document.
// POST /api/v1/chat/reload
func (s *APIV1Service) Reload(c echo.Context) error {
	if err := s.Chat.Reload(c.Request().Context()); err != nil {
		return fail(c, err)
	}
	return ok(c, "Knowledge base reloaded", nil)
}
