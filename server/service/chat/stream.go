package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/atabot/plugin/ai/session"
	aierrors "github.com/hrygo/atabot/server/internal/errors"
	"github.com/hrygo/atabot/server/internal/observability"
)

// EventType names a stream event.
type EventType string

const (
	// EventSession carries the session id and is always sent first.
	EventSession EventType = "session"
	// EventContent carries one generated fragment.
	EventContent EventType = "content"
	// EventDone marks successful completion.
	EventDone EventType = "done"
	// EventError marks a failed generation; nothing follows it.
	EventError EventType = "error"
)

// Event is one element of a streamed answer. Every event carries the
// session id.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Done      bool      `json:"done,omitempty"`
	Err       error     `json:"-"`
}

// SendStream answers one message incrementally. Validation and admission
// errors are returned directly; later failures arrive as an EventError.
// The channel closes after EventDone or EventError, or when ctx ends.
func (s *Service) SendStream(ctx context.Context, req Request) (<-chan Event, error) {
	message, err := validateMessage(req.Message)
	if err != nil {
		return nil, err
	}

	release, err := s.admit(ctx, observability.ModeStream)
	if err != nil {
		return nil, err
	}

	sessionID := s.resolveSession(req.SessionID)
	events := make(chan Event)

	go func() {
		defer release()
		defer close(events)
		s.stream(ctx, sessionID, message, events)
	}()

	return events, nil
}

func (s *Service) stream(ctx context.Context, sessionID, message string, events chan<- Event) {
	rc := s.requestContext(ctx, observability.ModeStream, sessionID)
	rc.Info("chat stream started", slog.Int(observability.LogFieldMessageLen, len(message)))

	emit := func(e Event) bool {
		e.SessionID = sessionID
		if ctx.Err() != nil {
			return false
		}
		select {
		case events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(Event{Type: EventSession}) {
		return
	}

	started := time.Now()
	messages, opts := s.prepare(ctx, sessionID, message)
	rc.Debug("prompt assembled", slog.Int("history_messages", len(messages)-1))

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	contentCh, errCh := s.llm.ChatStream(streamCtx, messages, opts)

	var (
		answer strings.Builder
		chunks int
	)
	for chunk := range contentCh {
		answer.WriteString(chunk)
		chunks++
		s.metrics.RecordStreamChunk()
		if !emit(Event{Type: EventContent, Content: chunk}) {
			cancel()
			for range contentCh {
			}
			break
		}
	}

	err := <-errCh
	if ctx.Err() != nil {
		s.metrics.RecordFailure(rc.Mode, string(aierrors.ErrCodeContextCanceled))
		rc.Warn("chat stream abandoned by client", slog.Int(observability.LogFieldChunks, chunks))
		return
	}
	if err != nil {
		aiErr := s.fail(ctx, rc, err)
		emit(Event{Type: EventError, Err: aiErr, Content: aiErr.Error()})
		return
	}

	// The user message is stored only together with its reply.
	s.sessions.AppendTurn(sessionID,
		session.Message{Role: session.RoleUser, Content: message, Timestamp: started},
		session.Message{Role: session.RoleAssistant, Content: answer.String()},
	)
	s.analytics.TrackMessage(sessionID, message, time.Since(started))
	rc.Info("chat stream completed",
		slog.Int(observability.LogFieldChunks, chunks),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()))

	emit(Event{Type: EventDone, Done: true})
}

// ErrorCode returns the event's error code, or empty for non-error events.
func (e Event) ErrorCode() aierrors.ErrorCode {
	if e.Err == nil {
		return ""
	}
	return aierrors.GetCodeFromError(e.Err, aierrors.ErrCodeInternal)
}
