// Package session keeps the bounded, per-session conversation history.
package session

import "time"

// Roles stored in a session.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxContextTurns is used when a store is created without a limit.
const DefaultMaxContextTurns = 5

// SessionService defines the session history service interface.
type SessionService interface {
	// Create registers a session. An empty id generates one; an existing id is a no-op.
	Create(id string) string

	// Append adds one message, creating the session if needed.
	Append(id string, msg Message)

	// AppendTurn adds a user message and its reply as one uninterrupted pair.
	AppendTurn(id string, user, assistant Message)

	// History returns a copy of the session's messages, oldest first.
	// A missing session yields an empty history.
	History(id string) []Message

	// Exists reports whether the session is registered.
	Exists(id string) bool

	// Clear removes the session.
	Clear(id string)

	// EvictIdle removes sessions inactive for longer than idle and returns how many.
	EvictIdle(idle time.Duration) int

	// Count returns the number of live sessions.
	Count() int
}

// Message represents a conversation message.
type Message struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
