package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// session holds one conversation. mu serializes appends within the session.
type session struct {
	mu         sync.Mutex
	messages   []Message
	lastActive time.Time
	removed    bool
}

// MemoryStore implements SessionService in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	maxMessages int
	clock       func() time.Time
}

// NewMemoryStore creates a store keeping the last maxTurns user/assistant pairs
// per session. A nil clock means time.Now.
func NewMemoryStore(maxTurns int, clock func() time.Time) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxContextTurns
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		sessions:    make(map[string]*session),
		maxMessages: 2 * maxTurns,
		clock:       clock,
	}
}

// MaxMessages returns the per-session history bound.
func (s *MemoryStore) MaxMessages() int {
	return s.maxMessages
}

// Create registers a session and returns its id.
func (s *MemoryStore) Create(id string) string {
	if id == "" {
		id = uuid.NewString()
	}
	s.getOrCreate(id)
	return id
}

// Append adds one message to the session, creating it if needed.
func (s *MemoryStore) Append(id string, msg Message) {
	s.append(id, msg)
}

// AppendTurn adds the pair under one session lock so concurrent requests on
// the same session never interleave between a question and its reply.
func (s *MemoryStore) AppendTurn(id string, user, assistant Message) {
	s.append(id, user, assistant)
}

func (s *MemoryStore) append(id string, msgs ...Message) {
	now := s.clock()
	for i := range msgs {
		if msgs[i].Timestamp.IsZero() {
			msgs[i].Timestamp = now
		}
	}

	for {
		sess := s.getOrCreate(id)
		sess.mu.Lock()
		if sess.removed {
			// Cleared between lookup and lock; retry against a fresh session.
			sess.mu.Unlock()
			continue
		}
		sess.messages = append(sess.messages, msgs...)
		if over := len(sess.messages) - s.maxMessages; over > 0 {
			sess.messages = append([]Message(nil), sess.messages[over:]...)
		}
		sess.lastActive = now
		sess.mu.Unlock()
		return
	}
}

// History returns a copy of the session's messages.
func (s *MemoryStore) History(id string) []Message {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return []Message{}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	history := make([]Message, len(sess.messages))
	copy(history, sess.messages)
	return history
}

// Exists reports whether the session is registered.
func (s *MemoryStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Clear removes the session.
func (s *MemoryStore) Clear(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sess.mu.Lock()
		sess.removed = true
		sess.mu.Unlock()
	}
}

// EvictIdle removes sessions whose last activity is older than idle.
func (s *MemoryStore) EvictIdle(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := s.clock().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		if sess.lastActive.Before(cutoff) {
			sess.removed = true
			delete(s.sessions, id)
			evicted++
		}
		sess.mu.Unlock()
	}
	return evicted
}

// Count returns the number of live sessions.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) getOrCreate(id string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess = &session{
		messages:   make([]Message, 0, s.maxMessages),
		lastActive: s.clock(),
	}
	s.sessions[id] = sess
	return sess
}

// Ensure MemoryStore implements SessionService
var _ SessionService = (*MemoryStore)(nil)
