package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/minhokim/voicerag/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy is returned when a turn is already in flight for the
	// session. The store fails fast rather than queueing; the caller retries.
	ErrSessionBusy = errors.New("session busy")
)

// Service owns all session state. History is append-only within a turn and
// messages are never reordered; the stored order is the source of truth for
// recency. At most one turn may be active per session at a time, while turns
// on distinct sessions proceed independently.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

type sessionState struct {
	info    chat.Session
	history []*schema.Message
	inTurn  bool
}

// NewService bootstraps the in-memory session store.
func NewService() *Service {
	return &Service{sessions: make(map[string]*sessionState)}
}

// GetOrCreate returns the session for the given id, creating it lazily on
// first reference.
func (s *Service) GetOrCreate(_ context.Context, sessionID string) (chat.Session, error) {
	if sessionID == "" {
		return chat.Session{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(sessionID).info, nil
}

func (s *Service) getOrCreateLocked(sessionID string) *sessionState {
	state, ok := s.sessions[sessionID]
	if !ok {
		state = &sessionState{
			info: chat.Session{
				ID:        sessionID,
				CreatedAt: time.Now().UTC(),
			},
			history: make([]*schema.Message, 0, 16),
		}
		s.sessions[sessionID] = state
	}
	return state
}

// BeginTurn marks a turn as in flight on the session, creating the session if
// it does not exist yet. A second BeginTurn before EndTurn fails with
// ErrSessionBusy.
func (s *Service) BeginTurn(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.getOrCreateLocked(sessionID)
	if state.inTurn {
		return ErrSessionBusy
	}
	state.inTurn = true
	return nil
}

// EndTurn releases the turn slot taken by BeginTurn.
func (s *Service) EndTurn(_ context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.sessions[sessionID]; ok {
		state.inTurn = false
	}
}

// Append adds a message to the end of the session history.
func (s *Service) Append(_ context.Context, sessionID string, msg *schema.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	state.history = append(state.history, msg)
	return nil
}

// History returns a copy of the ordered message history for the session.
func (s *Service) History(_ context.Context, sessionID string) ([]*schema.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]*schema.Message, len(state.history))
	copy(copied, state.history)
	return copied, nil
}

// Clear empties the session history but keeps the session alive.
func (s *Service) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	state.history = state.history[:0]
	return nil
}

// Evict removes the session entirely. A later reference recreates it empty.
func (s *Service) Evict(_ context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
