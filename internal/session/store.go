package session

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no state exists for a session ID.
var ErrNotFound = errors.New("session: not found")

// Store persists session state. Merge semantics live in Apply; stores only
// load and save whole records.
type Store interface {
	Load(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, state State) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]State)}
}

// Load returns a copy of the stored state.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return State{}, ErrNotFound
	}
	return st.Clone(), nil
}

// Save stores a copy of state.
func (s *MemoryStore) Save(_ context.Context, state State) error {
	if state.SessionID == "" {
		return errors.New("session: session id is required")
	}
	s.mu.Lock()
	s.sessions[state.SessionID] = state.Clone()
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ Store = (*MemoryStore)(nil)
