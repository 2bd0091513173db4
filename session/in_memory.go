package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/roundtable/core"
)

// InMemoryStore is a volatile SessionStore implementation storing
// sessions in a process local map. It is safe for concurrent access and best
// suited for tests or ephemeral demo servers. Each returned session is cloned
// to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create forces the creation (or overwriting) of a session with the given id.
func (s *InMemoryStore) Create(id, goal string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := core.NewSession(id, goal)
	s.sessions[id] = sess
	return sess.Clone(), nil
}

// Get returns a clone of an existing session or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrSessionNotFound)
	}
	return sess.Clone(), nil
}

// AppendMessage adds a message to an existing session's transcript.
func (s *InMemoryStore) AppendMessage(id string, msg core.Message) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, core.ErrSessionNotFound)
	}
	sess.AddMessage(msg)
	return nil
}

// Finish records the terminal state of a session.
func (s *InMemoryStore) Finish(id string, status core.SessionStatus, termination string, rounds int) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, core.ErrSessionNotFound)
	}
	sess.Finish(status, termination, rounds)
	return nil
}

// List returns clones of all sessions, newest first.
func (s *InMemoryStore) List() []*core.Session {
	s.mu.RLock()
	out := make([]*core.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out
}
