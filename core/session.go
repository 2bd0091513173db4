package core

import (
	"sync"
	"time"
)

// SessionStatus describes where a run is in its lifecycle.
type SessionStatus string

const (
	// SessionRunning marks a run whose dispatch loop has not terminated yet.
	SessionRunning SessionStatus = "running"
	// SessionFinished marks a run that terminated (drained, stalled or out of budget).
	SessionFinished SessionStatus = "finished"
	// SessionCancelled marks a run stopped by context cancellation.
	SessionCancelled SessionStatus = "cancelled"
)

// Session is the transcript of one run: the goal, every message sent while
// the run was active and the terminal summary. It is safe for concurrent
// access.
//
// Contract:
//   - Mutations update the Updated timestamp
//   - GetMessages returns a defensive copy
//   - Clone performs deep copies of slices & maps for safe divergence.
type Session struct {
	ID          string            `json:"id"`
	Goal        string            `json:"goal"`
	Status      SessionStatus     `json:"status"`
	Termination string            `json:"termination,omitempty"`
	Rounds      int               `json:"rounds"`
	Messages    []Message         `json:"messages"`
	Created     time.Time         `json:"created"`
	Updated     time.Time         `json:"updated"`
	Metadata    map[string]string `json:"metadata"`
	mu          sync.RWMutex
}

// NewSession creates a running session for the given run id and goal.
func NewSession(id, goal string) *Session {
	now := time.Now()
	return &Session{ID: id, Goal: goal, Status: SessionRunning, Messages: []Message{}, Created: now, Updated: now, Metadata: map[string]string{}}
}

// AddMessage appends a message to the transcript.
func (s *Session) AddMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
	s.Updated = time.Now()
}

// Finish records the terminal state of the run.
func (s *Session) Finish(status SessionStatus, termination string, rounds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.Termination = termination
	s.Rounds = rounds
	s.Updated = time.Now()
}

// GetMessages returns a defensive copy of the transcript.
func (s *Session) GetMessages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:          s.ID,
		Goal:        s.Goal,
		Status:      s.Status,
		Termination: s.Termination,
		Rounds:      s.Rounds,
		Messages:    make([]Message, len(s.Messages)),
		Created:     s.Created,
		Updated:     s.Updated,
		Metadata:    make(map[string]string, len(s.Metadata)),
	}
	copy(clone.Messages, s.Messages)
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// SessionStore keeps run transcripts.
type SessionStore interface {
	Create(id, goal string) (*Session, error)
	Get(id string) (*Session, error)
	AppendMessage(id string, msg Message) error
	Finish(id string, status SessionStatus, termination string, rounds int) error
}
