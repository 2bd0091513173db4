package core

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// AgentID is the stable, unique address of an agent within a session.
type AgentID string

// String implements fmt.Stringer.
func (id AgentID) String() string { return string(id) }

const (
	// PlannerID is reserved for the session's planner agent.
	PlannerID AgentID = "Planner"
	// UserID is the sentinel originator of a session goal. No agent is ever
	// registered under it.
	UserID AgentID = "User"
)

// Message is the unit of communication between agents. After creation it
// should be treated as immutable; it leaves the mailbox exactly once, when it
// is delivered to its recipient.
type Message struct {
	ID        string    `json:"id"`
	From      AgentID   `json:"from"`
	To        AgentID   `json:"to"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh ULID and a UTC timestamp.
func NewMessage(from, to AgentID, content string) Message {
	return Message{
		ID:        ulid.Make().String(),
		From:      from,
		To:        to,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Outbound is a message an agent intends to send. Agents never touch the
// mailbox directly; the engine turns each Outbound into a Message authored by
// the reacting agent.
type Outbound struct {
	To      AgentID
	Content string
}

// Reply is a small helper building a single-element outbound slice.
func Reply(to AgentID, content string) []Outbound {
	return []Outbound{{To: to, Content: content}}
}
