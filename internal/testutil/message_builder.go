package testutil

import (
	"time"

	"github.com/hupe1980/roundtable/core"
)

// MessageBuilder provides a fluent helper for constructing messages in tests.
// Example:
//
//	msg := NewMessageBuilder().From("Researcher_1").To("Planner").Content("facts").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type MessageBuilder struct {
	from, to core.AgentID
	content  string
	id       string
	ts       time.Time
}

// NewMessageBuilder creates a builder for a User -> Planner message.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{from: core.UserID, to: core.PlannerID}
}

// From sets the sender (chainable).
func (b *MessageBuilder) From(id core.AgentID) *MessageBuilder { b.from = id; return b }

// To sets the recipient (chainable).
func (b *MessageBuilder) To(id core.AgentID) *MessageBuilder { b.to = id; return b }

// Content sets the text (chainable).
func (b *MessageBuilder) Content(c string) *MessageBuilder { b.content = c; return b }

// ID overrides the generated id (chainable). Use where determinism matters.
func (b *MessageBuilder) ID(id string) *MessageBuilder { b.id = id; return b }

// At overrides the timestamp (chainable).
func (b *MessageBuilder) At(ts time.Time) *MessageBuilder { b.ts = ts; return b }

// Build constructs the core.Message value.
func (b *MessageBuilder) Build() core.Message {
	msg := core.NewMessage(b.from, b.to, b.content)
	if b.id != "" {
		msg.ID = b.id
	}
	if !b.ts.IsZero() {
		msg.Timestamp = b.ts
	}
	return msg
}
