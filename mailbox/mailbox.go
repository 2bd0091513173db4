// Package mailbox implements the shared message queue agents communicate
// through. A Mailbox is owned by one session: the engine sends every
// reaction output through it and drains it per recipient each round.
package mailbox

import (
	"fmt"
	"sync"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// Options configures a Mailbox.
type Options struct {
	// Observers are notified of every sent message, in subscription order.
	Observers []core.Observer
	// Logger reports recovered observer panics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Mailbox is an insertion-ordered collection of pending messages. Every
// message is handed out by exactly one DeliverAllFor call. It has no size
// bound, no priorities and no deduplication. Safe for concurrent use.
type Mailbox struct {
	mu        sync.Mutex
	queue     []core.Message
	observers []core.Observer
	logger    logging.Logger
}

// New creates an empty mailbox.
func New(optFns ...func(o *Options)) *Mailbox {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Mailbox{
		observers: append([]core.Observer(nil), opts.Observers...),
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// Subscribe attaches an observer notified on every subsequent send.
func (m *Mailbox) Subscribe(obs core.Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// Send creates a message from 'from' to 'to', appends it and notifies
// observers. It returns the queued message.
func (m *Mailbox) Send(from, to core.AgentID, content string) core.Message {
	msg := core.NewMessage(from, to, content)
	m.Post(msg)
	return msg
}

// Post appends an already built message and notifies observers.
func (m *Mailbox) Post(msg core.Message) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	observers := m.observers
	m.mu.Unlock()

	// observers run outside the lock so a slow one cannot stall deliveries
	for _, obs := range observers {
		m.notify(obs, msg)
	}
}

func (m *Mailbox) notify(obs core.Observer, msg core.Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("mailbox observer panicked", "observer", fmt.Sprintf("%T", obs), "message_id", msg.ID, "panic", fmt.Sprint(r))
		}
	}()
	obs.Observe(msg)
}

// DeliverAllFor removes and returns every queued message addressed to
// recipient, preserving insertion order. It returns nil when nothing is queued
// for recipient.
func (m *Mailbox) DeliverAllFor(recipient core.AgentID) []core.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	var delivered []core.Message
	kept := m.queue[:0]
	for _, msg := range m.queue {
		if msg.To == recipient {
			delivered = append(delivered, msg)
			continue
		}
		kept = append(kept, msg)
	}
	// clear the tail so removed messages can be collected
	for i := len(kept); i < len(m.queue); i++ {
		m.queue[i] = core.Message{}
	}
	m.queue = kept
	return delivered
}

// Len returns the number of pending messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Empty reports whether no message is pending.
func (m *Mailbox) Empty() bool { return m.Len() == 0 }

// Pending returns a copy of the queued messages in insertion order.
func (m *Mailbox) Pending() []core.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Message, len(m.queue))
	copy(out, m.queue)
	return out
}

// Recipients returns the distinct recipients of pending messages in order of
// first appearance.
func (m *Mailbox) Recipients() []core.AgentID {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[core.AgentID]bool, len(m.queue))
	var out []core.AgentID
	for _, msg := range m.queue {
		if !seen[msg.To] {
			seen[msg.To] = true
			out = append(out, msg.To)
		}
	}
	return out
}
