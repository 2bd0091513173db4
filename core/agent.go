package core

import "context"

// Agent defines the contract every participant of a session implements.
//
// React is invoked by the engine once per delivered message. It must not
// send messages itself; it returns the messages it wants sent and the engine
// performs the sends, keeping mailbox mutation and external notification in
// one place. Implementations used with concurrent reactions enabled must be
// safe for concurrent React calls.
type Agent interface {
	ID() AgentID
	Role() string
	React(ctx context.Context, msg Message) ([]Outbound, error)
	// Memory returns a copy of the agent's current memory window.
	Memory() []string
}

// Spawner creates a new agent for the given role, registers it with the
// running session and returns its fresh identifier.
type Spawner interface {
	Spawn(ctx context.Context, role string) (AgentID, error)
}

// AgentConfig carries everything the engine hands to an agent constructor:
// identity, role, the memory restored from the last snapshot and the hook to
// call after every memory mutation.
type AgentConfig struct {
	ID         AgentID
	Role       string
	Memory     []string
	OnRemember func(ctx context.Context)
}

// AgentFactory builds agents for roles spawned at runtime.
type AgentFactory func(cfg AgentConfig) (Agent, error)

// AgentInfo carries identifying details about an agent used in results & transcripts.
type AgentInfo struct {
	ID   AgentID `json:"id"`
	Role string  `json:"role"`
}
