package agent

import (
	"context"
	"sync"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// BaseAgent bundles identity, the bounded memory window and the persistence
// hook shared by every agent variant. Embed it in concrete agents and supply a
// React method to satisfy core.Agent. All exported methods are goroutine-safe.
type BaseAgent struct {
	id         core.AgentID
	role       string
	memory     *core.MemoryWindow
	onRemember func(ctx context.Context)
	logger     logging.Logger

	// serializes multi-entry records so related entries stay adjacent
	recordMu sync.Mutex
}

// NewBaseAgent constructs a BaseAgent from the engine supplied configuration.
// Restored memory is trimmed to the newest core.MaxMemoryEntries.
func NewBaseAgent(cfg core.AgentConfig, logger logging.Logger) *BaseAgent {
	return &BaseAgent{
		id:         cfg.ID,
		role:       cfg.Role,
		memory:     core.NewMemoryWindow(cfg.Memory),
		onRemember: cfg.OnRemember,
		logger:     logging.OrNoOp(logger),
	}
}

// ID returns the agent's address.
func (b *BaseAgent) ID() core.AgentID { return b.id }

// Role returns the agent's role name.
func (b *BaseAgent) Role() string { return b.role }

// Memory returns a copy of the current memory entries, oldest first.
func (b *BaseAgent) Memory() []string { return b.memory.Entries() }

// MemoryString returns the memory entries joined by newlines.
func (b *BaseAgent) MemoryString() string { return b.memory.String() }

// Remember appends each entry to the memory window, keeping the newest
// core.MaxMemoryEntries, and runs the persistence hook after every append.
func (b *BaseAgent) Remember(ctx context.Context, entries ...string) {
	b.recordMu.Lock()
	defer b.recordMu.Unlock()

	for _, entry := range entries {
		b.memory.Append(entry)
		if b.onRemember != nil {
			b.onRemember(ctx)
		}
	}
}

// Logger returns the agent scoped logger.
func (b *BaseAgent) Logger() logging.Logger { return b.logger }
