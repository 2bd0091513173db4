package core

import "context"

// Snapshot maps every agent to its ordered memory entries. It is the unit of
// persistence: stores read and write it whole.
type Snapshot map[AgentID][]string

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, entries := range s {
		cp := make([]string, len(entries))
		copy(cp, entries)
		out[id] = cp
	}
	return out
}

// MemoryStore persists memory snapshots across runs. Implementations must
// round-trip exactly: Save(s) followed by Load() yields a snapshot equal to s.
// Load on a store that was never written returns an empty snapshot.
type MemoryStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}
