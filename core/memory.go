package core

import (
	"strings"
	"sync"
)

// MaxMemoryEntries bounds every agent's memory window.
const MaxMemoryEntries = 5

// MemoryWindow is an ordered, bounded list of recent memory entries. Appends
// evict the oldest entries so that at most MaxMemoryEntries remain, newest
// last. It is safe for concurrent access.
type MemoryWindow struct {
	mu      sync.RWMutex
	entries []string
}

// NewMemoryWindow creates a window pre-filled with entries (for example from a
// restored snapshot). Only the newest MaxMemoryEntries are kept.
func NewMemoryWindow(entries []string) *MemoryWindow {
	w := &MemoryWindow{}
	w.entries = trim(append([]string(nil), entries...))
	return w
}

// Append adds entry and trims the window to the newest MaxMemoryEntries.
func (w *MemoryWindow) Append(entry string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = trim(append(w.entries, entry))
}

// Entries returns a copy of the current entries in insertion order.
func (w *MemoryWindow) Entries() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.entries))
	copy(out, w.entries)
	return out
}

// Len returns the number of stored entries.
func (w *MemoryWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

// String joins the entries with newlines, the form used inside prompts.
func (w *MemoryWindow) String() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return strings.Join(w.entries, "\n")
}

func trim(entries []string) []string {
	if len(entries) <= MaxMemoryEntries {
		return entries
	}
	// copy so the evicted prefix is not kept alive by the backing array
	out := make([]string, MaxMemoryEntries)
	copy(out, entries[len(entries)-MaxMemoryEntries:])
	return out
}
