package memory

import (
	"context"
	"sync"

	"github.com/hupe1980/roundtable/core"
)

// InMemoryStore is a process-local MemoryStore. It keeps a deep copy of the
// last saved snapshot, so callers can never mutate stored state through the
// maps they pass in or receive.
//
// Concurrency: protected by RWMutex. Suitable for tests, the CLI default and
// single-process servers that do not need memory across restarts.
type InMemoryStore struct {
	mu       sync.RWMutex
	snapshot core.Snapshot
	saves    int
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snapshot: core.Snapshot{}}
}

// NewInMemoryStoreFrom creates a store pre-filled with snapshot.
func NewInMemoryStoreFrom(snapshot core.Snapshot) *InMemoryStore {
	return &InMemoryStore{snapshot: snapshot.Clone()}
}

// Load returns a copy of the stored snapshot.
func (m *InMemoryStore) Load(_ context.Context) (core.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.Clone(), nil
}

// Save replaces the stored snapshot with a copy of snapshot.
func (m *InMemoryStore) Save(_ context.Context, snapshot core.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snapshot.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *InMemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
