package artifact

import (
	"slices"
	"sync"
)

// InMemoryStore keeps artifacts in a nested map guarded by an RWMutex. Data
// is copied on save and retrieval.
//
// Layout: runID -> name -> raw bytes
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string][]byte)}
}

// Save stores (or overwrites) the artifact for the given run and name.
func (a *InMemoryStore) Save(runID, name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.artifacts[runID]; !exists {
		a.artifacts[runID] = make(map[string][]byte)
	}
	a.artifacts[runID][name] = slices.Clone(data)
	return nil
}

// Get returns a copy of the stored artifact or ErrNotFound.
func (a *InMemoryStore) Get(runID, name string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.artifacts[runID][name]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

// List returns the sorted artifact names of the run.
func (a *InMemoryStore) List(runID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.artifacts[runID]))
	for name := range a.artifacts[runID] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Delete removes the artifact or returns ErrNotFound.
func (a *InMemoryStore) Delete(runID, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.artifacts[runID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[name]; !ok {
		return ErrNotFound
	}
	delete(m, name)
	if len(m) == 0 {
		delete(a.artifacts, runID)
	}
	return nil
}
