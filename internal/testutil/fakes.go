package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/model"
)

// Rule maps prompts containing Match to Reply. Rules are checked in order.
type Rule struct {
	Match string
	Reply string
}

// ScriptedModel answers prompts by substring rules and records every prompt.
// Prompts matching no rule get Default.
type ScriptedModel struct {
	Rules   []Rule
	Default string

	mu      sync.Mutex
	prompts []string
}

var _ model.Model = (*ScriptedModel)(nil)

// Generate implements model.Model.
func (m *ScriptedModel) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	for _, r := range m.Rules {
		if strings.Contains(prompt, r.Match) {
			return r.Reply, nil
		}
	}
	return m.Default, nil
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info { return model.Info{Name: "scripted", Provider: "mock"} }

// Prompts returns a copy of all prompts seen so far.
func (m *ScriptedModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// RecordingObserver keeps every observed message.
type RecordingObserver struct {
	mu   sync.Mutex
	msgs []core.Message
}

// Observe implements core.Observer.
func (r *RecordingObserver) Observe(msg core.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// Messages returns a copy of the observed messages in order.
func (r *RecordingObserver) Messages() []core.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Message(nil), r.msgs...)
}

// ErrStoreUnavailable is returned by FailingStore.
var ErrStoreUnavailable = errors.New("store unavailable")

// FailingStore is a MemoryStore whose operations fail on demand.
type FailingStore struct {
	FailLoad bool
	FailSave bool

	mu    sync.Mutex
	saved core.Snapshot
	saves int
}

// Load implements core.MemoryStore.
func (s *FailingStore) Load(context.Context) (core.Snapshot, error) {
	if s.FailLoad {
		return nil, ErrStoreUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved.Clone(), nil
}

// Save implements core.MemoryStore. Failed saves are still counted.
func (s *FailingStore) Save(_ context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.FailSave {
		return ErrStoreUnavailable
	}
	s.saved = snap.Clone()
	return nil
}

// Saves returns the number of Save attempts.
func (s *FailingStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
