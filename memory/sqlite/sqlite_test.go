package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/testutil"
)

var _ core.MemoryStore = (*Store)(nil)

func newStore(t *testing.T, path string, ns string) *Store {
	t.Helper()
	s, err := New(context.Background(), path, func(o *Options) { o.Namespace = ns })
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	testutil.RunMemoryStoreTests(t, func(t *testing.T) core.MemoryStore {
		return newStore(t, filepath.Join(t.TempDir(), "memory.db"), "default")
	})
}

func TestStore_NamespacesAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a := newStore(t, path, "a")
	b := newStore(t, path, "b")
	ctx := context.Background()

	require.NoError(t, a.Save(ctx, core.Snapshot{"Planner": {"User goal: a"}}))
	require.NoError(t, b.Save(ctx, core.Snapshot{"Planner": {"User goal: b"}}))

	got, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Snapshot{"Planner": {"User goal: a"}}, got)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	first := newStore(t, path, "default")
	require.NoError(t, first.Save(ctx, core.Snapshot{"Researcher_1": {"Research: x"}}))
	require.NoError(t, first.Close())

	got, err := newStore(t, path, "default").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Snapshot{"Researcher_1": {"Research: x"}}, got)
}
