package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
)

// RunMemoryStoreTests exercises the core.MemoryStore contract against a fresh
// store returned by newStore.
func RunMemoryStoreTests(t *testing.T, newStore func(t *testing.T) core.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty load", func(t *testing.T) {
		snap, err := newStore(t).Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap)
	})

	t.Run("round trip", func(t *testing.T) {
		s := newStore(t)
		want := core.Snapshot{
			core.PlannerID: {"User goal: explain tidal locking", "Final: ok"},
			"Researcher_1": {"Research: \"quoted\"\nnew line", "Research: ünïcode"},
			"Writer_2":     {},
		}
		require.NoError(t, s.Save(ctx, want))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(want), len(got))
		for id, entries := range want {
			assert.ElementsMatch(t, entries, got[id], id)
			assert.Equal(t, len(entries), len(got[id]), id)
			for i := range entries {
				assert.Equal(t, entries[i], got[id][i], "order of %s", id)
			}
		}
	})

	t.Run("save replaces", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, core.Snapshot{"A_1": {"x"}, "B_2": {"y"}}))
		require.NoError(t, s.Save(ctx, core.Snapshot{"A_1": {"z"}}))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, core.Snapshot{"A_1": {"z"}}, got)
	})

	t.Run("caller cannot mutate stored state", func(t *testing.T) {
		s := newStore(t)
		in := core.Snapshot{"A_1": {"x"}}
		require.NoError(t, s.Save(ctx, in))
		in["A_1"][0] = "mutated"

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, got["A_1"])
	})
}
