package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/testutil"
)

// Interface compliance (compile-time assertions)
var (
	_ core.MemoryStore = (*InMemoryStore)(nil)
	_ core.MemoryStore = (*FileStore)(nil)
)

func TestInMemoryStore_Contract(t *testing.T) {
	testutil.RunMemoryStoreTests(t, func(*testing.T) core.MemoryStore { return NewInMemoryStore() })
}

func TestInMemoryStore_LoadIsCopy(t *testing.T) {
	s := NewInMemoryStoreFrom(core.Snapshot{"A_1": {"x"}})
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	got["A_1"][0] = "changed"

	again, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, again["A_1"])
}

func TestInMemoryStore_ConcurrentSave(t *testing.T) {
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Save(context.Background(), core.Snapshot{"A_1": {"x"}})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, s.Saves())
}
