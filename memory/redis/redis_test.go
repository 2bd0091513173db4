package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/testutil"
)

var _ core.MemoryStore = (*Store)(nil)

func TestStore_Contract(t *testing.T) {
	url := os.Getenv("ROUNDTABLE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ROUNDTABLE_TEST_REDIS_URL not set")
	}

	testutil.RunMemoryStoreTests(t, func(t *testing.T) core.MemoryStore {
		key := "roundtable:test:" + uuid.NewString()
		s, err := New(context.Background(), url, func(o *Options) { o.Key = key })
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.client.Del(context.Background(), key).Err()
			_ = s.Close()
		})
		return s
	})
}
