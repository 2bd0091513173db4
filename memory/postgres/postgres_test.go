package postgres

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
	url := os.Getenv("ROUNDTABLE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("ROUNDTABLE_TEST_POSTGRES_URL not set")
	}

	testutil.RunMemoryStoreTests(t, func(t *testing.T) core.MemoryStore {
		ns := "test-" + uuid.NewString()
		s, err := New(context.Background(), url, func(o *Options) { o.Namespace = ns })
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = s.pool.Exec(context.Background(), `DELETE FROM agent_memory WHERE namespace = $1`, ns)
			s.Close()
		})
		return s
	})
}
