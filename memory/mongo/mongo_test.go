package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/testutil"
)

var _ core.MemoryStore = (*Store)(nil)

func TestStore_Contract(t *testing.T) {
	uri := os.Getenv("ROUNDTABLE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("ROUNDTABLE_TEST_MONGO_URI not set")
	}

	testutil.RunMemoryStoreTests(t, func(t *testing.T) core.MemoryStore {
		ns := "test-" + uuid.NewString()
		s, err := New(context.Background(), uri, func(o *Options) {
			o.Database = "roundtable_test"
			o.Namespace = ns
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			ctx := context.Background()
			_, _ = s.collection.DeleteOne(ctx, bson.M{"_id": ns})
			_ = s.Close(ctx)
		})
		return s
	})
}
