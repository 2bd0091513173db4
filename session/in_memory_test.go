package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/testutil"
)

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)

func TestInMemoryStore_Lifecycle(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Create("run-1", "explain tidal locking")
	require.NoError(t, err)

	msg := testutil.NewMessageBuilder().Content("explain tidal locking").Build()
	require.NoError(t, s.AppendMessage("run-1", msg))
	require.NoError(t, s.Finish("run-1", core.SessionFinished, "drained", 4))

	sess, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, "explain tidal locking", sess.Goal)
	assert.Equal(t, []core.Message{msg}, sess.GetMessages())
	assert.Equal(t, core.SessionFinished, sess.Status)
	assert.Equal(t, "drained", sess.Termination)
	assert.Equal(t, 4, sess.Rounds)
}

func TestInMemoryStore_NotFound(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Get("missing")
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
	assert.ErrorIs(t, s.AppendMessage("missing", core.Message{}), core.ErrSessionNotFound)
	assert.ErrorIs(t, s.Finish("missing", core.SessionFinished, "", 0), core.ErrSessionNotFound)
}

func TestInMemoryStore_GetReturnsClone(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Create("run-1", "g")
	require.NoError(t, err)

	sess, err := s.Get("run-1")
	require.NoError(t, err)
	sess.AddMessage(core.Message{Content: "local only"})

	again, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Empty(t, again.GetMessages())
}

func TestInMemoryStore_List(t *testing.T) {
	s := NewInMemoryStore()
	_, _ = s.Create("a", "1")
	_, _ = s.Create("b", "2")
	assert.Len(t, s.List(), 2)
}
