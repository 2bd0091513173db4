package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
)

var (
	_ core.Observer = (*Hub)(nil)
	_ http.Handler  = (*Hub)(nil)
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHub_BroadcastsMessages(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	conn := dial(t, hub)

	hub.Observe(core.NewMessage(core.PlannerID, "Researcher_1", "Please research: x"))

	f := read(t, conn)
	assert.Equal(t, EventNewMessage, f.Event)

	var data MessageData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "Planner", data.From)
	assert.Equal(t, "Researcher_1", data.To)
	assert.Equal(t, "Please research: x", data.Content)
	assert.NotEmpty(t, data.ID)
}

func TestHub_StartWithoutGoal(t *testing.T) {
	called := false
	hub := NewHub(func(context.Context, string) (RunSummary, error) {
		called = true
		return RunSummary{}, nil
	})
	defer hub.Close()
	conn := dial(t, hub)

	require.NoError(t, conn.WriteJSON(Request{Event: EventStartAgents, Goal: "  "}))

	f := read(t, conn)
	assert.Equal(t, EventError, f.Event)
	assert.JSONEq(t, `{"error":"No goal provided."}`, string(f.Data))
	assert.False(t, called)
}

func TestHub_StartAgents(t *testing.T) {
	var hub *Hub
	hub = NewHub(func(_ context.Context, goal string) (RunSummary, error) {
		hub.Observe(core.NewMessage(core.UserID, core.PlannerID, goal))
		return RunSummary{RunID: "run-1", Termination: "drained", Rounds: 5}, nil
	})
	defer hub.Close()
	conn := dial(t, hub)

	require.NoError(t, conn.WriteJSON(Request{Event: EventStartAgents, Goal: "explain tidal locking"}))

	msg := read(t, conn)
	assert.Equal(t, EventNewMessage, msg.Event)
	assert.Contains(t, string(msg.Data), `"content":"explain tidal locking"`)

	done := read(t, conn)
	assert.Equal(t, EventRunFinished, done.Event)
	assert.JSONEq(t, `{"run_id":"run-1","termination":"drained","rounds":5}`, string(done.Data))
}

func TestHub_UnknownEvent(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	conn := dial(t, hub)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"dance"}`)))
	f := read(t, conn)
	assert.Equal(t, EventError, f.Event)
	assert.Contains(t, string(f.Data), "unknown event: dance")
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	conn := dial(t, hub)

	hub.Close()
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
