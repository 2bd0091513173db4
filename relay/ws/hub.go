// Package ws relays session traffic to browser clients over websockets and
// accepts run requests from them.
//
// Server to client events:
//
//	{"event":"new_message","data":{"id":"...","from":"Planner","to":"Researcher_1","content":"...","timestamp":"..."}}
//	{"event":"run_finished","data":{"run_id":"...","termination":"drained","rounds":5}}
//	{"event":"error","data":{"error":"No goal provided."}}
//
// Client to server events:
//
//	{"event":"start_agents","goal":"explain tidal locking"}
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// Event names.
const (
	EventNewMessage  = "new_message"
	EventRunFinished = "run_finished"
	EventError       = "error"
	EventStartAgents = "start_agents"
)

// ErrNoGoal is the text sent to clients requesting a run without a goal.
const ErrNoGoal = "No goal provided."

// ErrShuttingDown is the text sent to clients requesting a run after the
// hub started closing.
const ErrShuttingDown = "server is shutting down"

// Event is the envelope of every server to client frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Request is a client to server frame.
type Request struct {
	Event string `json:"event"`
	Goal  string `json:"goal"`
}

// MessageData is the payload of a new_message event.
type MessageData struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RunSummary is the payload of a run_finished event.
type RunSummary struct {
	RunID       string `json:"run_id"`
	Termination string `json:"termination"`
	Rounds      int    `json:"rounds"`
}

// Starter runs a session for goal and blocks until it finished.
type Starter func(ctx context.Context, goal string) (RunSummary, error)

// Options configures a Hub.
type Options struct {
	// CheckOrigin is handed to the websocket upgrader. Defaults to allowing
	// every origin.
	CheckOrigin func(r *http.Request) bool
	// SendBuffer is the number of frames queued per client before the
	// client is considered too slow and disconnected.
	SendBuffer int
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	Logger       logging.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks connected clients, broadcasts every observed message and starts
// runs on request. It implements core.Observer and http.Handler.
type Hub struct {
	upgrader     websocket.Upgrader
	start        Starter
	sendBuffer   int
	writeTimeout time.Duration
	logger       logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub. start may be nil, in which case start_agents
// requests are answered with an error event.
func NewHub(start Starter, optFns ...func(o *Options)) *Hub {
	opts := Options{
		CheckOrigin:  func(*http.Request) bool { return true },
		SendBuffer:   64,
		WriteTimeout: 10 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		upgrader:     websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		start:        start,
		sendBuffer:   opts.SendBuffer,
		writeTimeout: opts.WriteTimeout,
		logger:       logging.OrNoOp(opts.Logger),
		ctx:          ctx,
		cancel:       cancel,
		clients:      make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Observe implements core.Observer by broadcasting a new_message event.
func (h *Hub) Observe(msg core.Message) {
	h.Broadcast(Event{Event: EventNewMessage, Data: MessageData{
		ID:        msg.ID,
		From:      msg.From.String(),
		To:        msg.To.String(),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}})
}

// Broadcast sends evt to every connected client. Clients whose buffer is
// full are disconnected.
func (h *Hub) Broadcast(evt Event) {
	frame, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", evt.Event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueueLocked(c, frame)
	}
}

func (h *Hub) enqueueLocked(c *client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.logger.Warn("Dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) sendTo(c *client, evt Event) {
	frame, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", evt.Event, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.enqueueLocked(c, frame)
	}
}

// ServeHTTP upgrades the connection and serves the client until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Websocket client connected", "remote", conn.RemoteAddr().String())

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.logger.Debug("Websocket write failed", "error", err)
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Websocket read failed", "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			h.sendTo(c, errorEvent("invalid request"))
			continue
		}

		switch req.Event {
		case EventStartAgents:
			h.handleStart(c, req.Goal)
		default:
			h.sendTo(c, errorEvent("unknown event: "+req.Event))
		}
	}
}

func (h *Hub) handleStart(c *client, goal string) {
	if strings.TrimSpace(goal) == "" {
		h.sendTo(c, errorEvent(ErrNoGoal))
		return
	}
	if h.start == nil {
		h.sendTo(c, errorEvent("runs are disabled"))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.sendTo(c, errorEvent(ErrShuttingDown))
		return
	}
	h.runs.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.runs.Done()
		summary, err := h.start(h.ctx, goal)
		if err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Warn("Run failed", "error", err)
			h.sendTo(c, errorEvent(err.Error()))
			return
		}
		h.Broadcast(Event{Event: EventRunFinished, Data: summary})
	}()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// Close cancels runs started by clients, waits for them and disconnects
// every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.runs.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func errorEvent(text string) Event {
	return Event{Event: EventError, Data: map[string]string{"error": text}}
}
