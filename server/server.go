// Package server exposes a Roundtable over HTTP: a small JSON API to start
// and inspect runs, the websocket relay for live transcripts, health and
// Prometheus metrics.
//
// Routes:
//
//	POST /api/runs            {"goal":"..."} starts a run (?wait=true blocks until it finished)
//	GET  /api/runs            lists runs started by this server
//	GET  /api/runs/{id}       returns a run with its transcript
//	GET  /api/runs/{id}/artifacts[/{name}]  lists or downloads documents of a finished run
//	GET  /ws                  websocket relay (see package relay/ws)
//	GET  /health              liveness
//	GET  /metrics             Prometheus scraping
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/roundtable"
	"github.com/hupe1980/roundtable/artifact"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/engine"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/relay/ws"
)

// maxBodySize bounds request bodies of the JSON API.
const maxBodySize = 64 * 1024

// RunStatus is the lifecycle state of a run tracked by the server.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusFinished  RunStatus = "finished"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
)

// RunInfo summarizes a run started through the server.
type RunInfo struct {
	ID          string     `json:"run_id"`
	Goal        string     `json:"goal"`
	Status      RunStatus  `json:"status"`
	Termination string     `json:"termination,omitempty"`
	Rounds      int        `json:"rounds"`
	Final       string     `json:"final,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// RunDetail is a run together with its transcript and, once finished, the
// agents and their memory.
type RunDetail struct {
	RunInfo
	Messages []core.Message   `json:"messages"`
	Agents   []core.AgentInfo `json:"agents,omitempty"`
	Memory   core.Snapshot    `json:"memory,omitempty"`
}

// Options configures a Server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// ReadHeaderTimeout bounds reading request headers. There is no write
	// timeout because websocket connections and waiting runs are long-lived.
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	Logger            logging.Logger
}

// Server serves the API for one Roundtable.
type Server struct {
	rt     *roundtable.Roundtable
	hub    *ws.Hub
	logger logging.Logger
	router chi.Router
	http   *http.Server

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	// lifeMu guards closed and every wg.Add, so no run is added once
	// Shutdown waits on wg.
	lifeMu sync.Mutex
	closed bool
	wg     sync.WaitGroup

	mu      sync.RWMutex
	runs    map[string]*RunInfo
	details map[string]*roundtable.Result
}

// New creates a server for rt and subscribes its websocket hub to every run.
func New(rt *roundtable.Roundtable, optFns ...func(o *Options)) (*Server, error) {
	opts := Options{
		Addr:              ":8080",
		AllowedOrigins:    []string{"*"},
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if rt == nil {
		return nil, errors.New("server: roundtable is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		rt:      rt,
		logger:  logging.OrNoOp(opts.Logger),
		ctx:     ctx,
		cancel:  cancel,
		runs:    make(map[string]*RunInfo),
		details: make(map[string]*roundtable.Result),
	}

	s.hub = ws.NewHub(s.startFromHub, func(o *ws.Options) {
		o.CheckOrigin = checkOrigin(opts.AllowedOrigins)
		o.Logger = s.logger
	})
	s.unsubscribe = rt.Subscribe(s.hub)
	s.router = s.routes(opts.AllowedOrigins)
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes(origins []string) chi.Router {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(recordMetrics)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.health)
	r.Handle("/ws", s.hub)

	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.createRun)
		r.Get("/", s.listRuns)
		r.Get("/{id}", s.getRun)
		r.Get("/{id}/artifacts", s.listArtifacts)
		r.Get("/{id}/artifacts/{name}", s.getArtifact)
	})

	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub { return s.hub }

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown cancels running sessions, disconnects websocket clients and
// stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lifeMu.Lock()
	s.closed = true
	s.lifeMu.Unlock()

	s.cancel()
	s.hub.Close()
	s.unsubscribe()

	err := s.http.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// JSON sends a JSON response with the given status code.
func (s *Server) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("Failed to encode response", "error", err)
	}
}

// Error sends a JSON error response with the given status code.
func (s *Server) Error(w http.ResponseWriter, status int, message string) {
	s.JSON(w, status, map[string]string{"error": message})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Runs      int    `json:"runs_active"`
	Clients   int    `json:"ws_clients"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	active := 0
	s.mu.RLock()
	for _, info := range s.runs {
		if info.Status == StatusRunning {
			active++
		}
	}
	s.mu.RUnlock()

	s.JSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Runs:      active,
		Clients:   s.hub.Clients(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type createRunRequest struct {
	Goal string `json:"goal"`
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		s.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		s.Error(w, http.StatusBadRequest, ws.ErrNoGoal)
		return
	}

	if !s.begin() {
		s.Error(w, http.StatusServiceUnavailable, ws.ErrShuttingDown)
		return
	}

	run, err := s.rt.Prepare(req.Goal)
	if err != nil {
		s.wg.Done()
		s.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	s.track(run)

	if r.URL.Query().Get("wait") == "true" {
		defer s.wg.Done()
		if _, err := s.execute(r.Context(), run); err != nil && !errors.Is(err, context.Canceled) {
			s.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		detail, _ := s.detail(run.ID())
		s.JSON(w, http.StatusOK, detail)
		return
	}

	go func() {
		defer s.wg.Done()
		res, err := s.execute(s.ctx, run)
		if res != nil {
			s.hub.Broadcast(ws.Event{Event: ws.EventRunFinished, Data: summary(res)})
		} else if err != nil {
			s.logger.Warn("Run failed", "run_id", run.ID(), "error", err)
		}
	}()

	s.JSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID(), "status": string(StatusRunning)})
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	out := make([]RunInfo, 0, len(s.runs))
	for _, info := range s.runs {
		out = append(out, *info)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	s.JSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	detail, ok := s.detail(chi.URLParam(r, "id"))
	if !ok {
		s.Error(w, http.StatusNotFound, "run not found")
		return
	}
	s.JSON(w, http.StatusOK, detail)
}

func (s *Server) listArtifacts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.known(id) {
		s.Error(w, http.StatusNotFound, "run not found")
		return
	}
	names, err := s.rt.Artifacts().List(id)
	if err != nil {
		s.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.JSON(w, http.StatusOK, map[string]any{"artifacts": names})
}

func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	id, name := chi.URLParam(r, "id"), chi.URLParam(r, "name")
	if !s.known(id) {
		s.Error(w, http.StatusNotFound, "run not found")
		return
	}
	data, err := s.rt.Artifacts().Get(id, name)
	switch {
	case errors.Is(err, artifact.ErrNotFound), errors.Is(err, artifact.ErrInvalidName):
		s.Error(w, http.StatusNotFound, "artifact not found")
		return
	case err != nil:
		s.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := "text/plain; charset=utf-8"
	if strings.HasSuffix(name, ".json") {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) known(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.runs[id]
	return ok
}

// begin registers a run with the shutdown wait group. It reports false once
// Shutdown started.
func (s *Server) begin() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// startFromHub runs a session requested by a websocket client.
func (s *Server) startFromHub(ctx context.Context, goal string) (ws.RunSummary, error) {
	if !s.begin() {
		return ws.RunSummary{}, errors.New(ws.ErrShuttingDown)
	}
	defer s.wg.Done()

	run, err := s.rt.Prepare(goal)
	if err != nil {
		return ws.RunSummary{}, err
	}
	s.track(run)

	res, err := s.execute(ctx, run)
	if res == nil {
		return ws.RunSummary{}, err
	}
	return summary(res), err
}

func (s *Server) track(run *roundtable.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID()] = &RunInfo{
		ID:        run.ID(),
		Goal:      run.Goal(),
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
}

func (s *Server) execute(ctx context.Context, run *roundtable.Run) (*roundtable.Result, error) {
	res, err := run.Execute(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	info := s.runs[run.ID()]
	now := time.Now()
	info.FinishedAt = &now

	switch {
	case res == nil:
		info.Status = StatusFailed
		info.Error = err.Error()
		return nil, err
	case res.Termination == engine.TerminationCancelled:
		info.Status = StatusCancelled
	default:
		info.Status = StatusFinished
	}
	info.Termination = string(res.Termination)
	info.Rounds = res.Rounds
	info.Final = res.Final
	s.details[run.ID()] = res
	return res, err
}

func (s *Server) detail(id string) (RunDetail, bool) {
	s.mu.RLock()
	info, ok := s.runs[id]
	var (
		cp  RunInfo
		res *roundtable.Result
	)
	if ok {
		cp = *info
		res = s.details[id]
	}
	s.mu.RUnlock()
	if !ok {
		return RunDetail{}, false
	}

	detail := RunDetail{RunInfo: cp, Messages: []core.Message{}}
	if res != nil {
		detail.Messages = res.Transcript
		detail.Agents = res.Agents
		detail.Memory = res.Snapshot
	} else if sess, err := s.rt.Sessions().Get(id); err == nil {
		detail.Messages = sess.GetMessages()
	}
	return detail, true
}

func summary(res *roundtable.Result) ws.RunSummary {
	return ws.RunSummary{RunID: res.RunID, Termination: string(res.Termination), Rounds: res.Rounds}
}

// checkOrigin allows requests without Origin header and those whose origin
// is listed. A "*" entry allows every origin.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
