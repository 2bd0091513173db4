// Package roundtable provides a high-level façade over the engine, the agent
// variants and the generation gateway. Most applications interact with this
// package by:
//  1. Creating a Roundtable via New() with a model.Model (optionally
//     overriding the default in-memory stores)
//  2. Subscribing observers (websocket hub, speech relay, logging)
//  3. Calling RunAgents for every goal
//
// Every run gets its own engine, mailbox and call limiter. Runs share the
// memory store, the session store and the agent id sequence, so agent
// identifiers stay unique across runs. Unless Options.IDs says otherwise the
// sequence is process-wide.
package roundtable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/roundtable/agent"
	"github.com/hupe1980/roundtable/artifact"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/engine"
	"github.com/hupe1980/roundtable/gateway"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/memory"
	"github.com/hupe1980/roundtable/model"
	"github.com/hupe1980/roundtable/relay"
	"github.com/hupe1980/roundtable/session"
)

// Options configures the Roundtable instance.
type Options struct {
	// Engine configuration (round budget, persistence, concurrency, pacing)
	EngineConfig engine.Config

	// MaxGenerations caps model calls per run. Zero means unlimited.
	MaxGenerations int

	// Planner behavior
	Review bool
	Stages []agent.Stage
	Policy agent.OffTopicPolicy

	// Templates used for spawned roles (defaults to agent.DefaultTemplates)
	Templates agent.Templates

	// Stores (defaults to in-memory implementations if not provided)
	MemoryStore  core.MemoryStore
	SessionStore core.SessionStore

	// Artifacts receives the final document and the transcript of every
	// run (defaults to an in-memory store)
	Artifacts core.ArtifactStore

	// IDs hands out agent identifiers for every run. Defaults to
	// core.ProcessIDSequence, so identifiers are unique process-wide even
	// across several Roundtables.
	IDs *core.IDSequence

	// Observers and hooks attached to every run
	Observers []core.Observer
	Hooks     []engine.Hook

	// OnGenerate observes every model call, e.g. metrics.ObserveGeneration
	OnGenerate func(info model.Info, dur time.Duration, err error)

	// OutputPath receives the final document of every run when set
	OutputPath string

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Roundtable is the high-level façade running agent sessions for goals.
type Roundtable struct {
	opts    Options
	gateway *gateway.Gateway
	ids     *core.IDSequence
	fanout  *relay.Fanout

	// persistMu is shared by the engines of all runs so concurrent runs
	// merge their agents into the memory store instead of overwriting.
	persistMu sync.Mutex

	mu    sync.RWMutex
	hooks []engine.Hook
}

// New creates a Roundtable generating text with m. Any unset store is
// initialized with an in-memory implementation.
func New(m model.Model, optFns ...func(o *Options)) (*Roundtable, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Review:       true,
		Policy:       agent.DefaultOffTopicPolicy(),
		Templates:    agent.DefaultTemplates(),
		MemoryStore:  memory.NewInMemoryStore(),
		SessionStore: session.NewInMemoryStore(),
		Artifacts:    artifact.NewInMemoryStore(),
		IDs:          core.ProcessIDSequence(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if m == nil {
		return nil, errors.New("roundtable: model is required")
	}
	if opts.IDs == nil {
		opts.IDs = core.ProcessIDSequence()
	}
	for role, t := range opts.Templates {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("roundtable: template %s: %w", role, err)
		}
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	// fail fast on an invalid pipeline instead of on the first run
	if _, err := agent.NewPlannerAgent(core.AgentConfig{ID: core.PlannerID}, nopSpawner{}, plannerOptions(opts)); err != nil {
		return nil, fmt.Errorf("roundtable: %w", err)
	}

	gw := gateway.New(m, func(o *gateway.Options) {
		o.Logger = opts.Logger
		o.OnGenerate = opts.OnGenerate
	})

	fanout := relay.NewFanout()
	for _, obs := range opts.Observers {
		fanout.Add(obs)
	}

	return &Roundtable{
		opts:    opts,
		gateway: gw,
		ids:     opts.IDs,
		fanout:  fanout,
		hooks:   append([]engine.Hook(nil), opts.Hooks...),
	}, nil
}

func plannerOptions(opts Options) func(o *agent.PlannerOptions) {
	return func(o *agent.PlannerOptions) {
		o.Review = opts.Review
		o.Stages = opts.Stages
		o.Policy = opts.Policy
		o.Logger = opts.Logger
	}
}

type nopSpawner struct{}

func (nopSpawner) Spawn(context.Context, string) (core.AgentID, error) { return "", nil }

// Subscribe attaches an observer to every current and future run. The
// returned function detaches it.
func (r *Roundtable) Subscribe(obs core.Observer) (unsubscribe func()) {
	return r.fanout.Add(obs)
}

// AddHook attaches engine hooks to every future run.
func (r *Roundtable) AddHook(hooks ...engine.Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hooks...)
}

// Sessions returns the transcript store.
func (r *Roundtable) Sessions() core.SessionStore { return r.opts.SessionStore }

// Artifacts returns the store holding the documents of finished runs.
func (r *Roundtable) Artifacts() core.ArtifactStore { return r.opts.Artifacts }

// Artifact names written after every run.
const (
	FinalArtifact      = "final.txt"
	TranscriptArtifact = "transcript.json"
)

// Result is the outcome of one run.
type Result struct {
	*engine.Result
	// Final is the accepted reply of the planner's document stage (the
	// Writer by default). Runs that never got that far fall back to the
	// last reply the planner received.
	Final string `json:"final"`
	// Transcript lists every message of the run in send order.
	Transcript []core.Message `json:"transcript"`
}

// Run is a prepared session. Its id is known before it executes.
type Run struct {
	rt     *Roundtable
	engine *engine.Engine
	goal   string
}

// Prepare validates goal and builds the engine for one run. An empty goal
// is rejected with core.ErrEmptyGoal.
func (r *Roundtable) Prepare(goal string) (*Run, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, core.ErrEmptyGoal
	}

	gw := r.gateway
	if r.opts.MaxGenerations > 0 {
		gw = gw.WithLimiter(core.NewCallLimiter(r.opts.MaxGenerations))
	}

	r.mu.RLock()
	hooks := append([]engine.Hook(nil), r.hooks...)
	r.mu.RUnlock()

	eng := engine.New(func(o *engine.Options) {
		o.Config = r.opts.EngineConfig
		o.MemoryStore = r.opts.MemoryStore
		o.SessionStore = r.opts.SessionStore
		o.Logger = r.opts.Logger
		o.Observers = []core.Observer{r.fanout}
		o.IDs = r.ids
		o.PersistLock = &r.persistMu
		o.Hooks = hooks
		o.Factory = agent.NewFactory(gw, r.opts.Templates, func(ao *agent.GenericAgentOptions) {
			ao.Logger = r.opts.Logger
		})
		o.Planner = agent.NewPlannerFactory(plannerOptions(r.opts))
	})

	return &Run{rt: r, engine: eng, goal: goal}, nil
}

// ID returns the run id under which the transcript is stored.
func (run *Run) ID() string { return run.engine.RunID() }

// Goal returns the goal of the run.
func (run *Run) Goal() string { return run.goal }

// Execute runs the session to completion. On cancellation the partial
// result is returned together with the context error.
func (run *Run) Execute(ctx context.Context) (*Result, error) {
	res, err := run.engine.Run(ctx, run.goal)
	if res == nil {
		return nil, err
	}

	out := &Result{Result: res}
	if sess, serr := run.rt.opts.SessionStore.Get(res.RunID); serr == nil {
		out.Transcript = sess.GetMessages()
	}
	out.Final = run.document()
	if out.Final == "" {
		out.Final = finalDocument(out.Transcript)
	}

	run.rt.archive(out)

	if path := run.rt.opts.OutputPath; path != "" && out.Final != "" {
		if werr := writeOutput(path, out.Final); werr != nil {
			run.rt.opts.Logger.Warn("Failed to write final document", "path", path, "error", werr)
		}
	}
	return out, err
}

// document asks the planner for the reply of its document stage.
func (run *Run) document() string {
	a, ok := run.engine.Agent(core.PlannerID)
	if !ok {
		return ""
	}
	if d, ok := a.(interface{ Document() string }); ok {
		return d.Document()
	}
	return ""
}

func (r *Roundtable) archive(res *Result) {
	if r.opts.Artifacts == nil {
		return
	}
	if res.Final != "" {
		if err := r.opts.Artifacts.Save(res.RunID, FinalArtifact, []byte(res.Final)); err != nil {
			r.opts.Logger.Warn("Failed to archive final document", "run_id", res.RunID, "error", err)
		}
	}

	data, err := json.MarshalIndent(res.Transcript, "", "  ")
	if err == nil {
		err = r.opts.Artifacts.Save(res.RunID, TranscriptArtifact, data)
	}
	if err != nil {
		r.opts.Logger.Warn("Failed to archive transcript", "run_id", res.RunID, "error", err)
	}
}

// RunAgents prepares and executes a run for goal.
func (r *Roundtable) RunAgents(ctx context.Context, goal string) (*Result, error) {
	run, err := r.Prepare(goal)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx)
}

// finalDocument returns the content of the last message an agent sent to
// the planner.
func finalDocument(transcript []core.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.To == core.PlannerID && msg.From != core.UserID {
			return msg.Content
		}
	}
	return ""
}

func writeOutput(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content+"\n"), 0o644)
}
