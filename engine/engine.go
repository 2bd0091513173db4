package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/mailbox"
	"github.com/hupe1980/roundtable/memory"
	"github.com/hupe1980/roundtable/session"
)

// ErrAlreadyRun is returned when Run is called a second time on an engine.
// Every engine owns exactly one session; create a new engine per run.
var ErrAlreadyRun = errors.New("engine already ran a session")

// Termination names the reason the dispatch loop stopped.
type Termination string

const (
	// TerminationDrained means the mailbox was empty at a round boundary.
	TerminationDrained Termination = "drained"
	// TerminationBudget means the round budget was used up.
	TerminationBudget Termination = "budget"
	// TerminationStalled means messages were pending but none was addressed
	// to a registered agent, so every further round would be a no-op.
	TerminationStalled Termination = "stalled"
	// TerminationCancelled means the run context was cancelled.
	TerminationCancelled Termination = "cancelled"
)

// PersistenceMode selects when the memory snapshot is written.
type PersistenceMode string

const (
	// PersistAtRunEnd writes the snapshot once, after the loop terminated.
	PersistAtRunEnd PersistenceMode = "run_end"
	// PersistEveryMutation additionally writes the snapshot after every
	// memory append of any agent.
	PersistEveryMutation PersistenceMode = "every_mutation"
)

// ParsePersistenceMode converts a configuration string into a mode. The
// empty string selects PersistAtRunEnd.
func ParsePersistenceMode(s string) (PersistenceMode, error) {
	switch PersistenceMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", PersistAtRunEnd:
		return PersistAtRunEnd, nil
	case PersistEveryMutation:
		return PersistEveryMutation, nil
	default:
		return "", fmt.Errorf("unknown persistence mode %q", s)
	}
}

// Config defines tuning parameters for the dispatch loop.
//
// Example:
//
//	cfg := Config{
//	    MaxRounds:              30,
//	    Persistence:            PersistEveryMutation,
//	    ConcurrentReactions:    true,
//	    MaxConcurrentReactions: 8,
//	}
type Config struct {
	// MaxRounds bounds the number of executed rounds. Reaching it is a
	// normal termination (TerminationBudget).
	MaxRounds int

	// Persistence selects when the memory snapshot is written.
	Persistence PersistenceMode

	// ConcurrentReactions lets an agent react to the messages delivered in
	// one visit concurrently. Outputs are still sent in delivery order once
	// all reactions of the visit finished. Agents must then tolerate
	// concurrent React calls.
	ConcurrentReactions bool

	// MaxConcurrentReactions bounds the reactions in flight per visit when
	// ConcurrentReactions is set. Zero or less means unbounded.
	MaxConcurrentReactions int

	// RoundInterval pauses between two rounds. Zero disables pacing.
	RoundInterval time.Duration
}

// DefaultConfig provides the default loop configuration: a budget of 20
// rounds, snapshot at run end, sequential reactions and no pacing.
var DefaultConfig = Config{
	MaxRounds:              20,
	Persistence:            PersistAtRunEnd,
	MaxConcurrentReactions: 4,
}

// PlannerFactory builds the session planner. It receives the configuration
// for core.PlannerID and the engine as the spawner for stage agents.
type PlannerFactory func(cfg core.AgentConfig, spawner core.Spawner) (core.Agent, error)

// Options configures an Engine instance using the functional options pattern.
//
// Every service has an in-memory default, so New() with a Planner and a
// Factory is enough for tests and the CLI.
type Options struct {
	// Config contains the loop parameters. Defaults to DefaultConfig.
	Config Config

	// MemoryStore loads the snapshot before the run and saves it after.
	// Defaults to memory.NewInMemoryStore.
	MemoryStore core.MemoryStore

	// SessionStore records the run transcript. Defaults to
	// session.NewInMemoryStore.
	SessionStore core.SessionStore

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Observers are notified of every sent message.
	Observers []core.Observer

	// IDs hands out agent identifiers. Share one sequence between engines to
	// keep identifiers unique across runs. Defaults to a fresh sequence.
	IDs *core.IDSequence

	// Factory builds agents for spawned roles.
	Factory core.AgentFactory

	// Planner builds the planner when none was registered explicitly.
	Planner PlannerFactory

	// Hooks are registered with the engine's hook manager.
	Hooks []Hook

	// RunID identifies the session. Defaults to a random UUID.
	RunID string

	// PersistLock serializes snapshot writes. Engines sharing a MemoryStore
	// must share the lock, otherwise concurrent runs can drop each other's
	// agents. Defaults to a lock private to the engine.
	PersistLock *sync.Mutex
}

// Result summarizes a finished run.
type Result struct {
	RunID           string           `json:"run_id"`
	Goal            string           `json:"goal"`
	Rounds          int              `json:"rounds"`
	Termination     Termination      `json:"termination"`
	Delivered       int              `json:"delivered"`
	Sent            int              `json:"sent"`
	Errors          int              `json:"errors"`
	PersistFailures int              `json:"persist_failures"`
	Snapshot        core.Snapshot    `json:"snapshot"`
	Agents          []core.AgentInfo `json:"agents"`
}

// Engine drives one session: it owns the mailbox, the ordered agent registry
// and the loaded memory snapshot, and executes discrete rounds until the
// mailbox drains, the round budget is used up, no pending message can ever
// be delivered or the context is cancelled.
//
// Round semantics:
//   - the registry order is captured at round start; agents spawned during a
//     round are first visited in the next round
//   - each visited agent receives all messages pending for it at the moment
//     of its visit and reacts to them in delivery order
//   - reaction outputs are sent immediately, so agents later in the order
//     may receive them within the same round
//
// Concurrency Model:
//   - registry access is guarded by an RWMutex; Spawn may be called from
//     within React
//   - snapshot writes are serialized, so PersistEveryMutation is safe with
//     concurrent reactions
//   - Run may be called once per engine
type Engine struct {
	config   Config
	memStore core.MemoryStore
	sessions core.SessionStore
	logger   logging.Logger
	hooks    *HookManager
	ids      *core.IDSequence
	factory  core.AgentFactory
	planner  PlannerFactory
	runID    string
	mailbox  *mailbox.Mailbox

	mu     sync.RWMutex
	agents map[core.AgentID]core.Agent
	order  []core.AgentID

	// loaded is the snapshot read at run start; writes overlay agent memory
	// onto it so entries of agents absent from this run are kept.
	loaded core.Snapshot

	persistMu       *sync.Mutex
	persistFailures atomic.Int64

	started atomic.Bool
	round   atomic.Int64
}

// New creates an engine with sensible defaults and optional configuration.
//
// Example:
//
//	eng := New(func(o *Options) {
//	    o.Factory = agent.NewFactory(gw, nil)
//	    o.Planner = agent.NewPlannerFactory()
//	})
//	res, err := eng.Run(ctx, "explain tidal locking")
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:       DefaultConfig,
		MemoryStore:  memory.NewInMemoryStore(),
		SessionStore: session.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config.MaxRounds <= 0 {
		opts.Config.MaxRounds = DefaultConfig.MaxRounds
	}
	if opts.Config.Persistence == "" {
		opts.Config.Persistence = PersistAtRunEnd
	}
	if opts.IDs == nil {
		opts.IDs = core.NewIDSequence()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.PersistLock == nil {
		opts.PersistLock = &sync.Mutex{}
	}

	logger := logging.OrNoOp(opts.Logger)
	if rl, ok := logger.(*logging.RoundtableLogger); ok {
		logger = rl.WithComponent("engine").WithRun(opts.RunID)
	}

	hooks := NewHookManager()
	hooks.Register(opts.Hooks...)

	return &Engine{
		config:   opts.Config,
		memStore: opts.MemoryStore,
		sessions: opts.SessionStore,
		logger:   logger,
		hooks:    hooks,
		ids:      opts.IDs,
		factory:  opts.Factory,
		planner:  opts.Planner,
		runID:    opts.RunID,
		mailbox: mailbox.New(func(o *mailbox.Options) {
			o.Observers = opts.Observers
			o.Logger = logger
		}),
		agents:    make(map[core.AgentID]core.Agent),
		loaded:    core.Snapshot{},
		persistMu: opts.PersistLock,
	}
}

// RunID returns the session identifier.
func (e *Engine) RunID() string { return e.runID }

// Round returns the number of the round in progress (or the last one).
func (e *Engine) Round() int { return int(e.round.Load()) }

// Mailbox exposes the session mailbox, mainly for inspection in tests.
func (e *Engine) Mailbox() *mailbox.Mailbox { return e.mailbox }

// Subscribe attaches an observer notified on every subsequent send.
func (e *Engine) Subscribe(obs core.Observer) { e.mailbox.Subscribe(obs) }

// AddHook registers additional hooks.
func (e *Engine) AddHook(hooks ...Hook) { e.hooks.Register(hooks...) }

// Register appends an agent to the ordered registry. Identifiers are unique
// per session; registering an id twice returns core.ErrDuplicateAgent.
func (e *Engine) Register(a core.Agent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := a.ID()
	if _, exists := e.agents[id]; exists {
		return fmt.Errorf("register %s: %w", id, core.ErrDuplicateAgent)
	}
	e.agents[id] = a
	e.order = append(e.order, id)
	return nil
}

// Agent returns a registered agent by id.
func (e *Engine) Agent(id core.AgentID) (core.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[id]
	return a, ok
}

// Agents lists registered agents in registry order.
func (e *Engine) Agents() []core.AgentInfo {
	agents := e.ordered()
	out := make([]core.AgentInfo, 0, len(agents))
	for _, a := range agents {
		out = append(out, core.AgentInfo{ID: a.ID(), Role: a.Role()})
	}
	return out
}

// AgentConfig builds the configuration for a new agent: its restored memory
// from the loaded snapshot and, in PersistEveryMutation mode, the hook that
// writes the snapshot after each memory append.
func (e *Engine) AgentConfig(id core.AgentID, role string) core.AgentConfig {
	e.mu.RLock()
	restored := append([]string(nil), e.loaded[id]...)
	e.mu.RUnlock()

	cfg := core.AgentConfig{ID: id, Role: role, Memory: restored}
	if e.config.Persistence == PersistEveryMutation {
		cfg.OnRemember = func(ctx context.Context) {
			e.persist(context.WithoutCancel(ctx))
		}
	}
	return cfg
}

// Spawn implements core.Spawner. It assigns the next identifier for role,
// builds the agent through the configured factory and registers it at the
// end of the registry order.
func (e *Engine) Spawn(ctx context.Context, role string) (core.AgentID, error) {
	if e.factory == nil {
		return "", fmt.Errorf("spawn %s: %w", role, core.ErrUnknownRole)
	}

	id := e.ids.Next(role)
	a, err := e.factory(e.AgentConfig(id, role))
	if err != nil {
		return "", fmt.Errorf("spawn %s: %w", role, err)
	}
	if err := e.Register(a); err != nil {
		return "", err
	}

	e.fire(ctx, &HookContext{Type: HookOnSpawn, Round: e.Round(), AgentID: a.ID(), Role: a.Role()})
	return a.ID(), nil
}

// Run executes the session for goal.
//
// An empty or whitespace-only goal is rejected with core.ErrEmptyGoal before
// anything is sent. Otherwise the memory snapshot is loaded (a failing load
// is logged and treated as empty), the planner is ensured, User -> Planner is
// seeded with the goal and rounds are executed until termination. The
// snapshot is written afterwards regardless of the termination reason.
//
// When ctx is cancelled the loop stops at the next round boundary and Run
// returns the partial result together with ctx.Err().
func (e *Engine) Run(ctx context.Context, goal string) (*Result, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, core.ErrEmptyGoal
	}
	if !e.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	e.loadSnapshot(ctx)

	if err := e.ensurePlanner(); err != nil {
		return nil, err
	}

	if _, err := e.sessions.Create(e.runID, goal); err != nil {
		e.logger.Warn("Failed to create session transcript", "run_id", e.runID, "error", err)
	}

	e.logger.Info("Run started", "run_id", e.runID, "goal", goal)

	res := &Result{RunID: e.runID, Goal: goal}
	e.send(core.UserID, core.PlannerID, goal)

	for {
		if ctx.Err() != nil {
			res.Termination = TerminationCancelled
			break
		}
		if e.mailbox.Empty() {
			res.Termination = TerminationDrained
			break
		}
		if res.Rounds >= e.config.MaxRounds {
			res.Termination = TerminationBudget
			break
		}
		if !e.deliverable() {
			res.Termination = TerminationStalled
			break
		}

		if res.Rounds > 0 && e.config.RoundInterval > 0 {
			if !sleep(ctx, e.config.RoundInterval) {
				res.Termination = TerminationCancelled
				break
			}
		}

		res.Rounds++
		delivered, sent, failed := e.runRound(ctx, res.Rounds)
		res.Delivered += delivered
		res.Sent += sent
		res.Errors += failed
	}

	e.persist(context.WithoutCancel(ctx))
	e.finish(ctx, res)

	if res.Termination == TerminationCancelled {
		return res, ctx.Err()
	}
	return res, nil
}

func (e *Engine) loadSnapshot(ctx context.Context) {
	snap, err := e.memStore.Load(ctx)
	if err != nil {
		e.logger.Error("Failed to load memory snapshot, starting empty", "run_id", e.runID, "error", err)
		snap = core.Snapshot{}
	}
	if snap == nil {
		snap = core.Snapshot{}
	}

	e.mu.Lock()
	e.loaded = snap
	e.mu.Unlock()
}

func (e *Engine) ensurePlanner() error {
	if _, ok := e.Agent(core.PlannerID); ok {
		return nil
	}
	if e.planner == nil {
		return core.ErrNoPlanner
	}

	p, err := e.planner(e.AgentConfig(core.PlannerID, "Planner"), e)
	if err != nil {
		return fmt.Errorf("create planner: %w", err)
	}
	if p.ID() != core.PlannerID {
		return fmt.Errorf("planner registered as %s: %w", p.ID(), core.ErrNoPlanner)
	}
	return e.Register(p)
}

// runRound visits every agent of the registry snapshot once.
func (e *Engine) runRound(ctx context.Context, round int) (delivered, sent, failed int) {
	e.round.Store(int64(round))
	start := time.Now()

	e.fire(ctx, &HookContext{Type: HookBeforeRound, Round: round})

	for _, a := range e.ordered() {
		msgs := e.mailbox.DeliverAllFor(a.ID())
		if len(msgs) == 0 {
			continue
		}
		delivered += len(msgs)

		var s, f int
		if e.config.ConcurrentReactions && len(msgs) > 1 {
			s, f = e.visitConcurrently(ctx, round, a, msgs)
		} else {
			s, f = e.visit(ctx, round, a, msgs)
		}
		sent += s
		failed += f
	}

	e.fire(ctx, &HookContext{
		Type:      HookAfterRound,
		Round:     round,
		Delivered: delivered,
		Sent:      sent,
		Duration:  time.Since(start),
	})
	return delivered, sent, failed
}

func (e *Engine) visit(ctx context.Context, round int, a core.Agent, msgs []core.Message) (sent, failed int) {
	for _, msg := range msgs {
		outs, err := e.react(ctx, a, msg)
		if err != nil {
			e.reactionFailed(ctx, round, a, err)
			failed++
			continue
		}
		sent += e.sendAll(a.ID(), outs)
	}
	return sent, failed
}

func (e *Engine) visitConcurrently(ctx context.Context, round int, a core.Agent, msgs []core.Message) (sent, failed int) {
	outs := make([][]core.Outbound, len(msgs))
	errs := make([]error, len(msgs))

	var g errgroup.Group
	if e.config.MaxConcurrentReactions > 0 {
		g.SetLimit(e.config.MaxConcurrentReactions)
	}
	for i, msg := range msgs {
		g.Go(func() error {
			outs[i], errs[i] = e.react(ctx, a, msg)
			return nil
		})
	}
	_ = g.Wait()

	for i := range msgs {
		if errs[i] != nil {
			e.reactionFailed(ctx, round, a, errs[i])
			failed++
			continue
		}
		sent += e.sendAll(a.ID(), outs[i])
	}
	return sent, failed
}

func (e *Engine) react(ctx context.Context, a core.Agent, msg core.Message) (outs []core.Outbound, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %s panicked: %v", a.ID(), r)
		}
	}()
	return a.React(ctx, msg)
}

func (e *Engine) reactionFailed(ctx context.Context, round int, a core.Agent, err error) {
	e.logger.Warn("Agent reaction failed", "run_id", e.runID, "round", round, "agent", a.ID(), "error", err)
	e.fire(ctx, &HookContext{Type: HookOnReactionError, Round: round, AgentID: a.ID(), Role: a.Role(), Err: err})
}

func (e *Engine) sendAll(from core.AgentID, outs []core.Outbound) int {
	for _, out := range outs {
		e.send(from, out.To, out.Content)
	}
	return len(outs)
}

func (e *Engine) send(from, to core.AgentID, content string) {
	msg := e.mailbox.Send(from, to, content)
	if err := e.sessions.AppendMessage(e.runID, msg); err != nil {
		e.logger.Debug("Failed to record message in transcript", "run_id", e.runID, "error", err)
	}
}

// deliverable reports whether any pending message is addressed to a
// registered agent.
func (e *Engine) deliverable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, to := range e.mailbox.Recipients() {
		if _, ok := e.agents[to]; ok {
			return true
		}
	}
	return false
}

func (e *Engine) ordered() []core.Agent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]core.Agent, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.agents[id])
	}
	return out
}

// Snapshot returns the loaded snapshot overlaid with the current memory of
// every registered agent.
func (e *Engine) Snapshot() core.Snapshot {
	e.mu.RLock()
	base := e.loaded
	e.mu.RUnlock()
	return e.overlay(base)
}

// overlay returns a copy of base with the memory of every registered agent
// written over it.
func (e *Engine) overlay(base core.Snapshot) core.Snapshot {
	agents := e.ordered()

	e.mu.RLock()
	snap := base.Clone()
	e.mu.RUnlock()

	for _, a := range agents {
		snap[a.ID()] = a.Memory()
	}
	return snap
}

// persist re-reads the store under the persist lock and writes this run's
// agents over it, so agents saved by other runs since the start survive.
func (e *Engine) persist(ctx context.Context) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	current, err := e.memStore.Load(ctx)
	if err != nil {
		e.logger.Warn("Failed to reload memory snapshot before save", "run_id", e.runID, "error", err)
		e.mu.RLock()
		current = e.loaded
		e.mu.RUnlock()
	}

	snap := e.overlay(current)
	start := time.Now()
	err = e.memStore.Save(ctx, snap)
	logging.LogPersistence(e.logger, len(snap), time.Since(start), err)
	if err != nil {
		e.persistFailures.Add(1)
	}
}

func (e *Engine) finish(ctx context.Context, res *Result) {
	res.Snapshot = e.Snapshot()
	res.Agents = e.Agents()
	res.PersistFailures = int(e.persistFailures.Load())

	status := core.SessionFinished
	if res.Termination == TerminationCancelled {
		status = core.SessionCancelled
	}
	if err := e.sessions.Finish(e.runID, status, string(res.Termination), res.Rounds); err != nil {
		e.logger.Debug("Failed to finish session transcript", "run_id", e.runID, "error", err)
	}

	for _, a := range e.ordered() {
		e.logger.Debug("Agent memory", "run_id", e.runID, "agent", a.ID(), "role", a.Role(), "entries", a.Memory())
	}
	e.logger.Info("Run finished",
		"run_id", e.runID,
		"rounds", res.Rounds,
		"termination", string(res.Termination),
		"delivered", res.Delivered,
		"sent", res.Sent,
		"errors", res.Errors,
	)

	e.fire(context.WithoutCancel(ctx), &HookContext{Type: HookOnTerminate, Round: res.Rounds, Termination: res.Termination})
}

func (e *Engine) fire(ctx context.Context, hc *HookContext) {
	hc.RunID = e.runID
	if err := e.hooks.Execute(ctx, hc); err != nil {
		e.logger.Warn("Hook failed", "run_id", e.runID, "hook", string(hc.Type), "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
