package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// HookType defines the lifecycle points of a run where hooks are executed.
//
// Hooks provide a way to observe the dispatch loop without modifying it.
// Metrics collection and structured run logging are both built on them.
//
// Available hook types:
//   - BeforeRound/AfterRound: around a single round of the dispatch loop
//   - OnSpawn: after an agent was created and registered at runtime
//   - OnReactionError: when an agent's React call failed or panicked
//   - OnTerminate: once, after the loop ended and memory was persisted
type HookType string

const (
	// HookBeforeRound is triggered after the termination checks passed and
	// before any agent of the round is visited.
	HookBeforeRound HookType = "before_round"

	// HookAfterRound is triggered once every agent of the round was visited.
	// Delivered, Sent and Duration describe the finished round.
	HookAfterRound HookType = "after_round"

	// HookOnSpawn is triggered after a spawned agent was registered.
	HookOnSpawn HookType = "on_spawn"

	// HookOnReactionError is triggered for every failed reaction. Err holds
	// the failure.
	HookOnReactionError HookType = "on_reaction_error"

	// HookOnTerminate is triggered once per run with the termination reason.
	HookOnTerminate HookType = "on_terminate"
)

// HookContext carries the information available at a hook point. Fields
// that do not apply to a hook type are left at their zero value.
type HookContext struct {
	RunID       string
	Type        HookType
	Round       int
	AgentID     core.AgentID
	Role        string
	Delivered   int
	Sent        int
	Duration    time.Duration
	Err         error
	Termination Termination
}

// Hook is a run lifecycle observer.
//
// Hooks run synchronously on the dispatch goroutine and should return
// promptly. A returned error is logged by the engine; it never ends the run.
type Hook interface {
	// Type returns the hook point this implementation handles.
	Type() HookType

	// Execute performs the hook logic.
	Execute(ctx context.Context, hc *HookContext) error
}

// FunctionHook wraps a function as a hook implementation.
//
// Example:
//
//	spawned := NewFunctionHook(
//	    HookOnSpawn,
//	    func(ctx context.Context, hc *HookContext) error {
//	        log.Printf("spawned %s as %s", hc.AgentID, hc.Role)
//	        return nil
//	    },
//	)
type FunctionHook struct {
	hookType HookType
	fn       func(ctx context.Context, hc *HookContext) error
}

// NewFunctionHook creates a new function-based hook.
func NewFunctionHook(hookType HookType, fn func(ctx context.Context, hc *HookContext) error) *FunctionHook {
	return &FunctionHook{
		hookType: hookType,
		fn:       fn,
	}
}

// Type implements Hook.
func (h *FunctionHook) Type() HookType {
	return h.hookType
}

// Execute implements Hook.
func (h *FunctionHook) Execute(ctx context.Context, hc *HookContext) error {
	return h.fn(ctx, hc)
}

// HookManager routes hook contexts to the hooks registered for their type,
// in registration order.
type HookManager struct {
	mu    sync.RWMutex
	hooks map[HookType][]Hook
}

// NewHookManager creates an empty hook manager.
func NewHookManager() *HookManager {
	return &HookManager{
		hooks: make(map[HookType][]Hook),
	}
}

// Register adds a hook for its declared type.
func (hm *HookManager) Register(hooks ...Hook) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	for _, h := range hooks {
		hm.hooks[h.Type()] = append(hm.hooks[h.Type()], h)
	}
}

// Execute runs every hook registered for hc.Type. It stops at and returns
// the first error.
func (hm *HookManager) Execute(ctx context.Context, hc *HookContext) error {
	hm.mu.RLock()
	hooks := hm.hooks[hc.Type]
	hm.mu.RUnlock()

	for _, h := range hooks {
		if err := h.Execute(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

// LoggingHook writes a structured log line for a hook point.
type LoggingHook struct {
	hookType HookType
	logger   logging.Logger
}

// NewLoggingHook creates a logging hook for hookType.
func NewLoggingHook(hookType HookType, logger logging.Logger) *LoggingHook {
	return &LoggingHook{
		hookType: hookType,
		logger:   logging.OrNoOp(logger),
	}
}

// Type implements Hook.
func (h *LoggingHook) Type() HookType {
	return h.hookType
}

// Execute implements Hook.
func (h *LoggingHook) Execute(_ context.Context, hc *HookContext) error {
	switch hc.Type {
	case HookAfterRound:
		logging.LogRound(h.logger, hc.Round, hc.Delivered, hc.Sent, hc.Duration)
	case HookOnReactionError:
		h.logger.Warn("reaction failed", "run_id", hc.RunID, "round", hc.Round, "agent", hc.AgentID, "error", hc.Err)
	case HookOnSpawn:
		h.logger.Info("agent spawned", "run_id", hc.RunID, "round", hc.Round, "agent", hc.AgentID, "role", hc.Role)
	case HookOnTerminate:
		h.logger.Info("run terminated", "run_id", hc.RunID, "rounds", hc.Round, "termination", string(hc.Termination))
	default:
		h.logger.Debug(string(hc.Type), "run_id", hc.RunID, "round", hc.Round)
	}
	return nil
}

// LoggingHooks returns one logging hook per hook point.
func LoggingHooks(logger logging.Logger) []Hook {
	types := []HookType{HookBeforeRound, HookAfterRound, HookOnSpawn, HookOnReactionError, HookOnTerminate}
	hooks := make([]Hook, 0, len(types))
	for _, t := range types {
		hooks = append(hooks, NewLoggingHook(t, logger))
	}
	return hooks
}
