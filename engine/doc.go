// Package engine implements the dispatch loop that drives a roundtable
// session.
//
// An Engine owns one session: the shared mailbox, the ordered registry of
// agents and the memory snapshot loaded at run start. Run seeds the goal as a
// message from core.UserID to core.PlannerID and then executes discrete
// rounds.
//
// # Rounds
//
// At the start of every round the loop checks, in order, for cancellation,
// an empty mailbox, the round budget and pending messages that no registered
// agent could ever receive. If none applies, it captures the registry order
// and visits each agent once: all messages pending for the agent are
// delivered and reacted to in delivery order, and every reaction output is
// sent immediately. Agents later in the order may therefore receive those
// messages in the same round, while agents spawned during the round are first
// visited in the next one.
//
// # Persistence
//
// The snapshot is written through the configured core.MemoryStore after the
// loop ends (PersistAtRunEnd) or additionally after every memory append
// (PersistEveryMutation). Write failures are logged and counted in the
// Result; they never fail a run.
//
// # Hooks
//
// Hooks observe the loop at before_round, after_round, on_spawn,
// on_reaction_error and on_terminate. The metrics package and LoggingHooks
// are built on them.
//
// # Usage
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Factory = agent.NewFactory(gw, nil)
//	    o.Planner = agent.NewPlannerFactory()
//	    o.MemoryStore = memory.NewFileStore("memory.json")
//	})
//	res, err := eng.Run(ctx, "explain tidal locking")
package engine
