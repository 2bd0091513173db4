package metrics

import (
	"context"
	"time"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/engine"
	"github.com/hupe1980/roundtable/model"
)

// Hooks returns engine hooks recording run, round, spawn and reaction error
// metrics.
func Hooks() []engine.Hook {
	return []engine.Hook{
		engine.NewFunctionHook(engine.HookBeforeRound, func(_ context.Context, hc *engine.HookContext) error {
			if hc.Round == 1 {
				RunsActive.Inc()
			}
			return nil
		}),
		engine.NewFunctionHook(engine.HookAfterRound, func(_ context.Context, hc *engine.HookContext) error {
			RoundsTotal.Inc()
			RoundDuration.Observe(hc.Duration.Seconds())
			return nil
		}),
		engine.NewFunctionHook(engine.HookOnSpawn, func(_ context.Context, hc *engine.HookContext) error {
			AgentsSpawned.WithLabelValues(hc.Role).Inc()
			return nil
		}),
		engine.NewFunctionHook(engine.HookOnReactionError, func(_ context.Context, hc *engine.HookContext) error {
			ReactionErrors.WithLabelValues(hc.Role).Inc()
			return nil
		}),
		engine.NewFunctionHook(engine.HookOnTerminate, func(_ context.Context, hc *engine.HookContext) error {
			if hc.Round > 0 {
				RunsActive.Dec()
			}
			RunsTotal.WithLabelValues(string(hc.Termination)).Inc()
			return nil
		}),
	}
}

// Observer counts every sent message.
func Observer() core.Observer {
	return core.ObserverFunc(func(core.Message) {
		MessagesSent.Inc()
	})
}

// ObserveGeneration records one model call. Its signature matches the
// gateway's OnGenerate callback.
func ObserveGeneration(info model.Info, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	Generations.WithLabelValues(info.Provider, info.Name, status).Inc()
	GenerationLatency.WithLabelValues(info.Provider).Observe(d.Seconds())
}
