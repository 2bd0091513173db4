package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/logging"
)

func TestHookManager_RoutesByType(t *testing.T) {
	hm := NewHookManager()

	var order []string
	hm.Register(
		NewFunctionHook(HookBeforeRound, func(context.Context, *HookContext) error {
			order = append(order, "before-1")
			return nil
		}),
		NewFunctionHook(HookAfterRound, func(context.Context, *HookContext) error {
			order = append(order, "after")
			return nil
		}),
		NewFunctionHook(HookBeforeRound, func(context.Context, *HookContext) error {
			order = append(order, "before-2")
			return nil
		}),
	)

	require.NoError(t, hm.Execute(context.Background(), &HookContext{Type: HookBeforeRound}))
	assert.Equal(t, []string{"before-1", "before-2"}, order)

	require.NoError(t, hm.Execute(context.Background(), &HookContext{Type: HookOnSpawn}))
	assert.Len(t, order, 2)
}

func TestHookManager_StopsAtFirstError(t *testing.T) {
	hm := NewHookManager()
	boom := errors.New("boom")

	var second bool
	hm.Register(
		NewFunctionHook(HookOnTerminate, func(context.Context, *HookContext) error { return boom }),
		NewFunctionHook(HookOnTerminate, func(context.Context, *HookContext) error {
			second = true
			return nil
		}),
	)

	assert.ErrorIs(t, hm.Execute(context.Background(), &HookContext{Type: HookOnTerminate}), boom)
	assert.False(t, second)
}

func TestRun_HookErrorsDoNotEndRun(t *testing.T) {
	eng := New(func(o *Options) {
		o.Hooks = []Hook{NewFunctionHook(HookBeforeRound, func(context.Context, *HookContext) error {
			return errors.New("hook failed")
		})}
	})
	mustRegister(t, eng, &funcAgent{id: "Planner", react: replyTo("Ghost", "x")})

	res, err := eng.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, TerminationStalled, res.Termination)
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewZerologAdapter(zerolog.New(&buf))

	eng := New(func(o *Options) { o.Hooks = LoggingHooks(logger) })
	mustRegister(t, eng, &funcAgent{id: "Planner", react: replyTo("Ghost", "x")})

	_, err := eng.Run(context.Background(), "go")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Round completed")
	assert.Contains(t, out, "run terminated")
	assert.Contains(t, out, "stalled")
}
