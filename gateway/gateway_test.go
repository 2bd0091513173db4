package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/roundtable/agent"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/model"
)

var _ agent.Responder = (*Gateway)(nil)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"<think>hidden</think>answer", "answer"},
		{"  <think>\nmulti\nline\n</think>\n\nanswer  ", "answer"},
		{"a<think>1</think>b<think>2</think>c", "abc"},
		{"<thi<think>x</think>nk>y</think>z", "z"},
		{"<think>unterminated answer", "<think>unterminated answer"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Sanitize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "</think>", "no complete span may remain")
			assert.Equal(t, got, Sanitize(got), "idempotent")
		})
	}
}

func TestGenerate_ErrorTexts(t *testing.T) {
	status := model.NewFuncModel("m", func(context.Context, string) (string, error) {
		return "", &model.StatusError{Provider: "ollama", StatusCode: 404, Body: `{"error":"model not found"}`}
	})
	assert.Equal(t, `Error: 404 - {"error":"model not found"}`, New(status).Generate(context.Background(), "p"))

	plain := model.NewFuncModel("m", func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	})
	assert.Equal(t, "Error: connection refused", New(plain).Respond(context.Background(), "p"))
}

func TestRespond_Sanitizes(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.AddResponse("q", "<think>reasoning</think>\nThe answer.")
	assert.Equal(t, "The answer.", New(m).Respond(context.Background(), "q"))
}

func TestGenerate_Limiter(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	g := New(m).WithLimiter(core.NewCallLimiter(1))

	assert.Equal(t, "Mock response to: a", g.Generate(context.Background(), "a"))
	assert.Equal(t, "Error: exceeded max generation calls: 1", g.Generate(context.Background(), "b"))
	assert.Equal(t, 1, m.Calls())
}

func TestGenerate_OnGenerate(t *testing.T) {
	var calls []error
	g := New(model.NewFuncModel("m", func(_ context.Context, p string) (string, error) {
		if p == "bad" {
			return "", fmt.Errorf("boom")
		}
		return "ok", nil
	}), func(o *Options) {
		o.OnGenerate = func(info model.Info, _ time.Duration, err error) {
			assert.Equal(t, "m", info.Name)
			calls = append(calls, err)
		}
	})

	g.Generate(context.Background(), "good")
	g.Generate(context.Background(), "bad")
	if assert.Len(t, calls, 2) {
		assert.NoError(t, calls[0])
		assert.Error(t, calls[1])
	}
}
