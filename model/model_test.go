package model

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ Model = (*MockModel)(nil)
	_ Model = (*FuncModel)(nil)
)

func TestMockModel(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hi", "hello")

	out, err := m.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = m.Generate(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", out)
	assert.Equal(t, 2, m.Calls())
	assert.Equal(t, Info{Name: "mock", Provider: "mock"}, m.Info())
}

func TestMockModel_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockModel("mock", "mock").Generate(ctx, "hi")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAsStatusError(t *testing.T) {
	err := fmt.Errorf("generate: %w", &StatusError{Provider: "ollama", StatusCode: 503, Body: "busy"})
	se, ok := AsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, 503, se.StatusCode)
	assert.Equal(t, "busy", se.Body)

	_, ok = AsStatusError(fmt.Errorf("plain"))
	assert.False(t, ok)
}
