package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "ollama", "openai", "anthropic", "gemini", "bedrock", "mock"
}

// Model is the minimal interface the gateway needs to drive generation: one
// prompt in, one completion out.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)

	// Info returns information about the model implementation.
	Info() Info
}

// StatusError reports a provider answering with a non-success HTTP status.
// The gateway renders it as "Error: <status> - <body>".
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// AsStatusError unwraps err into a *StatusError if it carries one.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// FuncModel adapts a function to the Model interface.
type FuncModel struct {
	info Info
	fn   func(ctx context.Context, prompt string) (string, error)
}

// NewFuncModel wraps fn as a Model named name.
func NewFuncModel(name string, fn func(ctx context.Context, prompt string) (string, error)) *FuncModel {
	return &FuncModel{info: Info{Name: name, Provider: "func"}, fn: fn}
}

// Generate implements Model.
func (f *FuncModel) Generate(ctx context.Context, prompt string) (string, error) {
	return f.fn(ctx, prompt)
}

// Info implements Model.
func (f *FuncModel) Info() Info { return f.info }

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info Info

	mu        sync.RWMutex
	responses map[string]string
	calls     int
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:     name,
			Provider: provider,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Calls returns the number of Generate invocations.
func (m *MockModel) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Generate implements Model. Unknown prompts yield "Mock response to: <prompt>".
func (m *MockModel) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.calls++
	full, ok := m.responses[prompt]
	m.mu.Unlock()

	if !ok {
		full = fmt.Sprintf("Mock response to: %s", prompt)
	}
	return full, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
