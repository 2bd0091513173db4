// Package gemini provides a model.Model backed by the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/hupe1980/roundtable/model"
)

// Options configures the Gemini adapter.
type Options struct {
	Model       string
	APIKey      string
	Temperature *float32
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

// Model wraps genai.Client behind the model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

// NewModel creates a Gemini model. Without an explicit APIKey the SDK reads
// GOOGLE_API_KEY / GEMINI_API_KEY.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := Options{Model: "gemini-2.5-flash"}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Model{client: client, opts: opts}, nil
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	var genConfig *genai.GenerateContentConfig
	if m.opts.Temperature != nil {
		genConfig = &genai.GenerateContentConfig{Temperature: m.opts.Temperature}
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		genConfig)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &model.StatusError{Provider: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return "", fmt.Errorf("gemini api error: %w", err)
	}
	return resp.Text(), nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info { return model.Info{Name: m.opts.Model, Provider: "gemini"} }
