// Package ollama provides a model.Model backed by a local Ollama server's
// /api/generate endpoint (non-streaming).
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/roundtable/model"
)

// FallbackResponse is returned when the server answers without a response field.
const FallbackResponse = "No response from model."

// Options configures the Ollama adapter.
type Options struct {
	// URL is the server base URL, e.g. http://localhost:11434.
	URL         string
	Model       string
	Temperature *float64
	HTTPClient  *http.Client
}

// Model talks to an Ollama server.
type Model struct {
	opts     Options
	endpoint string
}

// NewModel creates a new Ollama model.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		URL:        "http://localhost:11434",
		Model:      "deepseek-r1:14b",
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{
		opts:     opts,
		endpoint: strings.TrimRight(opts.URL, "/") + "/api/generate",
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// Generate implements model.Model. Non-200 answers are returned as
// *model.StatusError.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{Model: m.opts.Model, Prompt: prompt}
	if m.opts.Temperature != nil {
		req.Options = map[string]any{"temperature": *m.opts.Temperature}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("ollama: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &model.StatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}

	if !gjson.ValidBytes(body) {
		return FallbackResponse, nil
	}
	result := gjson.GetBytes(body, "response")
	if !result.Exists() || result.Type != gjson.String {
		return FallbackResponse, nil
	}
	return result.String(), nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info { return model.Info{Name: m.opts.Model, Provider: "ollama"} }
