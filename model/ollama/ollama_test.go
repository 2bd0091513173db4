package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/model"
)

var _ model.Model = (*Model)(nil)

func newServer(t *testing.T, status int, body string, seen *generateRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_Success(t *testing.T) {
	var seen generateRequest
	srv := newServer(t, http.StatusOK, `{"model":"m","response":"<think>x</think>Hi","done":true}`, &seen)

	m := NewModel(func(o *Options) {
		o.URL = srv.URL + "/"
		o.Model = "llama3"
	})
	out, err := m.Generate(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "<think>x</think>Hi", out)
	assert.Equal(t, generateRequest{Model: "llama3", Prompt: "hello", Stream: false}, seen)
	assert.Equal(t, model.Info{Name: "llama3", Provider: "ollama"}, m.Info())
}

func TestGenerate_MissingResponseField(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"done":true}`, nil)
	out, err := NewModel(func(o *Options) { o.URL = srv.URL }).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, out)
}

func TestGenerate_StatusError(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, "model not loaded", nil)
	_, err := NewModel(func(o *Options) { o.URL = srv.URL }).Generate(context.Background(), "p")
	require.Error(t, err)

	se, ok := model.AsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, 500, se.StatusCode)
	assert.Equal(t, "model not loaded", se.Body)
}

func TestGenerate_Temperature(t *testing.T) {
	var seen generateRequest
	srv := newServer(t, http.StatusOK, `{"response":"ok"}`, &seen)
	temp := 0.2
	_, err := NewModel(func(o *Options) {
		o.URL = srv.URL
		o.Temperature = &temp
	}).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 0.2, seen.Options["temperature"])
}

func TestGenerate_Cancelled(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"response":"ok"}`, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewModel(func(o *Options) { o.URL = srv.URL }).Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
}
