package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/model"
)

var _ model.Model = (*Model)(nil)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-2.5-flash:generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Synchronous rotation."}]}}]}`))
	}))
	defer srv.Close()

	m, err := NewModel(context.Background(), func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
	require.NoError(t, err)

	out, err := m.Generate(context.Background(), "explain tidal locking")
	require.NoError(t, err)
	assert.Equal(t, "Synchronous rotation.", out)
	assert.Equal(t, model.Info{Name: "gemini-2.5-flash", Provider: "gemini"}, m.Info())
}
