package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/config"
	"github.com/hupe1980/roundtable/memory"
	"github.com/hupe1980/roundtable/memory/sqlite"
	"github.com/hupe1980/roundtable/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roundtable.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_PrintsTranscriptAndMemories(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
model:
  provider: mock
  name: mock
memory:
  backend: file
  path: `+filepath.Join(dir, "memory.json")+`
output_path: `+filepath.Join(dir, "story.txt")+`
log:
  level: error
`)

	var stdout, stderr bytes.Buffer
	err := run([]string{"run", "-config", path, "explain", "tidal", "locking"}, &stdout, &stderr)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "[User -> Planner] explain tidal locking")
	assert.Contains(t, out, "Agent memories:")
	assert.Contains(t, out, "Planner (Planner)")
	assert.FileExists(t, filepath.Join(dir, "memory.json"))
}

func TestRun_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer

	require.Error(t, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")

	path := writeConfig(t, "model:\n  provider: mock\nmemory:\n  backend: memory\n")
	require.Error(t, run([]string{"bogus", "-config", path}, &stdout, &stderr))
	require.Error(t, run([]string{"run", "-config", path}, &stdout, &stderr), "a goal is required")
}

func TestNewModel(t *testing.T) {
	m, err := newModel(context.Background(), config.ModelConfig{Provider: "mock", Name: "demo"})
	require.NoError(t, err)
	assert.IsType(t, &model.MockModel{}, m)
	assert.Equal(t, "demo", m.Info().Name)

	_, err = newModel(context.Background(), config.ModelConfig{Provider: "carrier-pigeon"})
	require.Error(t, err)
}

func TestNewMemoryStore(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := newMemoryStore(ctx, config.MemoryConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.InMemoryStore{}, s)
	closeFn()

	s, closeFn, err = newMemoryStore(ctx, config.MemoryConfig{Backend: "file", Path: filepath.Join(t.TempDir(), "m.json")})
	require.NoError(t, err)
	assert.IsType(t, &memory.FileStore{}, s)
	closeFn()

	s, closeFn, err = newMemoryStore(ctx, config.MemoryConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "m.db"), Namespace: "test"})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	closeFn()

	_, _, err = newMemoryStore(ctx, config.MemoryConfig{Backend: "tape"})
	require.Error(t, err)
}
