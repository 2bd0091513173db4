package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/agent"
	"github.com/hupe1980/roundtable/engine"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roundtable.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Model.Provider)
	assert.Equal(t, "deepseek-r1:14b", cfg.Model.Name)
	assert.Equal(t, 20, cfg.Engine.MaxRounds)
	assert.Equal(t, "file", cfg.Memory.Backend)
	assert.Equal(t, "memory.json", cfg.Memory.Path)
	assert.True(t, cfg.Planner.Review)
	assert.Equal(t, agent.DefaultOffTopicPolicy(), cfg.OffTopicPolicy())
	assert.Nil(t, cfg.Stages())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
model:
  provider: openai
  name: gpt-4o-mini
engine:
  max_rounds: 30
  persistence: every_mutation
  concurrent_reactions: true
  round_interval: 300ms
planner:
  review: false
  preset: lenient
  stages:
    - role: Researcher
      instruction: "Please research: {{.Input}}"
memory:
  backend: sqlite
  path: ./data/memory.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, 30, cfg.Engine.MaxRounds)
	assert.Equal(t, 300*time.Millisecond, cfg.Engine.RoundInterval)
	assert.False(t, cfg.Planner.Review)
	assert.Equal(t, 250, cfg.OffTopicPolicy().MaxWords)
	assert.Equal(t, []agent.Stage{{Role: "Researcher", Instruction: "Please research: {{.Input}}"}}, cfg.Stages())
	// untouched defaults survive
	assert.Equal(t, ":8080", cfg.Server.Addr)

	ec := cfg.EngineConfig()
	assert.Equal(t, engine.PersistEveryMutation, ec.Persistence)
	assert.True(t, ec.ConcurrentReactions)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "engine:\n  max_rounds: 30\n")
	t.Setenv("ROUNDTABLE_MAX_ROUNDS", "7")
	t.Setenv("ROUNDTABLE_MODEL_PROVIDER", "mock")
	t.Setenv("ROUNDTABLE_MEMORY_BACKEND", "memory")
	t.Setenv("ROUNDTABLE_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("ROUNDTABLE_ROUND_INTERVAL", "1s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Engine.MaxRounds)
	assert.Equal(t, "mock", cfg.Model.Provider)
	assert.Equal(t, "memory", cfg.Memory.Backend)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, time.Second, cfg.Engine.RoundInterval)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad env number", func(t *testing.T) {
		t.Setenv("ROUNDTABLE_MAX_ROUNDS", "many")
		_, err := Load("")
		assert.ErrorContains(t, err, "ROUNDTABLE_MAX_ROUNDS")
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "model: [unclosed"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"provider", func(c *Config) { c.Model.Provider = "hal9000" }, "unknown model provider"},
		{"budget", func(c *Config) { c.Engine.MaxRounds = 0 }, "max_rounds must be positive"},
		{"persistence", func(c *Config) { c.Engine.Persistence = "sometimes" }, "unknown persistence mode"},
		{"backend", func(c *Config) { c.Memory.Backend = "floppy" }, "unknown memory backend"},
		{"url", func(c *Config) { c.Memory.Backend = "redis"; c.Memory.URL = "" }, "memory.url is required"},
		{"speech", func(c *Config) { c.Speech.Enabled = true }, "speech.command is required"},
		{"stage", func(c *Config) { c.Planner.Stages = []StageConfig{{}} }, "role is required"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "unknown log format"},
		{"preset", func(c *Config) { c.Planner.Preset = "strict" }, "unknown planner preset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestOffTopicPolicy_Overrides(t *testing.T) {
	cfg := Default()
	cfg.Planner.OffTopic = agent.OffTopicPolicy{MaxWords: 80}
	p := cfg.OffTopicPolicy()
	assert.Equal(t, 80, p.MaxWords)
	assert.Equal(t, agent.DefaultOffTopicPolicy().Phrases, p.Phrases)
	assert.Empty(t, p.Match)

	cfg.Planner.OffTopic.Match = agent.MatchSubstring
	assert.Equal(t, agent.MatchSubstring, cfg.OffTopicPolicy().Match)
	require.NoError(t, cfg.Validate())

	cfg.Planner.OffTopic.Match = "fuzzy"
	assert.ErrorContains(t, cfg.Validate(), "planner.off_topic.match")
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "text", "console"} {
		cfg := Default()
		cfg.Log.Format = format
		l, err := cfg.NewLogger(os.Stderr)
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}

	cfg := Default()
	cfg.Log.Level = "loud"
	_, err := cfg.NewLogger(os.Stderr)
	assert.Error(t, err)
}
