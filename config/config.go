// Package config loads roundtable settings from a YAML file and environment
// variables. Environment variables (ROUNDTABLE_*) override the file; a .env
// file in the working directory is read first if present.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/roundtable/agent"
	"github.com/hupe1980/roundtable/engine"
	"github.com/hupe1980/roundtable/logging"
)

// Supported model providers.
var Providers = []string{"ollama", "openai", "anthropic", "gemini", "bedrock", "mock"}

// Supported memory backends.
var Backends = []string{"memory", "file", "redis", "sqlite", "postgres", "mongo"}

type ModelConfig struct {
	Provider    string   `yaml:"provider"`
	Name        string   `yaml:"name"`
	URL         string   `yaml:"url"`
	APIKey      string   `yaml:"api_key"`
	Region      string   `yaml:"region"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

type EngineConfig struct {
	MaxRounds              int           `yaml:"max_rounds"`
	Persistence            string        `yaml:"persistence"`
	ConcurrentReactions    bool          `yaml:"concurrent_reactions"`
	MaxConcurrentReactions int           `yaml:"max_concurrent_reactions"`
	RoundInterval          time.Duration `yaml:"round_interval"`
	// MaxGenerations caps model calls per run. Zero means unlimited.
	MaxGenerations int `yaml:"max_generations"`
}

type StageConfig struct {
	Role        string `yaml:"role"`
	Instruction string `yaml:"instruction"`
	// Document marks the stage whose reply is saved as the final document.
	Document bool `yaml:"document"`
}

type PlannerConfig struct {
	Review bool          `yaml:"review"`
	Stages []StageConfig `yaml:"stages"`
	// Preset selects the off-topic policy: "default" or "lenient". Explicit
	// OffTopic values override the preset.
	Preset   string              `yaml:"preset"`
	OffTopic agent.OffTopicPolicy `yaml:"off_topic"`
}

type MemoryConfig struct {
	Backend string `yaml:"backend"`
	// Path is the file for the file and sqlite backends.
	Path string `yaml:"path"`
	// URL is the connection string for redis, postgres and mongo.
	URL       string `yaml:"url"`
	Key       string `yaml:"key"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type SpeechConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	Voices    []string `yaml:"voices"`
	QueueSize int      `yaml:"queue_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text or console
}

// Config is the complete roundtable configuration.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Engine  EngineConfig  `yaml:"engine"`
	Planner PlannerConfig `yaml:"planner"`
	Memory  MemoryConfig  `yaml:"memory"`
	Server  ServerConfig  `yaml:"server"`
	Speech  SpeechConfig  `yaml:"speech"`
	Log     LogConfig     `yaml:"log"`
	// OutputPath receives the final document of every run when set.
	OutputPath string `yaml:"output_path"`
	// ArtifactsDir keeps per-run documents on disk. Empty keeps them in memory.
	ArtifactsDir string `yaml:"artifacts_dir"`
}

// Default returns the configuration used when nothing is set: a local
// Ollama model, the three stage review pipeline, a JSON memory file and a
// 20 round budget.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider: "ollama",
			Name:     "deepseek-r1:14b",
		},
		Engine: EngineConfig{
			MaxRounds:              engine.DefaultConfig.MaxRounds,
			Persistence:            string(engine.PersistAtRunEnd),
			MaxConcurrentReactions: engine.DefaultConfig.MaxConcurrentReactions,
		},
		Planner: PlannerConfig{
			Review: true,
			Preset: "default",
		},
		Memory: MemoryConfig{
			Backend:   "file",
			Path:      "memory.json",
			Key:       "roundtable:memory",
			Namespace: "default",
			Database:  "roundtable",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Speech: SpeechConfig{
			QueueSize: 32,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// fields present in the file replace the defaults
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() error {
	setString(&c.Model.Provider, "ROUNDTABLE_MODEL_PROVIDER")
	setString(&c.Model.Name, "ROUNDTABLE_MODEL_NAME")
	setString(&c.Model.URL, "ROUNDTABLE_MODEL_URL")
	setString(&c.Model.APIKey, "ROUNDTABLE_MODEL_API_KEY")
	setString(&c.Model.Region, "ROUNDTABLE_MODEL_REGION")
	setString(&c.Engine.Persistence, "ROUNDTABLE_PERSISTENCE")
	setString(&c.Memory.Backend, "ROUNDTABLE_MEMORY_BACKEND")
	setString(&c.Memory.Path, "ROUNDTABLE_MEMORY_PATH")
	setString(&c.Memory.URL, "ROUNDTABLE_MEMORY_URL")
	setString(&c.Server.Addr, "ROUNDTABLE_SERVER_ADDR")
	setString(&c.Log.Level, "ROUNDTABLE_LOG_LEVEL")
	setString(&c.Log.Format, "ROUNDTABLE_LOG_FORMAT")
	setString(&c.OutputPath, "ROUNDTABLE_OUTPUT_PATH")
	setString(&c.ArtifactsDir, "ROUNDTABLE_ARTIFACTS_DIR")

	if origins := os.Getenv("ROUNDTABLE_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, o)
			}
		}
	}

	var errs []error
	errs = append(errs,
		setInt(&c.Engine.MaxRounds, "ROUNDTABLE_MAX_ROUNDS"),
		setInt(&c.Engine.MaxGenerations, "ROUNDTABLE_MAX_GENERATIONS"),
		setBool(&c.Engine.ConcurrentReactions, "ROUNDTABLE_CONCURRENT_REACTIONS"),
		setBool(&c.Planner.Review, "ROUNDTABLE_REVIEW"),
		setBool(&c.Speech.Enabled, "ROUNDTABLE_SPEECH_ENABLED"),
	)
	if v := os.Getenv("ROUNDTABLE_ROUND_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ROUNDTABLE_ROUND_INTERVAL: %w", err))
		} else {
			c.Engine.RoundInterval = d
		}
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(Providers, c.Model.Provider) {
		errs = append(errs, fmt.Errorf("unknown model provider %q (want one of %s)", c.Model.Provider, strings.Join(Providers, ", ")))
	}
	if c.Engine.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_rounds must be positive, got %d", c.Engine.MaxRounds))
	}
	if _, err := engine.ParsePersistenceMode(c.Engine.Persistence); err != nil {
		errs = append(errs, err)
	}
	if c.Engine.MaxGenerations < 0 {
		errs = append(errs, fmt.Errorf("engine.max_generations must not be negative"))
	}
	if c.Engine.RoundInterval < 0 {
		errs = append(errs, fmt.Errorf("engine.round_interval must not be negative"))
	}
	if c.Planner.Preset != "" && c.Planner.Preset != "default" && c.Planner.Preset != "lenient" {
		errs = append(errs, fmt.Errorf("unknown planner preset %q", c.Planner.Preset))
	}
	switch c.Planner.OffTopic.Match {
	case "", agent.MatchWord, agent.MatchSubstring:
	default:
		errs = append(errs, fmt.Errorf("unknown planner.off_topic.match %q", c.Planner.OffTopic.Match))
	}
	for i, st := range c.Planner.Stages {
		if st.Role == "" {
			errs = append(errs, fmt.Errorf("planner.stages[%d]: role is required", i))
		}
	}
	if !slices.Contains(Backends, c.Memory.Backend) {
		errs = append(errs, fmt.Errorf("unknown memory backend %q (want one of %s)", c.Memory.Backend, strings.Join(Backends, ", ")))
	}
	switch c.Memory.Backend {
	case "file", "sqlite":
		if c.Memory.Path == "" {
			errs = append(errs, fmt.Errorf("memory.path is required for the %s backend", c.Memory.Backend))
		}
	case "redis", "postgres", "mongo":
		if c.Memory.URL == "" {
			errs = append(errs, fmt.Errorf("memory.url is required for the %s backend", c.Memory.Backend))
		}
	}
	if c.Speech.Enabled && c.Speech.Command == "" {
		errs = append(errs, fmt.Errorf("speech.command is required when speech is enabled"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// OffTopicPolicy resolves the preset and explicit overrides.
func (c *Config) OffTopicPolicy() agent.OffTopicPolicy {
	policy := agent.DefaultOffTopicPolicy()
	if c.Planner.Preset == "lenient" {
		policy = agent.LenientOffTopicPolicy()
	}
	if c.Planner.OffTopic.MaxWords != 0 {
		policy.MaxWords = c.Planner.OffTopic.MaxWords
	}
	if len(c.Planner.OffTopic.Phrases) > 0 {
		policy.Phrases = c.Planner.OffTopic.Phrases
	}
	if c.Planner.OffTopic.Match != "" {
		policy.Match = c.Planner.OffTopic.Match
	}
	return policy
}

// Stages converts the configured pipeline. It returns nil when none is
// configured so the planner picks its default pipeline.
func (c *Config) Stages() []agent.Stage {
	if len(c.Planner.Stages) == 0 {
		return nil
	}
	out := make([]agent.Stage, 0, len(c.Planner.Stages))
	for _, st := range c.Planner.Stages {
		out = append(out, agent.Stage{Role: st.Role, Instruction: st.Instruction, Document: st.Document})
	}
	return out
}

// EngineConfig converts the engine section.
func (c *Config) EngineConfig() engine.Config {
	mode, _ := engine.ParsePersistenceMode(c.Engine.Persistence)
	return engine.Config{
		MaxRounds:              c.Engine.MaxRounds,
		Persistence:            mode,
		ConcurrentReactions:    c.Engine.ConcurrentReactions,
		MaxConcurrentReactions: c.Engine.MaxConcurrentReactions,
		RoundInterval:          c.Engine.RoundInterval,
	}
}

// NewLogger builds the logger described by the log section.
func (c *Config) NewLogger(out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	if c.Log.Format == "console" {
		return logging.NewConsoleLogger(out, level), nil
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    c.Log.Format,
		Output:    out,
		Component: "roundtable",
	}), nil
}
