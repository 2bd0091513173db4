package main

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/roundtable/config"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/memory"
	"github.com/hupe1980/roundtable/memory/mongo"
	"github.com/hupe1980/roundtable/memory/postgres"
	"github.com/hupe1980/roundtable/memory/redis"
	"github.com/hupe1980/roundtable/memory/sqlite"
	"github.com/hupe1980/roundtable/model"
	"github.com/hupe1980/roundtable/model/anthropic"
	"github.com/hupe1980/roundtable/model/bedrock"
	"github.com/hupe1980/roundtable/model/gemini"
	"github.com/hupe1980/roundtable/model/ollama"
	"github.com/hupe1980/roundtable/model/openai"
)

// newModel builds the model of the configured provider.
func newModel(ctx context.Context, cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewModel(func(o *ollama.Options) {
			if cfg.URL != "" {
				o.URL = cfg.URL
			}
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.URL
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.URL
		}), nil
	case "gemini":
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.Temperature != nil {
				t := float32(*cfg.Temperature)
				o.Temperature = &t
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.URL
		})
	case "bedrock":
		return bedrock.NewModel(ctx, func(o *bedrock.Options) {
			if cfg.Name != "" {
				o.ModelID = cfg.Name
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.Region = cfg.Region
			o.Temperature = cfg.Temperature
		})
	case "mock":
		return model.NewMockModel(cfg.Name, "mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// newMemoryStore builds the configured memory backend. The returned close
// function releases its connections.
func newMemoryStore(ctx context.Context, cfg config.MemoryConfig) (core.MemoryStore, func(), error) {
	nop := func() {}

	switch cfg.Backend {
	case "memory":
		return memory.NewInMemoryStore(), nop, nil
	case "file":
		return memory.NewFileStore(cfg.Path), nop, nil
	case "sqlite":
		s, err := sqlite.New(ctx, cfg.Path, func(o *sqlite.Options) { o.Namespace = cfg.Namespace })
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "redis":
		s, err := redis.New(ctx, cfg.URL, func(o *redis.Options) { o.Key = cfg.Key })
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.URL, func(o *postgres.Options) { o.Namespace = cfg.Namespace })
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "mongo":
		s, err := mongo.New(ctx, cfg.URL, func(o *mongo.Options) {
			o.Database = cfg.Database
			o.Namespace = cfg.Namespace
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}
