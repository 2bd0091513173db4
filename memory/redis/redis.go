// Package redis provides a core.MemoryStore backed by a Redis hash. Each
// field is an agent id and each value the agent's entries as a JSON array.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/roundtable/core"
)

// DefaultKey is the hash key used when none is configured.
const DefaultKey = "roundtable:memory"

// Options configures the Redis store.
type Options struct {
	// Key is the hash holding the snapshot.
	Key string
}

// Store persists snapshots in Redis.
type Store struct {
	client *redis.Client
	key    string
}

// New connects to redisURL (redis://...) and verifies the connection.
func New(ctx context.Context, redisURL string, optFns ...func(o *Options)) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewFromClient(client, optFns...), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, optFns ...func(o *Options)) *Store {
	o := Options{Key: DefaultKey}
	for _, fn := range optFns {
		fn(&o)
	}
	return &Store{client: client, key: o.Key}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Load implements core.MemoryStore.
func (s *Store) Load(ctx context.Context) (core.Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load memory from redis: %w", err)
	}

	snap := make(core.Snapshot, len(fields))
	for id, raw := range fields {
		var entries []string
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("decode memory of %s: %w", id, err)
		}
		if entries == nil {
			entries = []string{}
		}
		snap[core.AgentID(id)] = entries
	}
	return snap, nil
}

// Save implements core.MemoryStore. The hash is replaced atomically.
func (s *Store) Save(ctx context.Context, snapshot core.Snapshot) error {
	values := make([]any, 0, 2*len(snapshot))
	for id, entries := range snapshot {
		if entries == nil {
			entries = []string{}
		}
		data, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("encode memory of %s: %w", id, err)
		}
		values = append(values, string(id), string(data))
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(values) > 0 {
		pipe.HSet(ctx, s.key, values...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save memory to redis: %w", err)
	}
	return nil
}
