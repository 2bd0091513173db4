// Package postgres provides a core.MemoryStore backed by PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/roundtable/core"
)

// Options configures the PostgreSQL store.
type Options struct {
	// Namespace separates snapshots of independent deployments sharing a database.
	Namespace string
}

// Store persists snapshots in an agent_memory table, one row per agent.
type Store struct {
	pool      *pgxpool.Pool
	namespace string
}

// New creates a pool for databaseURL, verifies it and ensures the schema.
func New(ctx context.Context, databaseURL string, optFns ...func(o *Options)) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewFromPool(pool, optFns...)
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewFromPool wraps an existing pool. The schema is assumed to exist.
func NewFromPool(pool *pgxpool.Pool, optFns ...func(o *Options)) *Store {
	o := Options{Namespace: "default"}
	for _, fn := range optFns {
		fn(&o)
	}
	return &Store{pool: pool, namespace: o.Namespace}
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS agent_memory (
			namespace  TEXT NOT NULL,
			agent_id   TEXT NOT NULL,
			entries    TEXT[] NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, agent_id)
		)`)
	if err != nil {
		return fmt.Errorf("init postgres schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Load implements core.MemoryStore.
func (s *Store) Load(ctx context.Context) (core.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, entries FROM agent_memory WHERE namespace = $1`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}
	defer rows.Close()

	snap := core.Snapshot{}
	for rows.Next() {
		var (
			id      string
			entries []string
		)
		if err := rows.Scan(&id, &entries); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		if entries == nil {
			entries = []string{}
		}
		snap[core.AgentID(id)] = entries
	}
	return snap, rows.Err()
}

// Save implements core.MemoryStore. The namespace is replaced in one
// transaction.
func (s *Store) Save(ctx context.Context, snapshot core.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin memory save: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM agent_memory WHERE namespace = $1`, s.namespace)
	for id, entries := range snapshot {
		if entries == nil {
			entries = []string{}
		}
		batch.Queue(
			`INSERT INTO agent_memory (namespace, agent_id, entries, updated_at) VALUES ($1, $2, $3, NOW())`,
			s.namespace, string(id), entries,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit memory save: %w", err)
	}
	return nil
}
