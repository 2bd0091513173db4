// Package sqlite provides a core.MemoryStore backed by a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/roundtable/core"
)

// Options configures the SQLite store.
type Options struct {
	// Namespace separates snapshots of independent deployments sharing a file.
	Namespace string
}

// Store persists snapshots in an agent_memory table.
type Store struct {
	db        *sql.DB
	namespace string
}

// New opens (and creates if needed) the database at dbPath.
// If dbPath is empty, defaults to "./data/roundtable.db"
func New(ctx context.Context, dbPath string, optFns ...func(o *Options)) (*Store, error) {
	o := Options{Namespace: "default"}
	for _, fn := range optFns {
		fn(&o)
	}
	if dbPath == "" {
		dbPath = "./data/roundtable.db"
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &Store{db: db, namespace: o.Namespace}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_memory (
		namespace TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		entries TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, agent_id)
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load implements core.MemoryStore.
func (s *Store) Load(ctx context.Context) (core.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, entries FROM agent_memory WHERE namespace = ?`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}
	defer rows.Close()

	snap := core.Snapshot{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		entries := []string{}
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("decode memory of %s: %w", id, err)
		}
		snap[core.AgentID(id)] = entries
	}
	return snap, rows.Err()
}

// Save implements core.MemoryStore. The namespace is replaced in one
// transaction.
func (s *Store) Save(ctx context.Context, snapshot core.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin memory save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_memory WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO agent_memory (namespace, agent_id, entries, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`)
	if err != nil {
		return fmt.Errorf("prepare memory insert: %w", err)
	}
	defer stmt.Close()

	for id, entries := range snapshot {
		if entries == nil {
			entries = []string{}
		}
		data, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("encode memory of %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, s.namespace, string(id), string(data)); err != nil {
			return fmt.Errorf("insert memory of %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit memory save: %w", err)
	}
	return nil
}
