package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/roundtable/core"
)

// FileStore persists the snapshot as an indented JSON object keyed by agent
// id. Saves write a temporary file next to the target and rename it into
// place, so readers never observe a partially written snapshot.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Load reads the snapshot. A missing or empty file yields an empty snapshot.
func (f *FileStore) Load(_ context.Context) (core.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory file: %w", err)
	}
	if len(data) == 0 {
		return core.Snapshot{}, nil
	}

	snap := core.Snapshot{}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode memory file %s: %w", f.path, err)
	}
	return snap, nil
}

// Save replaces the file contents with snapshot.
func (f *FileStore) Save(_ context.Context, snapshot core.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if snapshot == nil {
		snapshot = core.Snapshot{}
	}
	data, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		return fmt.Errorf("encode memory snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp memory file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close memory file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}
