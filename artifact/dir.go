package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// DirStore keeps artifacts as files below Root, one directory per run:
// <root>/<runID>/<name>.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at root. The directory is created on
// the first save.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

// Root returns the base directory.
func (d *DirStore) Root() string { return d.root }

func (d *DirStore) path(runID, name string) (string, error) {
	if err := validName(runID); err != nil {
		return "", fmt.Errorf("run id: %w", err)
	}
	if err := validName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.root, runID, name), nil
}

// Save writes the artifact atomically via a temp file and rename.
func (d *DirStore) Save(runID, name string, data []byte) error {
	path, err := d.path(runID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// Get reads the artifact or returns ErrNotFound.
func (d *DirStore) Get(runID, name string) ([]byte, error) {
	path, err := d.path(runID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// List returns the sorted artifact names of the run.
func (d *DirStore) List(runID string) ([]string, error) {
	if err := validName(runID); err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	entries, err := os.ReadDir(filepath.Join(d.root, runID))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) != ".tmp" {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Delete removes the artifact or returns ErrNotFound.
func (d *DirStore) Delete(runID, name string) error {
	path, err := d.path(runID, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
