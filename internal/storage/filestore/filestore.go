// Package filestore persists the todo collection as a single JSON file.
//
// The whole collection lives in memory and every mutation rewrites the file
// through a temp file, fsync and rename, so readers of the file only ever see
// a complete old or a complete new collection. The in-memory copy is swapped
// only after the rename succeeded.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/todo-1m/tasklist/internal/app/todos"
)

type Store struct {
	path string

	mu    sync.Mutex
	items []todos.Todo

	rename func(oldpath, newpath string) error
}

// Open loads path into memory. A missing file is an empty collection; the
// file is created on the first mutation.
func Open(path string) (*Store, error) {
	path = filepath.Clean(path)
	items, err := load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, items: items, rename: os.Rename}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) ListAll(_ context.Context) ([]todos.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items), nil
}

func (s *Store) Get(_ context.Context, id int64) (todos.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := indexOf(s.items, id); idx >= 0 {
		return s.items[idx], nil
	}
	return todos.Todo{}, todos.ErrNotFound
}

func (s *Store) Put(_ context.Context, todo todos.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(s.items)
	if idx := indexOf(next, todo.ID); idx >= 0 {
		next[idx] = todo
	} else {
		next = slices.Insert(next, 0, todo)
	}
	return s.commit(next)
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.items, id)
	if idx < 0 {
		return todos.ErrNotFound
	}
	next := slices.Delete(slices.Clone(s.items), idx, idx+1)
	return s.commit(next)
}

func (s *Store) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit([]todos.Todo{})
}

func (s *Store) ReplaceAll(_ context.Context, items []todos.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(slices.Clone(items))
}

// commit must be called with mu held.
func (s *Store) commit(next []todos.Todo) error {
	if next == nil {
		next = []todos.Todo{}
	}
	if err := s.writeAtomic(next); err != nil {
		return err
	}
	s.items = next
	return nil
}

func (s *Store) writeAtomic(items []todos.Todo) error {
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file in %s: %v", todos.ErrStorageUnavailable, dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := s.rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	tmpName = ""

	// Persist the rename itself; not every platform can fsync a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func load(path string) ([]todos.Todo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []todos.Todo{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", todos.ErrStorageUnavailable, path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []todos.Todo{}, nil
	}

	var items []todos.Todo
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("json unmarshal %s: %w", path, err)
	}
	if items == nil {
		items = []todos.Todo{}
	}
	seen := make(map[int64]struct{}, len(items))
	for _, t := range items {
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate todo id %d", path, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return items, nil
}

func indexOf(items []todos.Todo, id int64) int {
	return slices.IndexFunc(items, func(t todos.Todo) bool { return t.ID == id })
}
