// Package memstore keeps the todo collection in process memory. It backs
// STORAGE_BACKEND=memory and serves as the fake in handler and client tests.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/todo-1m/tasklist/internal/app/todos"
)

type Store struct {
	mu    sync.RWMutex
	items []todos.Todo
}

func New(seed ...todos.Todo) *Store {
	return &Store{items: slices.Clone(seed)}
}

func (s *Store) ListAll(_ context.Context) ([]todos.Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]todos.Todo, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *Store) Get(_ context.Context, id int64) (todos.Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.items[idx], nil
	}
	return todos.Todo{}, todos.ErrNotFound
}

func (s *Store) Put(_ context.Context, todo todos.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexOf(todo.ID); idx >= 0 {
		s.items[idx] = todo
		return nil
	}
	s.items = slices.Insert(s.items, 0, todo)
	return nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return todos.ErrNotFound
	}
	s.items = slices.Delete(s.items, idx, idx+1)
	return nil
}

func (s *Store) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) ReplaceAll(_ context.Context, items []todos.Todo) error {
	next := slices.Clone(items)
	s.mu.Lock()
	s.items = next
	s.mu.Unlock()
	return nil
}

func (s *Store) indexOf(id int64) int {
	return slices.IndexFunc(s.items, func(t todos.Todo) bool { return t.ID == id })
}
