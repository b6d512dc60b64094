// Package storagetest holds the behaviour every todos.Store must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/todo-1m/tasklist/internal/app/todos"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) todos.Store

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func Todo(id int64, text string, completed bool) todos.Todo {
	return todos.Todo{
		ID:        id,
		Text:      text,
		Completed: completed,
		CreatedAt: baseTime.Add(time.Duration(id) * time.Minute),
	}
}

func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("EmptyList", func(t *testing.T) {
		store := newStore(t)
		items, err := store.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll returned error: %v", err)
		}
		if len(items) != 0 {
			t.Fatalf("expected empty collection, got %+v", items)
		}
	})

	t.Run("PutInsertsAtHead", func(t *testing.T) {
		store := newStore(t)
		mustPut(t, store, Todo(1, "first", false))
		mustPut(t, store, Todo(2, "second", false))
		mustPut(t, store, Todo(3, "third", true))
		assertIDs(t, store, 3, 2, 1)
	})

	t.Run("PutOverwritesInPlace", func(t *testing.T) {
		store := newStore(t)
		mustPut(t, store, Todo(1, "first", false))
		mustPut(t, store, Todo(2, "second", false))

		updated := Todo(1, "first, edited", true)
		mustPut(t, store, updated)

		assertIDs(t, store, 2, 1)
		got, err := store.Get(ctx, 1)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		assertTodo(t, got, updated)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(ctx, 404); !errors.Is(err, todos.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteRemovesExactlyOne", func(t *testing.T) {
		store := newStore(t)
		mustReplace(t, store, Todo(1, "a", false), Todo(2, "b", true), Todo(3, "c", false))

		if err := store.Delete(ctx, 2); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}
		assertIDs(t, store, 1, 3)
		for _, want := range []todos.Todo{Todo(1, "a", false), Todo(3, "c", false)} {
			got, err := store.Get(ctx, want.ID)
			if err != nil {
				t.Fatalf("Get(%d) returned error: %v", want.ID, err)
			}
			assertTodo(t, got, want)
		}
	})

	t.Run("DeleteMissingLeavesCollection", func(t *testing.T) {
		store := newStore(t)
		mustReplace(t, store, Todo(1, "a", false), Todo(2, "b", false))

		if err := store.Delete(ctx, 99); !errors.Is(err, todos.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		assertIDs(t, store, 1, 2)
	})

	t.Run("DeleteAll", func(t *testing.T) {
		store := newStore(t)
		mustReplace(t, store, Todo(1, "a", false), Todo(2, "b", false))
		if err := store.DeleteAll(ctx); err != nil {
			t.Fatalf("DeleteAll returned error: %v", err)
		}
		assertIDs(t, store)
	})

	t.Run("ReplaceAllRoundTrip", func(t *testing.T) {
		store := newStore(t)
		mustPut(t, store, Todo(9, "discarded", false))

		want := []todos.Todo{Todo(5, "five", true), Todo(2, "two", false), Todo(7, "seven", false)}
		mustReplace(t, store, want...)

		got, err := store.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll returned error: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("expected %d todos, got %+v", len(want), got)
		}
		for i := range want {
			assertTodo(t, got[i], want[i])
		}
		if _, err := store.Get(ctx, 9); !errors.Is(err, todos.ErrNotFound) {
			t.Fatalf("expected replaced todo to be gone, got %v", err)
		}
	})

	t.Run("ReplaceAllEmpty", func(t *testing.T) {
		store := newStore(t)
		mustReplace(t, store, Todo(1, "a", false))
		mustReplace(t, store)
		assertIDs(t, store)
	})

	t.Run("PutAfterReplaceGoesToHead", func(t *testing.T) {
		store := newStore(t)
		mustReplace(t, store, Todo(1, "a", false), Todo(2, "b", false))
		mustPut(t, store, Todo(3, "c", false))
		mustPut(t, store, Todo(2, "b, edited", true))
		assertIDs(t, store, 3, 1, 2)
	})
}

func mustPut(t *testing.T, store todos.Store, todo todos.Todo) {
	t.Helper()
	if err := store.Put(context.Background(), todo); err != nil {
		t.Fatalf("Put(%d) returned error: %v", todo.ID, err)
	}
}

func mustReplace(t *testing.T, store todos.Store, items ...todos.Todo) {
	t.Helper()
	if items == nil {
		items = []todos.Todo{}
	}
	if err := store.ReplaceAll(context.Background(), items); err != nil {
		t.Fatalf("ReplaceAll returned error: %v", err)
	}
}

// AssertIDs checks the ids and order returned by ListAll.
func AssertIDs(t *testing.T, store todos.Store, want ...int64) {
	t.Helper()
	assertIDs(t, store, want...)
}

func assertIDs(t *testing.T, store todos.Store, want ...int64) {
	t.Helper()
	items, err := store.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	got := make([]int64, 0, len(items))
	for _, item := range items {
		got = append(got, item.ID)
	}
	if len(got) != len(want) {
		t.Fatalf("ids mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids mismatch: got %v want %v", got, want)
		}
	}
}

func assertTodo(t *testing.T, got, want todos.Todo) {
	t.Helper()
	if got.ID != want.ID || got.Text != want.Text || got.Completed != want.Completed || !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("todo mismatch:\n got  %+v\n want %+v", got, want)
	}
}
