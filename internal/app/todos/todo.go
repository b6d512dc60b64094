package todos

import (
	"context"
	"errors"
	"time"
)

var ErrTextRequired = errors.New("text is required")
var ErrInvalidTodos = errors.New("invalid todos array")
var ErrNotFound = errors.New("todo not found")

// ErrStorageUnavailable marks failures of an unreachable or misconfigured backend.
var ErrStorageUnavailable = errors.New("storage unavailable")

type Todo struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the durable keeper of the todo collection.
//
// ListAll returns records in position order. Put inserts unknown ids at the
// head and overwrites known ids in place. ReplaceAll must be all-or-nothing:
// a failed call leaves the previous collection observable.
type Store interface {
	ListAll(ctx context.Context) ([]Todo, error)
	Get(ctx context.Context, id int64) (Todo, error)
	Put(ctx context.Context, todo Todo) error
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
	ReplaceAll(ctx context.Context, items []Todo) error
}

// Unavailable returns a Store that fails every call with ErrStorageUnavailable.
// It stands in for a backend that could not be configured at startup.
func Unavailable(reason error) Store {
	return unavailableStore{reason: reason}
}

type unavailableStore struct {
	reason error
}

func (u unavailableStore) err() error {
	if u.reason == nil {
		return ErrStorageUnavailable
	}
	return errors.Join(ErrStorageUnavailable, u.reason)
}

func (u unavailableStore) ListAll(context.Context) ([]Todo, error)  { return nil, u.err() }
func (u unavailableStore) Get(context.Context, int64) (Todo, error) { return Todo{}, u.err() }
func (u unavailableStore) Put(context.Context, Todo) error          { return u.err() }
func (u unavailableStore) Delete(context.Context, int64) error      { return u.err() }
func (u unavailableStore) DeleteAll(context.Context) error          { return u.err() }
func (u unavailableStore) ReplaceAll(context.Context, []Todo) error { return u.err() }
