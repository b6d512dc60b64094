package todos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nuid"
	"github.com/todo-1m/tasklist/internal/contracts"
	"github.com/todo-1m/tasklist/internal/sharding"
)

var errNoFreeID = errors.New("could not allocate a free todo id")

const maxIDAttempts = 8

type PublishFunc func(subject string, payload []byte) error

type Service struct {
	Store Store
	// Publish is optional; when nil no change events are emitted.
	Publish    PublishFunc
	Now        func() time.Time
	NewID      func() int64
	NewEventID func() string
}

func NewService(store Store, publish PublishFunc) *Service {
	now := func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
	return &Service{
		Store:      store,
		Publish:    publish,
		Now:        now,
		NewID:      ClockIDs(now),
		NewEventID: nuid.Next,
	}
}

// ClockIDs derives ids from the millisecond clock. Values are strictly
// increasing within the process even when the clock stalls or steps back.
func ClockIDs(now func() time.Time) func() int64 {
	var last atomic.Int64
	return func() int64 {
		for {
			prev := last.Load()
			next := now().UnixMilli()
			if next <= prev {
				next = prev + 1
			}
			if last.CompareAndSwap(prev, next) {
				return next
			}
		}
	}
}

func (s *Service) List(ctx context.Context) ([]Todo, error) {
	items, err := s.Store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Todo{}
	}
	return items, nil
}

func (s *Service) Create(ctx context.Context, text string) (Todo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Todo{}, ErrTextRequired
	}

	id, err := s.freshID(ctx)
	if err != nil {
		return Todo{}, err
	}
	todo := Todo{
		ID:        id,
		Text:      text,
		Completed: false,
		CreatedAt: s.Now(),
	}
	if err := s.Store.Put(ctx, todo); err != nil {
		return Todo{}, err
	}
	s.emit(contracts.EventTodoCreated, &todo, 0)
	return todo, nil
}

// Toggle flips the completed flag of the stored record; calling it twice
// restores the original state.
func (s *Service) Toggle(ctx context.Context, id int64) (Todo, error) {
	todo, err := s.Store.Get(ctx, id)
	if err != nil {
		return Todo{}, err
	}
	todo.Completed = !todo.Completed
	if err := s.Store.Put(ctx, todo); err != nil {
		return Todo{}, err
	}
	s.emit(contracts.EventTodoToggled, &todo, 0)
	return todo, nil
}

func (s *Service) Rename(ctx context.Context, id int64, text string) (Todo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Todo{}, ErrTextRequired
	}

	todo, err := s.Store.Get(ctx, id)
	if err != nil {
		return Todo{}, err
	}
	todo.Text = text
	if err := s.Store.Put(ctx, todo); err != nil {
		return Todo{}, err
	}
	s.emit(contracts.EventTodoRenamed, &todo, 0)
	return todo, nil
}

// Reorder installs items as the complete collection in the given order.
// A nil slice is rejected; an empty slice clears the list.
func (s *Service) Reorder(ctx context.Context, items []Todo) ([]Todo, error) {
	if items == nil {
		return nil, ErrInvalidTodos
	}

	seen := make(map[int64]struct{}, len(items))
	ordered := make([]Todo, 0, len(items))
	for idx, item := range items {
		item.Text = strings.TrimSpace(item.Text)
		switch {
		case item.ID <= 0:
			return nil, fmt.Errorf("%w: item %d has no id", ErrInvalidTodos, idx)
		case item.Text == "":
			return nil, fmt.Errorf("%w: item %d has empty text", ErrInvalidTodos, idx)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidTodos, item.ID)
		}
		seen[item.ID] = struct{}{}
		ordered = append(ordered, item)
	}

	current, err := s.Store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	createdAt := make(map[int64]time.Time, len(current))
	for _, t := range current {
		createdAt[t.ID] = t.CreatedAt
	}
	now := s.Now()
	for i := range ordered {
		if at, ok := createdAt[ordered[i].ID]; ok {
			ordered[i].CreatedAt = at
			continue
		}
		if ordered[i].CreatedAt.IsZero() {
			ordered[i].CreatedAt = now
		}
	}

	if err := s.Store.ReplaceAll(ctx, ordered); err != nil {
		return nil, err
	}
	s.emit(contracts.EventTodosReordered, nil, len(ordered))
	return ordered, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(contracts.EventTodoDeleted, &Todo{ID: id}, 0)
	return nil
}

func (s *Service) DeleteAll(ctx context.Context) error {
	if err := s.Store.DeleteAll(ctx); err != nil {
		return err
	}
	s.emit(contracts.EventTodosCleared, nil, 0)
	return nil
}

func (s *Service) freshID(ctx context.Context) (int64, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.NewID()
		_, err := s.Store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return 0, err
		}
	}
	return 0, errNoFreeID
}

func (s *Service) emit(eventType string, todo *Todo, count int) {
	if s.Publish == nil {
		return
	}

	event := contracts.TodoEvent{
		EventID:    s.NewEventID(),
		EventType:  eventType,
		Count:      count,
		OccurredAt: s.Now(),
	}
	entityType, entityID := "todos", sharding.CollectionKey
	if todo != nil {
		event.TodoID = todo.ID
		event.Text = todo.Text
		event.Completed = todo.Completed
		entityType, entityID = "todo", strconv.FormatInt(todo.ID, 10)
	}
	event.ShardID = sharding.GetShardID(entityID)

	payload, err := json.Marshal(event)
	if err != nil {
		eventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		log.Printf("encode %s event failed: %v", eventType, err)
		return
	}
	if err := s.Publish(sharding.GetEventSubject(entityType, entityID), payload); err != nil {
		eventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		log.Printf("publish %s event failed: %v", eventType, err)
		return
	}
	eventsPublishedTotal.WithLabelValues(eventType, "success").Inc()
}
