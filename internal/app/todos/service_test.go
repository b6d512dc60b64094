package todos

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/todo-1m/tasklist/internal/contracts"
	"github.com/todo-1m/tasklist/internal/sharding"
)

type fakeStore struct {
	items []Todo

	listErr    error
	getErr     error
	putErr     error
	replaceErr error
	calls      []string
}

func (f *fakeStore) ListAll(_ context.Context) ([]Todo, error) {
	f.calls = append(f.calls, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.items), nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (Todo, error) {
	f.calls = append(f.calls, "get")
	if f.getErr != nil {
		return Todo{}, f.getErr
	}
	for _, t := range f.items {
		if t.ID == id {
			return t, nil
		}
	}
	return Todo{}, ErrNotFound
}

func (f *fakeStore) Put(_ context.Context, todo Todo) error {
	f.calls = append(f.calls, "put")
	if f.putErr != nil {
		return f.putErr
	}
	for i, t := range f.items {
		if t.ID == todo.ID {
			f.items[i] = todo
			return nil
		}
	}
	f.items = slices.Insert(f.items, 0, todo)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id int64) error {
	f.calls = append(f.calls, "delete")
	for i, t := range f.items {
		if t.ID == id {
			f.items = slices.Delete(f.items, i, i+1)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) DeleteAll(_ context.Context) error {
	f.calls = append(f.calls, "delete-all")
	f.items = nil
	return nil
}

// ReplaceAll mimics an atomic backend: on failure nothing changes.
func (f *fakeStore) ReplaceAll(_ context.Context, items []Todo) error {
	f.calls = append(f.calls, "replace")
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.items = slices.Clone(items)
	return nil
}

var testNow = time.Date(2026, 2, 9, 22, 0, 0, 0, time.UTC)

func sequentialIDs(start int64) func() int64 {
	next := start
	return func() int64 {
		id := next
		next++
		return id
	}
}

func newTestService(store Store) *Service {
	svc := NewService(store, nil)
	svc.Now = func() time.Time { return testNow }
	svc.NewID = sequentialIDs(100)
	svc.NewEventID = func() string { return "evt-1" }
	return svc
}

func TestCreateThenList(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)

	created, err := svc.Create(context.Background(), "  buy milk ")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID != 100 || created.Text != "buy milk" || created.Completed || !created.CreatedAt.Equal(testNow) {
		t.Fatalf("unexpected todo: %+v", created)
	}

	items, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(items) != 1 || items[0] != created {
		t.Fatalf("expected created todo in list, got %+v", items)
	}
}

func TestCreateRequiresText(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := svc.Create(context.Background(), text); !errors.Is(err, ErrTextRequired) {
			t.Fatalf("Create(%q): expected ErrTextRequired, got %v", text, err)
		}
	}
	if len(store.calls) != 0 {
		t.Fatalf("validation must run before storage, got calls %v", store.calls)
	}
}

func TestCreateYieldsDistinctIDs(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)
	fixed := testNow
	svc.Now = func() time.Time { return fixed }
	svc.NewID = ClockIDs(svc.Now)

	seen := map[int64]bool{}
	for i := 0; i < 50; i++ {
		todo, err := svc.Create(context.Background(), "item")
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if seen[todo.ID] {
			t.Fatalf("duplicate id %d", todo.ID)
		}
		seen[todo.ID] = true
	}
}

func TestCreateSkipsTakenID(t *testing.T) {
	store := &fakeStore{items: []Todo{{ID: 100, Text: "from reorder"}}}
	svc := newTestService(store)

	created, err := svc.Create(context.Background(), "new")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID != 101 {
		t.Fatalf("expected id 101 after collision, got %d", created.ID)
	}
}

func TestCreateGivesUpWhenNoFreeID(t *testing.T) {
	store := &fakeStore{items: []Todo{{ID: 7, Text: "taken"}}}
	svc := newTestService(store)
	svc.NewID = func() int64 { return 7 }

	if _, err := svc.Create(context.Background(), "new"); !errors.Is(err, errNoFreeID) {
		t.Fatalf("expected errNoFreeID, got %v", err)
	}
}

func TestToggleIsInvolution(t *testing.T) {
	store := &fakeStore{items: []Todo{{ID: 1, Text: "a", CreatedAt: testNow}}}
	svc := newTestService(store)

	first, err := svc.Toggle(context.Background(), 1)
	if err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}
	if !first.Completed {
		t.Fatalf("expected completed after first toggle: %+v", first)
	}
	second, err := svc.Toggle(context.Background(), 1)
	if err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}
	if second.Completed {
		t.Fatalf("expected not completed after second toggle: %+v", second)
	}
	if second.Text != "a" || !second.CreatedAt.Equal(testNow) {
		t.Fatalf("toggle changed other fields: %+v", second)
	}
}

func TestToggleNotFound(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	if _, err := svc.Toggle(context.Background(), 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if slices.Contains(store.calls, "put") {
		t.Fatalf("no write expected for missing todo, got %v", store.calls)
	}
}

func TestRenamePreservesIDAndCompleted(t *testing.T) {
	store := &fakeStore{items: []Todo{{ID: 1, Text: "old", Completed: true, CreatedAt: testNow}}}
	svc := newTestService(store)

	renamed, err := svc.Rename(context.Background(), 1, " new text ")
	if err != nil {
		t.Fatalf("Rename returned error: %v", err)
	}
	want := Todo{ID: 1, Text: "new text", Completed: true, CreatedAt: testNow}
	if renamed != want {
		t.Fatalf("unexpected rename result: %+v", renamed)
	}
}

func TestRenameValidation(t *testing.T) {
	store := &fakeStore{items: []Todo{{ID: 1, Text: "old"}}}
	svc := newTestService(store)

	if _, err := svc.Rename(context.Background(), 1, " "); !errors.Is(err, ErrTextRequired) {
		t.Fatalf("expected ErrTextRequired, got %v", err)
	}
	if _, err := svc.Rename(context.Background(), 0, ""); !errors.Is(err, ErrTextRequired) {
		t.Fatalf("empty text is reported before the id lookup, got %v", err)
	}
	if _, err := svc.Rename(context.Background(), 2, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReorderRoundTrip(t *testing.T) {
	earlier := testNow.Add(-time.Hour)
	store := &fakeStore{items: []Todo{
		{ID: 1, Text: "a", CreatedAt: earlier},
		{ID: 2, Text: "b", CreatedAt: earlier},
	}}
	svc := newTestService(store)

	payload := []Todo{
		{ID: 2, Text: "b", Completed: true},
		{ID: 3, Text: "imported"},
		{ID: 1, Text: "a"},
	}
	got, err := svc.Reorder(context.Background(), payload)
	if err != nil {
		t.Fatalf("Reorder returned error: %v", err)
	}

	listed, _ := svc.List(context.Background())
	if len(listed) != 3 || listed[0].ID != 2 || listed[1].ID != 3 || listed[2].ID != 1 {
		t.Fatalf("unexpected order after reorder: %+v", listed)
	}
	if !slices.Equal(got, listed) {
		t.Fatalf("response differs from stored state:\n got %+v\n stored %+v", got, listed)
	}
	if !listed[0].Completed {
		t.Fatalf("reorder must install payload fields: %+v", listed[0])
	}
	if !listed[0].CreatedAt.Equal(earlier) || !listed[2].CreatedAt.Equal(earlier) {
		t.Fatalf("known todos must keep createdAt: %+v", listed)
	}
	if !listed[1].CreatedAt.Equal(testNow) {
		t.Fatalf("unknown todo without createdAt gets now: %+v", listed[1])
	}
}

func TestReorderEmptyClears(t *testing.T) {
	store := &fakeStore{items: []Todo{{ID: 1, Text: "a"}}}
	svc := newTestService(store)

	got, err := svc.Reorder(context.Background(), []Todo{})
	if err != nil {
		t.Fatalf("Reorder returned error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
	if len(store.items) != 0 {
		t.Fatalf("expected empty store, got %+v", store.items)
	}
}

func TestReorderValidation(t *testing.T) {
	tests := []struct {
		name  string
		items []Todo
	}{
		{"nil payload", nil},
		{"missing id", []Todo{{Text: "a"}}},
		{"negative id", []Todo{{ID: -4, Text: "a"}}},
		{"empty text", []Todo{{ID: 1, Text: "  "}}},
		{"duplicate id", []Todo{{ID: 1, Text: "a"}, {ID: 1, Text: "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{items: []Todo{{ID: 9, Text: "keep"}}}
			svc := newTestService(store)
			if _, err := svc.Reorder(context.Background(), tt.items); !errors.Is(err, ErrInvalidTodos) {
				t.Fatalf("expected ErrInvalidTodos, got %v", err)
			}
			if len(store.calls) != 0 {
				t.Fatalf("validation must run before storage, got calls %v", store.calls)
			}
		})
	}
}

func TestReorderFailureLeavesPreviousState(t *testing.T) {
	before := []Todo{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}}
	store := &fakeStore{items: slices.Clone(before), replaceErr: errors.New("commit failed")}
	svc := newTestService(store)

	if _, err := svc.Reorder(context.Background(), []Todo{{ID: 2, Text: "b"}}); err == nil {
		t.Fatal("expected error")
	}
	listed, _ := svc.List(context.Background())
	if !slices.Equal(listed, before) {
		t.Fatalf("expected pre-reorder state, got %+v", listed)
	}
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	store := &fakeStore{items: []Todo{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}, {ID: 3, Text: "c"}}}
	svc := newTestService(store)

	if err := svc.Delete(context.Background(), 2); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	want := []Todo{{ID: 1, Text: "a"}, {ID: 3, Text: "c"}}
	if !slices.Equal(store.items, want) {
		t.Fatalf("unexpected items: %+v", store.items)
	}
	if err := svc.Delete(context.Background(), 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !slices.Equal(store.items, want) {
		t.Fatalf("missing delete must not mutate: %+v", store.items)
	}
}

func TestDeleteAllEmpties(t *testing.T) {
	store := &fakeStore{items: []Todo{{ID: 1, Text: "a"}}}
	svc := newTestService(store)

	if err := svc.DeleteAll(context.Background()); err != nil {
		t.Fatalf("DeleteAll returned error: %v", err)
	}
	items, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", items)
	}
}

func TestStorageErrorsPassThrough(t *testing.T) {
	store := &fakeStore{listErr: ErrStorageUnavailable}
	svc := newTestService(store)
	if _, err := svc.List(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}

	store = &fakeStore{items: []Todo{{ID: 1, Text: "a"}}, putErr: errors.New("disk full")}
	svc = newTestService(store)
	if _, err := svc.Toggle(context.Background(), 1); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected raw storage error, got %v", err)
	}
}

func TestUnavailableStore(t *testing.T) {
	svc := newTestService(Unavailable(errors.New("no credentials")))
	_, err := svc.List(context.Background())
	if !errors.Is(err, ErrStorageUnavailable) || !strings.Contains(err.Error(), "no credentials") {
		t.Fatalf("expected wrapped ErrStorageUnavailable, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "x"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable from Create, got %v", err)
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	type published struct {
		subject string
		event   contracts.TodoEvent
	}
	var got []published

	store := &fakeStore{}
	svc := newTestService(store)
	svc.Publish = func(subject string, payload []byte) error {
		var event contracts.TodoEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("invalid event payload: %v", err)
		}
		got = append(got, published{subject: subject, event: event})
		return nil
	}

	ctx := context.Background()
	created, _ := svc.Create(ctx, "buy milk")
	_, _ = svc.Toggle(ctx, created.ID)
	_, _ = svc.Reorder(ctx, []Todo{created})
	_ = svc.DeleteAll(ctx)

	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got))
	}
	if got[0].event.EventType != contracts.EventTodoCreated || got[0].event.TodoID != created.ID || got[0].event.Text != "buy milk" {
		t.Fatalf("unexpected created event: %+v", got[0].event)
	}
	if got[0].subject != sharding.GetEventSubject("todo", "100") || got[0].event.ShardID != sharding.GetShardID("100") {
		t.Fatalf("unexpected subject %q shard %d", got[0].subject, got[0].event.ShardID)
	}
	if got[1].event.EventType != contracts.EventTodoToggled || !got[1].event.Completed {
		t.Fatalf("unexpected toggled event: %+v", got[1].event)
	}
	if got[2].event.EventType != contracts.EventTodosReordered || got[2].event.Count != 1 {
		t.Fatalf("unexpected reordered event: %+v", got[2].event)
	}
	if got[3].subject != sharding.GetEventSubject("todos", sharding.CollectionKey) {
		t.Fatalf("unexpected cleared subject: %q", got[3].subject)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	svc.Publish = func(string, []byte) error { return errors.New("nats down") }

	before := eventsPublishedTotal.Value(contracts.EventTodoCreated, "error")
	if _, err := svc.Create(context.Background(), "still saved"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(store.items) != 1 {
		t.Fatalf("expected todo to be stored, got %+v", store.items)
	}
	if after := eventsPublishedTotal.Value(contracts.EventTodoCreated, "error"); after != before+1 {
		t.Fatalf("expected error counter to grow, before=%v after=%v", before, after)
	}
}

func TestClockIDsNeverRepeat(t *testing.T) {
	now := testNow
	next := ClockIDs(func() time.Time { return now })

	a := next()
	b := next()
	now = now.Add(-time.Second)
	c := next()
	if !(a < b && b < c) {
		t.Fatalf("ids not strictly increasing: %d %d %d", a, b, c)
	}
	if a != testNow.UnixMilli() {
		t.Fatalf("first id should be the clock value, got %d", a)
	}
}
