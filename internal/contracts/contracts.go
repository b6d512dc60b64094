package contracts

import "time"

const (
	EventTodoCreated    = "todo.created"
	EventTodoToggled    = "todo.toggled"
	EventTodoRenamed    = "todo.renamed"
	EventTodoDeleted    = "todo.deleted"
	EventTodosCleared   = "todos.cleared"
	EventTodosReordered = "todos.reordered"
)

// TodoEvent is published by todo-api after a mutation has been persisted.
// Collection-wide events (cleared, reordered) carry Count instead of a todo.
type TodoEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	TodoID     int64     `json:"todo_id,omitempty"`
	Text       string    `json:"text,omitempty"`
	Completed  bool      `json:"completed"`
	Count      int       `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	ShardID    int       `json:"shard_id"`
}
