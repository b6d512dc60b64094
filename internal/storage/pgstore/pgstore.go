// Package pgstore keeps todos in PostgreSQL. ReplaceAll deletes and re-inserts
// the whole collection inside one transaction.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/todo-1m/tasklist/internal/app/todos"
)

const createTodosTableSQL = `
CREATE TABLE IF NOT EXISTS todos (
  id bigint PRIMARY KEY,
  text text NOT NULL,
  completed boolean NOT NULL DEFAULT false,
  position bigint NOT NULL,
  created_at timestamptz NOT NULL
)`

const createPositionIndexSQL = `
CREATE INDEX IF NOT EXISTS todos_position_idx ON todos (position)`

const listTodosSQL = `
SELECT id, text, completed, created_at
FROM todos
ORDER BY position ASC, created_at DESC`

const getTodoSQL = `
SELECT id, text, completed, created_at
FROM todos
WHERE id = $1`

// New rows take a position before the current head.
const upsertTodoSQL = `
INSERT INTO todos (id, text, completed, position, created_at)
VALUES ($1, $2, $3, (SELECT COALESCE(MIN(position), 0) - 1 FROM todos), $4)
ON CONFLICT (id) DO UPDATE
SET text = EXCLUDED.text,
    completed = EXCLUDED.completed
`

const deleteTodoSQL = `DELETE FROM todos WHERE id = $1`

const deleteAllTodosSQL = `DELETE FROM todos`

var copyColumns = []string{"id", "text", "completed", "position", "created_at"}

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, createTodosTableSQL); err != nil {
		return wrapErr("create todos table", err)
	}
	if _, err := s.Pool.Exec(ctx, createPositionIndexSQL); err != nil {
		return wrapErr("create position index", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return wrapErr("ping", s.Pool.Ping(ctx))
}

func (s *Store) ListAll(ctx context.Context) ([]todos.Todo, error) {
	rows, err := s.Pool.Query(ctx, listTodosSQL)
	if err != nil {
		return nil, wrapErr("list todos", err)
	}
	defer rows.Close()

	result := make([]todos.Todo, 0)
	for rows.Next() {
		var t todos.Todo
		if err := rows.Scan(&t.ID, &t.Text, &t.Completed, &t.CreatedAt); err != nil {
			return nil, wrapErr("scan todo", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list todos", err)
	}
	return result, nil
}

func (s *Store) Get(ctx context.Context, id int64) (todos.Todo, error) {
	var t todos.Todo
	err := s.Pool.QueryRow(ctx, getTodoSQL, id).Scan(&t.ID, &t.Text, &t.Completed, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return todos.Todo{}, todos.ErrNotFound
		}
		return todos.Todo{}, wrapErr("get todo", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (s *Store) Put(ctx context.Context, todo todos.Todo) error {
	_, err := s.Pool.Exec(ctx, upsertTodoSQL, todo.ID, todo.Text, todo.Completed, todo.CreatedAt)
	return wrapErr("put todo", err)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.Pool.Exec(ctx, deleteTodoSQL, id)
	if err != nil {
		return wrapErr("delete todo", err)
	}
	if tag.RowsAffected() == 0 {
		return todos.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, deleteAllTodosSQL)
	return wrapErr("delete all todos", err)
}

func (s *Store) ReplaceAll(ctx context.Context, items []todos.Todo) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapErr("begin replace", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteAllTodosSQL); err != nil {
		return wrapErr("clear todos", err)
	}
	if len(items) > 0 {
		rows := make([][]any, 0, len(items))
		for idx, t := range items {
			rows = append(rows, []any{t.ID, t.Text, t.Completed, int64(idx), t.CreatedAt})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"todos"}, copyColumns, pgx.CopyFromRows(rows)); err != nil {
			return wrapErr("insert todos", err)
		}
	}
	return wrapErr("commit replace", tx.Commit(ctx))
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %s: %v", todos.ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUnavailable reports connection-level failures: the server could not be
// reached, went away, or refused work because it is shutting down or out of
// resources.
func isUnavailable(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			strings.HasPrefix(pgErr.Code, "57P")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
