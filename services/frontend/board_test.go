package frontend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/todo-1m/tasklist/internal/app/todos"
)

type staticLister struct {
	items []todos.Todo
	err   error
}

func (s staticLister) List(context.Context) ([]todos.Todo, error) {
	return s.items, s.err
}

var created = time.Date(2026, 2, 9, 22, 0, 0, 0, time.UTC)

func TestCountTodos(t *testing.T) {
	got := CountTodos([]todos.Todo{
		{ID: 1, Completed: true},
		{ID: 2},
		{ID: 3},
	})
	if got != (Counts{All: 3, Active: 2, Completed: 1}) {
		t.Fatalf("unexpected counts: %+v", got)
	}
}

func TestBoardEscapesText(t *testing.T) {
	var sb strings.Builder
	items := []todos.Todo{{ID: 7, Text: `<script>alert("x")</script>`, Completed: true, CreatedAt: created}}
	if err := BoardPage(items).Render(context.Background(), &sb); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	html := sb.String()
	if strings.Contains(html, "<script>") {
		t.Fatalf("text was not escaped: %s", html)
	}
	if !strings.Contains(html, `class="todo completed" data-id="7"`) {
		t.Fatalf("missing completed item: %s", html)
	}
	if !strings.Contains(html, "Completed <strong>1</strong>") {
		t.Fatalf("missing completed count: %s", html)
	}
}

func TestBoardHandler(t *testing.T) {
	handler := BoardHandler(staticLister{items: []todos.Todo{{ID: 1, Text: "buy milk", CreatedAt: created}}})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "buy milk") {
		t.Fatalf("missing todo text: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestBoardHandlerUnavailable(t *testing.T) {
	handler := BoardHandler(staticLister{err: errors.Join(todos.ErrStorageUnavailable, errors.New("down"))})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestStaticHandlerServesStyles(t *testing.T) {
	rr := httptest.NewRecorder()
	StaticHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/styles.css", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), ".todo-list") {
		t.Fatalf("unexpected static response: %d", rr.Code)
	}
}
