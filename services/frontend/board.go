package frontend

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/a-h/templ"
	"github.com/todo-1m/tasklist/internal/app/todos"
)

// Lister is the read side of the todo service.
type Lister interface {
	List(ctx context.Context) ([]todos.Todo, error)
}

type Counts struct {
	All       int
	Active    int
	Completed int
}

func CountTodos(items []todos.Todo) Counts {
	c := Counts{All: len(items)}
	for _, t := range items {
		if t.Completed {
			c.Completed++
		}
	}
	c.Active = c.All - c.Completed
	return c
}

// BoardPage renders the collection read-only, in stored order.
func BoardPage(items []todos.Todo) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		counts := CountTodos(items)
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w,
			`<p class="counts"><span>All <strong>%d</strong></span><span>Active <strong>%d</strong></span><span>Completed <strong>%d</strong></span></p>`,
			counts.All, counts.Active, counts.Completed); err != nil {
			return err
		}
		if len(items) == 0 {
			if _, err := io.WriteString(w, `<p class="empty">Nothing to do.</p>`); err != nil {
				return err
			}
			_, err := io.WriteString(w, pageFoot)
			return err
		}

		if _, err := io.WriteString(w, `<ul class="todo-list">`); err != nil {
			return err
		}
		for _, t := range items {
			class := "todo"
			if t.Completed {
				class += " completed"
			}
			if _, err := fmt.Fprintf(w,
				`<li class="%s" data-id="%d"><span class="text">%s</span><time datetime="%s">%s</time></li>`,
				class,
				t.ID,
				templ.EscapeString(t.Text),
				templ.EscapeString(t.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")),
				templ.EscapeString(t.CreatedAt.UTC().Format("Jan 2, 2006 15:04")),
			); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</ul>`); err != nil {
			return err
		}
		_, err := io.WriteString(w, pageFoot)
		return err
	})
}

// UnavailablePage is shown when the store cannot be read.
func UnavailablePage() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `<p class="empty unavailable">Storage backend is not available.</p>`); err != nil {
			return err
		}
		_, err := io.WriteString(w, pageFoot)
		return err
	})
}

func BoardHandler(lister Lister) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		items, err := lister.List(r.Context())
		if err != nil {
			log.Printf("render board: %v", err)
			templ.Handler(UnavailablePage(), templ.WithStatus(http.StatusServiceUnavailable)).ServeHTTP(w, r)
			return
		}
		templ.Handler(BoardPage(items)).ServeHTTP(w, r)
	})
}

const pageHead = `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>Todos</title><link rel="stylesheet" href="/static/styles.css"></head><body><main><h1>Todos</h1>`

const pageFoot = `</main></body></html>`
