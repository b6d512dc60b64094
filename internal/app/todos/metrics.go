package todos

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/todo-1m/tasklist/internal/platform/metrics"
)

var (
	httpRequestsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "todo_http_requests_total",
		Help: "HTTP requests served by the todo API.",
	}, []string{"method", "route", "status"})

	eventsPublishedTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "todo_events_published_total",
		Help: "Change events handed to the event publisher.",
	}, []string{"type", "outcome"})
)

func init() {
	metrics.Default.MustRegister(httpRequestsTotal, eventsPublishedTotal)
}

// metricsMiddleware labels requests with the matched route pattern so that
// ids in the path do not create one series per todo.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
