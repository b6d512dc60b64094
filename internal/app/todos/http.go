package todos

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	Service       *Service
	AllowedOrigin string
}

func NewHandler(service *Service, allowedOrigin string) *Handler {
	return &Handler{
		Service:       service,
		AllowedOrigin: allowedOrigin,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.corsMiddleware)
	r.Use(metricsMiddleware)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/api/todos", h.handleList)
	r.Post("/api/todos", h.handleCreate)
	r.Put("/api/todos", h.handleRename)
	r.Delete("/api/todos", h.handleDeleteAll)
	r.Put("/api/todos/reorder", h.handleReorder)
	r.Patch("/api/todos/{id}", h.handleToggle)
	r.Delete("/api/todos/{id}", h.handleDelete)

	return r
}

type textRequest struct {
	Text string `json:"text"`
}

type reorderRequest struct {
	Todos *[]reorderItem `json:"todos"`
}

// reorderItem accepts createdAt in whatever shape the client echoes back;
// only RFC 3339 strings are kept.
type reorderItem struct {
	ID        int64           `json:"id"`
	Text      string          `json:"text"`
	Completed bool            `json:"completed"`
	CreatedAt json.RawMessage `json:"createdAt,omitempty"`
}

func (i reorderItem) todo() Todo {
	t := Todo{ID: i.ID, Text: i.Text, Completed: i.Completed}
	var raw string
	if len(i.CreatedAt) > 0 && json.Unmarshal(i.CreatedAt, &raw) == nil {
		if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			t.CreatedAt = at.UTC()
		}
	}
	return t
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch todos")
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	todo, err := h.Service.Create(r.Context(), req.Text)
	if err != nil {
		h.writeServiceError(w, err, "Failed to create todo")
		return
	}
	h.writeJSON(w, http.StatusCreated, todo)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	todo, err := h.Service.Toggle(r.Context(), parseTodoID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, err, "Failed to update todo")
		return
	}
	h.writeJSON(w, http.StatusOK, todo)
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	todo, err := h.Service.Rename(r.Context(), parseTodoID(r.URL.Query().Get("id")), req.Text)
	if err != nil {
		h.writeServiceError(w, err, "Failed to update todo text")
		return
	}
	h.writeJSON(w, http.StatusOK, todo)
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid todos array")
		return
	}

	var items []Todo
	if req.Todos != nil {
		items = make([]Todo, 0, len(*req.Todos))
		for _, item := range *req.Todos {
			items = append(items, item.todo())
		}
	}
	ordered, err := h.Service.Reorder(r.Context(), items)
	if err != nil {
		h.writeServiceError(w, err, "Failed to reorder todos")
		return
	}
	h.writeJSON(w, http.StatusOK, ordered)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), parseTodoID(chi.URLParam(r, "id"))); err != nil {
		h.writeServiceError(w, err, "Failed to delete todo")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteAll(r.Context()); err != nil {
		h.writeServiceError(w, err, "Failed to clear todos")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseTodoID returns 0 for anything that is not a positive integer. No
// stored todo has id 0, so the lookup reports not-found.
func parseTodoID(raw string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// decodeBody treats an empty body as an empty object.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, internalMsg string) {
	switch {
	case errors.Is(err, ErrTextRequired):
		h.writeError(w, http.StatusBadRequest, "Text is required")
	case errors.Is(err, ErrInvalidTodos):
		h.writeError(w, http.StatusBadRequest, "Invalid todos array")
	case errors.Is(err, ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Todo not found")
	case errors.Is(err, ErrStorageUnavailable):
		log.Printf("storage unavailable: %v", err)
		h.writeError(w, http.StatusServiceUnavailable, "Storage backend is not available")
	default:
		log.Printf("%s: %v", strings.ToLower(internalMsg), err)
		h.writeError(w, http.StatusInternalServerError, internalMsg)
	}
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin, Access-Control-Request-Headers")
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOriginForRequest(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
		if requestHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) allowedOriginForRequest(requestOrigin string) string {
	allowed := strings.TrimSpace(h.AllowedOrigin)
	if allowed == "" || allowed == "*" {
		return "*"
	}

	origin := strings.TrimSpace(requestOrigin)
	if origin == "" {
		return allowed
	}
	if origin == allowed || isEquivalentLoopbackOrigin(origin, allowed) {
		return origin
	}
	return allowed
}

func isEquivalentLoopbackOrigin(originA, originB string) bool {
	a, err := url.Parse(originA)
	if err != nil {
		return false
	}
	b, err := url.Parse(originB)
	if err != nil {
		return false
	}
	if !isLoopbackHost(a.Hostname()) || !isLoopbackHost(b.Hostname()) {
		return false
	}
	if a.Port() != b.Port() {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme)
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
