package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/todo-1m/tasklist/internal/app/todos"
	"github.com/todo-1m/tasklist/internal/platform/dbpool"
	"github.com/todo-1m/tasklist/internal/platform/env"
	"github.com/todo-1m/tasklist/internal/platform/metrics"
	"github.com/todo-1m/tasklist/internal/platform/natsutil"
	"github.com/todo-1m/tasklist/internal/storage/filestore"
	"github.com/todo-1m/tasklist/internal/storage/memstore"
	"github.com/todo-1m/tasklist/internal/storage/pgstore"
	"github.com/todo-1m/tasklist/services/frontend"
)

type config struct {
	Addr           string
	Backend        string
	DataFile       string
	DatabaseURL    string
	NATSURL        string
	UIOrigin       string
	ShutdownTime   time.Duration
	ConnectTimeout time.Duration
}

// backend is what the running server knows about its store.
type backend struct {
	store   todos.Store
	pool    *pgxpool.Pool
	initErr error
}

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()

	be := openBackend(runCtx, cfg)
	if be.pool != nil {
		defer be.pool.Close()
	}
	if be.initErr != nil {
		log.Printf("storage backend %q unavailable, serving 503: %v", cfg.Backend, be.initErr)
	}

	var events *natsutil.Client
	var publish todos.PublishFunc
	if cfg.NATSURL != "" {
		client, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, cfg.ConnectTimeout)
		if err != nil {
			log.Printf("change events disabled: %v", err)
		} else {
			events = client
			defer events.Close()
			publish = natsutil.JetStreamPublisher{JS: client.JS}.Publish
		}
	}

	service := todos.NewService(be.store, publish)
	handler := todos.NewHandler(service, cfg.UIOrigin)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), be, events); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/static/", http.StripPrefix("/static/", frontend.StaticHandler()))
	mux.Handle("/api/", handler.Router())
	mux.Handle("/", frontend.BoardHandler(service))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	fmt.Printf("Todo API listening on %s (storage=%s)\n", cfg.Addr, cfg.Backend)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal(err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTime)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("todo-api graceful shutdown failed: %v", err)
	}
}

func loadConfig() config {
	addr := env.String("TODO_API_ADDR", env.DefaultAPIAddr)
	if port := env.String("PORT", ""); port != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = ""
		}
		addr = net.JoinHostPort(host, port)
	}
	return config{
		Addr:           addr,
		Backend:        strings.ToLower(env.String("STORAGE_BACKEND", "file")),
		DataFile:       env.String("TODO_DATA_FILE", env.DefaultDataFile),
		DatabaseURL:    env.String("DATABASE_URL", env.DefaultDatabaseURL),
		NATSURL:        env.String("NATS_URL", ""),
		UIOrigin:       env.String("UI_ORIGIN", "*"),
		ShutdownTime:   env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ConnectTimeout: env.Duration("STORAGE_CONNECT_TIMEOUT", 20*time.Second),
	}
}

// openBackend never fails: a backend that cannot start is replaced by one
// that answers every call with ErrStorageUnavailable.
func openBackend(ctx context.Context, cfg config) backend {
	switch cfg.Backend {
	case "memory":
		return backend{store: memstore.New()}
	case "file":
		store, err := filestore.Open(cfg.DataFile)
		if err != nil {
			return unavailable(err)
		}
		log.Printf("storing todos in %s", store.Path())
		return backend{store: store}
	case "postgres":
		pool, err := dbpool.Connect(ctx, cfg.DatabaseURL, cfg.ConnectTimeout)
		if err != nil {
			return unavailable(err)
		}
		store := pgstore.New(pool)
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := store.EnsureSchema(schemaCtx); err != nil {
			pool.Close()
			return unavailable(err)
		}
		return backend{store: store, pool: pool}
	default:
		return unavailable(fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Backend))
	}
}

func unavailable(err error) backend {
	return backend{store: todos.Unavailable(err), initErr: err}
}

func checkReadiness(ctx context.Context, be backend, events *natsutil.Client) error {
	if be.initErr != nil {
		return fmt.Errorf("storage backend not initialized: %w", be.initErr)
	}
	if events != nil && !events.Connected() {
		return errors.New("nats is not connected")
	}
	if be.pool != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
		defer cancel()
		if err := be.pool.Ping(checkCtx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}
