package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/todo-1m/tasklist/internal/app/todos"
	"github.com/todo-1m/tasklist/internal/client"
	"github.com/todo-1m/tasklist/internal/platform/env"
	"github.com/todo-1m/tasklist/internal/platform/metrics"
)

type config struct {
	APIBase                   string
	Workers                   int
	StartupWait               time.Duration
	Duration                  time.Duration
	RampUp                    time.Duration
	ActionsPerWorkerPerSecond float64
	RequestTimeout            time.Duration
	MetricsAddr               string
	ClearOnStart              bool
}

type runner struct {
	cfg    config
	api    *client.Client
	health *http.Client

	requestsSuccess atomic.Int64
	requestsError   atomic.Int64
	activeWorkers   atomic.Int64
}

var (
	actionsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "todo_loadgen_actions_total",
		Help: "Actions executed by the load generator.",
	}, []string{"action", "outcome"})

	activeWorkersGauge = metrics.NewGauge(metrics.Opts{
		Name: "todo_loadgen_active_workers",
		Help: "Workers currently sending actions.",
	})
)

func init() {
	metrics.Default.MustRegister(actionsTotal, activeWorkersGauge)
}

func main() {
	cfg := loadConfig()
	if cfg.Workers <= 0 {
		log.Fatal("LOADGEN_WORKERS must be > 0")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := baseCtx
	if cfg.Duration > 0 {
		timeoutCtx, cancel := context.WithTimeout(baseCtx, cfg.Duration)
		defer cancel()
		ctx = timeoutCtx
	}

	go runMetricsServer(cfg.MetricsAddr)

	transport := &http.Transport{
		MaxIdleConns:        cfg.Workers * 2,
		MaxIdleConnsPerHost: cfg.Workers * 2,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}

	r := &runner{
		cfg:    cfg,
		api:    client.New(cfg.APIBase, httpClient),
		health: httpClient,
	}

	if err := r.waitForHTTPStatus(ctx, cfg.APIBase+"/readyz", http.StatusOK, cfg.StartupWait); err != nil {
		log.Fatalf("todo-api not ready: %v", err)
	}
	if cfg.ClearOnStart {
		if err := r.api.ClearAll(ctx); err != nil {
			log.Fatalf("clear todos: %v", err)
		}
	}
	log.Printf("load generator started: workers=%d duration=%s rate_per_worker=%.2f req/s",
		cfg.Workers, cfg.Duration.String(), cfg.ActionsPerWorkerPerSecond)

	go r.logProgress(ctx)

	var wg sync.WaitGroup
	for idx := 0; idx < cfg.Workers; idx++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			r.runWorker(ctx, index)
		}(idx)
	}

	<-ctx.Done()
	wg.Wait()

	log.Printf("load test complete: success_requests=%d error_requests=%d",
		r.requestsSuccess.Load(), r.requestsError.Load())
}

func loadConfig() config {
	return config{
		APIBase:                   strings.TrimRight(env.String("LOADGEN_API_BASE", "http://localhost:3001"), "/"),
		Workers:                   env.Int("LOADGEN_WORKERS", 4),
		StartupWait:               env.Duration("LOADGEN_STARTUP_WAIT", 2*time.Minute),
		Duration:                  env.Duration("LOADGEN_DURATION", 5*time.Minute),
		RampUp:                    env.Duration("LOADGEN_RAMP_UP", 10*time.Second),
		ActionsPerWorkerPerSecond: floatEnv("LOADGEN_ACTIONS_PER_WORKER_PER_SECOND", 2),
		RequestTimeout:            env.Duration("LOADGEN_REQUEST_TIMEOUT", 10*time.Second),
		MetricsAddr:               env.String("LOADGEN_METRICS_ADDR", ":9099"),
		ClearOnStart:              env.Bool("LOADGEN_CLEAR_ON_START", false),
	}
}

func (r *runner) waitForHTTPStatus(ctx context.Context, requestURL string, expectedStatus int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return err
		}
		resp, err := r.health.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(1200 * time.Millisecond)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode == expectedStatus {
			return nil
		}
		lastErr = fmt.Errorf("status=%d", resp.StatusCode)
		time.Sleep(1200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout")
	}
	return lastErr
}

func (r *runner) runWorker(ctx context.Context, index int) {
	if r.cfg.RampUp > 0 {
		delay := time.Duration((float64(r.cfg.RampUp) / float64(max(r.cfg.Workers, 1))) * float64(index))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	activeWorkersGauge.Inc()
	r.activeWorkers.Add(1)
	defer activeWorkersGauge.Dec()
	defer r.activeWorkers.Add(-1)

	interval := time.Second
	if r.cfg.ActionsPerWorkerPerSecond > 0 {
		interval = time.Duration(float64(time.Second) / r.cfg.ActionsPerWorkerPerSecond)
		if interval < 25*time.Millisecond {
			interval = 25 * time.Millisecond
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(index*7)))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runAction(ctx, rng)
		}
	}
}

func (r *runner) runAction(ctx context.Context, rng *rand.Rand) {
	items, err := r.api.List(ctx)
	r.record(ctx, "list", err)
	if err != nil {
		return
	}

	choice := rng.Float64()
	switch {
	case len(items) == 0 || choice < 0.45:
		_, err := r.api.Add(ctx, fmt.Sprintf("Load todo %d", rng.Intn(1_000_000)))
		r.record(ctx, "create", err)
	case choice < 0.65:
		_, err := r.api.Toggle(ctx, pick(items, rng).ID)
		r.record(ctx, "toggle", err)
	case choice < 0.80:
		_, err := r.api.Update(ctx, pick(items, rng).ID, fmt.Sprintf("Renamed todo %d", rng.Intn(1_000_000)))
		r.record(ctx, "rename", err)
	case choice < 0.90:
		shuffled := append([]todos.Todo(nil), items...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		_, err := r.api.Reorder(ctx, shuffled)
		r.record(ctx, "reorder", err)
	default:
		err := r.api.Delete(ctx, pick(items, rng).ID)
		r.record(ctx, "delete", err)
	}
}

// record counts an action. Concurrent workers race on the same collection, so
// a 404 after another worker deleted the todo counts as a conflict, not an error.
func (r *runner) record(ctx context.Context, action string, err error) {
	if err == nil {
		r.requestsSuccess.Add(1)
		actionsTotal.WithLabelValues(action, "success").Inc()
		return
	}
	if ctx.Err() != nil {
		return
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		actionsTotal.WithLabelValues(action, "conflict").Inc()
		return
	}
	r.requestsError.Add(1)
	actionsTotal.WithLabelValues(action, "error").Inc()
}

func (r *runner) logProgress(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("progress: success_requests=%d error_requests=%d active_workers=%d",
				r.requestsSuccess.Load(),
				r.requestsError.Load(),
				r.activeWorkers.Load(),
			)
		}
	}
}

func runMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.DefaultHandler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("load generator metrics endpoint listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("load generator metrics server failed: %v", err)
	}
}

func pick(items []todos.Todo, rng *rand.Rand) todos.Todo {
	return items[rng.Intn(len(items))]
}

func floatEnv(key string, fallback float64) float64 {
	raw := env.String(key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
