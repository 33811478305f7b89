// Package metrics provides a simple Prometheus-compatible metrics endpoint.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds runtime counters for the orchestration engine.
type Metrics struct {
	// Dispatch
	Dispatches     atomic.Int64
	DispatchErrors atomic.Int64

	// Provider calls
	ProviderCalls      atomic.Int64
	ProviderCallErrors atomic.Int64

	// Cache
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	// Tasks
	TasksSubmitted atomic.Int64
	TasksCompleted atomic.Int64
	TasksFailed    atomic.Int64

	// Timing (last dispatch duration in ms)
	LastDispatchDurationMs atomic.Int64

	startTime time.Time
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Global returns the global metrics instance
func Global() *Metrics {
	globalOnce.Do(func() {
		global = &Metrics{
			startTime: time.Now(),
		}
	})
	return global
}

// RecordDispatch records a completed dispatch attempt
func (m *Metrics) RecordDispatch(success bool, durationMs int64) {
	m.Dispatches.Add(1)
	if !success {
		m.DispatchErrors.Add(1)
	}
	m.LastDispatchDurationMs.Store(durationMs)
}

// RecordProviderCall records one provider call
func (m *Metrics) RecordProviderCall(success bool) {
	m.ProviderCalls.Add(1)
	if !success {
		m.ProviderCallErrors.Add(1)
	}
}

// RecordCacheLookup records a cache lookup outcome
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheHits.Add(1)
	} else {
		m.CacheMisses.Add(1)
	}
}

// RecordTask records a task reaching a terminal state
func (m *Metrics) RecordTask(completed bool) {
	if completed {
		m.TasksCompleted.Add(1)
	} else {
		m.TasksFailed.Add(1)
	}
}

// Handler returns an HTTP handler for /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		uptime := time.Since(m.startTime).Seconds()

		fmt.Fprintf(w, "# HELP ensemble_uptime_seconds Time since the engine started\n")
		fmt.Fprintf(w, "# TYPE ensemble_uptime_seconds gauge\n")
		fmt.Fprintf(w, "ensemble_uptime_seconds %.2f\n\n", uptime)

		fmt.Fprintf(w, "# HELP ensemble_dispatches_total Total dispatch attempts\n")
		fmt.Fprintf(w, "# TYPE ensemble_dispatches_total counter\n")
		fmt.Fprintf(w, "ensemble_dispatches_total %d\n\n", m.Dispatches.Load())

		fmt.Fprintf(w, "# HELP ensemble_dispatch_errors_total Total dispatch failures\n")
		fmt.Fprintf(w, "# TYPE ensemble_dispatch_errors_total counter\n")
		fmt.Fprintf(w, "ensemble_dispatch_errors_total %d\n\n", m.DispatchErrors.Load())

		fmt.Fprintf(w, "# HELP ensemble_provider_calls_total Total provider calls\n")
		fmt.Fprintf(w, "# TYPE ensemble_provider_calls_total counter\n")
		fmt.Fprintf(w, "ensemble_provider_calls_total %d\n\n", m.ProviderCalls.Load())

		fmt.Fprintf(w, "# HELP ensemble_provider_call_errors_total Total failed provider calls\n")
		fmt.Fprintf(w, "# TYPE ensemble_provider_call_errors_total counter\n")
		fmt.Fprintf(w, "ensemble_provider_call_errors_total %d\n\n", m.ProviderCallErrors.Load())

		fmt.Fprintf(w, "# HELP ensemble_cache_hits_total Total response cache hits\n")
		fmt.Fprintf(w, "# TYPE ensemble_cache_hits_total counter\n")
		fmt.Fprintf(w, "ensemble_cache_hits_total %d\n\n", m.CacheHits.Load())

		fmt.Fprintf(w, "# HELP ensemble_cache_misses_total Total response cache misses\n")
		fmt.Fprintf(w, "# TYPE ensemble_cache_misses_total counter\n")
		fmt.Fprintf(w, "ensemble_cache_misses_total %d\n\n", m.CacheMisses.Load())

		fmt.Fprintf(w, "# HELP ensemble_tasks_submitted_total Total tasks submitted\n")
		fmt.Fprintf(w, "# TYPE ensemble_tasks_submitted_total counter\n")
		fmt.Fprintf(w, "ensemble_tasks_submitted_total %d\n\n", m.TasksSubmitted.Load())

		fmt.Fprintf(w, "# HELP ensemble_tasks_completed_total Total tasks completed\n")
		fmt.Fprintf(w, "# TYPE ensemble_tasks_completed_total counter\n")
		fmt.Fprintf(w, "ensemble_tasks_completed_total %d\n\n", m.TasksCompleted.Load())

		fmt.Fprintf(w, "# HELP ensemble_tasks_failed_total Total tasks failed\n")
		fmt.Fprintf(w, "# TYPE ensemble_tasks_failed_total counter\n")
		fmt.Fprintf(w, "ensemble_tasks_failed_total %d\n\n", m.TasksFailed.Load())

		fmt.Fprintf(w, "# HELP ensemble_last_dispatch_duration_ms Last dispatch duration\n")
		fmt.Fprintf(w, "# TYPE ensemble_last_dispatch_duration_ms gauge\n")
		fmt.Fprintf(w, "ensemble_last_dispatch_duration_ms %d\n", m.LastDispatchDurationMs.Load())
	}
}

// Server wraps the metrics HTTP server
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server on the given port
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", Global().Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

// Start starts the metrics server in background
func (s *Server) Start() error {
	go s.srv.ListenAndServe()
	return nil
}

// Stop gracefully shuts down the metrics server
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
