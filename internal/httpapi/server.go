// Package httpapi is the front-end HTTP surface clients talk to: it
// decodes/validates requests, calls into the scheduler, and translates the
// scheduler's results back into the wire shapes clients expect. It never
// makes scheduling decisions itself.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/deltasched/scheduler/internal/backend"
	"github.com/deltasched/scheduler/internal/observability"
	"github.com/deltasched/scheduler/internal/scheduler"
	"github.com/deltasched/scheduler/pkg/units"
)

// Server timeout constants for the front-end listener.
const (
	ReadTimeout     = 30 * time.Second
	WriteTimeout    = 60 * time.Second
	IdleTimeout     = 120 * time.Second
	ShutdownTimeout = 10 * time.Second
)

// defaultMaxRequestBody is used when Deps.MaxRequestBody is unset (e.g. in
// tests that construct Deps directly rather than through config.Load).
const defaultMaxRequestBody = 32 * units.MiB

// Deps is everything a handler needs to serve a request. Held by value in
// the handler closures; every field is itself safe for concurrent use.
type Deps struct {
	Scheduler      *scheduler.CentralScheduler
	Backend        backend.Client
	Logger         *slog.Logger
	Metrics        *observability.REDMetrics
	MaxRequestBody int64 // defaults to 32 MiB if zero
}

func (d Deps) maxRequestBody() int64 {
	if d.MaxRequestBody <= 0 {
		return defaultMaxRequestBody
	}

	return d.MaxRequestBody
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}

	return slog.Default()
}

// NewMux builds the front-end route table, wrapped in the same
// tracing/access-log/panic-recovery middleware every other listener in this
// module uses.
func NewMux(deps Deps, tracer trace.Tracer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", handleLiveness)
	mux.HandleFunc("POST /submit", deps.handleSubmit)
	mux.HandleFunc("POST /batch_status", deps.handleBatchStatus)
	mux.HandleFunc("GET /{task_id}/status", deps.handleTaskStatus)
	mux.HandleFunc("POST /register_function", deps.handleRegisterFunction)
	mux.HandleFunc("GET /block/{function_id}/{endpoint_id}", deps.handleBlock)
	mux.HandleFunc("GET /execution_log", deps.handleExecutionLog)
	mux.HandleFunc("PUT /admin/endpoints/{id}", deps.handleAddEndpoint)
	mux.HandleFunc("DELETE /admin/endpoints/{id}", deps.handleRemoveEndpoint)
	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler())

	return observability.HTTPMiddleware(tracer, deps.logger(), mux)
}

// NewServer wraps handler in an *http.Server with this module's standard
// timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
}

func handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
