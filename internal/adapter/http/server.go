// Package http exposes the service's HTTP surface: the ingestion trigger, the
// per-source backfill entrypoint, status and event queries, and the usual
// health/readiness/metrics routes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/hazard-data-ingest/internal/domain"
	"github.com/couchcryptid/hazard-data-ingest/internal/health"
	"github.com/couchcryptid/hazard-data-ingest/internal/ingest"
	"github.com/couchcryptid/hazard-data-ingest/internal/store"
)

// Ingester is the orchestrator surface the trigger routes call.
type Ingester interface {
	RunTick(ctx context.Context, opts ingest.TickOptions) (ingest.Summary, error)
	RunSource(ctx context.Context, name string, opts ingest.TickOptions) (ingest.SourceSummary, error)
}

// HealthReporter answers the status query.
type HealthReporter interface {
	Status(ctx context.Context) ([]health.SourceHealth, error)
}

// EventReader exposes the store's read contract.
type EventReader interface {
	QueryEvents(ctx context.Context, f store.EventFilter) ([]domain.Event, error)
	RecentRuns(ctx context.Context, limit int) ([]store.IngestionRun, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server wires the routes onto a stdlib mux.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the HTTP server with all API and operational routes.
func NewServer(addr string, ingester Ingester, reporter HealthReporter, reader EventReader,
	ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second, // a trigger waits for the full tick
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("POST /api/ingest", s.handleIngest(ingester))
	mux.HandleFunc("POST /api/ingest/{source}", s.handleIngestSource(ingester))
	mux.HandleFunc("GET /api/status", s.handleStatus(reporter))
	mux.HandleFunc("GET /api/events", s.handleEvents(reader))
	mux.HandleFunc("GET /api/runs", s.handleRuns(reader))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleIngest(ingester Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := tickOptions(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		summary, err := ingester.RunTick(r.Context(), opts)
		if err != nil {
			s.logger.Error("ingest trigger failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleIngestSource(ingester Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := tickOptions(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		summary, err := ingester.RunSource(r.Context(), r.PathValue("source"), opts)
		if errors.Is(err, ingest.ErrUnknownSource) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		if err != nil {
			s.logger.Error("source ingest failed", "source", r.PathValue("source"), "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleStatus(reporter HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses, err := reporter.Status(r.Context())
		if err != nil {
			s.logger.Error("status query failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, statuses)
	}
}

func (s *Server) handleEvents(reader EventReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := eventFilter(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		events, err := reader.QueryEvents(r.Context(), f)
		if err != nil {
			s.logger.Error("event query failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if events == nil {
			events = []domain.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func (s *Server) handleRuns(reader EventReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		runs, err := reader.RecentRuns(r.Context(), limit)
		if err != nil {
			s.logger.Error("run query failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if runs == nil {
			runs = []store.IngestionRun{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// tickOptions reads the optional backfill date (YYYY-MM-DD) from the query.
func tickOptions(r *http.Request) (ingest.TickOptions, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return ingest.TickOptions{}, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return ingest.TickOptions{}, errors.New("date must be YYYY-MM-DD")
	}
	return ingest.TickOptions{TargetDate: &day}, nil
}

func eventFilter(r *http.Request) (store.EventFilter, error) {
	q := r.URL.Query()
	f := store.EventFilter{}

	if t := q.Get("type"); t != "" {
		dt := domain.DataType(t)
		if !dt.Valid() {
			return f, errors.New("unknown event type")
		}
		f.DataType = dt
	}
	for param, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		if raw := q.Get(param); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return f, errors.New(param + " must be RFC 3339")
			}
			*dst = t
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = limit
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
