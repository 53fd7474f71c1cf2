// Package server exposes the workflow over HTTP: a streaming NDJSON run
// endpoint, a health probe, Prometheus metrics, and request validation that
// rejects nonsensical queries before they reach the model.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/logging"
)

// Version reported by the health endpoint.
const Version = "1.0.0"

const (
	defaultMaxIterations = 10
	defaultMessageWindow = 8

	maxQueryLength = 5000
	limitCeiling   = 50
)

// Runner executes a workflow and streams its events. *datateam.Team
// satisfies it.
type Runner interface {
	RunStream(ctx context.Context, query string) <-chan core.StreamEvent
}

// TeamFactory builds a Runner for one request with the requested limits.
type TeamFactory func(maxIterations, messageWindow int) Runner

// Options configure the Server.
type Options struct {
	Metrics *Metrics
	Logger  logging.Logger
}

// Server is the HTTP front end over the workflow engine.
type Server struct {
	factory TeamFactory
	metrics *Metrics
	logger  logging.Logger
}

// New creates a Server around the given team factory.
func New(factory TeamFactory, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	return &Server{factory: factory, metrics: opts.Metrics, logger: opts.Logger}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/run", s.handleRun)
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

// QueryRequest is the POST /run body.
type QueryRequest struct {
	Query         string `json:"query"`
	MaxIterations int    `json:"max_iterations"`
	MessageWindow int    `json:"message_window"`
}

func (q *QueryRequest) applyDefaults() {
	if q.MaxIterations == 0 {
		q.MaxIterations = defaultMaxIterations
	}
	if q.MessageWindow == 0 {
		q.MessageWindow = defaultMessageWindow
	}
}

func (q *QueryRequest) validate() error {
	if q.Query == "" {
		return fmt.Errorf("query must not be empty")
	}
	if len(q.Query) > maxQueryLength {
		return fmt.Errorf("query exceeds %d characters", maxQueryLength)
	}
	if q.MaxIterations < 1 || q.MaxIterations > limitCeiling {
		return fmt.Errorf("max_iterations must be between 1 and %d", limitCeiling)
	}
	if q.MessageWindow < 1 || q.MessageWindow > limitCeiling {
		return fmt.Errorf("message_window must be between 1 and %d", limitCeiling)
	}
	return nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	})
}

// handleRun validates the query, runs the workflow, and streams events as
// NDJSON. Headers are committed before the first event, so a mid-stream
// failure surfaces as an error event rather than a status code.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Invalid request body"})
		return
	}
	req.applyDefaults()
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	if absurd, reason := IsQueryAbsurd(req.Query); absurd {
		s.logger.Warn("server.query_rejected", "reason", reason)
		s.metrics.RejectedTotal.Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Detail: fmt.Sprintf("Query rejected: %s. Please provide a valid data analysis question.", reason),
		})
		return
	}
	if ambiguous, suggestion := IsQueryTooAmbiguous(req.Query); ambiguous {
		// Vague queries still run; the suggestion is logged for monitoring.
		s.logger.Info("server.ambiguous_query", "suggestion", suggestion)
	}

	runner := s.factory(req.MaxIterations, req.MessageWindow)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	start := time.Now()
	status := "cancelled"
	enc := json.NewEncoder(w)
	for ev := range runner.RunStream(r.Context(), req.Query) {
		s.metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
		switch ev.Type {
		case core.EventFinish:
			status = "finish"
		case core.EventError:
			status = "error"
		}
		if err := enc.Encode(ev); err != nil {
			s.logger.Warn("server.stream_write_failed", "error", err.Error())
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	s.metrics.RunsTotal.WithLabelValues(status).Inc()
	s.metrics.RunDuration.Observe(time.Since(start).Seconds())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
