// Package api exposes the scheduler over a JSON HTTP interface.
//
// Every endpoint answers with the envelope
//
//	{"success": true, "data": ...}
//	{"success": false, "error": "..."}
//
// Validation errors map to 400, unknown ids to 404, duplicates and
// start/stop conflicts to 409, disabled jobs, unmet dependencies and command
// failures to 422, and an exhausted worker pool to 503.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jdziat/simple-cron-jobs/pkg/scheduler"
)

var errBadRequest = errors.New("bad request")

// Server routes HTTP requests to a Scheduler.
type Server struct {
	router  chi.Router
	sched   *scheduler.Scheduler
	metrics http.Handler
	baseCtx context.Context
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithBaseContext sets the context the scheduler loop runs under when it is
// started over HTTP. Request contexts end with the request and cannot be used.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) {
		if ctx != nil {
			s.baseCtx = ctx
		}
	}
}

// New creates a Server with every route registered.
func New(sched *scheduler.Scheduler, opts ...Option) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		sched:   sched,
		baseCtx: context.Background(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "api")
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scheduler/start", s.handleStart)
		r.Post("/scheduler/stop", s.handleStop)
		r.Get("/status", s.handleStatus)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Patch("/", s.handleUpdateJob)
				r.Delete("/", s.handleDeleteJob)
				r.Get("/status", s.handleJobStatus)
				r.Post("/run", s.handleRunJob)
				r.Post("/enable", s.handleSetEnabled(true))
				r.Post("/disable", s.handleSetEnabled(false))
				r.Get("/executions", s.handleJobExecutions)
			})
		})

		r.Get("/executions", s.handleRecentExecutions)
		r.Get("/executions/{id}", s.handleGetExecution)
		r.Get("/dependencies/validate", s.handleValidateDependencies)
		r.Get("/commands", s.handleCommands)

		r.Get("/workers", s.handleListWorkers)
		r.Post("/workers", s.handleRegisterWorker)
		r.Delete("/workers/{id}", s.handleDeregisterWorker)
		r.Post("/workers/{id}/heartbeat", s.handleHeartbeat)
	})
}

// loggingMiddleware logs one line per request.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
