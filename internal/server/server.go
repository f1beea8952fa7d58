// Package server exposes the engine over HTTP and WebSocket.
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/spinup/spinup/internal/orchestrator"
	"github.com/spinup/spinup/internal/runstore"
	"github.com/spinup/spinup/internal/version"
)

// Engine is the part of *orchestrator.Engine the server needs.
type Engine interface {
	Run(ctx context.Context, req orchestrator.Request, observers ...orchestrator.Observer) (*orchestrator.Result, error)
	Registry() *orchestrator.Registry
}

type Deps struct {
	Engine  Engine
	Store   runstore.Store
	Metrics http.Handler
	// Jobs enables the /api/jobs routes when set.
	Jobs   Jobs
	Logger *zerolog.Logger
}

type Server struct {
	engine  Engine
	store   runstore.Store
	metrics http.Handler
	jobs    Jobs
	log     zerolog.Logger
	router  *mux.Router
}

func New(deps Deps) *Server {
	l := zerolog.Nop()
	if deps.Logger != nil {
		l = deps.Logger.With().Str("component", "server").Logger()
	}
	s := &Server{
		engine:  deps.Engine,
		store:   deps.Store,
		metrics: deps.Metrics,
		jobs:    deps.Jobs,
		log:     l,
		router:  mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(s.logRequests)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	api.HandleFunc("/run/ws", s.handleRunWS).Methods(http.MethodGet)
	api.HandleFunc("/actions", s.handleActions).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	if s.jobs != nil {
		s.registerJobRoutes(api)
	}
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("spinup server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		s.log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Get(),
		"actions": s.engine.Registry().Len(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed by the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
