// Package server serves the session API, the artifact store and the push channel used by molsim clients.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/molsim/internal/sessionstore"
	"github.com/askiada/molsim/pkg/artifact"
)

const defaultShutdownTimeout = 10 * time.Second

// Config holds the listen settings of the server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server is the molsim HTTP server.
type Server struct {
	cfg       Config
	sessions  sessionstore.Store
	artifacts *artifact.Store
	hub       *Hub
	logger    zerolog.Logger
	router    chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New returns a server for sessions and artifacts.
func New(cfg Config, sessions sessionstore.Store, artifacts *artifact.Store, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		sessions:  sessions,
		artifacts: artifacts,
		logger:    zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.hub = NewHub(s.logger)
	s.router = s.routes()

	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)

	r.Route("/session", func(r chi.Router) {
		r.Get("/ws", s.hub.ServeHTTP)
		r.Post("/start/{appId}", s.startSession)
		r.Post("/outputs/{id}", s.upsertOutputs)
		r.Post("/status/{id}", s.setStatus)
		r.Get("/{id}", s.getSession)
	})

	r.Route("/artifacts/{namespace}", func(r chi.Router) {
		r.Post("/", s.storeArtifact)
		r.Get("/{filename}", s.getArtifact)
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the push channel.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Serve accepts connections on l until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", l.Addr().String()).Msg("server listening")
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info().Msg("server shutting down")
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "unable to shut down server")
	}

	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", s.cfg.Addr)
	}

	return s.Serve(ctx, l)
}
