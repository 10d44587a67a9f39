package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/courier/internal/engine"
	"github.com/seantiz/courier/internal/status"
	"github.com/seantiz/courier/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server is the HTTP control plane of an engine.
type Server struct {
	router *chi.Mux
	store  store.Store
	engine *engine.Engine
	client *http.Client
	logger *slog.Logger
	addr   string

	// streams is cancelled when the server shuts down so that open event
	// streams end instead of holding Shutdown until its timeout.
	streams     context.Context
	stopStreams context.CancelFunc
}

// NewServer creates the control plane. Invocations submitted through the API
// call their targets with client.
func NewServer(addr string, s store.Store, eng *engine.Engine, client *http.Client, logger *slog.Logger) *Server {
	streams, stopStreams := context.WithCancel(context.Background())
	srv := &Server{
		router:      chi.NewRouter(),
		store:       s,
		engine:      eng,
		client:      client,
		logger:      logger,
		addr:        addr,
		streams:     streams,
		stopStreams: stopStreams,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	srv.router.Get("/healthz", srv.handleHealthz)
	srv.router.Handle("/metrics", metricsHandler())
	srv.router.Get("/v1/stats", srv.handleGetStats)
	srv.router.Route("/v1/invocations", func(r chi.Router) {
		r.Post("/", srv.handleCreateInvocation)
		r.Get("/", srv.handleListInvocations)
		r.Get("/{id}", srv.handleGetInvocation)
		r.Delete("/{id}", srv.handleCancelInvocation)
		r.Get("/{id}/events", srv.handleStreamEvents)
		r.Get("/{id}/events/history", srv.handleGetEventHistory)
	})

	return srv
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP until ctx is done, then shuts down gracefully. Event
// streams still open at that point are ended with a done event.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
	httpServer.RegisterOnShutdown(s.stopStreams)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx))
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped", "in_flight", s.engine.InFlight())
	return nil
}

// loggingMiddleware logs each request at a level that follows the status
// family of its response.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		level := slog.LevelInfo
		switch status.FamilyOf(code) {
		case status.FamilyClientError:
			level = slog.LevelWarn
		case status.FamilyServerError:
			level = slog.LevelError
		}

		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"route", routePattern(r),
			"path", r.URL.Path,
			"status", code,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
