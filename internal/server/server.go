// Package server exposes the console over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Yates-Labs/vecview/internal/console"
	"github.com/Yates-Labs/vecview/internal/observability"
)

// Config holds server settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	DefaultTopK     int
}

// DefaultConfig returns the defaults used by `vecview serve`.
func DefaultConfig() Config {
	return Config{
		Addr:            ":7860",
		ShutdownTimeout: 15 * time.Second,
		DefaultTopK:     5,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.config.Addr = addr
		}
	}
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server serves the console API.
type Server struct {
	console    *console.Console
	config     Config
	logger     *slog.Logger
	mux        *http.ServeMux
	httpServer *http.Server
}

// New creates a server over c.
func New(c *console.Console, opts ...Option) *Server {
	s := &Server{
		console: c,
		config:  DefaultConfig(),
		logger:  slog.Default(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/collections", s.handleListCollections)
	s.mux.HandleFunc("GET /api/collections/{name}", s.handleCollection)
	s.mux.HandleFunc("GET /api/collections/{name}/raw", s.handleRaw)
	s.mux.HandleFunc("GET /api/collections/{name}/export", s.handleExport)
	s.mux.HandleFunc("GET /api/collections/{name}/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/files", s.handleListFiles)
	s.mux.HandleFunc("GET /api/files/{filename...}", s.handleFile)
	s.mux.HandleFunc("DELETE /api/files/{filename...}", s.handleDeleteFile)
	s.mux.HandleFunc("GET /api/progress", s.handleProgress)
	s.mux.HandleFunc("POST /api/reload", s.handleReload)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with metrics middleware applied.
func (s *Server) Handler() http.Handler {
	return observability.MetricsMiddleware(s.mux)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.config.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}
	return s.shutdown()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
