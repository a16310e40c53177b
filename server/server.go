// Package server exposes the chat engine and ingestion pipeline over HTTP:
// streamed chat completions, a WebSocket chat channel, synchronous URL
// ingestion, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sitechat/sitechat/llm"
	"github.com/sitechat/sitechat/metrics"
)

const defaultShutdownTimeout = 10 * time.Second

// Responder answers a question by streaming completion fragments.
type Responder interface {
	QueryStream(ctx context.Context, question string, emit llm.StreamFunc) error
}

// Ingestor crawls and indexes a site from a seed URL, returning the number
// of chunks indexed.
type Ingestor interface {
	IngestSite(ctx context.Context, seed string) (int, error)
}

// Config holds server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration
}

// Server serves the chat and ingestion API.
type Server struct {
	engine   Responder
	ingestor Ingestor
	logger   *slog.Logger
	upgrader websocket.Upgrader

	httpServer      *http.Server
	shutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Server. The ingestor may be nil, in which case the ingest
// endpoint reports 503.
func New(cfg Config, engine Responder, ingestor Ingestor, opts ...Option) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.New("listen address is required")
	}
	if engine == nil {
		return nil, errors.New("chat engine is required")
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		engine:   engine,
		ingestor: ingestor,
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			// Browser clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		shutdownTimeout: shutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           corsMiddleware(s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// routes builds the request mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/ws/chat", s.handleWSChat)
	mux.HandleFunc("/api/ingest/url", s.handleIngestURL)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Handler returns the full HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// corsMiddleware allows cross-origin browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
