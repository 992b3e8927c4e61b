package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"logsink/server/handlers"

	"github.com/klauspost/compress/gzhttp"
)

// ErrBind is returned when the HTTP listener cannot be bound.
var ErrBind = errors.New("http bind error")

// shutdownTimeout bounds how long in-flight requests get to finish.
const shutdownTimeout = 5 * time.Second

// Config holds the HTTP server settings.
type Config struct {
	Addr string // TCP address to bind, e.g. "127.0.0.1:8080"
}

type Server struct {
	addr     string
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
	logs     *handlers.Logs
}

// NewServer creates a new HTTP server instance serving events from reader.
func NewServer(cfg Config, reader handlers.LogReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "http")

	s := &Server{
		addr:   cfg.Addr,
		logger: logger,
		logs:   handlers.NewLogs(reader, logger),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	mux := http.NewServeMux()

	mux.Handle("/logs", s.logs)
	mux.HandleFunc("/hello", handlers.HelloHandler)
	mux.HandleFunc("/health", handlers.HealthHandler)

	// Everything else is unknown
	mux.HandleFunc("/", handlers.NotFoundHandler)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           gzhttp.GzipHandler(s.withRequestID(s.withRecovery(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
}

// Handler returns the root handler, including middleware.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Bind opens the TCP listener.
func (s *Server) Bind() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBind, s.addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound local address, or nil before Bind.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// returns nil. Any other serve failure is returned.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("%w: server is not bound", ErrBind)
	}

	s.logger.Info("HTTP server is running", "addr", s.listener.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(s.listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	<-serveErr

	s.logger.Info("HTTP server stopped")
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
