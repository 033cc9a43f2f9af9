package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/dstiny-bridge/internal/bridges/dstiny"
	"github.com/nerrad567/dstiny-bridge/internal/eventbridge"
	"github.com/nerrad567/dstiny-bridge/internal/scenes"
)

const (
	gracefulShutdownTimeout = 10 * time.Second
	readHeaderTimeout       = 5 * time.Second

	defaultMaxBodyBytes = 1 << 16
)

// Logger is satisfied by logging.Logger.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Deps holds what the server needs. Store, Logger and JWTSecret are
// required.
type Deps struct {
	Listen       string
	MaxBodyBytes int64
	Version      string

	// JWTSecret verifies bearer tokens on write routes. Required.
	JWTSecret string

	Logger  Logger
	Store   scenes.Store
	Session dstiny.StateSource
	Queue   *eventbridge.Queue
	Shared  *eventbridge.SharedState
}

// Server is the admin HTTP server. Safe for concurrent use.
type Server struct {
	deps Deps

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New validates deps and returns a server that is not yet listening.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Store == nil {
		return nil, errors.New("scene store is required")
	}
	if deps.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{deps: deps}, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("api server already started")
	}

	ln, err := net.Listen("tcp", s.deps.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.deps.Listen, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("API server error", "error", err)
		}
	}(s.server)

	s.deps.Logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close waits for in-flight requests up to gracefulShutdownTimeout.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
