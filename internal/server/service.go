package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
)

type serverImpl struct {
	cfg    Config
	logger *slog.Logger

	httpMux    *http.ServeMux
	httpServer *http.Server
	addr       string

	mu      sync.Mutex
	started bool
}

// New creates a new Service instance.
func New(cfg Config, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &serverImpl{
		cfg:     cfg,
		logger:  logger.With("component", "server"),
		httpMux: http.NewServeMux(),
	}
}

func (s *serverImpl) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true

	s.initHTTPServer()
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("http listen: %w", err)
	}
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go s.runHTTPServer(ln, errChan)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return nil // Normal shutdown signal
	}
}

func (s *serverImpl) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	return nil
}

func (s *serverImpl) RegisterHTTPHandler(pattern string, handler http.Handler) {
	s.httpMux.Handle(pattern, handler)
}

func (s *serverImpl) HTTPMux() *http.ServeMux {
	return s.httpMux
}

func (s *serverImpl) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
