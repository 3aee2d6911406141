// Package server is the loopback HTTP runtime that receives redirects on
// behalf of the flow manager.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/marcogenualdo/sso-relay/internal/auth"
	"github.com/marcogenualdo/sso-relay/internal/cache"
	"github.com/marcogenualdo/sso-relay/internal/config"
	"github.com/marcogenualdo/sso-relay/internal/handlers"
	"github.com/marcogenualdo/sso-relay/internal/host"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg      config.Config
	target   host.RedirectHandler
	flows    handlers.FlowCounter
	cache    cache.Cache
	provider auth.Provider
	logger   *slog.Logger

	listener   net.Listener
	httpServer *http.Server
}

// New wires a server delivering redirects to target. flows, c and provider
// only feed the health and metadata endpoints and may be nil.
func New(cfg config.Config, target host.RedirectHandler, flows handlers.FlowCounter, c cache.Cache, provider auth.Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		target:   target,
		flows:    flows,
		cache:    c,
		provider: provider,
		logger:   logger,
	}
}

// Listen binds the listener. Binding before a flow starts means a port
// conflict fails fast instead of losing the redirect.
func (s *Server) Listen() error {
	router, err := s.setupRoutes()
	if err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.Server.Host, fmt.Sprint(s.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// Addr is the bound address, useful when the configured port is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve runs until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting loopback server", "addr", s.Addr())
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down loopback server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}
