package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/JaimeStill/mrv/internal/config"
	"github.com/JaimeStill/mrv/internal/infrastructure"
)

// Server owns the infrastructure, the mounted modules, and the HTTP listener.
type Server struct {
	infra  *infrastructure.Infrastructure
	http   *http.Server
	drain  time.Duration
	logger *slog.Logger
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, err
	}

	router := buildRouter(infra)
	modules.Mount(router)

	read, write, drain := cfg.Server.Timeouts()
	return &Server{
		infra: infra,
		http: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      router,
			ReadTimeout:  read,
			WriteTimeout: write,
		},
		drain:  drain,
		logger: infra.Logger.With("system", "http"),
	}, nil
}

// Start binds the listener before returning so address errors surface to
// the caller, then serves in the background until shutdown.
func (s *Server) Start() error {
	if err := s.infra.Start(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}

	lc := s.infra.Lifecycle
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "error", err)
		}
	}()

	lc.OnShutdown(func() {
		<-lc.Context().Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.drain)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown failed", "error", err)
			return
		}
		s.logger.Info("http drained")
	})

	go func() {
		lc.WaitForStartup()
		s.logger.Info("subsystems ready")
	}()
	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.infra.Lifecycle.Shutdown(timeout)
}
