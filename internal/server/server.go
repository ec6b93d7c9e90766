// Package server exposes the model wizard over HTTP. Each session owns one
// visualizer; fitted packages can be saved to the model store.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/YuminosukeSato/scigo-workbench/internal/config"
	"github.com/YuminosukeSato/scigo-workbench/internal/server/middleware"
	"github.com/YuminosukeSato/scigo-workbench/internal/store"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
	"github.com/YuminosukeSato/scigo-workbench/registry"
)

type Server struct {
	httpServer *http.Server
	handler    http.Handler
	config     *config.Config
	registry   *registry.Registry
	store      *store.Store
	sessions   *sessionStore
	logger     log.Logger
	version    string

	stopOnce sync.Once
	stop     chan struct{}
}

func New(cfg *config.Config, reg *registry.Registry, st *store.Store, logger log.Logger, version string) *Server {
	s := &Server{
		config:   cfg,
		registry: reg,
		store:    st,
		sessions: newSessionStore(cfg.Server.SessionTTL()),
		logger:   logger,
		version:  version,
		stop:     make(chan struct{}),
	}

	mux := s.setupRoutes()

	s.handler = middleware.Chain(
		mux,
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.MaxBody(cfg.Server.MaxUploadBytes),
	)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     s.handler,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return s
}

// Handler returns the routed handler with its middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown and sweeps expired sessions meanwhile.
func (s *Server) Start() error {
	s.logger.Info("server starting",
		"addr", s.httpServer.Addr,
	)
	go s.sweepLoop()
	return s.httpServer.ListenAndServe()
}

func (s *Server) sweepLoop() {
	interval := s.config.Server.SessionTTL() / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.sessions.Sweep(); n > 0 {
				s.logger.Info("sessions expired", "count", n)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	s.stopOnce.Do(func() { close(s.stop) })
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status,
		)
	}
}
