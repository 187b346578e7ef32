// Package server exposes the onboarding engine over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/pouncehq/onboard/internal/config"
	"github.com/pouncehq/onboard/internal/session"
)

// Service is the HTTP front of the onboarding engine.
type Service struct {
	version string
	config  *config.Config
	engine  *session.Engine
	router  chi.Router

	httpServer *http.Server
	ready      atomic.Bool
	startTime  time.Time
}

// NewService wires the engine into a routed HTTP service.
func NewService(cfg *config.Config, engine *session.Engine, version string) *Service {
	svc := &Service{
		version:   version,
		config:    cfg,
		engine:    engine,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	svc.setupRoutes()
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.cors)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/ready", s.handleReady)
	s.router.Get("/api/version", s.handleVersion)

	s.router.Route("/api/onboarding", func(r chi.Router) {
		r.Use(s.requireReady)
		r.Post("/start", s.handleStart)
		r.Post("/answer", s.handleAnswer)
		r.Get("/session/{sessionID}", s.handleGetSession)
		r.Post("/session/{sessionID}/abandon", s.handleAbandon)
	})
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Service) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.ready.Store(true)

	log.Info().
		Int("port", s.config.Port).
		Str("version", s.version).
		Msg("Onboarding server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler tree, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}
