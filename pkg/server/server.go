package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"veridion-hq/sentinel/pkg/analytics"
	"veridion-hq/sentinel/pkg/config"
	"veridion-hq/sentinel/pkg/enforcement/breaker"
	"veridion-hq/sentinel/pkg/enforcement/canary"
	"veridion-hq/sentinel/pkg/enforcement/engine"
	"veridion-hq/sentinel/pkg/enforcement/mode"
	"veridion-hq/sentinel/pkg/enforcement/shadow"
	"veridion-hq/sentinel/pkg/enforcement/simulator"
	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy"
)

// Components bundles everything the API server exposes. Analytics may
// be nil when rollups are disabled; every other field is required.
type Components struct {
	Engine    *engine.Engine
	Store     *policy.Store
	Breaker   *breaker.Breaker
	Canary    *canary.Controller
	Mode      *mode.Switch
	Shadow    *shadow.Evaluator
	Simulator *simulator.Simulator
	Backend   outcome.Backend
	Analytics *analytics.Aggregator
}

// Server is the HTTP API server for decision and operator traffic.
type Server struct {
	config    *config.ServerConfig
	engine    *engine.Engine
	store     *policy.Store
	breaker   *breaker.Breaker
	canary    *canary.Controller
	mode      *mode.Switch
	shadow    *shadow.Evaluator
	simulator *simulator.Simulator
	backend   outcome.Backend
	analytics *analytics.Aggregator

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	logger       *slog.Logger
}

// New creates an API server around the given components.
func New(cfg *config.ServerConfig, c Components) *Server {
	return &Server{
		config:    cfg,
		engine:    c.Engine,
		store:     c.Store,
		breaker:   c.Breaker,
		canary:    c.Canary,
		mode:      c.Mode,
		shadow:    c.Shadow,
		simulator: c.Simulator,
		backend:   c.Backend,
		analytics: c.Analytics,
		logger:    slog.Default().With("component", "server"),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown",
			"timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("API server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler with the full middleware
// chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /v1/decide", s.handleDecide)

	mux.HandleFunc("GET /v1/policies", s.handleListPolicies)
	mux.HandleFunc("GET /v1/policies/{id}", s.handleGetPolicy)
	mux.HandleFunc("POST /v1/policies/{id}/enable", s.handleSetPolicyEnabled(true))
	mux.HandleFunc("POST /v1/policies/{id}/disable", s.handleSetPolicyEnabled(false))
	mux.HandleFunc("POST /v1/policies/{id}/rollback", s.handleRollbackPolicyVersion)

	mux.HandleFunc("GET /v1/mode", s.handleGetMode)
	mux.HandleFunc("PUT /v1/mode", s.handleSetMode)
	mux.HandleFunc("GET /v1/mode/history", s.handleModeHistory)

	mux.HandleFunc("GET /v1/breakers", s.handleListBreakers)
	mux.HandleFunc("GET /v1/breakers/{id}", s.handleGetBreaker)
	mux.HandleFunc("POST /v1/breakers/{id}/control", s.handleBreakerControl)
	mux.HandleFunc("GET /v1/breakers/{id}/recovery", s.handleBreakerRecovery)
	mux.HandleFunc("GET /v1/breakers/{id}/transitions", s.handleTransitions(outcome.KindCircuit))

	mux.HandleFunc("GET /v1/canaries", s.handleListCanaries)
	mux.HandleFunc("GET /v1/canaries/{id}", s.handleGetCanary)
	mux.HandleFunc("POST /v1/canaries/{id}/traffic", s.handleSetCanaryTraffic)
	mux.HandleFunc("POST /v1/canaries/{id}/rollback", s.handleCanaryRollback)
	mux.HandleFunc("GET /v1/canaries/{id}/transitions", s.handleTransitions(outcome.KindCanary))

	mux.HandleFunc("GET /v1/shadow/analytics", s.handleShadowAnalytics)
	mux.HandleFunc("POST /v1/simulate", s.handleSimulate)
	mux.HandleFunc("GET /v1/outcomes", s.handleQueryOutcomes)
	mux.HandleFunc("GET /v1/analytics/summaries", s.handleAnalyticsSummaries)

	var handler http.Handler = mux
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	return handler
}
