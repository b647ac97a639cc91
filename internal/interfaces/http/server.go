// Package http exposes the consensus core over a small JSON API: signal
// generation, provider introspection, health, and Prometheus metrics.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lumitrade/aiquorum/internal/cache"
	"github.com/lumitrade/aiquorum/internal/config"
	"github.com/lumitrade/aiquorum/internal/consensus"
	"github.com/lumitrade/aiquorum/internal/metrics"
	"github.com/lumitrade/aiquorum/internal/signal"
)

// Engine is the slice of the consensus orchestrator the API needs. The serve
// command passes a reload-aware wrapper, tests pass the engine directly.
type Engine interface {
	GenerateSignal(ctx context.Context, req *signal.SignalRequest) *signal.ConsensusSignal
	ProviderStatus() []consensus.ProviderStatus
}

// Server hosts the HTTP API.
type Server struct {
	router *mux.Router
	server *http.Server
	engine Engine
	store  cache.Store
}

// NewServer wires routes against the engine and cache.
func NewServer(cfg config.ServerConfig, engine Engine, store cache.Store, m *metrics.Metrics) *Server {
	s := &Server{
		router: mux.NewRouter(),
		engine: engine,
		store:  store,
	}

	s.router.HandleFunc("/v1/signal", s.handleSignal).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/providers", s.handleProviders).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the route tree; tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving requests until Shutdown or failure.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
