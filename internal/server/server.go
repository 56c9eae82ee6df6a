// Package server exposes the run manager over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/numsieve/internal/config"
	"github.com/raaihank/numsieve/internal/logger"
	"github.com/raaihank/numsieve/internal/service"
	"github.com/raaihank/numsieve/internal/websocket"
)

// Version is reported by /info
const Version = "0.1.0"

// Server represents the HTTP API server
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	manager   *service.Manager
	wsHub     *websocket.Hub
	limiter   *RateLimiter
	router    *mux.Router
	server    *http.Server
	startedAt time.Time
}

// New creates a server for manager. hub may be nil when websockets are disabled.
func New(cfg *config.Config, log *logger.Logger, manager *service.Manager, hub *websocket.Hub) *Server {
	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		manager:   manager,
		wsHub:     hub,
		limiter:   NewRateLimiter(cfg.RateLimit),
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.wsHub != nil {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/runs/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleCancelRun).Methods(http.MethodDelete)
	api.HandleFunc("/runs/{id}/matches", s.handleMatches).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/export", s.handleExport).Methods(http.MethodGet)
}

// Handler returns the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called or ctx ends
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting numsieve server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("websocket", s.wsHub != nil),
		zap.Bool("rate_limit", s.config.RateLimit.Enabled),
	)

	go s.limiter.Run(ctx)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping numsieve server")
	return s.server.Shutdown(ctx)
}
