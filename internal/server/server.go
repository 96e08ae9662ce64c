package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/photocopy/geocoder/internal/health"
	"github.com/photocopy/geocoder/internal/model"
	"github.com/photocopy/geocoder/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Geocoder is the lookup service behind the HTTP API
type Geocoder interface {
	service.Geocoder
	State() model.ServiceState
}

// StatsProvider reports index and cache statistics
type StatsProvider interface {
	Stats() service.ServiceStats
}

// BoundaryReporter reports whether country refinement is active
type BoundaryReporter interface {
	HasBoundaries() bool
}

// Config holds HTTP server configuration
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsPath  string
	// Gatherer serves /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
}

// Deps are the services the HTTP API exposes
type Deps struct {
	Geocoder   Geocoder
	Stats      StatsProvider
	Boundaries BoundaryReporter
	Batch      *service.BatchGeocoder
	Health     *health.HealthChecker
}

// Server serves the reverse geocoding HTTP API
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	geocoder   Geocoder
	stats      StatsProvider
	boundaries BoundaryReporter
	batch      *service.BatchGeocoder
	health     *health.HealthChecker
	logger     *zap.Logger
}

// NewServer creates the server and registers its routes
func NewServer(cfg *Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()
	s := &Server{
		router:     router,
		geocoder:   deps.Geocoder,
		stats:      deps.Stats,
		boundaries: deps.Boundaries,
		batch:      deps.Batch,
		health:     deps.Health,
		logger:     logger,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		},
	}
	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupRoutes(cfg *Config) {
	middleware := []mux.MiddlewareFunc{recovery(s.logger), requestID, logging(s.logger)}
	s.router.Use(middleware...)

	if s.health != nil {
		s.router.HandleFunc("/health", s.health.LivenessHandler).Methods(http.MethodGet)
		s.router.HandleFunc("/ready", s.health.ReadinessHandler).Methods(http.MethodGet)
	}
	if cfg.Gatherer != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/reverse", s.handleReverse).Methods(http.MethodGet)
	v1.HandleFunc("/reverse/batch", s.handleBatch).Methods(http.MethodPost)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	// The router skips its middleware for unmatched requests.
	s.router.NotFoundHandler = wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "endpoint not found")
	}), middleware)
	s.router.MethodNotAllowedHandler = wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}), middleware)
}

// wrap applies middleware in the order the router would, first outermost
func wrap(h http.Handler, middleware []mux.MiddlewareFunc) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
