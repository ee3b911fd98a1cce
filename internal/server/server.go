// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/items-service/internal/config"
	"github.com/vyrodovalexey/items-service/internal/handler"
	"github.com/vyrodovalexey/items-service/internal/middleware"
	"github.com/vyrodovalexey/items-service/internal/store"
)

// Server represents the HTTP server. It owns the items listener and, when
// a probe port is configured, a second listener for probes and metrics.
type Server struct {
	httpServer   *http.Server
	probeServer  *http.Server
	router       *mux.Router
	probeRouter  *mux.Router
	config       *config.Config
	logger       *zap.Logger
	eventHandler *handler.EventStreamHandler
}

// New creates a new Server instance. pinger backs the readiness probe and
// may be nil.
func New(cfg *config.Config, logger *zap.Logger, itemStore store.Store, pinger handler.Pinger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		config: cfg,
		logger: logger,
	}

	s.setupMiddleware()
	s.setupRoutes(itemStore, pinger)
	s.setupHTTPServer()

	if cfg.ProbePort != 0 {
		s.setupProbeServer(pinger)
	}

	return s
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware() {
	// Apply middleware in order (first applied = outermost)
	s.router.Use(mux.MiddlewareFunc(middleware.RequestID()))
	s.router.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))

	if s.config.MetricsEnabled {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics(middleware.DefaultHTTPMetrics)))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.CORS(s.config.CORSOrigins)))
}

// setupRoutes configures the items API, event stream and probe routes.
func (s *Server) setupRoutes(itemStore store.Store, pinger handler.Pinger) {
	s.eventHandler = handler.NewEventStreamHandler(s.logger)
	s.eventHandler.RegisterRoutes(s.router)

	restHandler := handler.NewRESTHandler(itemStore, s.eventHandler, s.logger)
	restHandler.RegisterRoutes(s.router)

	registerProbeRoutes(s.router, handler.NewProbeHandler(pinger, s.logger), s.config.MetricsEnabled)

	// Router middleware only runs for a matched route, so the items paths
	// need an OPTIONS route for CORS preflight to reach the CORS middleware.
	s.router.PathPrefix("/items").Methods(http.MethodOptions).HandlerFunc(middleware.Options)
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// setupProbeServer configures the dedicated probe listener.
func (s *Server) setupProbeServer(pinger handler.Pinger) {
	s.probeRouter = mux.NewRouter()
	s.probeRouter.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.probeRouter.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))

	registerProbeRoutes(s.probeRouter, handler.NewProbeHandler(pinger, s.logger), s.config.MetricsEnabled)

	s.probeServer = &http.Server{
		Addr:              s.config.ProbeAddress(),
		Handler:           s.probeRouter,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func registerProbeRoutes(router *mux.Router, probes *handler.ProbeHandler, metrics bool) {
	router.HandleFunc("/health", probes.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", probes.Ready).Methods(http.MethodGet)

	if metrics {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// Start starts the HTTP server and, if configured, the probe server. It
// returns when either listener fails or both are shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
	)

	errs := make(chan error, 2)
	running := 1

	go func() {
		errs <- listen(s.httpServer, "server")
	}()

	if s.probeServer != nil {
		running++
		s.logger.Info("starting probe server", zap.String("address", s.config.ProbeAddress()))
		go func() {
			errs <- listen(s.probeServer, "probe server")
		}()
	}

	for i := 0; i < running; i++ {
		if err := <-errs; err != nil {
			return err
		}
	}

	return nil
}

func listen(srv *http.Server, name string) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s listen and serve: %w", name, err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Close event subscribers first; hijacked connections are not tracked
	// by http.Server.Shutdown.
	if s.eventHandler != nil {
		s.eventHandler.CloseAllConnections()
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if s.probeServer != nil {
		g.Go(func() error {
			if err := s.probeServer.Shutdown(ctx); err != nil {
				return fmt.Errorf("probe server shutdown: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ProbeRouter returns the probe listener's router, or nil when disabled.
func (s *Server) ProbeRouter() *mux.Router {
	return s.probeRouter
}

// Events returns the item event stream.
func (s *Server) Events() *handler.EventStreamHandler {
	return s.eventHandler
}
