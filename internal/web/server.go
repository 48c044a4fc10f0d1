package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/config"
	"github.com/kozaktomas/photo-indexer/internal/constants"
	"github.com/kozaktomas/photo-indexer/internal/geocode"
	"github.com/kozaktomas/photo-indexer/internal/search"
	"github.com/kozaktomas/photo-indexer/internal/web/handlers"
	"github.com/kozaktomas/photo-indexer/internal/web/middleware"
)

// Deps are the services the HTTP API is built on. Geocoder and Uploader
// may be nil, in which case their endpoints are not mounted or answer 501.
type Deps struct {
	Search   handlers.Searcher
	Geocoder handlers.ForwardGeocoder
	Locator  geocode.Locator
	Passes   handlers.PassRunner
	Stats    handlers.StatsSource
	Uploader handlers.Uploader
	Checks   map[string]handlers.Check
	Gatherer prometheus.Gatherer
}

// Server represents the web server
type Server struct {
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	logger     *zap.Logger
	searchOpts search.Options
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		deps:   deps,
		router: r,
		logger: logger,
		searchOpts: search.Options{
			TopK:          cfg.Search.TopK,
			MinSimilarity: cfg.Search.MinSimilarity,
		},
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(constants.RequestTimeout))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Web.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: constants.RequestTimeout, // uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
