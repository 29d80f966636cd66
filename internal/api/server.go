package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/vitalcam/vitalcam/internal/api/middleware"
	v1 "github.com/vitalcam/vitalcam/internal/api/v1"
	"github.com/vitalcam/vitalcam/internal/conf"
	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/logger"
	"github.com/vitalcam/vitalcam/internal/monitor"
	"github.com/vitalcam/vitalcam/internal/observability"
)

// Server is the HTTP server for vitalcam.
// It manages the Echo instance, middleware and all HTTP routes.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	registry      *monitor.Registry
	metrics       *observability.Metrics
	apiController *v1.Controller

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics exposes the Prometheus registry under /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger replaces the package logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithConfig overrides the configuration derived from settings.
func WithConfig(cfg *Config) ServerOption {
	return func(s *Server) {
		s.config = cfg
	}
}

// New creates a new HTTP server serving the sessions in registry.
func New(settings *conf.Settings, registry *monitor.Registry, opts ...ServerOption) (*Server, error) {
	if registry == nil {
		return nil, errors.Newf("session registry is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config:    ConfigFromSettings(settings),
		settings:  settings,
		log:       GetLogger(),
		registry:  registry,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = s.config.Debug

	s.echo.Server.ReadTimeout = s.config.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", s.config.Listen),
		logger.Bool("metrics", s.metrics != nil),
		logger.Bool("debug", s.config.Debug))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		// health probes and scrapes are too chatty to log
		p := c.Path()
		return p == "/health" || p == "/metrics"
	}))

	security := mw.DefaultSecurityConfig()
	if len(s.config.AllowedOrigins) > 0 {
		security.AllowedOrigins = s.config.AllowedOrigins
	}

	s.echo.Use(mw.NewCORS(security))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(security))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.apiController = v1.New(s.echo, s.registry, s.log)
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.settings.Version,
		"sessions":       s.registry.Len(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Start serves HTTP requests and blocks until the server is shut down.
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", logger.String("address", s.config.Listen))

	if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryHTTP).
			Context("address", s.config.Listen).
			Build()
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return errors.New(err).
			Component("api").
			Category(errors.CategoryHTTP).
			Context("operation", "shutdown").
			Build()
	}
	s.log.Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
