// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/commute-approvals/internal/application/service"
	"github.com/garyjia/commute-approvals/internal/infrastructure/external/lark"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RequestObserver records per-route latency
type RequestObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// CardActionProcessor handles Lark card button callbacks
type CardActionProcessor interface {
	ProcessEvent(ctx context.Context, payload []byte) (*lark.CardActionResponse, error)
}

// CallbackVerifier authenticates Lark callbacks and returns their plain payload
type CallbackVerifier interface {
	Open(timestamp, nonce, signature string, body []byte) ([]byte, error)
}

// HealthCheck pings one dependency
type HealthCheck func(ctx context.Context) error

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	DefaultPageSize int
	Location        *time.Location // zone departure times are rendered in
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		DefaultPageSize: 20,
		Location:        time.UTC,
	}
}

// Dependencies groups what the handlers call into
type Dependencies struct {
	Coordinator    service.ApprovalCoordinator
	Reports        service.ReportService
	CardActions    CardActionProcessor // optional
	Callbacks      CallbackVerifier    // optional, checks card action callbacks
	HealthChecks   map[string]HealthCheck
	MetricsHandler http.Handler    // optional, served on /metrics
	Observer       RequestObserver // optional
	Logger         Logger
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)

	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = DefaultServerConfig().DefaultPageSize
	}

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: deps.Logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware logs each request and feeds the latency observer
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if s.deps.Observer != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			s.deps.Observer.ObserveHTTP(method, route, status, latency)
		}

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.deps, s.config)

	s.router.GET("/health", handlers.HealthCheck)
	if s.deps.MetricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.MetricsHandler))
	}
	if s.deps.CardActions != nil {
		s.router.POST("/lark/card-actions", handlers.CardAction)
	}

	api := s.router.Group("/api/v1")
	api.Use(requireActor())
	{
		api.POST("/sessions/:flow", handlers.SaveSession)
		api.PUT("/sessions/:flow", handlers.ReplaceSession)

		api.POST("/trips", handlers.FinalizeTrip)
		api.GET("/trips", handlers.ListTrips)
		api.GET("/trips/export", handlers.ExportTrips)
		api.GET("/trips/:id", handlers.GetTrip)
		api.POST("/trips/:id/actions/:trigger", handlers.TripAction)
		api.POST("/trips/:id/assignment", handlers.AssignCab)

		api.POST("/routes", handlers.FinalizeRoute)
		api.GET("/routes", handlers.ListRoutes)
		api.GET("/routes/:id", handlers.GetRoute)
		api.POST("/routes/:id/actions/:trigger", handlers.RouteAction)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or serving fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
