// Package http provides the HTTP adapter over the application layer.
// Handlers translate requests into engine, scheduler and sweeper calls;
// no lifecycle rule lives here.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finstack/docflow/internal/application/engine"
	"github.com/finstack/docflow/internal/application/port"
	"github.com/finstack/docflow/internal/application/scheduler"
	"github.com/finstack/docflow/internal/application/sweeper"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	workflow   engine.WorkflowEngine
	scheduler  scheduler.Scheduler
	sweeper    sweeper.Sweeper
	audits     port.AuditRepository
	steps      port.ApprovalStepRepository
	docs       port.DocumentRepository
	logger     Logger
}

// NewServer creates a new HTTP server wired to the application services
func NewServer(
	config ServerConfig,
	workflow engine.WorkflowEngine,
	sched scheduler.Scheduler,
	sweep sweeper.Sweeper,
	docs port.DocumentRepository,
	steps port.ApprovalStepRepository,
	audits port.AuditRepository,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config:    config,
		router:    router,
		workflow:  workflow,
		scheduler: sched,
		sweeper:   sweep,
		docs:      docs,
		steps:     steps,
		audits:    audits,
		logger:    logger,
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

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

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
	handlers := NewHandlers(s.workflow, s.scheduler, s.sweeper, s.docs, s.steps, s.audits, s.logger)

	// Health check
	s.router.GET("/health", handlers.HealthCheck)

	// API routes
	api := s.router.Group("/api")
	{
		// Documents
		api.POST("/documents", handlers.CreateDocument)
		api.GET("/documents", handlers.ListDocuments)
		api.GET("/documents/:id", handlers.GetDocument)
		api.POST("/documents/:id/transitions", handlers.Transition)
		api.GET("/documents/:id/actions", handlers.AllowedActions)
		api.GET("/documents/:id/steps", handlers.ListSteps)
		api.GET("/documents/:id/audit", handlers.ListAudit)
		api.GET("/documents/:id/schedule", handlers.GetSchedule)

		// Schedules
		api.POST("/schedules/:id/pause", handlers.PauseSchedule)
		api.POST("/schedules/:id/resume", handlers.ResumeSchedule)
		api.POST("/schedules/:id/cancel", handlers.CancelSchedule)

		// Installments
		api.POST("/installments/:id/pay", handlers.PayInstallment)
		api.GET("/installments/upcoming", handlers.UpcomingInstallments)

		// Operational
		api.POST("/sweep", handlers.RunSweep)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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
