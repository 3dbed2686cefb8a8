// Package http provides the HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verisite/fieldflow/internal/application/service"
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
	CORSEnabled  bool
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		CORSEnabled:  false,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config            ServerConfig
	httpServer        *http.Server
	router            *gin.Engine
	definitionService service.DefinitionService
	instanceService   service.InstanceService
	movementService   service.MovementService
	evidenceService   service.EvidenceService
	expansionService  service.ExpansionService
	reportService     service.ReportService
	health            HealthFunc
	logger            Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	definitionService service.DefinitionService,
	instanceService service.InstanceService,
	movementService service.MovementService,
	evidenceService service.EvidenceService,
	expansionService service.ExpansionService,
	reportService service.ReportService,
	health HealthFunc,
	logger Logger,
) *Server {
	// Set gin mode based on environment
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config:            config,
		router:            router,
		definitionService: definitionService,
		instanceService:   instanceService,
		movementService:   movementService,
		evidenceService:   evidenceService,
		expansionService:  expansionService,
		reportService:     reportService,
		health:            health,
		logger:            logger,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// Logging middleware
	s.router.Use(s.loggingMiddleware())

	// CORS middleware for browser-based adjuster tooling
	if s.config.CORSEnabled {
		s.router.Use(s.corsMiddleware())
	}
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Process request
		c.Next()

		// Log request details
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

// corsMiddleware creates a permissive CORS middleware
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(
		s.definitionService,
		s.instanceService,
		s.movementService,
		s.evidenceService,
		s.expansionService,
		s.reportService,
		s.health,
		s.logger,
	)

	// Health check
	s.router.GET("/health", handlers.HealthCheck)

	// API routes
	api := s.router.Group("/api/v1")
	{
		// Flow definitions (authoring)
		api.POST("/definitions", handlers.CreateDefinition)
		api.GET("/definitions", handlers.ListDefinitions)
		api.GET("/definitions/:id", handlers.GetDefinition)
		api.PUT("/definitions/:id", handlers.UpdateDefinition)
		api.DELETE("/definitions/:id", handlers.DeleteDefinition)
		api.POST("/definitions/:id/duplicate", handlers.DuplicateDefinition)
		api.POST("/definitions/:id/toggle-active", handlers.ToggleDefinitionActive)
		api.POST("/definitions/validate", handlers.ValidateDefinition)

		// Flow instances (execution)
		api.POST("/flows", handlers.StartFlow)
		api.GET("/claims/:claimId/flow", handlers.GetCurrentFlow)
		api.POST("/flows/:id/cancel", handlers.CancelFlow)
		api.GET("/flows/:id/progress", handlers.GetFlowProgress)
		api.GET("/flows/:id/timeline", handlers.GetFlowTimeline)
		api.GET("/flows/:id/next", handlers.GetNextMovement)

		// Movement execution
		api.POST("/flows/:id/movements/:movementId/complete", handlers.CompleteMovement)
		api.POST("/flows/:id/movements/:movementId/skip", handlers.SkipMovement)
		api.POST("/flows/:id/gates/:gateId/evaluate", handlers.EvaluateGate)

		// Evidence
		api.POST("/flows/:id/movements/:movementId/evidence", handlers.AttachEvidence)
		api.GET("/flows/:id/movements/:movementId/evidence", handlers.GetMovementEvidence)
		api.GET("/flows/:id/movements/:movementId/evidence/validation", handlers.ValidateEvidence)

		// Runtime expansion
		api.POST("/flows/:id/rooms", handlers.AddRoomMovements)
		api.POST("/flows/:id/suggestions", handlers.SuggestMovements)
		api.POST("/flows/:id/movements", handlers.InsertMovement)

		// Reporting
		api.POST("/flows/:id/report", handlers.ExportTimeline)
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

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
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

	// Create shutdown context with timeout
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
