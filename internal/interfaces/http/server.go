// Package http provides the HTTP adapter over the workflow engine and its
// supporting services. It translates requests into engine calls and error
// kinds into status codes; no business rules live here.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinwill/docflow/internal/application/engine"
	"github.com/jinwill/docflow/internal/application/service"
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
	auth       AuthConfig
	httpServer *http.Server
	router     *gin.Engine
	logger     Logger
}

// NewServer creates a new HTTP server wired to the given services
func NewServer(
	config ServerConfig,
	auth AuthConfig,
	wfEngine engine.Engine,
	documents service.DocumentService,
	notifications service.NotificationService,
	audit service.AuditService,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config: config,
		auth:   auth,
		router: gin.New(),
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes(NewHandlers(wfEngine, documents, notifications, audit, auth, logger))

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

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(handlers *Handlers) {
	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	api.POST("/auth/token", handlers.IssueToken)

	authed := api.Group("")
	authed.Use(AuthMiddleware(s.auth))
	{
		authed.POST("/documents", handlers.CreateDocument)
		authed.GET("/documents", handlers.ListDocuments)
		authed.GET("/documents/:id", handlers.GetDocument)

		authed.POST("/workflows", handlers.CreateWorkflow)
		authed.GET("/workflows", handlers.ListWorkflows)
		authed.GET("/workflows/:id", handlers.GetWorkflow)
		authed.POST("/workflows/:id/approve", handlers.ApproveWorkflow)
		authed.POST("/workflows/:id/reject", handlers.RejectWorkflow)
		authed.POST("/workflows/:id/cancel", handlers.CancelWorkflow)

		authed.GET("/notifications", handlers.ListNotifications)

		admin := authed.Group("/audit")
		admin.Use(AdminOnly())
		{
			admin.GET("", handlers.QueryAudit)
			admin.GET("/export", handlers.ExportAudit)
		}
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
