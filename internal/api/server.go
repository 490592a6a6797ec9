package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/nexconsult/recibo-api/internal/api/handlers"
	"github.com/nexconsult/recibo-api/internal/api/middleware"
	"github.com/nexconsult/recibo-api/internal/config"
	"github.com/nexconsult/recibo-api/internal/services"
)

// Server represents the HTTP server
type Server struct {
	Router      *gin.Engine
	config      *config.Config
	logger      *logrus.Logger
	services    *services.Container
	rateLimiter *middleware.RateLimiter
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, logger *logrus.Logger, services *services.Container) *Server {
	server := &Server{
		config:   cfg,
		logger:   logger,
		services: services,
	}

	server.setupRouter()
	return server
}

// setupRouter configures the router with all routes and middleware
func (s *Server) setupRouter() {
	s.Router = gin.New()
	s.Router.HandleMethodNotAllowed = true

	// Global middleware
	s.Router.Use(middleware.RequestID())
	s.Router.Use(middleware.Logger(s.logger))
	s.Router.Use(middleware.Recovery(s.logger))
	s.Router.Use(middleware.CORS(s.config.Security.CORS))
	s.Router.Use(middleware.Security())

	// Liveness and health (no rate limiting)
	healthHandler := handlers.NewHealthHandler(s.services, s.logger)
	s.Router.GET("/", healthHandler.GetRoot)
	s.Router.GET("/status", healthHandler.GetStatus)
	s.Router.GET("/health", healthHandler.GetHealth)
	s.Router.GET("/health/ready", healthHandler.GetReadiness)
	s.Router.GET("/health/live", healthHandler.GetLiveness)

	// Metrics endpoint
	s.Router.GET("/metrics", handlers.NewMetricsHandler(s.services.StatsService, s.services.BrowserService, s.logger).GetMetrics)

	// Swagger documentation
	if !s.config.IsProduction() {
		s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Retrieval routes; /descargar keeps the original path working
	s.rateLimiter = middleware.NewRateLimiter(s.config.Security.RateLimit)
	retrieveHandler := handlers.NewRetrieveHandler(s.services.ReceiptService, s.config, s.logger)
	retrieval := s.Router.Group("/")
	retrieval.Use(s.rateLimiter.Middleware())
	for _, path := range []string{"/retrieve", "/descargar"} {
		retrieval.POST(path, retrieveHandler.Retrieve)
		s.Router.GET(path, retrieveHandler.MethodNotAllowed)
	}

	// 404 handler
	s.Router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "Not Found",
			"code":       "NOT_FOUND",
			"message":    "The requested resource was not found",
			"request_id": c.GetString("request_id"),
			"timestamp":  time.Now(),
			"path":       c.Request.URL.Path,
		})
	})

	// 405 handler
	s.Router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":      "Method Not Allowed",
			"code":       "METHOD_NOT_ALLOWED",
			"message":    "The requested method is not allowed for this resource",
			"request_id": c.GetString("request_id"),
			"timestamp":  time.Now(),
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
		})
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully. In-flight
// retrievals get the request ceiling to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.Router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}
	defer s.rateLimiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"port":        s.config.Server.Port,
			"environment": s.config.Server.Environment,
			"portal":      s.config.Portal.LandingURL,
		}).Info("Starting HTTP server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Timeouts.Request+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")
	return nil
}
