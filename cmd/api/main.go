package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/nexconsult/recibo-api/internal/api"
	"github.com/nexconsult/recibo-api/internal/config"
	"github.com/nexconsult/recibo-api/internal/logger"
	"github.com/nexconsult/recibo-api/internal/services"

	// Import docs for Swagger
	_ "github.com/nexconsult/recibo-api/docs"
)

// @title Recibo API
// @version 1.0
// @description Descarga automatizada de recibos de gas natural desde el portal de Cálidda.
// @description Un navegador headless completa el formulario del portal y devuelve el PDF del recibo.

// @contact.name API Support
// @contact.url http://www.nexconsult.com/support
// @contact.email support@nexconsult.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Recibo API Server...")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	serviceContainer, err := services.NewContainer(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize services: %v", err)
	}
	defer func() {
		if err := serviceContainer.Close(); err != nil {
			logger.WithError(err).Error("Failed to release services")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := api.NewServer(cfg, logger, serviceContainer).Run(ctx); err != nil {
		logger.WithError(err).Error("Server stopped with error")
	}
}
