package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nexconsult/recibo-api/internal/api"
	"github.com/nexconsult/recibo-api/internal/config"
	"github.com/nexconsult/recibo-api/internal/logger"
	"github.com/nexconsult/recibo-api/internal/services"

	// Import docs for Swagger
	_ "github.com/nexconsult/recibo-api/docs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve POST /retrieve (and the /descargar alias) plus the health,
metrics and swagger endpoints until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "listen port (overrides PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		cfg.Log.Level = override
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := services.NewContainer(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.WithError(err).Error("Failed to release services")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return api.NewServer(cfg, log, container).Run(ctx)
}
