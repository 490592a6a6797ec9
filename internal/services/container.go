package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/config"
)

// Container holds all service dependencies
type Container struct {
	config         *config.Config
	logger         *logrus.Logger
	redisClient    *redis.Client
	BrowserService BrowserServiceInterface
	ReceiptService ReceiptServiceInterface
	StatsService   StatsServiceInterface
	Diagnostics    DiagnosticsServiceInterface
}

// NewContainer creates a new service container
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	container := &Container{
		config: cfg,
		logger: logger,
	}

	container.initRedis()

	if err := container.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return container, nil
}

// initRedis connects to Redis when enabled. An unreachable server leaves
// the client nil and stats fall back to memory.
func (c *Container) initRedis() {
	if !c.config.Redis.Enabled {
		c.logger.Info("Redis disabled, stats kept in memory")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.config.Redis.Host, c.config.Redis.Port),
		Password:     c.config.Redis.Password,
		DB:           c.config.Redis.DB,
		PoolSize:     c.config.Redis.PoolSize,
		DialTimeout:  c.config.Redis.DialTimeout,
		ReadTimeout:  c.config.Redis.ReadTimeout,
		WriteTimeout: c.config.Redis.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Redis.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis connection failed, stats kept in memory")
		_ = client.Close()
		return
	}

	c.redisClient = client
	c.logger.Info("Redis connection established")
}

// initServices initializes all services
func (c *Container) initServices() error {
	catalog, err := automation.LoadCatalog(c.config.Portal.CatalogFile)
	if err != nil {
		return err
	}
	if c.config.Portal.CatalogFile != "" {
		c.logger.WithField("file", c.config.Portal.CatalogFile).Info("Locator catalog override loaded")
	}

	c.StatsService = NewStatsService(c.redisClient, c.config.Redis.KeyPrefix, c.logger)
	c.Diagnostics = NewDiagnosticsService(c.config.Debug, c.logger)
	c.BrowserService = NewBrowserService(c.config.Browser, c.config.Timeouts.Navigation, c.logger)
	c.ReceiptService = NewReceiptService(
		c.BrowserService,
		catalog,
		SettingsFromConfig(c.config.Portal, c.config.Timeouts),
		c.config.Timeouts.Request,
		c.StatsService,
		c.Diagnostics,
		c.logger,
	)

	return nil
}

// Close closes all service connections
func (c *Container) Close() error {
	var errs []error

	if c.BrowserService != nil {
		if err := c.BrowserService.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser service: %w", err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Health checks the health of all services
func (c *Container) Health() map[string]interface{} {
	health := make(map[string]interface{})

	if c.BrowserService != nil {
		health["browser"] = c.BrowserService.Health()
	}
	if c.ReceiptService != nil {
		health["receipt"] = c.ReceiptService.Health()
	}
	if c.StatsService != nil {
		health["stats"] = c.StatsService.Health()
	}

	return health
}

// Ready reports whether new retrievals can be served
func (c *Container) Ready() bool {
	if c.BrowserService == nil {
		return false
	}
	status, _ := c.BrowserService.Health()["status"].(string)
	return status == "healthy"
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logrus.Logger {
	return c.logger
}
