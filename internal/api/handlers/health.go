package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/models"
)

// Version is reported by the health endpoints
const Version = "1.0.0"

// HealthChecker reports the health of the service dependencies
type HealthChecker interface {
	Health() map[string]interface{}
	Ready() bool
}

// HealthHandler handles health check requests
type HealthHandler struct {
	services  HealthChecker
	logger    *logrus.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(services HealthChecker, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		services:  services,
		logger:    logger,
		startTime: time.Now(),
	}
}

// GetRoot answers the bare liveness probe
// @Summary Liveness
// @Tags Health
// @Produce plain
// @Success 200 {string} string "OK /"
// @Router / [get]
func (h *HealthHandler) GetRoot(c *gin.Context) {
	c.String(http.StatusOK, "OK /")
}

// GetStatus answers the JSON liveness probe
// @Summary Status
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /status [get]
func (h *HealthHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetHealth handles general health check
// @Summary Health check
// @Description Estado de la API y de sus dependencias (navegador, estadísticas)
// @Tags Health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Failure 503 {object} models.HealthResponse
// @Router /health [get]
func (h *HealthHandler) GetHealth(c *gin.Context) {
	servicesHealth := h.services.Health()

	status := "healthy"
	response := models.HealthResponse{
		Timestamp: time.Now(),
		Version:   Version,
		Services:  make(map[string]models.ServiceInfo, len(servicesHealth)),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	for name, raw := range servicesHealth {
		healthMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		info := models.ServiceInfo{LastCheck: time.Now(), Details: map[string]interface{}{}}
		for key, value := range healthMap {
			switch key {
			case "status":
				info.Status, _ = value.(string)
			case "error":
				info.Error, _ = value.(string)
			default:
				info.Details[key] = value
			}
		}
		if len(info.Details) == 0 {
			info.Details = nil
		}

		switch info.Status {
		case "unhealthy":
			status = "unhealthy"
		case "degraded":
			if status == "healthy" {
				status = "degraded"
			}
		}

		response.Services[name] = info
	}
	response.Status = status

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
		h.logger.WithField("services", servicesHealth).Warn("Health check failed")
	}

	c.JSON(httpStatus, response)
}

// GetReadiness handles readiness probe
// @Summary Readiness check
// @Description Indica si hay un navegador disponible para atender descargas
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/ready [get]
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	ready := h.services.Ready()

	response := map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now(),
	}

	httpStatus := http.StatusOK
	if !ready {
		response["services"] = h.services.Health()
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, response)
}

// GetLiveness handles liveness probe
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/live [get]
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"version":   Version,
	})
}
