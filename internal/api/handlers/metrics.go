package handlers

import (
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/models"
	"github.com/nexconsult/recibo-api/internal/services"
)

// MetricsHandler handles metrics requests
type MetricsHandler struct {
	stats   services.StatsServiceInterface
	browser services.BrowserServiceInterface
	logger  *logrus.Logger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(stats services.StatsServiceInterface, browser services.BrowserServiceInterface, logger *logrus.Logger) *MetricsHandler {
	return &MetricsHandler{
		stats:   stats,
		browser: browser,
		logger:  logger,
	}
}

// GetMetrics handles metrics request
// @Summary Get application metrics
// @Description Contadores de descargas por resultado, sesiones de navegador y métricas del proceso
// @Tags Metrics
// @Produce json
// @Success 200 {object} models.MetricsResponse
// @Router /metrics [get]
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	requestID := c.GetString("request_id")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	counts, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).WithField("request_id", requestID).Warn("Failed to read outcome counters")
	}

	response := models.MetricsResponse{
		Retrievals: summarize(counts),
		Browser:    h.browser.GetStats(),
		System: models.SystemMetrics{
			MemoryUsageMB: math.Round(float64(m.Alloc)/1024/1024*100) / 100,
			Goroutines:    runtime.NumGoroutine(),
		},
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// successKinds are the outcome labels that delivered a PDF
var successKinds = map[string]bool{
	string(automation.ChannelHref):     true,
	string(automation.ChannelDownload): true,
	string(automation.ChannelSniff):    true,
}

func summarize(counts map[string]int64) models.RetrievalMetrics {
	metrics := models.RetrievalMetrics{ByOutcome: map[string]int64{}}
	for kind, n := range counts {
		metrics.ByOutcome[kind] = n
		metrics.Total += n
		if successKinds[kind] {
			metrics.Success += n
		}
	}
	if metrics.Total > 0 {
		metrics.SuccessRate = math.Round(float64(metrics.Success)/float64(metrics.Total)*10000) / 100
	}
	return metrics
}
