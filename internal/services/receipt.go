package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/config"
	"github.com/nexconsult/recibo-api/internal/logger"
)

// ReceiptService runs each retrieval inside its own browser session
type ReceiptService struct {
	browser     BrowserServiceInterface
	catalog     *automation.Catalog
	settings    automation.Settings
	timeout     time.Duration
	stats       StatsServiceInterface
	diagnostics DiagnosticsServiceInterface
	logger      *logrus.Logger
}

// SettingsFromConfig maps the environment configuration onto retrieval settings
func SettingsFromConfig(portal config.PortalConfig, t config.TimeoutConfig) automation.Settings {
	return automation.Settings{
		LandingURL:     portal.LandingURL,
		ScopeResults:   portal.ScopeResults,
		IdleTimeout:    t.Idle,
		ResultTimeout:  t.Result,
		ResultInterval: t.ResultInterval,
		Capture: automation.CaptureConfig{
			Budget:          t.Capture,
			TriggerWindow:   t.TriggerWindow,
			TriggerInterval: t.TriggerInterval,
			ScopedWindow:    t.ScopedTrigger,
			HrefWindow:      t.HrefWindow,
			HrefInterval:    t.HrefInterval,
			DownloadWait:    t.Download,
			PopupBudget:     t.Popup,
			Grace:           t.Grace,
		},
	}
}

// NewReceiptService creates a new receipt service
func NewReceiptService(
	browser BrowserServiceInterface,
	catalog *automation.Catalog,
	settings automation.Settings,
	timeout time.Duration,
	stats StatsServiceInterface,
	diagnostics DiagnosticsServiceInterface,
	logger *logrus.Logger,
) *ReceiptService {
	return &ReceiptService{
		browser:     browser,
		catalog:     catalog,
		settings:    settings,
		timeout:     timeout,
		stats:       stats,
		diagnostics: diagnostics,
		logger:      logger,
	}
}

func (s *ReceiptService) LandingURL() string {
	return s.settings.LandingURL
}

// Retrieve acquires a session, runs the flow and releases the session on
// every exit path, panics included. Callers cannot cancel a retrieval; the
// request timeout bounds it.
func (s *ReceiptService) Retrieve(ctx context.Context, req automation.Request) (outcome automation.Outcome) {
	start := time.Now()
	log := logger.FromContext(ctx, s.logger).WithField("customer_number", req.CustomerNumber)

	if err := req.Validate(); err != nil {
		return automation.TransportFailure{Err: err}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Retrieval panicked")
			err := fmt.Errorf("unexpected failure: %v", r)
			s.diagnostics.Trace(err)
			outcome = automation.TransportFailure{Err: err}
		}
		kind := automation.Kind(outcome)
		s.stats.Record(context.WithoutCancel(ctx), kind, time.Since(start))
		log.WithFields(logrus.Fields{
			"outcome":  kind,
			"duration": time.Since(start).String(),
		}).Info("Retrieval completed")
	}()

	session, err := s.browser.NewSession(ctx)
	if err != nil {
		log.WithError(err).Error("Could not start browser session")
		err = &automation.TransportError{Op: "launch browser", Err: err}
		s.diagnostics.Trace(err)
		return automation.TransportFailure{Err: err}
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("Browser session release failed")
		}
	}()

	sessionLog := log.WithField("session_id", session.ID)
	retriever := automation.NewRetriever(session.Page, s.catalog, s.settings, sessionLog)
	outcome = retriever.Retrieve(ctx, req)

	switch o := outcome.(type) {
	case automation.NotFound:
		s.diagnostics.Snapshot(context.WithoutCancel(ctx), session.Page)
	case automation.TransportFailure:
		sessionLog.WithError(o.Err).Error("Retrieval failed")
		s.diagnostics.Trace(o.Err)
	}
	return outcome
}

// Health returns receipt service health status
func (s *ReceiptService) Health() map[string]interface{} {
	return map[string]interface{}{
		"status":        "healthy",
		"landing_url":   s.settings.LandingURL,
		"scope_results": s.settings.ScopeResults,
		"timeout":       s.timeout.String(),
	}
}
