package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Settings configures one Retriever.
type Settings struct {
	LandingURL string
	// ScopeResults narrows the capture stage to the customer's result
	// container. When false the whole page is the scope.
	ScopeResults   bool
	IdleTimeout    time.Duration
	ResultTimeout  time.Duration
	ResultInterval time.Duration
	Capture        CaptureConfig
}

// DefaultSettings returns the production settings for landingURL.
func DefaultSettings(landingURL string) Settings {
	return Settings{
		LandingURL:     landingURL,
		ScopeResults:   true,
		IdleTimeout:    120 * time.Second,
		ResultTimeout:  120 * time.Second,
		ResultInterval: 500 * time.Millisecond,
		Capture:        DefaultCaptureConfig(),
	}
}

// Retriever drives one page through the portal flow.
type Retriever struct {
	page     Page
	settings Settings
	logger   logrus.FieldLogger

	obstacles *ObstacleDetector
	filler    *FormFiller
	query     *QueryTrigger
	locator   *ResultLocator
	capture   *CaptureCoordinator
}

// NewRetriever wires the stages around page.
func NewRetriever(page Page, catalog *Catalog, settings Settings, logger logrus.FieldLogger) *Retriever {
	return &Retriever{
		page:      page,
		settings:  settings,
		logger:    logger,
		obstacles: NewObstacleDetector(page),
		filler:    NewFormFiller(page, catalog, logger.WithField("stage", "fill")),
		query:     NewQueryTrigger(page, catalog, settings.IdleTimeout, logger.WithField("stage", "query")),
		locator:   NewResultLocator(page, catalog, settings.ResultTimeout, settings.ResultInterval, logger.WithField("stage", "locate")),
		capture:   NewCaptureCoordinator(page, catalog, settings.Capture, logger.WithField("stage", "capture")),
	}
}

// Retrieve runs the whole flow and always returns exactly one outcome.
func (r *Retriever) Retrieve(ctx context.Context, req Request) Outcome {
	if err := req.Validate(); err != nil {
		return TransportFailure{Err: fmt.Errorf("%w: customer and document numbers are required", err)}
	}
	outcome, err := r.run(ctx, req)
	if err != nil {
		return outcomeFromError(err)
	}
	return outcome
}

func (r *Retriever) run(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()

	if err := r.page.Navigate(ctx, r.settings.LandingURL); err != nil {
		return nil, &TransportError{Op: "navigate to portal", Err: err}
	}
	r.logger.WithField("url", r.settings.LandingURL).Info("Portal loaded")

	kind, found, err := r.obstacles.Detect(ctx)
	if err != nil {
		return nil, &TransportError{Op: "inspect landing page", Err: err}
	}
	if found {
		r.logger.WithField("obstacle", kind).Warn("Challenge detected on portal, aborting")
		return nil, &ObstacleError{Kind: kind}
	}

	obs, err := r.page.Observe(ctx)
	if err != nil {
		return nil, &TransportError{Op: "install page observers", Err: err}
	}
	if err := r.page.NeutralizePopups(ctx); err != nil {
		if fatal(ctx, err) {
			return nil, &TransportError{Op: "neutralize popups", Err: err}
		}
		r.logger.WithError(err).Debug("Could not neutralize window.open")
	}

	filled, err := r.filler.Fill(ctx, req)
	if err != nil {
		return nil, &TransportError{Op: "fill form", Err: err}
	}
	r.logger.WithField("filled", filled).Info("Form filled")

	if _, err := r.query.Submit(ctx); err != nil {
		return nil, &TransportError{Op: "submit query", Err: err}
	}

	scope := Scope{}
	if r.settings.ScopeResults {
		scope, err = r.locator.Locate(ctx, req.CustomerNumber)
		if err != nil {
			return nil, err
		}
	}

	outcome, err := r.capture.Capture(ctx, obs, scope, req.CustomerNumber)
	if err != nil {
		return nil, &TransportError{Op: "capture document", Err: err}
	}

	r.logger.WithFields(logrus.Fields{
		"outcome":  Kind(outcome),
		"duration": time.Since(start).String(),
	}).Info("Retrieval finished")
	return outcome, nil
}
