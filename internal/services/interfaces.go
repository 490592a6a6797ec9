package services

import (
	"context"
	"time"

	"github.com/nexconsult/recibo-api/internal/automation"
)

// BrowserServiceInterface hands out one fresh, exclusively owned browser
// session per retrieval
type BrowserServiceInterface interface {
	// NewSession launches a browser and returns its attached page
	NewSession(ctx context.Context) (*Session, error)

	// GetStats returns session counters
	GetStats() map[string]interface{}

	// Health returns browser service health status
	Health() map[string]interface{}

	// Close refuses new sessions and releases the active ones
	Close() error
}

// ReceiptServiceInterface runs bill retrievals
type ReceiptServiceInterface interface {
	// Retrieve runs one retrieval in its own session and always returns an outcome
	Retrieve(ctx context.Context, req automation.Request) automation.Outcome

	// LandingURL is the portal page a human should visit on an obstacle
	LandingURL() string

	// Health returns receipt service health status
	Health() map[string]interface{}
}

// StatsServiceInterface counts retrieval outcomes
type StatsServiceInterface interface {
	// Record counts one outcome of the given kind
	Record(ctx context.Context, kind string, duration time.Duration)

	// Snapshot returns the counters per outcome kind
	Snapshot(ctx context.Context) (map[string]int64, error)

	// Health returns stats service health status
	Health() map[string]interface{}
}

// DiagnosticsServiceInterface writes failure dumps for offline troubleshooting
type DiagnosticsServiceInterface interface {
	// Snapshot saves a screenshot and the markup of page
	Snapshot(ctx context.Context, page automation.Page) []string

	// Trace saves the error chain of err
	Trace(err error) string

	// Enabled reports whether dumps are written at all
	Enabled() bool
}
