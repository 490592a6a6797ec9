package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/config"
)

const dumpTimeout = 15 * time.Second

// DiagnosticsService writes failure dumps into a scratch directory. It is
// a no-op unless enabled and never affects the retrieval result.
type DiagnosticsService struct {
	enabled bool
	dir     string
	logger  *logrus.Logger
	now     func() time.Time
}

// NewDiagnosticsService creates a new diagnostics service
func NewDiagnosticsService(cfg config.DebugConfig, logger *logrus.Logger) *DiagnosticsService {
	return &DiagnosticsService{
		enabled: cfg.Enabled,
		dir:     cfg.Dir,
		logger:  logger,
		now:     time.Now,
	}
}

func (d *DiagnosticsService) Enabled() bool {
	return d.enabled
}

func (d *DiagnosticsService) path(prefix, ext string) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s_%d.%s", prefix, d.now().UnixMilli(), ext))
}

// Snapshot writes fail_<ts>.png and fail_<ts>.html for page and returns
// the paths written.
func (d *DiagnosticsService) Snapshot(ctx context.Context, page automation.Page) []string {
	if !d.enabled || page == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, dumpTimeout)
	defer cancel()

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.logger.WithError(err).Warn("Could not create debug dir")
		return nil
	}

	var written []string
	pngPath := d.path("fail", "png")
	htmlPath := strings.TrimSuffix(pngPath, ".png") + ".html"

	if shot, err := page.Screenshot(ctx); err != nil {
		d.logger.WithError(err).Debug("Could not take failure screenshot")
	} else if err := os.WriteFile(pngPath, shot, 0o644); err != nil {
		d.logger.WithError(err).Warn("Could not write failure screenshot")
	} else {
		written = append(written, pngPath)
	}

	if html, err := page.HTML(ctx, ""); err != nil {
		d.logger.WithError(err).Debug("Could not read failure markup")
	} else if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		d.logger.WithError(err).Warn("Could not write failure markup")
	} else {
		written = append(written, htmlPath)
	}

	if len(written) > 0 {
		d.logger.WithField("files", written).Info("Failure snapshot written")
	}
	return written
}

// Trace writes error_<ts>.txt with the error chain and returns its path.
func (d *DiagnosticsService) Trace(err error) string {
	if !d.enabled || err == nil {
		return ""
	}
	if mkErr := os.MkdirAll(d.dir, 0o755); mkErr != nil {
		d.logger.WithError(mkErr).Warn("Could not create debug dir")
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "time: %s\n", d.now().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "error: %v\n", err)
	for depth, cur := 0, errors.Unwrap(err); cur != nil; depth, cur = depth+1, errors.Unwrap(cur) {
		fmt.Fprintf(&b, "%s caused by (%T): %v\n", strings.Repeat("  ", depth), cur, cur)
	}

	path := d.path("error", "txt")
	if writeErr := os.WriteFile(path, []byte(b.String()), 0o644); writeErr != nil {
		d.logger.WithError(writeErr).Warn("Could not write error trace")
		return ""
	}
	d.logger.WithField("file", path).Info("Error trace written")
	return path
}
