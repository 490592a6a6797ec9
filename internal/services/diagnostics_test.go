package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/automation/pagetest"
	"github.com/nexconsult/recibo-api/internal/config"
	"github.com/nexconsult/recibo-api/internal/logger"
)

func fixedDiagnostics(dir string, enabled bool) *DiagnosticsService {
	d := NewDiagnosticsService(config.DebugConfig{Enabled: enabled, Dir: dir}, logger.Discard())
	d.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return d
}

func TestDiagnostics_Disabled(t *testing.T) {
	dir := t.TempDir()
	d := fixedDiagnostics(dir, false)

	assert.False(t, d.Enabled())
	assert.Nil(t, d.Snapshot(context.Background(), pagetest.New(landingURL, landingForm)))
	assert.Empty(t, d.Trace(errors.New("boom")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiagnostics_Snapshot(t *testing.T) {
	dir := t.TempDir()
	d := fixedDiagnostics(dir, true)

	written := d.Snapshot(context.Background(), pagetest.New(landingURL, landingForm))

	assert.Equal(t, []string{
		filepath.Join(dir, "fail_1700000000123.png"),
		filepath.Join(dir, "fail_1700000000123.html"),
	}, written)
	markup, err := os.ReadFile(written[1])
	require.NoError(t, err)
	assert.Contains(t, string(markup), "numeroCliente")
}

func TestDiagnostics_SnapshotOfClosedPage(t *testing.T) {
	page := pagetest.New(landingURL, landingForm)
	page.Close()

	assert.Empty(t, fixedDiagnostics(t.TempDir(), true).Snapshot(context.Background(), page))
}

func TestDiagnostics_Trace(t *testing.T) {
	dir := t.TempDir()
	d := fixedDiagnostics(dir, true)

	err := &automation.TransportError{Op: "navigate to portal", Err: fmt.Errorf("wrapped: %w", automation.ErrSessionClosed)}
	path := d.Trace(err)

	assert.Equal(t, filepath.Join(dir, "error_1700000000123.txt"), path)
	content, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(content), "navigate to portal")
	assert.Contains(t, string(content), "caused by")
	assert.Contains(t, string(content), automation.ErrSessionClosed.Error())
}
