package services

import (
	"context"
	"errors"
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

var validRequest = automation.Request{
	CustomerNumber: "12345678",
	DocumentType:   "DNI",
	DocumentNumber: "87654321",
}

func newReceiptService(browser BrowserServiceInterface, stats StatsServiceInterface, debugDir string) *ReceiptService {
	diagnostics := NewDiagnosticsService(config.DebugConfig{Enabled: debugDir != "", Dir: debugDir}, logger.Discard())
	return NewReceiptService(browser, automation.DefaultCatalog(), fastSettings(), 10*time.Second, stats, diagnostics, logger.Discard())
}

func TestReceiptService_NativeDownload(t *testing.T) {
	pdf := pagetest.SamplePDF(t, "Recibo 12345678")
	browser := &fakeBrowser{newPage: func() automation.Page {
		return portalPage(pdf, `<td>Cliente 12345678</td><td><button>Descargar</button></td>`)
	}}
	stats := &recordingStats{}

	outcome := newReceiptService(browser, stats, "").Retrieve(context.Background(), validRequest)

	download, ok := outcome.(automation.NativeDownload)
	require.True(t, ok, "got %#v", outcome)
	assert.Equal(t, pdf, download.Bytes)
	assert.Equal(t, "recibo_12345678.pdf", download.Filename)

	acquired, released := browser.counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
	assert.Equal(t, []string{"native_download"}, stats.recorded())
}

func TestReceiptService_NoResultReleasesSession(t *testing.T) {
	debugDir := t.TempDir()
	browser := &fakeBrowser{newPage: func() automation.Page {
		return portalPage(nil, `<td>Cliente 99999999</td><td><button>Descargar</button></td>`)
	}}
	stats := &recordingStats{}

	outcome := newReceiptService(browser, stats, debugDir).Retrieve(context.Background(), validRequest)

	assert.Equal(t, automation.NotFound{Reason: automation.ReasonNoResult}, outcome)
	acquired, released := browser.counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
	assert.Equal(t, []string{"not_found_no_result"}, stats.recorded())

	pngs, err := filepath.Glob(filepath.Join(debugDir, "fail_*.png"))
	require.NoError(t, err)
	assert.Len(t, pngs, 1)
	htmls, err := filepath.Glob(filepath.Join(debugDir, "fail_*.html"))
	require.NoError(t, err)
	require.Len(t, htmls, 1)
	markup, err := os.ReadFile(htmls[0])
	require.NoError(t, err)
	assert.Contains(t, string(markup), "99999999")
}

func TestReceiptService_InvalidRequestNeverAcquires(t *testing.T) {
	browser := &fakeBrowser{newPage: func() automation.Page { return portalPage(nil) }}
	stats := &recordingStats{}

	outcome := newReceiptService(browser, stats, "").Retrieve(context.Background(), automation.Request{CustomerNumber: "12345678"})

	failure, ok := outcome.(automation.TransportFailure)
	require.True(t, ok, "got %#v", outcome)
	assert.ErrorIs(t, failure.Err, automation.ErrValidation)
	acquired, _ := browser.counts()
	assert.Zero(t, acquired)
	assert.Empty(t, stats.recorded())
}

func TestReceiptService_LaunchFailure(t *testing.T) {
	debugDir := t.TempDir()
	browser := &fakeBrowser{err: errors.New("chrome not found")}
	stats := &recordingStats{}

	outcome := newReceiptService(browser, stats, debugDir).Retrieve(context.Background(), validRequest)

	failure, ok := outcome.(automation.TransportFailure)
	require.True(t, ok, "got %#v", outcome)
	assert.Contains(t, failure.Message(), "chrome not found")
	assert.Equal(t, []string{"transport_error"}, stats.recorded())

	traces, err := filepath.Glob(filepath.Join(debugDir, "error_*.txt"))
	require.NoError(t, err)
	assert.Len(t, traces, 1)
}

type panickingPage struct {
	*pagetest.Page
}

func (panickingPage) Navigate(context.Context, string) error {
	panic("renderer exploded")
}

func TestReceiptService_PanicStillReleases(t *testing.T) {
	browser := &fakeBrowser{newPage: func() automation.Page {
		return panickingPage{pagetest.New(landingURL, landingForm)}
	}}
	stats := &recordingStats{}

	outcome := newReceiptService(browser, stats, "").Retrieve(context.Background(), validRequest)

	failure, ok := outcome.(automation.TransportFailure)
	require.True(t, ok, "got %#v", outcome)
	assert.Contains(t, failure.Message(), "renderer exploded")
	_, released := browser.counts()
	assert.Equal(t, 1, released)
	assert.Equal(t, []string{"transport_error"}, stats.recorded())
}

func TestReceiptService_CallerCancellationDoesNotAbort(t *testing.T) {
	pdf := pagetest.SamplePDF(t, "Recibo 12345678")
	browser := &fakeBrowser{newPage: func() automation.Page {
		return portalPage(pdf, `<td>Cliente 12345678</td><td><button>Descargar</button></td>`)
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := newReceiptService(browser, &recordingStats{}, "").Retrieve(ctx, validRequest)

	assert.IsType(t, automation.NativeDownload{}, outcome)
}

func TestReceiptService_ConsecutiveRequestsUseOwnSessions(t *testing.T) {
	pdf := pagetest.SamplePDF(t, "Recibo 12345678")
	var pages []*pagetest.Page
	browser := &fakeBrowser{newPage: func() automation.Page {
		page := portalPage(pdf, `<td>Cliente 12345678</td><td><button>Descargar</button></td>`)
		pages = append(pages, page)
		return page
	}}
	service := newReceiptService(browser, &recordingStats{}, "")

	first := service.Retrieve(context.Background(), validRequest)
	second := service.Retrieve(context.Background(), validRequest)

	assert.Equal(t, first, second)
	acquired, released := browser.counts()
	assert.Equal(t, 2, acquired)
	assert.Equal(t, 2, released)
	require.Len(t, pages, 2)
	assert.NotSame(t, pages[0], pages[1])
}

func TestSettingsFromConfig(t *testing.T) {
	timeouts := config.DefaultTimeoutConfig()
	settings := SettingsFromConfig(config.PortalConfig{LandingURL: landingURL, ScopeResults: true}, timeouts)

	assert.Equal(t, landingURL, settings.LandingURL)
	assert.True(t, settings.ScopeResults)
	assert.Equal(t, timeouts.Result, settings.ResultTimeout)
	assert.Equal(t, timeouts.Capture, settings.Capture.Budget)
	assert.Equal(t, timeouts.Download, settings.Capture.DownloadWait)
	assert.Equal(t, timeouts.Grace, settings.Capture.Grace)
	assert.Equal(t, automation.DefaultSettings(landingURL), settings)
}
