package automation_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/automation/pagetest"
)

func capture(t *testing.T, page *pagetest.Page, cfg automation.CaptureConfig, customer string) (automation.Outcome, error) {
	t.Helper()
	ctx := context.Background()

	obs, err := page.Observe(ctx)
	require.NoError(t, err)

	scope, err := newLocator(page, time.Second).Locate(ctx, customer)
	require.NoError(t, err)

	coordinator := automation.NewCaptureCoordinator(page, automation.DefaultCatalog(), cfg, quietLogger())
	return coordinator.Capture(ctx, obs, scope, customer)
}

func TestCapture_FetchesScopedPDFLink(t *testing.T) {
	pdf := pagetest.SamplePDF(t, "Recibo 12345678")
	page := pagetest.New(portalURL, resultsPage(
		`<td>Cliente 11111111</td><td><a href="/docs/recibo_11111111.pdf">Descargar</a></td>`,
		`<td>Cliente 12345678</td><td><a href="/docs/recibo_12345678.pdf">Descargar</a></td>`,
	))
	page.Serve("https://portal.example/docs/recibo_11111111.pdf", automation.FetchResult{
		StatusCode: 200, ContentType: "application/pdf", Body: []byte("%PDF-wrong-customer"),
	})
	page.Serve("https://portal.example/docs/recibo_12345678.pdf", automation.FetchResult{
		StatusCode: 200, ContentType: "application/pdf", Body: pdf,
	})

	outcome, err := capture(t, page, fastCapture(), "12345678")
	require.NoError(t, err)

	fetched, ok := outcome.(automation.FetchedHref)
	require.True(t, ok, "got %T", outcome)
	assert.Equal(t, pdf, fetched.Bytes)
	assert.Equal(t, "recibo_12345678.pdf", fetched.Filename)
	assert.NotContains(t, page.Fetched(), "https://portal.example/docs/recibo_11111111.pdf")

	clicks := page.Clicks()
	require.NotEmpty(t, clicks)
	assert.Equal(t, "https://portal.example/docs/recibo_12345678.pdf", clicks[0].Href)
}

func TestCapture_HrefAcceptance(t *testing.T) {
	t.Run("pdf suffix is enough", func(t *testing.T) {
		page := pagetest.New(portalURL, resultsPage(`<td>12345678</td><td><a href="/r/12345678.pdf">PDF</a></td>`))
		page.Serve("https://portal.example/r/12345678.pdf", automation.FetchResult{
			StatusCode: 200, ContentType: "application/octet-stream", Body: []byte("%PDF-1.4"),
		})

		outcome, err := capture(t, page, fastCapture(), "12345678")
		require.NoError(t, err)
		assert.IsType(t, automation.FetchedHref{}, outcome)
	})

	t.Run("pdf content type is enough", func(t *testing.T) {
		page := pagetest.New(portalURL, resultsPage(`<td>12345678</td><td><a href="/get?file=recibo.pdf">Descargar</a></td>`))
		page.Serve("https://portal.example/get?file=recibo.pdf", automation.FetchResult{
			StatusCode: 200, ContentType: "application/pdf", Body: []byte("%PDF-1.4"),
		})

		outcome, err := capture(t, page, fastCapture(), "12345678")
		require.NoError(t, err)
		fetched, ok := outcome.(automation.FetchedHref)
		require.True(t, ok, "got %T", outcome)
		assert.Equal(t, "recibo_12345678.pdf", fetched.Filename)
	})

	t.Run("neither is rejected", func(t *testing.T) {
		page := pagetest.New(portalURL, resultsPage(`<td>12345678</td><td><a href="/get?file=recibo.pdf">Descargar</a></td>`))
		page.Serve("https://portal.example/get?file=recibo.pdf", automation.FetchResult{
			StatusCode: 200, ContentType: "text/html", Body: []byte("<html>login</html>"),
		})

		outcome, err := capture(t, page, fastCapture(), "12345678")
		require.NoError(t, err)
		assert.Equal(t, automation.NotFound{Reason: automation.ReasonNoBytes}, outcome)
		assert.Equal(t, []string{"https://portal.example/get?file=recibo.pdf"}, page.Fetched())
	})
}

func TestCapture_NativeDownload(t *testing.T) {
	pdf := pagetest.SamplePDF(t, "Recibo 12345678")

	t.Run("stream", func(t *testing.T) {
		page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td><button>Ver recibo</button></td>`))
		page.OnClick = func(p *pagetest.Page, el automation.Element) {
			p.EmitDownload(automation.Download{
				URL:               "https://portal.example/descarga?id=1",
				SuggestedFilename: "recibo_12345678.pdf",
				Body:              io.NopCloser(bytes.NewReader(pdf)),
			})
		}

		outcome, err := capture(t, page, fastCapture(), "12345678")
		require.NoError(t, err)
		download, ok := outcome.(automation.NativeDownload)
		require.True(t, ok, "got %T", outcome)
		assert.Equal(t, pdf, download.Bytes)
		assert.Equal(t, "recibo_12345678.pdf", download.Filename)
	})

	t.Run("file on disk without suggested name", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "guid-1234")
		require.NoError(t, os.WriteFile(path, pdf, 0o600))

		page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td><button>Descargar</button></td>`))
		page.OnClick = func(p *pagetest.Page, el automation.Element) {
			p.EmitDownload(automation.Download{Path: path})
		}

		outcome, err := capture(t, page, fastCapture(), "12345678")
		require.NoError(t, err)
		download, ok := outcome.(automation.NativeDownload)
		require.True(t, ok, "got %T", outcome)
		assert.Equal(t, pdf, download.Bytes)
		assert.Equal(t, "recibo_12345678.pdf", download.Filename)
	})
}

func TestCapture_SniffedResponse(t *testing.T) {
	pdf := pagetest.SamplePDF(t, "Recibo 12345678")

	tests := []struct {
		name     string
		url      string
		filename string
	}{
		{"name from url tail", "https://portal.example/files/RC-2025-03.pdf", "RC-2025-03.pdf"},
		{"default name", "https://portal.example/api/recibo?id=7", "recibo_12345678.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td><button>Imprimir</button></td>`))
			page.OnClick = func(p *pagetest.Page, el automation.Element) {
				p.EmitResponse(automation.Response{URL: "https://portal.example/app.js", ContentType: "text/javascript", Body: []byte("x")})
				p.EmitResponse(automation.Response{URL: tt.url, ContentType: "application/pdf", Body: pdf})
			}

			outcome, err := capture(t, page, fastCapture(), "12345678")
			require.NoError(t, err)
			sniffed, ok := outcome.(automation.SniffedResponse)
			require.True(t, ok, "got %T", outcome)
			assert.Equal(t, pdf, sniffed.Bytes)
			assert.Equal(t, tt.filename, sniffed.Filename)
		})
	}
}

func TestCapture_LateResponseWithinGrace(t *testing.T) {
	pdf := pagetest.SamplePDF(t, "tarde")
	cfg := fastCapture()
	cfg.HrefWindow = 60 * time.Millisecond
	cfg.DownloadWait = 60 * time.Millisecond
	cfg.Grace = 2 * time.Second

	page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td><button>Descargar</button></td>`))
	page.OnClick = func(p *pagetest.Page, el automation.Element) {
		go func() {
			time.Sleep(300 * time.Millisecond)
			p.EmitResponse(automation.Response{URL: "https://portal.example/x", ContentType: "application/pdf", Body: pdf})
		}()
	}

	outcome, err := capture(t, page, cfg, "12345678")
	require.NoError(t, err)
	assert.IsType(t, automation.SniffedResponse{}, outcome)
}

func TestCapture_PageWideFallback(t *testing.T) {
	page := pagetest.New(portalURL, `<html><body>
		<table><tr><td>Cliente 12345678</td><td>Marzo 2025</td></tr></table>
		<div class="acciones"><button>Descargar recibo</button></div>
	</body></html>`)
	page.OnClick = func(p *pagetest.Page, el automation.Element) {
		p.EmitDownload(automation.Download{SuggestedFilename: "recibo.pdf", Body: io.NopCloser(bytes.NewReader([]byte("%PDF-1.4")))})
	}

	outcome, err := capture(t, page, fastCapture(), "12345678")
	require.NoError(t, err)
	assert.IsType(t, automation.NativeDownload{}, outcome)

	clicks := page.Clicks()
	require.Len(t, clicks, 1)
	assert.Equal(t, "Descargar recibo", clicks[0].Text)
}

func TestCapture_PopupScope(t *testing.T) {
	pdf := pagetest.SamplePDF(t, "popup")
	popup := pagetest.New("https://portal.example/visor/recibo_12345678.pdf", `<html><body><embed type="application/pdf"></body></html>`)
	popup.Serve("https://portal.example/visor/recibo_12345678.pdf", automation.FetchResult{
		StatusCode: 200, ContentType: "application/pdf", Body: pdf,
	})

	page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td><a href="#" target="_blank">Ver recibo</a></td>`))
	page.OnClick = func(p *pagetest.Page, el automation.Element) {
		p.EmitPopup(popup)
	}

	outcome, err := capture(t, page, fastCapture(), "12345678")
	require.NoError(t, err)
	fetched, ok := outcome.(automation.FetchedHref)
	require.True(t, ok, "got %T", outcome)
	assert.Equal(t, pdf, fetched.Bytes)
	assert.Equal(t, "recibo_12345678.pdf", fetched.Filename)
}

func TestCapture_NotFoundReasons(t *testing.T) {
	t.Run("no control", func(t *testing.T) {
		page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td>Sin deuda</td>`))

		outcome, err := capture(t, page, fastCapture(), "12345678")
		require.NoError(t, err)
		assert.Equal(t, automation.NotFound{Reason: automation.ReasonNoControl}, outcome)
		assert.Empty(t, page.Clicks())
	})

	t.Run("clicked without bytes", func(t *testing.T) {
		page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td><button>Descargar</button></td>`))

		outcome, err := capture(t, page, fastCapture(), "12345678")
		require.NoError(t, err)
		assert.Equal(t, automation.NotFound{Reason: automation.ReasonNoBytes}, outcome)
		assert.Len(t, page.Clicks(), 1)
	})
}

func TestCapture_SessionClosed(t *testing.T) {
	page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td><button>Descargar</button></td>`))
	page.OnClick = func(p *pagetest.Page, el automation.Element) {
		p.Close()
	}

	_, err := capture(t, page, fastCapture(), "12345678")
	assert.ErrorIs(t, err, automation.ErrSessionClosed)
}

func TestCapture_ClosedPopupFallsThroughToDownload(t *testing.T) {
	pdf := pagetest.SamplePDF(t, "Recibo 12345678")
	popup := pagetest.New("https://portal.example/visor", `<html><body></body></html>`)
	popup.Close()

	page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td><button>Ver recibo</button></td>`))
	page.OnClick = func(p *pagetest.Page, el automation.Element) {
		p.EmitPopup(popup)
		go func() {
			time.Sleep(50 * time.Millisecond)
			p.EmitDownload(automation.Download{
				SuggestedFilename: "recibo_12345678.pdf",
				Body:              io.NopCloser(bytes.NewReader(pdf)),
			})
		}()
	}

	outcome, err := capture(t, page, fastCapture(), "12345678")
	require.NoError(t, err)
	download, ok := outcome.(automation.NativeDownload)
	require.True(t, ok, "got %T", outcome)
	assert.Equal(t, pdf, download.Bytes)
	assert.Equal(t, "recibo_12345678.pdf", download.Filename)
}

func TestCapture_ScopedControlBeforePageLinks(t *testing.T) {
	page := pagetest.New(portalURL, `<html><body>
		<nav><a href="/atencion-al-cliente/descarga-tu-recibo">Descarga tu recibo</a></nav>
		<table id="resultados"><tr><td>Cliente 12345678</td><td class="acciones"></td></tr></table>
	</body></html>`)
	page.OnClick = func(p *pagetest.Page, el automation.Element) {
		p.EmitDownload(automation.Download{SuggestedFilename: "recibo.pdf", Body: io.NopCloser(bytes.NewReader([]byte("%PDF-1.4")))})
	}

	obs, err := page.Observe(context.Background())
	require.NoError(t, err)
	scope, err := newLocator(page, time.Second).Locate(context.Background(), "12345678")
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		page.Append("#resultados td.acciones", `<button>Descargar</button>`)
	}()

	coordinator := automation.NewCaptureCoordinator(page, automation.DefaultCatalog(), fastCapture(), quietLogger())
	outcome, err := coordinator.Capture(context.Background(), obs, scope, "12345678")
	require.NoError(t, err)
	assert.IsType(t, automation.NativeDownload{}, outcome)

	clicks := page.Clicks()
	require.Len(t, clicks, 1)
	assert.Equal(t, "button", clicks[0].Tag)
	assert.Equal(t, "Descargar", clicks[0].Text)
}

func TestCapture_PageWideFallbackLeavesNestedFrame(t *testing.T) {
	page := pagetest.New(portalURL, `<html><body>
		<iframe id="resultados"></iframe>
		<div><button>Descargar recibo</button></div>
	</body></html>`)
	page.SetFrame("iframe#resultados", resultsPage(`<td>Cliente 12345678</td><td>Marzo 2025</td>`))
	page.OnClick = func(p *pagetest.Page, el automation.Element) {
		p.EmitDownload(automation.Download{SuggestedFilename: "recibo.pdf", Body: io.NopCloser(bytes.NewReader([]byte("%PDF-1.4")))})
	}

	outcome, err := capture(t, page, fastCapture(), "12345678")
	require.NoError(t, err)
	assert.IsType(t, automation.NativeDownload{}, outcome)

	clicks := page.Clicks()
	require.Len(t, clicks, 1)
	assert.Equal(t, "", clicks[0].Frame)
	assert.Equal(t, "Descargar recibo", clicks[0].Text)
}

func TestCapture_SimultaneousChannelsHonorPriority(t *testing.T) {
	pdf := pagetest.SamplePDF(t, "Recibo 12345678")

	t.Run("href over download", func(t *testing.T) {
		page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td><a href="/docs/recibo_12345678.pdf">Descargar</a></td>`))
		page.Serve("https://portal.example/docs/recibo_12345678.pdf", automation.FetchResult{
			StatusCode: 200, ContentType: "application/pdf", Body: pdf,
		})
		page.OnClick = func(p *pagetest.Page, el automation.Element) {
			p.EmitDownload(automation.Download{SuggestedFilename: "otro.pdf", Body: io.NopCloser(bytes.NewReader([]byte("%PDF-download")))})
		}

		outcome, err := capture(t, page, fastCapture(), "12345678")
		require.NoError(t, err)
		fetched, ok := outcome.(automation.FetchedHref)
		require.True(t, ok, "got %T", outcome)
		assert.Equal(t, pdf, fetched.Bytes)
	})

	t.Run("download over sniffed response", func(t *testing.T) {
		page := pagetest.New(portalURL, resultsPage(`<td>Cliente 12345678</td><td><button>Descargar</button></td>`))
		page.OnClick = func(p *pagetest.Page, el automation.Element) {
			p.EmitResponse(automation.Response{URL: "https://portal.example/api/recibo", ContentType: "application/pdf", Body: []byte("%PDF-sniffed")})
			p.EmitDownload(automation.Download{SuggestedFilename: "recibo_12345678.pdf", Body: io.NopCloser(bytes.NewReader(pdf))})
		}

		outcome, err := capture(t, page, fastCapture(), "12345678")
		require.NoError(t, err)
		download, ok := outcome.(automation.NativeDownload)
		require.True(t, ok, "got %T", outcome)
		assert.Equal(t, pdf, download.Bytes)
	})
}
