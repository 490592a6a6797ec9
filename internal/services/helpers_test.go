package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/automation/pagetest"
)

const landingURL = "https://portal.example/atencion-al-cliente/descarga-tu-recibo"

const landingForm = `<html><body>
<form>
  <input name="numeroCliente">
  <select name="tipoDocumento"><option value="">Seleccione</option><option value="DNI">DNI</option></select>
  <input name="numeroDocumento">
  <button type="button">Consultar</button>
</form>
</body></html>`

func resultsMarkup(rows ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	for _, row := range rows {
		b.WriteString("<tr>" + row + "</tr>")
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

// portalPage returns a fixture that shows rows after "Consultar" and emits
// pdf as a native download when a download control is clicked.
func portalPage(pdf []byte, rows ...string) *pagetest.Page {
	page := pagetest.New(landingURL, landingForm)
	page.OnClick = func(p *pagetest.Page, el automation.Element) {
		switch {
		case strings.EqualFold(el.Label(), "Consultar"):
			p.SetHTML(resultsMarkup(rows...))
		case strings.Contains(strings.ToLower(el.Label()), "descargar") && pdf != nil:
			p.EmitDownload(automation.Download{
				SuggestedFilename: "recibo_12345678.pdf",
				Body:              io.NopCloser(bytes.NewReader(pdf)),
			})
		}
	}
	return page
}

func fastSettings() automation.Settings {
	return automation.Settings{
		LandingURL:     landingURL,
		ScopeResults:   true,
		IdleTimeout:    50 * time.Millisecond,
		ResultTimeout:  300 * time.Millisecond,
		ResultInterval: 10 * time.Millisecond,
		Capture: automation.CaptureConfig{
			Budget:          3 * time.Second,
			TriggerWindow:   150 * time.Millisecond,
			TriggerInterval: 10 * time.Millisecond,
			ScopedWindow:    80 * time.Millisecond,
			HrefWindow:      200 * time.Millisecond,
			HrefInterval:    10 * time.Millisecond,
			DownloadWait:    250 * time.Millisecond,
			PopupBudget:     150 * time.Millisecond,
			Grace:           50 * time.Millisecond,
		},
	}
}

// fakeBrowser hands out fixture pages and counts session lifecycles.
type fakeBrowser struct {
	newPage func() automation.Page
	err     error

	mu       sync.Mutex
	acquired int
	released int
}

func (f *fakeBrowser) NewSession(ctx context.Context) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	page := f.newPage()
	return &Session{
		ID:   fmt.Sprintf("session-%d", f.acquired),
		Page: page,
		release: func() {
			f.mu.Lock()
			f.released++
			f.mu.Unlock()
			if closer, ok := page.(interface{ Close() }); ok {
				closer.Close()
			}
		},
	}, nil
}

func (f *fakeBrowser) counts() (acquired, released int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired, f.released
}

func (f *fakeBrowser) GetStats() map[string]interface{} { return map[string]interface{}{} }
func (f *fakeBrowser) Health() map[string]interface{}   { return map[string]interface{}{"status": "healthy"} }
func (f *fakeBrowser) Close() error                     { return nil }

// recordingStats keeps the kinds it was asked to record.
type recordingStats struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recordingStats) Record(ctx context.Context, kind string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recordingStats) Snapshot(ctx context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64)
	for _, k := range r.kinds {
		out[k]++
	}
	return out, nil
}

func (r *recordingStats) Health() map[string]interface{} { return map[string]interface{}{"status": "healthy"} }

func (r *recordingStats) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kinds...)
}
