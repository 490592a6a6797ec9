package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/config"
	"github.com/nexconsult/recibo-api/internal/logger"
	"github.com/nexconsult/recibo-api/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubReceipts struct{}

func (stubReceipts) Retrieve(context.Context, automation.Request) automation.Outcome {
	return automation.NativeDownload{Document: automation.Document{Bytes: []byte("%PDF-1.4"), Filename: "r.pdf"}}
}
func (stubReceipts) LandingURL() string               { return config.DefaultPortalURL }
func (stubReceipts) Health() map[string]interface{} { return map[string]interface{}{"status": "healthy"} }

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "test", MaxBodyBytes: 1 << 20},
		Security: config.SecurityConfig{
			APIKey: "k",
			CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
	}
	log := logger.Discard()
	browser := services.NewBrowserService(config.BrowserConfig{ExecPath: "/nonexistent/chrome"}, 0, log)
	container := &services.Container{
		BrowserService: browser,
		ReceiptService: stubReceipts{},
		StatsService:   services.NewStatsService(nil, "", log),
	}
	server := NewServer(cfg, log, container)
	t.Cleanup(server.rateLimiter.Stop)
	return server
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", "k")
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestServer_Routes(t *testing.T) {
	s := testServer(t)

	root := do(s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, root.Code)
	assert.Equal(t, "OK /", root.Body.String())
	assert.NotEmpty(t, root.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", root.Header().Get("X-Content-Type-Options"))

	assert.JSONEq(t, `{"ok":true}`, do(s, http.MethodGet, "/status", "").Body.String())

	for _, path := range []string{"/retrieve", "/descargar"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusMethodNotAllowed, do(s, http.MethodGet, path, "").Code)

			w := do(s, http.MethodPost, path, `{"customerNumber":"1","documentNumber":"2"}`)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
			assert.Equal(t, `attachment; filename="r.pdf"`, w.Header().Get("Content-Disposition"))
		})
	}

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(s, http.MethodDelete, "/status", "").Code)
}

func TestServer_HealthReflectsBrowser(t *testing.T) {
	s := testServer(t)

	assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodGet, "/health/ready", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/metrics", "").Code)
}
