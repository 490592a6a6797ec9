package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/recibo-api/internal/config"
	"github.com/nexconsult/recibo-api/internal/logger"
)

func TestSession_CloseIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recibo-session")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guid"), []byte("%PDF"), 0o600))

	releases, forgets := 0, 0
	session := &Session{
		ID:      "s1",
		dir:     dir,
		release: func() { releases++ },
		onClose: func(*Session) { forgets++ },
	}

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	assert.Equal(t, 1, releases)
	assert.Equal(t, 1, forgets)
	assert.NoDirExists(t, dir)
}

func TestSession_CloseRecoversPanics(t *testing.T) {
	forgets := 0
	session := &Session{
		ID:      "s1",
		release: func() { panic("allocator already gone") },
		onClose: func(*Session) { forgets++ },
	}

	var err error
	assert.NotPanics(t, func() { err = session.Close() })
	assert.ErrorContains(t, err, "allocator already gone")
	assert.Equal(t, 1, forgets)
}

func TestBrowserService_TracksSessions(t *testing.T) {
	service := NewBrowserService(config.BrowserConfig{Headless: true}, 0, logger.Discard())

	released := 0
	first := &Session{ID: "a", release: func() { released++ }}
	second := &Session{ID: "b", release: func() { released++ }}
	require.NoError(t, service.track(first))
	require.NoError(t, service.track(second))

	stats := service.GetStats()
	assert.Equal(t, 2, stats["active_sessions"])
	assert.Equal(t, int64(2), stats["launched_sessions"])

	require.NoError(t, first.Close())
	stats = service.GetStats()
	assert.Equal(t, 1, stats["active_sessions"])
	assert.Equal(t, int64(1), stats["released_sessions"])

	require.NoError(t, service.Close())
	assert.Equal(t, 2, released)
	assert.Equal(t, 0, service.GetStats()["active_sessions"])

	_, err := service.NewSession(context.Background())
	assert.ErrorContains(t, err, "closed")
	assert.Error(t, service.track(&Session{ID: "c"}))
}

func TestBrowserService_Health(t *testing.T) {
	t.Run("configured binary present", func(t *testing.T) {
		binary := filepath.Join(t.TempDir(), "chromium")
		require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755))

		service := NewBrowserService(config.BrowserConfig{ExecPath: binary}, 0, logger.Discard())
		health := service.Health()
		assert.Equal(t, "healthy", health["status"])
		assert.Equal(t, binary, health["binary"])
	})

	t.Run("configured binary missing", func(t *testing.T) {
		service := NewBrowserService(config.BrowserConfig{ExecPath: "/nonexistent/chrome"}, 0, logger.Discard())
		health := service.Health()
		assert.Equal(t, "unhealthy", health["status"])
		assert.Contains(t, health["error"], "configured browser binary")
	})

	t.Run("closed", func(t *testing.T) {
		service := NewBrowserService(config.BrowserConfig{}, 0, logger.Discard())
		require.NoError(t, service.Close())
		assert.Equal(t, "unhealthy", service.Health()["status"])
	})
}
