package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/recibo-api/internal/automation"
)

func TestWriteDocument(t *testing.T) {
	doc := automation.Document{Bytes: []byte("%PDF-1.4"), Filename: "recibo_marzo.pdf"}

	t.Run("stdout", func(t *testing.T) {
		var out bytes.Buffer
		path, err := writeDocument(&out, "-", doc, "123")
		require.NoError(t, err)
		assert.Equal(t, "-", path)
		assert.Equal(t, doc.Bytes, out.Bytes())
	})

	t.Run("directory", func(t *testing.T) {
		dir := t.TempDir()
		path, err := writeDocument(nil, dir, doc, "123")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "recibo_marzo.pdf"), path)
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, doc.Bytes, content)
	})

	t.Run("explicit file", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "bill.pdf")
		path, err := writeDocument(nil, target, doc, "123")
		require.NoError(t, err)
		assert.Equal(t, target, path)
		assert.FileExists(t, target)
	})

	t.Run("unsafe suggested name", func(t *testing.T) {
		dir := t.TempDir()
		path, err := writeDocument(nil, dir, automation.Document{Bytes: doc.Bytes, Filename: "/"}, "123")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "recibo_123.pdf"), path)
	})
}

func TestOutcomeError(t *testing.T) {
	portal := "https://portal.example"

	assert.ErrorContains(t, outcomeError(automation.NotFound{Reason: automation.ReasonNoBytes}, portal), "clicked_no_bytes")
	assert.ErrorContains(t, outcomeError(automation.ObstacleDetected{Kind: automation.ObstacleRecaptcha}, portal), portal)
	assert.ErrorContains(t, outcomeError(automation.TransportFailure{Err: errors.New("tab crashed")}, portal), "tab crashed")
}

func TestFetchRequiresIdentifiers(t *testing.T) {
	err := executeFetch(t, "-c", "123")
	assert.ErrorContains(t, err, "doc-number")
}

func TestFetchRejectsInvalidMonth(t *testing.T) {
	err := executeFetch(t, "-c", "123", "-d", "456", "--month", "13")
	assert.ErrorContains(t, err, "month")
}

func executeFetch(t *testing.T, args ...string) error {
	t.Helper()
	fetchCmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	rootCmd.SetArgs(append([]string{"fetch", "--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return rootCmd.Execute()
}
