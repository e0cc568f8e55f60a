package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json"}, &buf)
	l.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestNew_TextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn"}, &buf)
	l.Info("quiet")
	l.Warn("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestOpen_ConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chat.log")
	w, c, err := Open(Config{File: path}, false)
	require.NoError(t, err)
	New(Config{}, w).Error("answer generation failed", "stack", "goroutine 1")
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "answer generation failed")
	assert.Contains(t, string(data), "goroutine 1")
}

func TestOpen_Destinations(t *testing.T) {
	w, c, err := Open(Config{}, false)
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)
	assert.NoError(t, c.Close())

	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	w, c, err = Open(Config{}, true)
	require.NoError(t, err)
	defer c.Close()
	f, ok := w.(*os.File)
	require.True(t, ok)
	assert.Equal(t, DefaultFile(), f.Name())
}
