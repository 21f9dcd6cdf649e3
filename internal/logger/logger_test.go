package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, c, err := New(Config{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	l.Debug("hello", "id", 3)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, float64(3), rec["id"])
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l, _, err := New(Config{Level: "warn"}, &buf)
	require.NoError(t, err)
	l.Info("quiet")
	l.Warn("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestNewBadFormat(t *testing.T) {
	_, _, err := New(Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pmdeck.log")
	var buf bytes.Buffer
	l, c, err := New(Config{File: path}, &buf)
	require.NoError(t, err)
	l.Info("to-file")
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to-file")
	assert.Contains(t, buf.String(), "to-file")
}

func TestColorHandlerKeepsColorOnDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil)).With("component", "engine").WithGroup("g")
	l.Error("boom", "k", "v")
	out := buf.String()
	assert.True(t, strings.Contains(out, "\033[31mERROR\033[0m"), out)
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "g.k=v")
}

func TestRotatingWriterDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	w := RotatingWriter(path, Rotation{})
	_, err := w.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}
