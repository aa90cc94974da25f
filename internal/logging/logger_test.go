package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Sync() error { return nil }

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestNoopBeforeInitialize(t *testing.T) {
	CloseAll()
	// Must not panic.
	Get(CategoryFetch).Info("nobody hears %s", "this")
	Fetch("nor this")
}

func TestCategoriesAndLevels(t *testing.T) {
	t.Cleanup(CloseAll)
	out := &syncBuffer{}
	require.NoError(t, Initialize(Options{
		Level:      "info",
		Categories: map[string]bool{"watch": false},
		Output:     out,
	}))

	Get(CategoryFetch).Info("downloaded %d papers", 3)
	Get(CategoryFetch).Debug("hidden debug line")
	Get(CategoryWatch).Info("disabled category")

	logged := out.String()
	assert.Contains(t, logged, "downloaded 3 papers")
	assert.Contains(t, logged, "fetch")
	assert.NotContains(t, logged, "hidden debug line")
	assert.NotContains(t, logged, "disabled category")

	assert.True(t, IsCategoryEnabled(CategoryFetch))
	assert.False(t, IsCategoryEnabled(CategoryWatch))

	require.NoError(t, SetLevel("debug"))
	Get(CategoryFetch).Debug("now visible")
	assert.Contains(t, out.String(), "now visible")
}

func TestJSONFormat(t *testing.T) {
	t.Cleanup(CloseAll)
	out := &syncBuffer{}
	require.NoError(t, Initialize(Options{JSONFormat: true, Output: out}))

	Get(CategorySlides).With("deck", "2401.09603v2").Warn("deck has %d slides", 5)

	line := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(line, "{"), "expected JSON, got %q", line)
	assert.Contains(t, line, `"logger":"slides"`)
	assert.Contains(t, line, `"deck":"2401.09603v2"`)
}

func TestDebugModeWritesFile(t *testing.T) {
	t.Cleanup(CloseAll)
	dir := t.TempDir()
	logs := filepath.Join(dir, "logs")
	require.NoError(t, Initialize(Options{
		Level:     "error",
		DebugMode: true,
		LogsDir:   logs,
		Output:    zapcore.AddSync(&bytes.Buffer{}),
	}))

	Get(CategoryStore).Debug("file receives debug %s", "lines")
	Sync()

	entries, err := os.ReadDir(logs)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(logs, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "file receives debug lines")
}

func TestInvalidLevel(t *testing.T) {
	t.Cleanup(CloseAll)
	assert.Error(t, Initialize(Options{Level: "loud"}))
}
