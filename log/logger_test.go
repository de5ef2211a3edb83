package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	l, err := Setup(path, false)
	require.NoError(t, err)
	defer l.Close()

	slog.Info("hello", "key", "value")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "key=value")
}

func TestDebugLevelGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	l, err := Setup(path, false)
	require.NoError(t, err)
	defer l.Close()

	slog.Debug("invisible")
	l.SetDebug(true)
	slog.Debug("visible")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "invisible")
	assert.Contains(t, string(data), "visible")
}

func TestRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	l, err := Setup(path, false)
	require.NoError(t, err)
	defer l.Close()

	slog.Info("before rotation")

	// Simulate logrotate: move the file aside, then signal a reopen.
	require.NoError(t, os.Rename(path, filepath.Join(dir, "test.log.1")))
	require.NoError(t, l.Rotate())

	slog.Info("after rotation")

	rotated, err := os.ReadFile(filepath.Join(dir, "test.log.1"))
	require.NoError(t, err)
	current, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(rotated), "before rotation")
	assert.True(t, strings.Contains(string(current), "after rotation"))
	assert.NotContains(t, string(current), "before rotation")
}

func TestWriteAfterCloseIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	l, err := Setup(path, false)
	require.NoError(t, err)
	l.Close()

	// The slog default still points at the closed logger; writes must not
	// error or panic.
	slog.Info("dropped")

	n, err := l.Write([]byte("x"))
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
