package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	l, err := New(Config{Level: "info", Console: true})
	require.NoError(t, err)
	defer l.Close()

	assert.NotNil(t, l.Zerolog())
}

func TestNew_InvalidLevelFallsBack(t *testing.T) {
	l, err := New(Config{Level: "nonsense", Console: true})
	require.NoError(t, err)
	defer l.Close()
}

func TestNew_FileOutput(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "docwise.log")

	l, err := New(Config{Level: "debug", File: logFile})
	require.NoError(t, err)

	l.Info().Str("component", "test").Msg("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestNew_RedactionEnabled(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "docwise.log")

	l, err := New(Config{Level: "info", File: logFile, Redaction: true})
	require.NoError(t, err)

	l.Info().Str("key", "sk-abcdefghijklmnopqrstuvwxyz123456").Msg("configured provider")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-abcdefghijklmnopqrstuvwxyz123456")
	assert.Contains(t, string(data), "[REDACTED]")
}

func TestSetLevel(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "docwise.log")

	l, err := New(Config{Level: "info", File: logFile})
	require.NoError(t, err)

	l.SetLevel("error")
	l.Info().Msg("should be suppressed")
	l.Error().Msg("should appear")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be suppressed")
	assert.Contains(t, string(data), "should appear")
}
