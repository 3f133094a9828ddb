package helpers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "errors.log")

	logger := NewLogger(tmpFile)

	logger.LogError("classifier", errors.New("test error"))
	logger.LogError("classifier", nil)

	data, err := os.ReadFile(tmpFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[classifier]")
	assert.Contains(t, string(data), "test error")

	// Info messages go to the structured logger, not the file
	logger.LogInfo("Test info message: %s", "hello")
	after, err := os.ReadFile(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(after))
}

func TestLoggerWithoutFile(t *testing.T) {
	logger := NewLogger("")
	assert.NotPanics(t, func() {
		logger.LogError("traverse", errors.New("ignored"))
	})
}
