package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForRunCarriesFields(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Unsetenv("LOG_LEVEL")

	var buf bytes.Buffer
	InitWithWriter(&buf)
	buf.Reset()

	ForRun("run-1", "dealer.com", "reconcile").Info().Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry["run"])
	assert.Equal(t, "dealer.com", entry["domain"])
	assert.Equal(t, "reconcile", entry["mode"])
	assert.Equal(t, "hello", entry["message"])
}

func TestLogLevelFromEnvironment(t *testing.T) {
	os.Setenv("LOG_LEVEL", "warn")
	defer os.Unsetenv("LOG_LEVEL")
	assert.Equal(t, "warn", getLogLevel().String())

	os.Setenv("LOG_LEVEL", "nonsense")
	assert.Equal(t, "info", getLogLevel().String())

	os.Unsetenv("LOG_LEVEL")
	os.Setenv("SRP_ENVIRONMENT", "production")
	defer os.Unsetenv("SRP_ENVIRONMENT")
	assert.Equal(t, "info", getLogLevel().String())
}

func TestComponentLoggers(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf)

	for name, log := range map[string]*Logger{"store": ForStore(), "publisher": ForPublisher()} {
		buf.Reset()
		log.Warn().Msg("ping")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, name, entry["component"])
	}
}
