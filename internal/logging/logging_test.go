package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{ServiceName: "api", Environment: "production", LogLevel: "info", Output: &buf})

	logger.Info("request", zap.String("request_id", "req-1"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "production", entry["environment"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestNewDevelopmentWritesConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{ServiceName: "cli", Environment: "development", LogLevel: "debug", Output: &buf})

	logger.Debug("transition", zap.String("to", "validating"))
	require.NoError(t, logger.Sync())

	line := buf.String()
	assert.False(t, strings.HasPrefix(line, "{"), "console encoder should not emit JSON: %q", line)
	assert.Contains(t, line, "transition")
	assert.Contains(t, line, "validating")
}

func TestLevelFiltersEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Environment: "production", LogLevel: "warn", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), "ParseLevel(%q)", input)
	}
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("LOG_LEVEL", "error")

	var buf bytes.Buffer
	logger := New(Config{Output: &buf})
	logger.Warn("dropped")
	logger.Error("kept")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"environment":"staging"`)
}
