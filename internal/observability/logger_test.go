// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webtraversal/internal/config"
)

func newBufferedLogger(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console logger with colors", func(t *testing.T) {
		buf := newBufferedLogger(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "wtl",
			Colors:      config.ColorConfig{Info: "green"},
		})
		GetLogger().Named("workflow").Info("Starting iteration.")
		Sync()

		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "Starting iteration.")
		assert.Contains(t, out, "wtl.workflow.")
		assert.Contains(t, out, colorGreen)
		assert.Contains(t, out, colorReset)
	})

	t.Run("json logger", func(t *testing.T) {
		buf := newBufferedLogger(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "wtl"})
		GetLogger().Warn("Scrape failed.", zap.String("tab", "tab"))
		Sync()

		var entry map[string]any
		require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "wtl", entry["logger"])
		assert.Equal(t, "Scrape failed.", entry["msg"])
		assert.Equal(t, "tab", entry["tab"])
	})

	t.Run("file sink", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "wtl.log")
		newBufferedLogger(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("only initializes once", func(t *testing.T) {
		buf := newBufferedLogger(t, config.LoggerConfig{Level: "info", Format: "console", ServiceName: "First"})
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	require.NotNil(t, GetLogger())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    zapcore.Level
		enabled bool
	}{
		{"", zapcore.DebugLevel, false},
		{"debug", zapcore.DebugLevel, true},
		{"info", zapcore.InfoLevel, true},
		{"warning", zapcore.WarnLevel, true},
		{"WARN", zapcore.WarnLevel, true},
		{"error", zapcore.ErrorLevel, true},
		{"critical", zapcore.ErrorLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, enabled := ParseLevel(tt.name)
			assert.Equal(t, tt.want, level)
			assert.Equal(t, tt.enabled, enabled)
		})
	}
}

func TestLogAt(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	LogAt(logger, "warning", "console warning")
	LogAt(logger, "", "dropped")
	LogAt(logger, "debug", "console debug")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "console warning", entries[0].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}
