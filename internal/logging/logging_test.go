package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/livetemplate/pagebuilder/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zap.InfoLevel, false},
		{"info", zap.InfoLevel, false},
		{"debug", zap.DebugLevel, false},
		{"warn", zap.WarnLevel, false},
		{"error", zap.ErrorLevel, false},
		{"verbose", zap.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewWritesRotatedJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pagebuilder.log")
	var console bytes.Buffer

	logger, err := newLogger(config.LogConfig{File: path, Level: "info"}, &console)
	require.NoError(t, err)

	logger.Named("persist").Info("snapshot saved", zap.Int("bytes", 42))
	logger.Debug("hidden below level")
	_ = logger.Sync()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.Len(t, lines, 1)
	assert.Equal(t, "snapshot saved", lines[0]["message"])
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "persist", lines[0]["logger"])
	assert.Equal(t, float64(42), lines[0]["bytes"])

	assert.Contains(t, console.String(), "snapshot saved")
	assert.NotContains(t, console.String(), "hidden below level")
}

func TestNewProductionConsoleIsJSON(t *testing.T) {
	var console bytes.Buffer
	logger, err := newLogger(config.LogConfig{Production: true}, &console)
	require.NoError(t, err)

	logger.Warn("careful")
	_ = logger.Sync()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(console.Bytes()), &entry))
	assert.Equal(t, "careful", entry["message"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
