package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-faceid/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "faceid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, 1.3, cfg.Detector.ScaleFactor)
	assert.Equal(t, 5, cfg.Detector.MinNeighbors)
	assert.Equal(t, 2, cfg.Detector.MinEyes)
	assert.Equal(t, 4096, cfg.Features.Length())
	assert.Equal(t, models.BackendONNX, cfg.Model.Backend)
	assert.Equal(t, "artifacts/class_dictionary.json", cfg.ClassDictionary)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
class_dictionary: /srv/faceid/classes.json
server:
  addr: ":8080"
  request_timeout: 5s
detector:
  pool_size: 3
model:
  backend: linear
  path: /srv/faceid/linear.json
log:
  level: debug
  format: json
profiler:
  report_interval: 1m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/faceid/classes.json", cfg.ClassDictionary)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Detector.PoolSize)
	assert.Equal(t, 1.3, cfg.Detector.ScaleFactor)
	assert.Equal(t, models.BackendLinear, cfg.Model.Backend)
	assert.Equal(t, "float_input", cfg.Model.Runtime.InputName)
	assert.Equal(t, time.Minute, cfg.Profiler.ReportInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "server:\n  port: 5000\n"},
		{"malformed", "server: [\n"},
		{"bad duration", "server:\n  request_timeout: soon\n"},
		{"invalid detector", "detector:\n  scale_factor: 0.5\n"},
		{"feature length mismatch", "features:\n  size: 16\n"},
		{"bad log level", "log:\n  level: chatty\n"},
		{"bad log format", "log:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.Logger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.WithField("faces", 2).Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"faces":2`)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "faceid.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "cpu", cfg.Model.Runtime.ExecutionProvider)
	assert.Equal(t, 4, cfg.Detector.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
}
