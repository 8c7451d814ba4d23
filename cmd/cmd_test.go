package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-faceid/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(config.EnvConfig, "/etc/faceid.yaml")
	assert.Equal(t, "local.yaml", resolveConfigPath("local.yaml"))
	assert.Equal(t, "/etc/faceid.yaml", resolveConfigPath(""))

	t.Setenv(config.EnvConfig, "")
	assert.Equal(t, "", resolveConfigPath(""))
}

func TestThumbnailName(t *testing.T) {
	tests := []struct {
		path  string
		index int
		class string
		want  string
	}{
		{"photos/messi.jpg", 0, "lionel_messi", "messi-face0-lionel_messi.jpg"},
		{"/tmp/group.final.png", 2, "roger_federer", "group.final-face2-roger_federer.jpg"},
		{"noext", 1, "virat_kohli", "noext-face1-virat_kohli.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, thumbnailName(tt.path, tt.index, tt.class))
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["classify"])

	assert.Error(t, classifyCmd.Args(classifyCmd, nil), "classify needs at least one path")
	assert.Error(t, serveCmd.Args(serveCmd, []string{"extra"}))
}

func TestLoadConfigLevelOverride(t *testing.T) {
	c, l, err := loadConfig("", "debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	c, l, err = loadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestLoadConfigErrors(t *testing.T) {
	_, _, err := loadConfig("", "chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log configuration")
	assert.NotEqual(t, err, errors.Cause(err), "the logrus error is wrapped")

	path := filepath.Join(t.TempDir(), "faceid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 1\n"), 0o600))
	_, _, err = loadConfig(path, "")
	assert.Error(t, err)
}

func TestBatchError(t *testing.T) {
	assert.NoError(t, batchError(0, 3))

	err := batchError(2, 5)
	require.Error(t, err)
	assert.Equal(t, "2 of 5 images could not be classified", err.Error())
}
