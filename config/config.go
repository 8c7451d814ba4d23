// Package config - YAML configuration of the face identity service.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/nvr-ai/go-faceid/detector"
	"github.com/nvr-ai/go-faceid/features"
	"github.com/nvr-ai/go-faceid/models"
	"github.com/nvr-ai/go-faceid/profiler"
	"github.com/nvr-ai/go-faceid/server"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the configuration file path.
const EnvConfig = "FACEID_CONFIG"

// LogConfig represents the logging configuration.
type LogConfig struct {
	// Level is a logrus level name.
	Level string `json:"level" yaml:"level"`
	// Format is "text" or "json".
	Format string `json:"format" yaml:"format"`
}

// Config is the full service configuration.
type Config struct {
	// ClassDictionary is the JSON class name -> index file.
	ClassDictionary string                    `json:"class_dictionary" yaml:"class_dictionary"`
	Server          server.Config             `json:"server" yaml:"server"`
	Detector        detector.Config           `json:"detector" yaml:"detector"`
	Features        features.Config           `json:"features" yaml:"features"`
	Model           models.Config             `json:"model" yaml:"model"`
	Log             LogConfig                 `json:"log" yaml:"log"`
	Profiler        profiler.ProfilingOptions `json:"profiler" yaml:"profiler"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ClassDictionary: "artifacts/class_dictionary.json",
		Server:          server.DefaultConfig(),
		Detector:        detector.DefaultConfig(),
		Features:        features.DefaultConfig(),
		Model:           models.DefaultConfig(),
		Log:             LogConfig{Level: "info", Format: "text"},
		Profiler:        profiler.DefaultOptions(),
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep their default
// value; unknown keys are rejected.
//
// Arguments:
//   - path: The YAML file. Empty returns the defaults.
//
// Returns:
//   - Config: The configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.ClassDictionary == "" {
		return errors.New("class_dictionary is required")
	}
	if err := c.Server.Validate(); err != nil {
		return errors.Wrap(err, "server")
	}
	if err := c.Detector.Validate(); err != nil {
		return errors.Wrap(err, "detector")
	}
	if err := c.Features.Validate(); err != nil {
		return errors.Wrap(err, "features")
	}
	if c.Model.FeatureLength != c.Features.Length() {
		return errors.Errorf("model: feature_length %d does not match features (%d)", c.Model.FeatureLength, c.Features.Length())
	}
	if err := c.Model.Validate(); err != nil {
		return errors.Wrap(err, "model")
	}
	if _, err := c.Log.Logger(io.Discard); err != nil {
		return errors.Wrap(err, "log")
	}
	return nil
}

// Logger creates a logrus logger writing to out.
func (l LogConfig) Logger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)

	switch strings.ToLower(l.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("unknown log format %q", l.Format)
	}
	return logger, nil
}
