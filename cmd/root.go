package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-faceid/config"
	"github.com/nvr-ai/go-faceid/inference"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// configPath is the YAML configuration file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string

	// cfg is the configuration loaded before any subcommand runs.
	cfg config.Config
	// logger is the configured logger shared by subcommands.
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "faceid",
	Short:         "Face identity classification service",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := ""
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}

		var err error
		cfg, logger, err = loadConfig(resolveConfigPath(configPath), level)
		if err != nil {
			return err
		}
		// Model backends log through the standard logger.
		logrus.SetOutput(logger.Out)
		logrus.SetFormatter(logger.Formatter)
		logrus.SetLevel(logger.GetLevel())
		return nil
	},
}

// loadConfig loads the configuration and builds its logger. A non-empty level overrides
// the configured log level.
func loadConfig(path, level string) (config.Config, *logrus.Logger, error) {
	c, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	if level != "" {
		c.Log.Level = level
	}
	l, err := c.Log.Logger(os.Stderr)
	if err != nil {
		return config.Config{}, nil, errors.Wrap(err, "invalid log configuration")
	}
	return c, l, nil
}

// resolveConfigPath prefers the flag, then the environment.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(config.EnvConfig)
}

// buildEngine assembles the classification engine from the loaded configuration.
func buildEngine() (*inference.Engine, error) {
	return inference.NewEngineBuilder().
		WithLogger(logger).
		WithLabels(cfg.ClassDictionary).
		WithDetector(cfg.Detector).
		WithExtractor(cfg.Features).
		WithModel(cfg.Model).
		Build()
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (default: $"+config.EnvConfig+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
}
