// Package server - HTTP API for face identity classification.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-faceid/images"
	"github.com/nvr-ai/go-faceid/inference"
	"github.com/nvr-ai/go-faceid/models"
	"github.com/nvr-ai/go-faceid/profiler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Classifier is the engine behind the API.
type Classifier interface {
	Classify(ctx context.Context, src images.Source) ([]inference.Result, error)
	Classes() *models.ClassDictionary
	Profiler() *profiler.RuntimeProfiler
}

// Config represents the HTTP server configuration.
type Config struct {
	// Addr is the listen address.
	Addr string `json:"addr" yaml:"addr"`
	// MaxUploadBytes caps the request body size.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	// RequestTimeout bounds the time a classification may take.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	// Mode is the gin mode: "release", "debug" or "test".
	Mode string `json:"mode" yaml:"mode"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":5000",
		MaxUploadBytes:  10 << 20,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Mode:            gin.ReleaseMode,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("listen address is required")
	case c.MaxUploadBytes <= 0:
		return errors.Errorf("max upload bytes must be > 0, got %d", c.MaxUploadBytes)
	case c.RequestTimeout <= 0:
		return errors.Errorf("request timeout must be > 0, got %v", c.RequestTimeout)
	case c.ShutdownTimeout <= 0:
		return errors.Errorf("shutdown timeout must be > 0, got %v", c.ShutdownTimeout)
	}
	switch c.Mode {
	case gin.ReleaseMode, gin.DebugMode, gin.TestMode:
		return nil
	default:
		return errors.Errorf("unknown gin mode %q", c.Mode)
	}
}

// Server serves the classification API.
type Server struct {
	cfg    Config
	engine Classifier
	logger logrus.FieldLogger
	router *gin.Engine
	http   *http.Server
}

// New creates a server around an engine.
//
// Arguments:
//   - cfg: The server configuration.
//   - engine: The classification engine.
//   - logger: The access and error logger.
//
// Returns:
//   - *Server: The server.
//   - error: An error if the configuration is invalid.
func New(cfg Config, engine Classifier, logger logrus.FieldLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server config")
	}
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	gin.SetMode(cfg.Mode)

	s := &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		router: gin.New(),
	}
	s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(
		recovery(s.logger),
		cors(),
		accessLog(s.logger),
		limitBody(s.cfg.MaxUploadBytes),
	)

	s.router.POST("/classify_image", s.classifyImage)
	s.router.GET("/health", s.health)
	s.router.GET("/stats", s.stats)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	s.logger.Infof("🚀 Listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	s.logger.Info("🔒 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
