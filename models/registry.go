// Package models - registry for classifier backends.
package models

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnsupportedBackend is returned by NewClassifier for backends nobody registered.
var ErrUnsupportedBackend = errors.New("unsupported model backend")

// Factory creates a classifier for numClasses classes from cfg.
type Factory func(cfg Config, numClasses int) (Classifier, error)

var (
	registryMu sync.RWMutex
	registry   = map[Backend]Factory{}
)

// Register makes a backend available to NewClassifier. Backend packages call it from init.
//
// Arguments:
//   - backend: The backend name.
//   - factory: The constructor.
func Register(backend Backend, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("models: Register factory is nil")
	}
	if _, dup := registry[backend]; dup {
		panic("models: Register called twice for backend " + string(backend))
	}
	registry[backend] = factory
}

// Backends returns the registered backend names in alphabetical order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, 0, len(registry))
	for b := range registry {
		out = append(out, string(b))
	}
	sort.Strings(out)
	return out
}

// NewClassifier creates a classifier for the configured backend.
//
// This factory function is the single entry point for classifier creation, routing to the
// constructor the backend package registered.
//
// Arguments:
//   - cfg: The classifier configuration.
//   - numClasses: The number of classes in the class dictionary.
//
// Returns:
//   - Classifier: A classifier ready for concurrent Predict calls.
//   - error: ErrUnsupportedBackend for unknown backends, or the backend's load error.
//
// Example:
//
// ```go
//
//	import _ "github.com/nvr-ai/go-faceid/models/onnx"
//
//	classifier, err := models.NewClassifier(models.DefaultConfig(), dict.Len())
//	if err != nil {
//	    log.Fatalf("Failed to load classifier: %v", err)
//	}
//	defer classifier.Close()
//
// ```
func NewClassifier(cfg Config, numClasses int) (Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid model config")
	}
	if numClasses < 1 {
		return nil, errors.Errorf("number of classes must be >= 1, got %d", numClasses)
	}

	registryMu.RLock()
	factory, ok := registry[cfg.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedBackend, "%q (registered: %v)", cfg.Backend, Backends())
	}

	c, err := factory(cfg, numClasses)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s model %s", cfg.Backend, cfg.Path)
	}
	return c, nil
}
