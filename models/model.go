// Package models - Identity classifiers and their class dictionaries.
package models

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
)

// Backend identifies how a classifier artifact is evaluated.
type Backend string

const (
	// BackendONNX runs a scikit-learn classifier exported to ONNX on onnxruntime.
	BackendONNX Backend = "onnx"
	// BackendLinear evaluates a linear model exported as JSON coefficients.
	BackendLinear Backend = "linear"
)

// Prediction is the output of a classifier for one feature vector.
type Prediction struct {
	// Index is the predicted class index.
	Index int
	// Probabilities holds one probability in [0, 1] per class, indexed by class index.
	Probabilities []float64
}

// Classifier predicts an identity from a feature vector.
//
// Implementations must be safe for concurrent use.
type Classifier interface {
	// Predict classifies one feature vector.
	Predict(ctx context.Context, features []float32) (Prediction, error)
	// Close releases native resources.
	Close() error
}

// RuntimeConfig holds the onnxruntime settings.
type RuntimeConfig struct {
	// SharedLibraryPath is the onnxruntime shared library. Empty selects the platform default.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	// SessionPoolSize is the number of sessions available to concurrent callers.
	SessionPoolSize int `json:"session_pool_size" yaml:"session_pool_size"`
	// IntraOpNumThreads sets threads for parallelizing ops. 0 lets onnxruntime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`
	// InterOpNumThreads sets threads for parallelizing independent ops. 0 lets onnxruntime decide.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`
	// GraphOptimizationLevel is one of "disable", "basic", "extended" or "all".
	GraphOptimizationLevel string `json:"graph_optimization_level" yaml:"graph_optimization_level"`
	// ExecutionProvider is one of "cpu", "cuda", "coreml" or "openvino".
	ExecutionProvider string `json:"execution_provider" yaml:"execution_provider"`
	// ProviderOptions are passed to the execution provider as is.
	// See: https://onnxruntime.ai/docs/execution-providers/
	ProviderOptions map[string]string `json:"provider_options,omitempty" yaml:"provider_options,omitempty"`
	// InputName is the model input.
	InputName string `json:"input_name" yaml:"input_name"`
	// LabelOutputName is the predicted label output.
	LabelOutputName string `json:"label_output_name" yaml:"label_output_name"`
	// ProbabilityOutputName is the class probability output.
	ProbabilityOutputName string `json:"probability_output_name" yaml:"probability_output_name"`
}

// Config represents the classifier configuration.
type Config struct {
	// Backend selects the classifier implementation.
	Backend Backend `json:"backend" yaml:"backend"`
	// Path is the model artifact.
	Path string `json:"path" yaml:"path"`
	// FeatureLength is the expected feature vector length.
	FeatureLength int `json:"feature_length" yaml:"feature_length"`
	// Runtime configures the onnx backend.
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// DefaultConfig returns the configuration for the bundled ONNX model.
//
// Returns:
//   - Config: The default configuration.
//
// @example
// cfg := DefaultConfig()
// cfg.Path = "artifacts/saved_model.onnx"
// classifier, err := NewClassifier(cfg, dict.Len())
func DefaultConfig() Config {
	return Config{
		Backend:       BackendONNX,
		Path:          "artifacts/saved_model.onnx",
		FeatureLength: 4096,
		Runtime: RuntimeConfig{
			SessionPoolSize:        max(1, runtime.NumCPU()/2),
			GraphOptimizationLevel: "extended",
			ExecutionProvider:      "cpu",
			InputName:              "float_input",
			LabelOutputName:        "label",
			ProbabilityOutputName:  "probabilities",
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Backend == "":
		return errors.New("model backend is required")
	case c.Path == "":
		return errors.New("model path is required")
	case c.FeatureLength < 1:
		return errors.Errorf("feature length must be >= 1, got %d", c.FeatureLength)
	}
	if c.Backend == BackendONNX {
		switch {
		case c.Runtime.SessionPoolSize < 1:
			return errors.Errorf("session pool size must be >= 1, got %d", c.Runtime.SessionPoolSize)
		case c.Runtime.InputName == "" || c.Runtime.LabelOutputName == "" || c.Runtime.ProbabilityOutputName == "":
			return errors.New("onnx input and output names are required")
		}
	}
	return nil
}

// ArgMax returns the index of the largest value, or -1 for an empty slice.
func ArgMax(values []float64) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}
