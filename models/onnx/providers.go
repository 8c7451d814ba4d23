package onnx

import (
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ExecutionProvider names an onnxruntime execution provider.
type ExecutionProvider string

const (
	// ProviderCPU uses the default CPU execution provider.
	ProviderCPU ExecutionProvider = "cpu"
	// ProviderCUDA uses NVIDIA CUDA.
	ProviderCUDA ExecutionProvider = "cuda"
	// ProviderCoreML uses Apple CoreML.
	ProviderCoreML ExecutionProvider = "coreml"
	// ProviderOpenVINO uses Intel OpenVINO.
	ProviderOpenVINO ExecutionProvider = "openvino"
)

// ParseExecutionProvider parses a provider name. Empty means ProviderCPU.
func ParseExecutionProvider(name string) (ExecutionProvider, error) {
	switch p := ExecutionProvider(strings.ToLower(name)); p {
	case "":
		return ProviderCPU, nil
	case ProviderCPU, ProviderCUDA, ProviderCoreML, ProviderOpenVINO:
		return p, nil
	default:
		return "", errors.Errorf("unknown execution provider %q", name)
	}
}

// appendExecutionProvider enables the provider on the session options.
//
// Arguments:
//   - options: The session options to update.
//   - provider: The provider to enable. ProviderCPU leaves options untouched.
//   - providerOptions: Provider specific key/value options.
//
// Returns:
//   - error: An error if the provider is not available in the loaded onnxruntime build.
func appendExecutionProvider(options *ort.SessionOptions, provider ExecutionProvider, providerOptions map[string]string) error {
	switch provider {
	case ProviderCPU:
		return nil
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case ProviderOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(providerOptions); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA options")
		}
		defer cuda.Destroy()
		if len(providerOptions) > 0 {
			if err := cuda.Update(providerOptions); err != nil {
				return errors.Wrap(err, "error converting CUDA options")
			}
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	default:
		return errors.Errorf("unknown execution provider %q", provider)
	}
	return nil
}
