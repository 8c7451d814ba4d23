package onnx

import (
	"context"
	"os"

	"github.com/nvr-ai/go-faceid/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

func init() {
	models.Register(models.BackendONNX, func(cfg models.Config, numClasses int) (models.Classifier, error) {
		return New(cfg, numClasses, logrus.StandardLogger())
	})
}

// Session represents a model session from the onnxruntime with its preallocated tensors.
type Session struct {
	Session       *ort.AdvancedSession
	Input         *ort.Tensor[float32]
	Label         *ort.Tensor[int64]
	Probabilities *ort.Tensor[float32]
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Label != nil {
		s.Label.Destroy()
		s.Label = nil
	}
	if s.Probabilities != nil {
		s.Probabilities.Destroy()
		s.Probabilities = nil
	}
	if s.Session != nil {
		if err := s.Session.Destroy(); err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
		s.Session = nil
	}
	return nil
}

// newSession creates an onnxruntime session with preallocated tensors for one feature
// vector in and one label plus one probability row out.
func newSession(cfg models.Config, numClasses int) (*Session, error) {
	s := &Session{}

	var err error
	if s.Input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.FeatureLength))); err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	if s.Label, err = ort.NewEmptyTensor[int64](ort.NewShape(1)); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating label tensor")
	}
	if s.Probabilities, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numClasses))); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating probability tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	level, err := GraphOptimizationLevel(cfg.Runtime.GraphOptimizationLevel)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := options.SetIntraOpNumThreads(cfg.Runtime.IntraOpNumThreads); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(cfg.Runtime.InterOpNumThreads); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(level); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	provider, err := ParseExecutionProvider(cfg.Runtime.ExecutionProvider)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := appendExecutionProvider(options, provider, cfg.Runtime.ProviderOptions); err != nil {
		s.Close()
		return nil, err
	}

	s.Session, err = ort.NewAdvancedSession(
		cfg.Path,
		[]string{cfg.Runtime.InputName},
		[]string{cfg.Runtime.LabelOutputName, cfg.Runtime.ProbabilityOutputName},
		[]ort.ArbitraryTensor{s.Input},
		[]ort.ArbitraryTensor{s.Label, s.Probabilities},
		options,
	)
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating ORT session")
	}
	return s, nil
}

// Classifier runs an ONNX identity classifier.
//
// An onnxruntime session binds its input and output tensors, so a session serves one call
// at a time. The classifier keeps a pool of sessions and every Predict borrows one.
type Classifier struct {
	cfg        models.Config
	numClasses int
	pool       chan *Session
	all        []*Session
}

// New loads an ONNX classifier.
//
// Arguments:
//   - cfg: The classifier configuration.
//   - numClasses: The number of classes the model outputs.
//   - logger: The logger for initialization messages.
//
// Returns:
//   - *Classifier: The classifier.
//   - error: An error if the model or the onnxruntime library cannot be loaded.
func New(cfg models.Config, numClasses int, logger logrus.FieldLogger) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid model config")
	}
	if numClasses < 1 {
		return nil, errors.Errorf("number of classes must be >= 1, got %d", numClasses)
	}
	if _, err := ParseExecutionProvider(cfg.Runtime.ExecutionProvider); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, errors.Wrapf(err, "model file not found: %s", cfg.Path)
	}
	if err := initEnvironment(cfg.Runtime.SharedLibraryPath); err != nil {
		return nil, err
	}

	c := &Classifier{
		cfg:        cfg,
		numClasses: numClasses,
		pool:       make(chan *Session, cfg.Runtime.SessionPoolSize),
	}
	for i := 0; i < cfg.Runtime.SessionPoolSize; i++ {
		s, err := newSession(cfg, numClasses)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.all = append(c.all, s)
		c.pool <- s
	}

	logger.Infof("✅ ONNX classifier initialized with model: %s", cfg.Path)
	logger.Infof("📋 Input: %s [1, %d]", cfg.Runtime.InputName, cfg.FeatureLength)
	logger.Infof("📊 Outputs: %s, %s [1, %d]", cfg.Runtime.LabelOutputName, cfg.Runtime.ProbabilityOutputName, numClasses)
	logger.Infof("🔧 Session pool size: %d, execution provider: %s", cfg.Runtime.SessionPoolSize, cfg.Runtime.ExecutionProvider)

	return c, nil
}

// Predict classifies one feature vector.
//
// Arguments:
//   - ctx: Cancels the wait for a free session.
//   - features: A vector of cfg.FeatureLength values.
//
// Returns:
//   - models.Prediction: The predicted label and the class probabilities.
//   - error: An error if the vector has the wrong length, ctx is done or inference fails.
func (c *Classifier) Predict(ctx context.Context, features []float32) (models.Prediction, error) {
	if len(features) != c.cfg.FeatureLength {
		return models.Prediction{}, errors.Errorf("expected %d features, got %d", c.cfg.FeatureLength, len(features))
	}

	var s *Session
	select {
	case s = <-c.pool:
	case <-ctx.Done():
		return models.Prediction{}, errors.Wrap(ctx.Err(), "waiting for ONNX session")
	}
	defer func() { c.pool <- s }()

	copy(s.Input.GetData(), features)
	if err := s.Session.Run(); err != nil {
		return models.Prediction{}, errors.Wrap(err, "error running ORT session")
	}

	raw := s.Probabilities.GetData()
	probs := make([]float64, len(raw))
	for i, p := range raw {
		probs[i] = float64(p)
	}

	idx := int(s.Label.GetData()[0])
	if idx < 0 || idx >= c.numClasses {
		idx = models.ArgMax(probs)
	}

	return models.Prediction{Index: idx, Probabilities: probs}, nil
}

// Close destroys every session in the pool.
func (c *Classifier) Close() error {
	var firstErr error
	for _, s := range c.all {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.all = nil
	return firstErr
}
