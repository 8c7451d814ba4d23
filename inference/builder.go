package inference

import (
	"github.com/nvr-ai/go-faceid/detector"
	"github.com/nvr-ai/go-faceid/features"
	"github.com/nvr-ai/go-faceid/models"
	"github.com/nvr-ai/go-faceid/profiler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// EngineBuilder assembles an Engine with a fluent API.
//
// The first failing step records its error; later steps are skipped and Build returns it.
// The model is loaded for the number of classes in the dictionary, so WithLabels (or
// WithClassDictionary) must come before WithModel.
type EngineBuilder struct {
	logger     logrus.FieldLogger
	classes    *models.ClassDictionary
	detector   FaceDetector
	extractor  *features.Extractor
	classifier models.Classifier
	profiler   *profiler.RuntimeProfiler
	err        error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{logger: logrus.StandardLogger()}
}

// WithLogger sets the logger used by the engine and the components the builder creates.
func (b *EngineBuilder) WithLogger(logger logrus.FieldLogger) *EngineBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithLabels loads the class dictionary from a JSON file.
//
// Arguments:
//   - path: The class dictionary file.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithLabels(path string) *EngineBuilder {
	if b.HasError() {
		return b
	}
	classes, err := models.LoadClassDictionary(path)
	if err != nil {
		b.err = err
		return b
	}
	b.logger.Infof("🔍 Classes (%s): %v", path, classes.Names())
	b.classes = classes
	return b
}

// WithClassDictionary sets an already loaded class dictionary.
func (b *EngineBuilder) WithClassDictionary(classes *models.ClassDictionary) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if classes == nil {
		b.err = errors.New("class dictionary is nil")
		return b
	}
	b.classes = classes
	return b
}

// WithDetector creates the cascade face detector.
//
// Arguments:
//   - cfg: The detector configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithDetector(cfg detector.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	det, err := detector.New(cfg, b.logger)
	if err != nil {
		b.err = err
		return b
	}
	b.detector = det
	return b
}

// WithFaceDetector sets the face detector.
func (b *EngineBuilder) WithFaceDetector(det FaceDetector) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.detector = det
	return b
}

// WithExtractor creates the feature extractor. Without it, the default parameters are used.
func (b *EngineBuilder) WithExtractor(cfg features.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	ex, err := features.NewExtractor(cfg)
	if err != nil {
		b.err = err
		return b
	}
	b.extractor = ex
	return b
}

// WithModel loads the classifier for the configured backend.
//
// Arguments:
//   - cfg: The classifier configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(cfg models.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if b.classes == nil {
		b.err = errors.New("class dictionary must be configured before the model")
		return b
	}
	classifier, err := models.NewClassifier(cfg, b.classes.Len())
	if err != nil {
		b.err = err
		return b
	}
	b.classifier = classifier
	return b
}

// WithClassifier sets the classifier.
func (b *EngineBuilder) WithClassifier(classifier models.Classifier) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.classifier = classifier
	return b
}

// WithProfiler sets the profiler. Without it, a profiler with default options is created.
func (b *EngineBuilder) WithProfiler(p *profiler.RuntimeProfiler) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.profiler = p
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - *Engine: The engine.
func (b *EngineBuilder) MustBuild() *Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine. On error, the components the builder created are released.
//
// Returns:
//   - *Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (*Engine, error) {
	if !b.HasError() {
		switch {
		case b.classes == nil:
			b.err = errors.New("class dictionary not configured")
		case b.detector == nil:
			b.err = errors.New("detector not configured")
		case b.classifier == nil:
			b.err = errors.New("model not configured")
		}
	}
	if !b.HasError() && b.extractor == nil {
		b.extractor, b.err = features.NewExtractor(features.DefaultConfig())
	}
	if b.HasError() {
		b.release()
		return nil, b.err
	}

	if b.profiler == nil {
		b.profiler = profiler.NewRuntimeProfiler(profiler.DefaultOptions(), b.logger)
	}

	b.logger.Infof("✅ Engine ready with %d classes", b.classes.Len())

	return &Engine{
		logger:     b.logger,
		classes:    b.classes,
		detector:   b.detector,
		extractor:  b.extractor,
		classifier: b.classifier,
		profiler:   b.profiler,
	}, nil
}

func (b *EngineBuilder) release() {
	if b.detector != nil {
		b.detector.Close()
		b.detector = nil
	}
	if b.classifier != nil {
		b.classifier.Close()
		b.classifier = nil
	}
}
