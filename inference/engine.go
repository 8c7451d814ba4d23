// Package inference - Face identity classification engine.
package inference

import (
	"context"

	"github.com/nvr-ai/go-faceid/detector"
	"github.com/nvr-ai/go-faceid/features"
	"github.com/nvr-ai/go-faceid/images"
	"github.com/nvr-ai/go-faceid/models"
	_ "github.com/nvr-ai/go-faceid/models/linear" // registers the linear backend
	_ "github.com/nvr-ai/go-faceid/models/onnx"   // registers the onnx backend
	"github.com/nvr-ai/go-faceid/profiler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// FaceDetector finds the faces to classify in a decoded image.
type FaceDetector interface {
	Detect(ctx context.Context, img gocv.Mat) ([]detector.Face, error)
	Close() error
}

// Engine classifies the faces in an image. It is built once, never modified afterwards and
// safe for concurrent use.
type Engine struct {
	logger     logrus.FieldLogger
	classes    *models.ClassDictionary
	detector   FaceDetector
	extractor  *features.Extractor
	classifier models.Classifier
	profiler   *profiler.RuntimeProfiler
}

// Classify runs the full pipeline on one image: decode, detect faces with two eyes, extract
// features and predict the identity of every accepted face.
//
// Arguments:
//   - ctx: Bounds the wait for pooled detectors and sessions; checked between faces.
//   - src: The encoded image.
//
// Returns:
//   - []Result: One result per accepted face in detection order; empty, never nil, when no
//     face qualifies.
//   - error: images.ErrInvalidPayload or images.ErrUndecodable for bad input, ctx errors, or
//     an internal failure.
func (e *Engine) Classify(ctx context.Context, src images.Source) ([]Result, error) {
	defer e.profiler.StartOperation("classify")()

	done := e.profiler.StartOperation("decode")
	img, err := src.Decode()
	done()
	if err != nil {
		return nil, err
	}
	defer img.Close()

	done = e.profiler.StartOperation("detect")
	faces, err := e.detector.Detect(ctx, img)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "detect faces")
	}
	defer func() {
		for i := range faces {
			faces[i].Close()
		}
	}()

	results := make([]Result, 0, len(faces))
	for _, face := range faces {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "classify faces")
		}

		r, err := e.classifyFace(ctx, face)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	e.profiler.RecordMetric("faces_per_image", float64(len(results)))
	if debugEnabled(e.logger) {
		e.logger.WithFields(logrus.Fields{
			"source": src.String(),
			"format": src.Format(),
			"width":  img.Cols(),
			"height": img.Rows(),
			"faces":  len(results),
		}).Debug("image classified")
	}

	return results, nil
}

func (e *Engine) classifyFace(ctx context.Context, face detector.Face) (Result, error) {
	done := e.profiler.StartOperation("extract")
	vec, err := e.extractor.Extract(face.Crop)
	done()
	if err != nil {
		return Result{}, errors.Wrapf(err, "extract features of face at %v", face.Box)
	}

	done = e.profiler.StartOperation("predict")
	pred, err := e.classifier.Predict(ctx, features.Vector(vec))
	done()
	if err != nil {
		return Result{}, errors.Wrap(err, "predict identity")
	}

	if len(pred.Probabilities) != e.classes.Len() {
		return Result{}, errors.Errorf("classifier returned %d probabilities for %d classes", len(pred.Probabilities), e.classes.Len())
	}
	name, err := e.classes.Resolve(pred)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Class:            name,
		ClassProbability: Percentages(pred.Probabilities),
		ClassDictionary:  e.classes.Map(),
		Box:              face.Box,
	}, nil
}

// debugEnabled reports whether logger emits debug entries. Loggers of unknown types are
// assumed to.
func debugEnabled(logger logrus.FieldLogger) bool {
	switch l := logger.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	default:
		return true
	}
}

// Classes returns the class dictionary.
func (e *Engine) Classes() *models.ClassDictionary {
	return e.classes
}

// Profiler returns the profiler timing the pipeline stages.
func (e *Engine) Profiler() *profiler.RuntimeProfiler {
	return e.profiler
}

// Close stops the profiler and releases the detector and the classifier.
func (e *Engine) Close() error {
	e.profiler.Stop()

	var firstErr error
	if err := e.detector.Close(); err != nil {
		firstErr = err
	}
	if err := e.classifier.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
