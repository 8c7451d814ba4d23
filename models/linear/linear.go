// Package linear - Linear identity classifiers evaluated as a gorgonia graph.
//
// The artifact is the JSON export of a fitted linear model (for example a scikit-learn
// LogisticRegression or a linear SVC behind a StandardScaler):
//
//	{"coef": [[...], ...], "intercept": [...], "mean": [...], "scale": [...]}
//
// coef has one row per class (or a single row for a binary model), mean and scale are the
// optional standardization parameters. Class probabilities are the softmax of the scores.
package linear

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sync"

	"github.com/nvr-ai/go-faceid/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func init() {
	models.Register(models.BackendLinear, func(cfg models.Config, numClasses int) (models.Classifier, error) {
		return Load(cfg, numClasses, logrus.StandardLogger())
	})
}

// Artifact is the serialized linear model.
type Artifact struct {
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
	Mean      []float64   `json:"mean,omitempty"`
	Scale     []float64   `json:"scale,omitempty"`
}

// Validate checks the artifact dimensions against the expected feature length and classes.
func (a *Artifact) Validate(featureLength, numClasses int) error {
	rows := len(a.Coef)
	switch {
	case rows == 0:
		return errors.New("coef is empty")
	case rows == 1 && numClasses != 2:
		return errors.Errorf("a single coef row is only valid for 2 classes, got %d", numClasses)
	case rows > 1 && rows != numClasses:
		return errors.Errorf("coef has %d rows for %d classes", rows, numClasses)
	case len(a.Intercept) != rows:
		return errors.Errorf("intercept has %d values for %d coef rows", len(a.Intercept), rows)
	}
	for i, row := range a.Coef {
		if len(row) != featureLength {
			return errors.Errorf("coef row %d has %d values, want %d", i, len(row), featureLength)
		}
	}
	if a.Mean != nil && len(a.Mean) != featureLength {
		return errors.Errorf("mean has %d values, want %d", len(a.Mean), featureLength)
	}
	if a.Scale != nil && len(a.Scale) != featureLength {
		return errors.Errorf("scale has %d values, want %d", len(a.Scale), featureLength)
	}
	return nil
}

// Classifier evaluates scores = features x coef^T + intercept on a tape machine.
//
// The tape machine holds the input binding and the output value, so calls are serialized.
type Classifier struct {
	featureLength int
	numClasses    int
	mean, scale   []float64

	mu     sync.Mutex
	graph  *G.ExprGraph
	input  *G.Node
	scores G.Value
	vm     G.VM
}

// Load reads a linear artifact and builds its graph.
//
// Arguments:
//   - cfg: The classifier configuration. cfg.Path is the JSON artifact.
//   - numClasses: The number of classes.
//   - logger: The logger for initialization messages.
//
// Returns:
//   - *Classifier: The classifier.
//   - error: An error if the artifact is missing, malformed or has the wrong dimensions.
func Load(cfg models.Config, numClasses int, logger logrus.FieldLogger) (*Classifier, error) {
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "read linear model %s", cfg.Path)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrapf(err, "parse linear model %s", cfg.Path)
	}

	c, err := New(a, cfg.FeatureLength, numClasses)
	if err != nil {
		return nil, err
	}

	logger.Infof("✅ Linear classifier initialized with model: %s", cfg.Path)
	logger.Infof("📋 Features: %d, classes: %d, standardized: %t", cfg.FeatureLength, numClasses, a.Mean != nil || a.Scale != nil)

	return c, nil
}

// New builds a classifier from an in-memory artifact.
func New(a Artifact, featureLength, numClasses int) (*Classifier, error) {
	if err := a.Validate(featureLength, numClasses); err != nil {
		return nil, errors.Wrap(err, "invalid linear model")
	}

	coef, intercept := a.Coef, a.Intercept
	if len(coef) == 1 {
		// Binary models score the positive class only; a zero row for the negative class
		// turns the softmax into the logistic function.
		coef = [][]float64{make([]float64, featureLength), coef[0]}
		intercept = []float64{0, intercept[0]}
	}

	// Transposed coefficients, featureLength x numClasses.
	weights := make([]float64, featureLength*numClasses)
	for k, row := range coef {
		for f, v := range row {
			weights[f*numClasses+k] = v
		}
	}
	bias := append([]float64(nil), intercept...)

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(1, featureLength), G.WithName("features"))
	w := G.NewMatrix(g, tensor.Float64,
		G.WithShape(featureLength, numClasses),
		G.WithName("coef"),
		G.WithValue(tensor.New(tensor.WithShape(featureLength, numClasses), tensor.WithBacking(weights))),
	)
	b := G.NewMatrix(g, tensor.Float64,
		G.WithShape(1, numClasses),
		G.WithName("intercept"),
		G.WithValue(tensor.New(tensor.WithShape(1, numClasses), tensor.WithBacking(bias))),
	)

	product, err := G.Mul(input, w)
	if err != nil {
		return nil, errors.Wrap(err, "build linear graph")
	}
	scores, err := G.Add(product, b)
	if err != nil {
		return nil, errors.Wrap(err, "build linear graph")
	}

	c := &Classifier{
		featureLength: featureLength,
		numClasses:    numClasses,
		mean:          a.Mean,
		scale:         a.Scale,
		graph:         g,
		input:         input,
	}
	G.Read(scores, &c.scores)
	c.vm = G.NewTapeMachine(g)

	return c, nil
}

// standardize converts the features to float64, applying (x - mean) / scale when the model
// was fitted on standardized data. Zero scales are treated as 1.
func (c *Classifier) standardize(features []float32) []float64 {
	out := make([]float64, len(features))
	for i, v := range features {
		x := float64(v)
		if c.mean != nil {
			x -= c.mean[i]
		}
		if c.scale != nil && c.scale[i] != 0 {
			x /= c.scale[i]
		}
		out[i] = x
	}
	return out
}

// Predict classifies one feature vector.
func (c *Classifier) Predict(ctx context.Context, features []float32) (models.Prediction, error) {
	if len(features) != c.featureLength {
		return models.Prediction{}, errors.Errorf("expected %d features, got %d", c.featureLength, len(features))
	}
	if err := ctx.Err(); err != nil {
		return models.Prediction{}, err
	}

	x := tensor.New(tensor.WithShape(1, c.featureLength), tensor.WithBacking(c.standardize(features)))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vm == nil {
		return models.Prediction{}, errors.New("classifier is closed")
	}
	defer c.vm.Reset()

	if err := G.Let(c.input, x); err != nil {
		return models.Prediction{}, errors.Wrap(err, "bind features")
	}
	if err := c.vm.RunAll(); err != nil {
		return models.Prediction{}, errors.Wrap(err, "run linear graph")
	}

	scores := append([]float64(nil), c.scores.Data().([]float64)...)
	probs := Softmax(scores)
	return models.Prediction{Index: models.ArgMax(probs), Probabilities: probs}, nil
}

// Close releases the tape machine.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vm != nil {
		err := c.vm.Close()
		c.vm = nil
		return err
	}
	return nil
}

// Softmax converts scores to probabilities in place and returns them.
func Softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	peak := scores[0]
	for _, s := range scores[1:] {
		if s > peak {
			peak = s
		}
	}
	sum := 0.0
	for i, s := range scores {
		scores[i] = math.Exp(s - peak)
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
	return scores
}
