// Package detector - Haar cascade face detection with eye verification.
package detector

import (
	"context"
	"image"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Config represents the configuration for the cascade face detector.
type Config struct {
	// FaceCascadePath is the frontal face cascade XML file.
	FaceCascadePath string `json:"face_cascade_path" yaml:"face_cascade_path"`
	// EyeCascadePath is the eye cascade XML file.
	EyeCascadePath string `json:"eye_cascade_path" yaml:"eye_cascade_path"`
	// ScaleFactor is how much the image is shrunk at each detection scale.
	ScaleFactor float64 `json:"scale_factor" yaml:"scale_factor"`
	// MinNeighbors is how many neighbouring candidates a face needs to be kept.
	MinNeighbors int `json:"min_neighbors" yaml:"min_neighbors"`
	// MinEyes is the number of eyes a face must show to be kept.
	MinEyes int `json:"min_eyes" yaml:"min_eyes"`
	// PoolSize is the number of cascade pairs available to concurrent callers.
	PoolSize int `json:"pool_size" yaml:"pool_size"`
}

// DefaultConfig returns the detector configuration used by the trained model.
//
// Returns:
//   - Config: The default configuration.
//
// @example
// cfg := DefaultConfig()
// cfg.PoolSize = 2
// det, err := New(cfg, logrus.New())
func DefaultConfig() Config {
	return Config{
		FaceCascadePath: "artifacts/haarcascades/haarcascade_frontalface_default.xml",
		EyeCascadePath:  "artifacts/haarcascades/haarcascade_eye.xml",
		ScaleFactor:     1.3,
		MinNeighbors:    5,
		MinEyes:         2,
		PoolSize:        runtime.NumCPU(),
	}
}

// Validate checks the configuration for values the detector cannot work with.
func (c Config) Validate() error {
	switch {
	case c.FaceCascadePath == "":
		return errors.New("face cascade path is required")
	case c.EyeCascadePath == "":
		return errors.New("eye cascade path is required")
	case c.ScaleFactor <= 1:
		return errors.Errorf("scale factor must be > 1, got %v", c.ScaleFactor)
	case c.MinNeighbors < 0:
		return errors.Errorf("min neighbors must be >= 0, got %d", c.MinNeighbors)
	case c.MinEyes < 0:
		return errors.Errorf("min eyes must be >= 0, got %d", c.MinEyes)
	case c.PoolSize < 1:
		return errors.Errorf("pool size must be >= 1, got %d", c.PoolSize)
	}
	return nil
}

// Face is a detected face that passed eye verification.
type Face struct {
	// Box is the face rectangle in image coordinates.
	Box image.Rectangle
	// Eyes is the number of eyes found inside the face.
	Eyes int
	// Crop is a BGR copy of the face region, owned by the caller.
	Crop gocv.Mat
}

// Close releases the crop.
func (f *Face) Close() error {
	return f.Crop.Close()
}

// eyeFinder locates eyes in a grayscale face region. *gocv.CascadeClassifier implements it.
type eyeFinder interface {
	DetectMultiScale(img gocv.Mat) []image.Rectangle
	Close() error
}

type cascades struct {
	face *gocv.CascadeClassifier
	eye  eyeFinder
}

func (c *cascades) close() {
	if c.face != nil {
		c.face.Close()
	}
	if c.eye != nil {
		c.eye.Close()
	}
}

// Detector finds faces with a frontal face cascade and keeps the ones with enough eyes.
//
// OpenCV cascade classifiers must not be used by two goroutines at once, so the detector
// owns a pool of cascade pairs and every Detect call borrows one.
type Detector struct {
	cfg    Config
	pool   chan *cascades
	all    []*cascades
	logger logrus.FieldLogger
}

// New loads the cascades and creates a detector.
//
// Arguments:
//   - cfg: The detector configuration.
//   - logger: The logger for detection diagnostics.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if the configuration is invalid or a cascade cannot be loaded.
func New(cfg Config, logger logrus.FieldLogger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid detector config")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	for _, path := range []string{cfg.FaceCascadePath, cfg.EyeCascadePath} {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "cascade file not found: %s", path)
		}
	}

	d, err := newDetector(cfg, logger, func() (*cascades, error) { return loadCascades(cfg) })
	if err != nil {
		return nil, err
	}

	logger.Infof("✅ Face cascade loaded: %s", cfg.FaceCascadePath)
	logger.Infof("✅ Eye cascade loaded: %s", cfg.EyeCascadePath)
	logger.Infof("🎯 Scale factor: %.2f, min neighbors: %d, min eyes: %d", cfg.ScaleFactor, cfg.MinNeighbors, cfg.MinEyes)
	logger.Infof("📊 Cascade pool size: %d", cfg.PoolSize)

	return d, nil
}

// newDetector fills the pool with cfg.PoolSize cascade pairs built by load.
func newDetector(cfg Config, logger logrus.FieldLogger, load func() (*cascades, error)) (*Detector, error) {
	d := &Detector{
		cfg:    cfg,
		pool:   make(chan *cascades, cfg.PoolSize),
		logger: logger,
	}
	for i := 0; i < cfg.PoolSize; i++ {
		c, err := load()
		if err != nil {
			d.Close()
			return nil, err
		}
		d.all = append(d.all, c)
		d.pool <- c
	}
	return d, nil
}

func loadCascade(path string) (*gocv.CascadeClassifier, error) {
	c := gocv.NewCascadeClassifier()
	if !c.Load(path) {
		c.Close()
		return nil, errors.Errorf("failed to load cascade classifier from %s", path)
	}
	return &c, nil
}

func loadCascades(cfg Config) (*cascades, error) {
	face, err := loadCascade(cfg.FaceCascadePath)
	if err != nil {
		return nil, errors.Wrap(err, "face cascade")
	}
	eye, err := loadCascade(cfg.EyeCascadePath)
	if err != nil {
		face.Close()
		return nil, errors.Wrap(err, "eye cascade")
	}
	return &cascades{face: face, eye: eye}, nil
}

// Config returns the configuration the detector was built with.
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect finds the faces in a BGR image that show at least MinEyes eyes.
//
// Arguments:
//   - ctx: Cancels the wait for a free cascade pair.
//   - img: The BGR image.
//
// Returns:
//   - []Face: The accepted faces in detection order, empty when there are none. The caller
//     must Close every face.
//   - error: An error if ctx is done before a cascade pair is free.
func (d *Detector) Detect(ctx context.Context, img gocv.Mat) ([]Face, error) {
	if img.Empty() {
		return []Face{}, nil
	}

	var c *cascades
	select {
	case c = <-d.pool:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for face cascade")
	}
	defer func() { d.pool <- c }()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	boxes := c.face.DetectMultiScaleWithParams(gray, d.cfg.ScaleFactor, d.cfg.MinNeighbors, 0, image.Point{}, image.Point{})

	faces := make([]Face, 0, len(boxes))
	dropped := 0
	for _, box := range boxes {
		roi := gray.Region(box)
		eyes := c.eye.DetectMultiScale(roi)
		roi.Close()

		if len(eyes) < d.cfg.MinEyes {
			dropped++
			continue
		}

		region := img.Region(box)
		faces = append(faces, Face{Box: box, Eyes: len(eyes), Crop: region.Clone()})
		region.Close()
	}

	if dropped > 0 {
		d.logger.WithFields(logrus.Fields{
			"candidates": len(boxes),
			"dropped":    dropped,
		}).Debug("faces without enough eyes dropped")
	}

	return faces, nil
}

// Close releases every cascade in the pool.
func (d *Detector) Close() error {
	for _, c := range d.all {
		c.close()
	}
	d.all = nil
	return nil
}
