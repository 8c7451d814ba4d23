// Package features - Turns face crops into the fixed length vectors the classifier was trained on.
//
// A vector is the crop resized to Size x Size (BGR, row-major, channel-interleaved) followed by
// the Size x Size wavelet image of the crop. Values are raw 0..255 intensities.
package features

import (
	"image"

	"github.com/nvr-ai/go-faceid/images"
	"github.com/nvr-ai/go-faceid/wavelet"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// Config represents the feature extraction parameters.
type Config struct {
	// Wavelet is the wavelet family used for the high-pass image.
	Wavelet string `json:"wavelet" yaml:"wavelet"`
	// Level is the number of decomposition levels.
	Level int `json:"level" yaml:"level"`
	// Size is the side of the square the crop and wavelet image are resized to.
	Size int `json:"size" yaml:"size"`
}

// DefaultConfig returns the parameters the bundled model was trained with.
//
// Returns:
//   - Config: 5 level Haar, 32x32.
func DefaultConfig() Config {
	return Config{
		Wavelet: string(wavelet.Haar),
		Level:   5,
		Size:    32,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := wavelet.Parse(c.Wavelet); err != nil {
		return err
	}
	if c.Level < 1 {
		return errors.Errorf("wavelet level must be >= 1, got %d", c.Level)
	}
	if c.Size < 1 {
		return errors.Errorf("size must be >= 1, got %d", c.Size)
	}
	return nil
}

// Length is the number of values in a feature vector.
func (c Config) Length() int {
	return c.Size*c.Size*3 + c.Size*c.Size
}

// Extractor builds feature vectors from face crops. It holds no mutable state and is safe
// for concurrent use.
type Extractor struct {
	cfg     Config
	wavelet wavelet.Wavelet
}

// NewExtractor creates an extractor.
//
// Arguments:
//   - cfg: The extraction parameters.
//
// Returns:
//   - *Extractor: The extractor.
//   - error: An error if the configuration is invalid.
func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid feature config")
	}
	w, _ := wavelet.Parse(cfg.Wavelet)
	return &Extractor{cfg: cfg, wavelet: w}, nil
}

// Config returns the extraction parameters.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Wavelet computes the 8-bit high-pass wavelet image of a BGR crop.
//
// The crop is converted to gray with the RGB weights (the conversion the training pipeline
// applied to its BGR images), scaled to [0, 1], decomposed, stripped of its approximation
// band, reconstructed and scaled back by 255. The 8-bit conversion truncates toward zero
// and wraps modulo 256. Odd sides come back rounded up to the next even number.
//
// Arguments:
//   - crop: A non-empty BGR crop.
//
// Returns:
//   - gocv.Mat: A CV_8UC1 image, owned by the caller.
//   - error: An error if the crop is empty or the transform fails.
func (e *Extractor) Wavelet(crop gocv.Mat) (gocv.Mat, error) {
	if crop.Empty() {
		return gocv.NewMat(), errors.New("empty crop")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(crop, &gray, gocv.ColorRGBToGray)

	m := wavelet.Matrix{
		Rows: gray.Rows(),
		Cols: gray.Cols(),
		Data: images.MatToFloat32(gray, 1.0/255),
	}

	high, err := wavelet.HighPass(m, e.wavelet, e.cfg.Level)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "wavelet high pass")
	}

	out := make([]byte, len(high.Data))
	images.Parallel(len(out), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = uint8(int32(high.Data[i] * 255))
		}
	})

	mat, err := gocv.NewMatFromBytes(high.Rows, high.Cols, gocv.MatTypeCV8UC1, out)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "wavelet image")
	}
	return mat, nil
}

// Extract builds the feature vector of a BGR crop.
//
// Arguments:
//   - crop: A non-empty BGR crop of any size.
//
// Returns:
//   - *tensor.Dense: A float32 tensor of shape (1, Length()).
//   - error: An error if the crop is empty or not 3-channel.
func (e *Extractor) Extract(crop gocv.Mat) (*tensor.Dense, error) {
	if crop.Empty() {
		return nil, errors.New("empty crop")
	}
	if crop.Channels() != 3 {
		return nil, errors.Errorf("expected a 3-channel crop, got %d channels", crop.Channels())
	}

	size := image.Point{X: e.cfg.Size, Y: e.cfg.Size}

	raw := gocv.NewMat()
	defer raw.Close()
	gocv.Resize(crop, &raw, size, 0, 0, gocv.InterpolationLinear)

	har, err := e.Wavelet(crop)
	if err != nil {
		return nil, err
	}
	defer har.Close()

	scaledHar := gocv.NewMat()
	defer scaledHar.Close()
	gocv.Resize(har, &scaledHar, size, 0, 0, gocv.InterpolationLinear)

	rawBytes := raw.ToBytes()
	harBytes := scaledHar.ToBytes()

	data := make([]float32, 0, e.cfg.Length())
	for _, b := range rawBytes {
		data = append(data, float32(b))
	}
	for _, b := range harBytes {
		data = append(data, float32(b))
	}
	if len(data) != e.cfg.Length() {
		return nil, errors.Errorf("feature vector has %d values, want %d", len(data), e.cfg.Length())
	}

	return tensor.New(tensor.WithShape(1, len(data)), tensor.WithBacking(data)), nil
}

// Vector returns the backing values of a feature tensor produced by Extract.
func Vector(t *tensor.Dense) []float32 {
	return t.Data().([]float32)
}
