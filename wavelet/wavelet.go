// Package wavelet - Multi-level two dimensional discrete wavelet transforms.
//
// The transform follows the conventions of the common multilevel 2D decomposition:
// odd-length signals are symmetrically extended by repeating the last sample, detail
// bands are ordered from the coarsest level to the finest, and reconstruction trims the
// running approximation to the size of the next detail band.
package wavelet

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnsupportedWavelet is returned for wavelet families that are not implemented.
var ErrUnsupportedWavelet = errors.New("unsupported wavelet")

// Wavelet identifies a wavelet family.
type Wavelet string

const (
	// Haar is the Haar wavelet.
	Haar Wavelet = "haar"
	// DB1 is Daubechies 1, identical to Haar.
	DB1 Wavelet = "db1"
)

// Parse resolves a wavelet name.
//
// Arguments:
//   - name: The wavelet name, case insensitive.
//
// Returns:
//   - Wavelet: The canonical wavelet.
//   - error: ErrUnsupportedWavelet for unknown names.
func Parse(name string) (Wavelet, error) {
	switch Wavelet(strings.ToLower(strings.TrimSpace(name))) {
	case Haar, DB1:
		return Haar, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedWavelet, "%q", name)
	}
}

// Matrix is a dense row-major matrix of float32 values.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// NewMatrix allocates a zeroed rows x cols matrix.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// At returns the value at row r, column c.
func (m Matrix) At(r, c int) float32 {
	return m.Data[r*m.Cols+c]
}

// Set stores v at row r, column c.
func (m Matrix) Set(r, c int, v float32) {
	m.Data[r*m.Cols+c] = v
}

// Zero sets every element to zero.
func (m Matrix) Zero() {
	for i := range m.Data {
		m.Data[i] = 0
	}
}

// Crop returns a copy of the top-left rows x cols block.
func (m Matrix) Crop(rows, cols int) Matrix {
	out := NewMatrix(rows, cols)
	for r := 0; r < rows; r++ {
		copy(out.Data[r*cols:(r+1)*cols], m.Data[r*m.Cols:r*m.Cols+cols])
	}
	return out
}

// Details holds the three detail bands produced by one level of decomposition.
type Details struct {
	// Horizontal is the low-pass across rows, high-pass across columns band.
	Horizontal Matrix
	// Vertical is the high-pass across rows, low-pass across columns band.
	Vertical Matrix
	// Diagonal is the high-pass band in both directions.
	Diagonal Matrix
}

// Coefficients is the result of a multi-level decomposition.
type Coefficients struct {
	Wavelet Wavelet
	// Approximation is the coarsest low-frequency band.
	Approximation Matrix
	// Details are ordered from the coarsest level to the finest.
	Details []Details
}

// Decompose runs a multi-level 2D discrete wavelet transform.
//
// The requested level is honoured even when the signal becomes smaller than the filter:
// a 1x1 approximation simply keeps decomposing into itself.
//
// Arguments:
//   - m: The input matrix.
//   - w: The wavelet to use.
//   - level: The number of decomposition levels (>= 1).
//
// Returns:
//   - Coefficients: The approximation and per-level detail bands.
//   - error: An error for empty input, bad level or unsupported wavelet.
func Decompose(m Matrix, w Wavelet, level int) (Coefficients, error) {
	if _, err := Parse(string(w)); err != nil {
		return Coefficients{}, err
	}
	if m.Rows <= 0 || m.Cols <= 0 || len(m.Data) != m.Rows*m.Cols {
		return Coefficients{}, errors.Errorf("invalid matrix %dx%d with %d values", m.Rows, m.Cols, len(m.Data))
	}
	if level < 1 {
		return Coefficients{}, errors.Errorf("decomposition level must be >= 1, got %d", level)
	}

	details := make([]Details, level)
	approx := m
	for i := level - 1; i >= 0; i-- {
		var d Details
		approx, d = haarForward2D(approx)
		details[i] = d
	}

	return Coefficients{Wavelet: Haar, Approximation: approx, Details: details}, nil
}

// Reconstruct inverts Decompose.
//
// Before each level the running approximation is trimmed to the size of that level's
// detail bands. The final output keeps the even, padded size of the finest level.
func Reconstruct(c Coefficients) Matrix {
	approx := c.Approximation
	for _, d := range c.Details {
		if approx.Rows > d.Horizontal.Rows || approx.Cols > d.Horizontal.Cols {
			approx = approx.Crop(d.Horizontal.Rows, d.Horizontal.Cols)
		}
		approx = haarInverse2D(approx, d)
	}
	return approx
}

// HighPass removes the lowest frequency band of m: it decomposes, zeroes the approximation
// coefficients and reconstructs from the detail bands only.
func HighPass(m Matrix, w Wavelet, level int) (Matrix, error) {
	coeffs, err := Decompose(m, w, level)
	if err != nil {
		return Matrix{}, err
	}
	coeffs.Approximation.Zero()
	return Reconstruct(coeffs), nil
}
