package wavelet

import "github.com/chewxy/math32"

var invSqrt2 = 1 / math32.Sqrt(2)

// haarForward splits src into approximation and detail coefficients. Odd lengths are
// extended by repeating the last sample.
func haarForward(src, approx, detail []float32) {
	n := len(src)
	for i := range approx {
		x0 := src[2*i]
		x1 := x0
		if 2*i+1 < n {
			x1 = src[2*i+1]
		}
		approx[i] = (x0 + x1) * invSqrt2
		detail[i] = (x0 - x1) * invSqrt2
	}
}

// haarInverse merges approximation and detail coefficients into dst, which must hold
// 2*len(approx) values.
func haarInverse(approx, detail, dst []float32) {
	for i := range approx {
		dst[2*i] = (approx[i] + detail[i]) * invSqrt2
		dst[2*i+1] = (approx[i] - detail[i]) * invSqrt2
	}
}

func half(n int) int {
	return (n + 1) / 2
}

// forwardColumns transforms every column of m, halving the number of rows.
func forwardColumns(m Matrix) (low, high Matrix) {
	rows := half(m.Rows)
	low, high = NewMatrix(rows, m.Cols), NewMatrix(rows, m.Cols)

	col := make([]float32, m.Rows)
	a, d := make([]float32, rows), make([]float32, rows)
	for c := 0; c < m.Cols; c++ {
		for r := 0; r < m.Rows; r++ {
			col[r] = m.At(r, c)
		}
		haarForward(col, a, d)
		for r := 0; r < rows; r++ {
			low.Set(r, c, a[r])
			high.Set(r, c, d[r])
		}
	}
	return low, high
}

// forwardRows transforms every row of m, halving the number of columns.
func forwardRows(m Matrix) (low, high Matrix) {
	cols := half(m.Cols)
	low, high = NewMatrix(m.Rows, cols), NewMatrix(m.Rows, cols)
	for r := 0; r < m.Rows; r++ {
		haarForward(
			m.Data[r*m.Cols:(r+1)*m.Cols],
			low.Data[r*cols:(r+1)*cols],
			high.Data[r*cols:(r+1)*cols],
		)
	}
	return low, high
}

// inverseRows merges low and high row-wise, doubling the number of columns.
func inverseRows(low, high Matrix) Matrix {
	cols := 2 * low.Cols
	out := NewMatrix(low.Rows, cols)
	for r := 0; r < low.Rows; r++ {
		haarInverse(
			low.Data[r*low.Cols:(r+1)*low.Cols],
			high.Data[r*high.Cols:(r+1)*high.Cols],
			out.Data[r*cols:(r+1)*cols],
		)
	}
	return out
}

// inverseColumns merges low and high column-wise, doubling the number of rows.
func inverseColumns(low, high Matrix) Matrix {
	rows := 2 * low.Rows
	out := NewMatrix(rows, low.Cols)

	a, d := make([]float32, low.Rows), make([]float32, low.Rows)
	col := make([]float32, rows)
	for c := 0; c < low.Cols; c++ {
		for r := 0; r < low.Rows; r++ {
			a[r] = low.At(r, c)
			d[r] = high.At(r, c)
		}
		haarInverse(a, d, col)
		for r := 0; r < rows; r++ {
			out.Set(r, c, col[r])
		}
	}
	return out
}

func haarForward2D(m Matrix) (Matrix, Details) {
	low, high := forwardColumns(m)
	ll, lh := forwardRows(low)
	hl, hh := forwardRows(high)
	return ll, Details{Horizontal: lh, Vertical: hl, Diagonal: hh}
}

func haarInverse2D(approx Matrix, d Details) Matrix {
	low := inverseRows(approx, d.Horizontal)
	high := inverseRows(d.Vertical, d.Diagonal)
	return inverseColumns(low, high)
}
