package images

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// ComputeMatChecksum generates a deterministic checksum for a Mat to verify idempotency.
//
// Arguments:
// - mat: The Mat to compute checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string.
//
// Example:
//
// ```go
//
//	checksum := ComputeMatChecksum(crop)
//	fmt.Printf("Crop checksum: %s\n", checksum)
//
// ```
func ComputeMatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	hash := md5.New()
	hash.Write(mat.ToBytes())
	return fmt.Sprintf("%x", hash.Sum(nil))
}

// MatToFloat32 copies the 8-bit pixels of a single channel Mat into a float32 slice,
// multiplying each value by scale.
//
// Arguments:
// - mat: A continuous CV_8UC1 Mat.
// - scale: The factor applied to every pixel.
//
// Returns:
// - The row-major pixel values.
func MatToFloat32(mat gocv.Mat, scale float32) []float32 {
	data := mat.ToBytes()
	out := make([]float32, len(data))
	Parallel(len(data), func(partStart, partEnd int) {
		for i := partStart; i < partEnd; i++ {
			out[i] = float32(data[i]) * scale
		}
	})
	return out
}
