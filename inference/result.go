package inference

import (
	"image"
	"math"
)

// Result is the classification of one accepted face.
type Result struct {
	// Class is the predicted identity.
	Class string `json:"class"`
	// ClassProbability holds one percentage per class, indexed by class index, rounded to
	// two decimals.
	ClassProbability []float64 `json:"class_probability"`
	// ClassDictionary is the name -> index map of the classifier, shared by every result.
	ClassDictionary map[string]int `json:"class_dictionary"`
	// Box is the face rectangle in image coordinates.
	Box image.Rectangle `json:"-"`
}

// RoundPercent rounds a percentage to two decimals, ties to even.
func RoundPercent(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// Percentages converts probabilities in [0, 1] to rounded percentages.
func Percentages(probs []float64) []float64 {
	out := make([]float64, len(probs))
	for i, p := range probs {
		out[i] = RoundPercent(p * 100)
	}
	return out
}
