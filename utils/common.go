package utils

// NODETOL is the relative tolerance for locating points in cells.
const (
	NODETOL = 1.e-12
)

// Dot is the Euclidean inner product of two equal length vectors.
func Dot(a, b []float64) (sum float64) {
	for i := range a {
		sum += a[i] * b[i]
	}
	return
}
