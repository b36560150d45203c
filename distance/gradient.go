package distance

import (
	"math"

	"github.com/notargets/heatdist/fem"
)

// normalizedGradient is X = -grad u / |grad u|. Where the gradient vanishes
// X is zero.
type normalizedGradient struct {
	u fem.Field
}

func newNormalizedGradient(u fem.Field) *normalizedGradient {
	return &normalizedGradient{u: u}
}

func (ng *normalizedGradient) EvalVector(qp fem.QuadraturePoint, dst []float64) {
	ng.u.Gradient(qp, dst)
	var norm float64
	for _, g := range dst {
		norm += g * g
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		for d := range dst {
			dst[d] = 0
		}
		return
	}
	for d := range dst {
		dst[d] /= -norm
	}
}
