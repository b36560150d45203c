package distance

import (
	"fmt"
	"math"

	"github.com/notargets/heatdist/fem"
	"github.com/notargets/heatdist/solver"
)

// SmoothField applies steps damped Jacobi sweeps of the unconstrained
// stiffness operator to A x = 0, starting from and overwriting f. Zero
// steps leave f untouched.
func SmoothField(space fem.Discretization, f fem.Field, steps int, weight float64) (err error) {
	if steps < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSmoothSteps, steps)
	}
	if steps == 0 {
		return
	}
	var (
		A      = space.AssembleMatrix(0, 1)
		js     = solver.NewJacobiSmoother(weight, steps)
		x      = f.Data()
		zeroes = make([]float64, len(x))
	)
	if err = js.SetOperator(A); err != nil {
		return fmt.Errorf("smoother setup: %w", err)
	}
	defer js.Release()
	js.Mult(zeroes, x)
	return
}

// PeakTransform maps [0,1] onto a bump peaking at 0.5, 4x(1-x), and every
// value outside [0,1] to 0.
func PeakTransform(x float64) float64 {
	if x < 0 || x > 1 || math.IsNaN(x) {
		return 0
	}
	return 4 * x * (1 - x)
}

// ApplyPeakTransform applies PeakTransform to every dof of f.
func ApplyPeakTransform(f fem.Field) {
	data := f.Data()
	for i, x := range data {
		data[i] = PeakTransform(x)
	}
}
