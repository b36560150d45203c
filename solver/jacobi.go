package solver

import (
	"fmt"

	"github.com/james-bowman/sparse"

	"github.com/notargets/heatdist/utils"
)

// JacobiSmoother runs Sweeps damped Jacobi iterations
// x <- x + Weight D^-1 (b - A x) starting from the x it is given.
type JacobiSmoother struct {
	Weight float64
	Sweeps int

	A       *sparse.CSR
	diagInv []float64
}

func NewJacobiSmoother(weight float64, sweeps int) *JacobiSmoother {
	return &JacobiSmoother{Weight: weight, Sweeps: sweeps}
}

func (js *JacobiSmoother) SetOperator(A *sparse.CSR) (err error) {
	js.A = A
	js.diagInv, err = inverseDiagonal(A)
	return
}

// Mult applies the sweeps to x in place.
func (js *JacobiSmoother) Mult(b, x []float64) {
	ax := make([]float64, len(x))
	for s := 0; s < js.Sweeps; s++ {
		utils.CSRMulVec(js.A, x, ax)
		for i := range x {
			x[i] += js.Weight * js.diagInv[i] * (b[i] - ax[i])
		}
	}
}

func (js *JacobiSmoother) Release() {
	js.A, js.diagInv = nil, nil
}

func inverseDiagonal(A *sparse.CSR) (diagInv []float64, err error) {
	diagInv = utils.CSRDiagonal(A)
	for i, d := range diagInv {
		if d == 0 {
			err = fmt.Errorf("zero diagonal in row %d", i)
			return
		}
		diagInv[i] = 1 / d
	}
	return
}
