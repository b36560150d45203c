package solver

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"

	"github.com/notargets/heatdist/utils"
)

// CG is the preconditioned conjugate gradient method. Convergence is
// reached when (M^-1 r, r) <= max(RelTol^2 (M^-1 r0, r0), AbsTol^2).
type CG struct {
	RelTol, AbsTol float64
	MaxIter        int
	// PrintLevel 1 prints a summary, above 1 every iteration.
	PrintLevel int
	// Project, when set, is applied to the preconditioned residual, e.g. to
	// keep iterates orthogonal to the null space of a singular operator.
	Project func(v []float64)
}

type Result struct {
	Iterations int
	FinalNorm  float64 // sqrt((M^-1 r, r)) at exit
	Converged  bool
}

// Solve improves x as the solution of A x = b; x is the initial guess.
func (cg *CG) Solve(A *sparse.CSR, M Preconditioner, b, x []float64) (res Result, err error) {
	var (
		n  = len(b)
		r  = make([]float64, n)
		z  = make([]float64, n)
		d  = make([]float64, n)
		Ad = make([]float64, n)
	)
	precondition := func() {
		if M != nil {
			M.Mult(r, z)
		} else {
			copy(z, r)
		}
		if cg.Project != nil {
			cg.Project(z)
		}
	}

	utils.CSRMulVec(A, x, Ad)
	for i := range r {
		r[i] = b[i] - Ad[i]
	}
	precondition()
	copy(d, z)
	nom := utils.Dot(z, r)
	nom0 := nom
	if nom < 0 || math.IsNaN(nom) {
		err = fmt.Errorf("%w: initial (B r, r) = %g", ErrIndefinite, nom)
		return
	}
	r0 := math.Max(nom*cg.RelTol*cg.RelTol, cg.AbsTol*cg.AbsTol)
	if cg.PrintLevel > 1 {
		fmt.Printf("   Iteration : %3d  (B r, r) = %e\n", 0, nom)
	}
	res.FinalNorm = math.Sqrt(nom)
	if nom <= r0 {
		res.Converged = true
		cg.summary(res, nom0)
		return
	}

	utils.CSRMulVec(A, d, Ad)
	den := utils.Dot(d, Ad)
	if den <= 0 {
		err = fmt.Errorf("%w: (d, A d) = %g", ErrIndefinite, den)
		return
	}

	for i := 1; i <= cg.MaxIter; i++ {
		alpha := nom / den
		for j := range x {
			x[j] += alpha * d[j]
			r[j] -= alpha * Ad[j]
		}
		precondition()
		betanom := utils.Dot(r, z)
		if betanom < 0 || math.IsNaN(betanom) {
			err = fmt.Errorf("%w: (B r, r) = %g at iteration %d", ErrIndefinite, betanom, i)
			return
		}
		if cg.PrintLevel > 1 {
			fmt.Printf("   Iteration : %3d  (B r, r) = %e\n", i, betanom)
		}
		res.Iterations = i
		res.FinalNorm = math.Sqrt(betanom)
		if betanom <= r0 {
			res.Converged = true
			cg.summary(res, nom0)
			return
		}
		beta := betanom / nom
		for j := range d {
			d[j] = z[j] + beta*d[j]
		}
		utils.CSRMulVec(A, d, Ad)
		den = utils.Dot(d, Ad)
		if den <= 0 {
			err = fmt.Errorf("%w: (d, A d) = %g at iteration %d", ErrIndefinite, den, i)
			return
		}
		nom = betanom
	}
	cg.summary(res, nom0)
	err = fmt.Errorf("%w: %d iterations, (B r, r) = %e, initial %e",
		ErrNotConverged, res.Iterations, res.FinalNorm*res.FinalNorm, nom0)
	return
}

func (cg *CG) summary(res Result, nom0 float64) {
	if cg.PrintLevel < 1 {
		return
	}
	status := "converged"
	if !res.Converged {
		status = "did not converge"
	}
	factor := 0.
	if res.Iterations > 0 && nom0 > 0 {
		factor = math.Pow(res.FinalNorm/math.Sqrt(nom0), 1/float64(res.Iterations))
	}
	fmt.Printf("PCG %s: %d iterations, final norm %e, average reduction factor %.4f\n",
		status, res.Iterations, res.FinalNorm, factor)
}
