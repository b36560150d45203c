package solver

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/heatdist/utils"
)

// AMGPreconditioner is one symmetric V-cycle of smoothed aggregation
// multigrid with damped Jacobi smoothing. A coarsest operator of at most
// MaxCoarseSize rows is solved directly: by Cholesky when it is well
// conditioned, else through its pseudo-inverse, so operators with a null
// space (pure Neumann problems) are handled. A larger coarsest operator,
// left when aggregation stalls, gets coarseSweeps Jacobi sweeps.
type AMGPreconditioner struct {
	StrengthThreshold float64
	MaxCoarseSize     int
	MaxLevels         int
	Sweeps            int

	levels []*amgLevel
	chol   *mat.Cholesky
	coarse *mat.Dense // pseudo-inverse of the coarsest operator
}

const (
	coarseSweeps = 20
	maxCholCond  = 1e12
)

type amgLevel struct {
	A       *sparse.CSR
	P, R    *sparse.CSR // prolongation to this level, restriction from it
	diagInv []float64
	omega   float64 // smoother damping
	// scratch
	x, b, r, ax []float64
}

func NewAMGPreconditioner() *AMGPreconditioner {
	return &AMGPreconditioner{
		StrengthThreshold: 0.25,
		MaxCoarseSize:     100,
		MaxLevels:         12,
		Sweeps:            1,
	}
}

// NumLevels is the depth of the hierarchy built by SetOperator.
func (amg *AMGPreconditioner) NumLevels() int { return len(amg.levels) }

func (amg *AMGPreconditioner) SetOperator(A *sparse.CSR) (err error) {
	amg.levels = amg.levels[:0]
	current := A
	for {
		var lvl *amgLevel
		if lvl, err = newAMGLevel(current); err != nil {
			return
		}
		amg.levels = append(amg.levels, lvl)
		n, _ := current.Dims()
		if n <= amg.MaxCoarseSize || len(amg.levels) == amg.MaxLevels {
			break
		}
		agg, nAgg := aggregate(current, amg.StrengthThreshold)
		if nAgg == n || nAgg == 0 {
			break
		}
		P := smoothedProlongator(current, lvl.diagInv, lvl.omega, agg, nAgg)
		R := utils.CSRTranspose(P)
		lvl.P, lvl.R = P, R
		current = utils.CSRMul(R, utils.CSRMul(current, P))
	}
	amg.chol, amg.coarse = nil, nil
	if n, _ := current.Dims(); n > amg.MaxCoarseSize {
		return
	}
	dense := symDense(current)
	var chol mat.Cholesky
	if chol.Factorize(dense) && chol.Cond() < maxCholCond {
		amg.chol = &chol
		return
	}
	amg.coarse, err = pseudoInverse(dense)
	return
}

func (amg *AMGPreconditioner) Mult(r, z []float64) {
	amg.vcycle(0, r, z)
}

func (amg *AMGPreconditioner) Release() {
	amg.levels = nil
	amg.chol, amg.coarse = nil, nil
}

func newAMGLevel(A *sparse.CSR) (lvl *amgLevel, err error) {
	n, _ := A.Dims()
	lvl = &amgLevel{
		A:  A,
		x:  make([]float64, n),
		b:  make([]float64, n),
		r:  make([]float64, n),
		ax: make([]float64, n),
	}
	if lvl.diagInv, err = inverseDiagonal(A); err != nil {
		err = fmt.Errorf("AMG setup: %w", err)
		return
	}
	// Gershgorin bound on the spectral radius of D^-1 A
	raw := A.RawMatrix()
	var rho float64
	for i := 0; i < raw.I; i++ {
		var sum float64
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			sum += math.Abs(raw.Data[p])
		}
		rho = math.Max(rho, sum*math.Abs(lvl.diagInv[i]))
	}
	lvl.omega = 4 / (3 * rho)
	return
}

// vcycle sets z to the V-cycle approximation of A_l^-1 b starting from zero.
func (amg *AMGPreconditioner) vcycle(l int, b, z []float64) {
	lvl := amg.levels[l]
	if l == len(amg.levels)-1 {
		n := len(b)
		zv, bv := mat.NewVecDense(n, z), mat.NewVecDense(n, b)
		switch {
		case amg.chol != nil:
			_ = amg.chol.SolveVecTo(zv, bv)
			return
		case amg.coarse != nil:
			zv.MulVec(amg.coarse, bv)
			return
		}
		for i := range z {
			z[i] = 0
		}
		lvl.smooth(b, z, coarseSweeps)
		return
	}
	for i := range z {
		z[i] = 0
	}
	lvl.smooth(b, z, amg.Sweeps)

	// coarse grid correction
	utils.CSRMulVec(lvl.A, z, lvl.ax)
	for i := range lvl.r {
		lvl.r[i] = b[i] - lvl.ax[i]
	}
	next := amg.levels[l+1]
	utils.CSRMulVec(lvl.R, lvl.r, next.b)
	amg.vcycle(l+1, next.b, next.x)
	utils.CSRMulVec(lvl.P, next.x, lvl.ax)
	for i := range z {
		z[i] += lvl.ax[i]
	}

	lvl.smooth(b, z, amg.Sweeps)
}

func (lvl *amgLevel) smooth(b, x []float64, sweeps int) {
	for s := 0; s < sweeps; s++ {
		utils.CSRMulVec(lvl.A, x, lvl.ax)
		for i := range x {
			x[i] += lvl.omega * lvl.diagInv[i] * (b[i] - lvl.ax[i])
		}
	}
}

// aggregate groups strongly connected rows. Row i is strongly connected to
// j when |a_ij| >= theta sqrt(|a_ii a_jj|).
func aggregate(A *sparse.CSR, theta float64) (agg []int, nAgg int) {
	var (
		raw    = A.RawMatrix()
		n      = raw.I
		diag   = utils.CSRDiagonal(A)
		strong = make([][]int, n)
	)
	for i := 0; i < n; i++ {
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			j := raw.Ind[p]
			if j == i {
				continue
			}
			if math.Abs(raw.Data[p]) >= theta*math.Sqrt(math.Abs(diag[i]*diag[j])) {
				strong[i] = append(strong[i], j)
			}
		}
	}
	agg = make([]int, n)
	for i := range agg {
		agg[i] = -1
	}
	// Phase 1: roots whose strong neighborhood is untouched
	for i := 0; i < n; i++ {
		if agg[i] >= 0 || len(strong[i]) == 0 {
			continue
		}
		free := true
		for _, j := range strong[i] {
			if agg[j] >= 0 {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		agg[i] = nAgg
		for _, j := range strong[i] {
			agg[j] = nAgg
		}
		nAgg++
	}
	// Phase 2: join a neighboring aggregate formed in phase 1
	phase1 := make([]int, n)
	copy(phase1, agg)
	for i := 0; i < n; i++ {
		if agg[i] >= 0 {
			continue
		}
		for _, j := range strong[i] {
			if phase1[j] >= 0 {
				agg[i] = phase1[j]
				break
			}
		}
	}
	// Phase 3: whatever is left, including rows with no strong connection
	for i := 0; i < n; i++ {
		if agg[i] >= 0 {
			continue
		}
		agg[i] = nAgg
		for _, j := range strong[i] {
			if agg[j] < 0 {
				agg[j] = nAgg
			}
		}
		nAgg++
	}
	return
}

// smoothedProlongator returns (I - omega D^-1 A) P0 where P0 is the
// piecewise constant interpolation from the aggregates.
func smoothedProlongator(A *sparse.CSR, diagInv []float64, omega float64, agg []int, nAgg int) *sparse.CSR {
	var (
		raw  = A.RawMatrix()
		n    = raw.I
		rows = make([]map[int]float64, n)
	)
	for i := 0; i < n; i++ {
		row := map[int]float64{agg[i]: 1}
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			j := raw.Ind[p]
			row[agg[j]] -= omega * diagInv[i] * raw.Data[p]
		}
		rows[i] = row
	}
	return utils.NewCSRFromRows(n, nAgg, rows)
}

// symDense expands A into a dense symmetric matrix.
func symDense(A *sparse.CSR) (dense *mat.SymDense) {
	n, _ := A.Dims()
	dense = mat.NewSymDense(n, nil)
	raw := A.RawMatrix()
	for i := 0; i < n; i++ {
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			j := raw.Ind[p]
			if j >= i {
				// symmetrize against rounding in the Galerkin product
				dense.SetSym(i, j, 0.5*(raw.Data[p]+A.At(j, i)))
			}
		}
	}
	return
}

// pseudoInverse inverts a symmetric matrix on the span of its eigenvectors
// with eigenvalues above a relative cutoff.
func pseudoInverse(dense *mat.SymDense) (pinv *mat.Dense, err error) {
	n := dense.SymmetricDim()
	var eig mat.EigenSym
	if ok := eig.Factorize(dense, true); !ok {
		err = fmt.Errorf("AMG setup: coarse eigendecomposition failed")
		return
	}
	var (
		vals = eig.Values(nil)
		vecs mat.Dense
		lmax float64
	)
	eig.VectorsTo(&vecs)
	for _, v := range vals {
		lmax = math.Max(lmax, math.Abs(v))
	}
	pinv = mat.NewDense(n, n, nil)
	for k, lam := range vals {
		if lam <= 1e-10*lmax {
			continue
		}
		for i := 0; i < n; i++ {
			vik := vecs.At(i, k) / lam
			for j := 0; j < n; j++ {
				pinv.Set(i, j, pinv.At(i, j)+vik*vecs.At(j, k))
			}
		}
	}
	return
}
