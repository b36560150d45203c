package solver

import (
	"math"
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/heatdist/utils"
)

// laplacian2D is the 5 point Laplacian on an n x n grid. With dirichlet the
// outside neighbors are dropped (SPD), otherwise the rows sum to zero
// (singular, constant null space).
func laplacian2D(n int, dirichlet bool) *sparse.CSR {
	sa := utils.NewSparseAssembler(n*n, n*n)
	id := func(i, j int) int { return j*n + i }
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			var diag float64
			for _, nb := range [][2]int{{i - 1, j}, {i + 1, j}, {i, j - 1}, {i, j + 1}} {
				if nb[0] < 0 || nb[0] >= n || nb[1] < 0 || nb[1] >= n {
					if dirichlet {
						diag++
					}
					continue
				}
				sa.Add(id(i, j), id(nb[0], nb[1]), -1)
				diag++
			}
			sa.Add(id(i, j), id(i, j), diag)
		}
	}
	return sa.ToCSR()
}

func residualNorm(A *sparse.CSR, b, x []float64) float64 {
	ax := make([]float64, len(x))
	utils.CSRMulVec(A, x, ax)
	var sum float64
	for i := range ax {
		sum += (b[i] - ax[i]) * (b[i] - ax[i])
	}
	return math.Sqrt(sum)
}

func TestCG(t *testing.T) {
	var (
		n = 30
		A = laplacian2D(n, true)
		b = make([]float64, n*n)
	)
	for i := range b {
		b[i] = math.Sin(float64(i))
	}
	bnorm := math.Sqrt(utils.Dot(b, b))
	{ // AMG preconditioned CG converges quickly
		amg := NewAMGPreconditioner()
		require.NoError(t, amg.SetOperator(A))
		assert.True(t, amg.NumLevels() > 1)
		x := make([]float64, n*n)
		cg := &CG{RelTol: 1e-12, MaxIter: 100}
		res, err := cg.Solve(A, amg, b, x)
		require.NoError(t, err)
		assert.True(t, res.Converged)
		assert.True(t, res.Iterations < 40, "iterations %d", res.Iterations)
		assert.True(t, residualNorm(A, b, x) < 1e-8*bnorm)
		amg.Release()
	}
	{ // Unpreconditioned CG reaches the same answer
		x := make([]float64, n*n)
		cg := &CG{RelTol: 1e-10, MaxIter: 1000}
		res, err := cg.Solve(A, nil, b, x)
		require.NoError(t, err)
		assert.True(t, res.Converged)
		assert.True(t, residualNorm(A, b, x) < 1e-8*bnorm)
	}
	{ // Iteration cap reports non convergence
		x := make([]float64, n*n)
		cg := &CG{RelTol: 1e-12, MaxIter: 2}
		res, err := cg.Solve(A, nil, b, x)
		assert.ErrorIs(t, err, ErrNotConverged)
		assert.False(t, res.Converged)
		assert.Equal(t, 2, res.Iterations)
	}
	{ // Zero right hand side converges immediately
		x := make([]float64, n*n)
		res, err := (&CG{RelTol: 1e-12, MaxIter: 10}).Solve(A, nil, make([]float64, n*n), x)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Iterations)
	}
	{ // Negative definite operators are detected
		sa := utils.NewSparseAssembler(2, 2)
		sa.Add(0, 0, -1)
		sa.Add(1, 1, -2)
		x := make([]float64, 2)
		_, err := (&CG{RelTol: 1e-12, MaxIter: 10}).Solve(sa.ToCSR(), nil, []float64{1, 1}, x)
		assert.ErrorIs(t, err, ErrIndefinite)
	}
}

func TestCGSingular(t *testing.T) {
	var (
		n = 25
		A = laplacian2D(n, false)
		b = make([]float64, n*n)
	)
	removeMean := func(v []float64) {
		var mean float64
		for _, val := range v {
			mean += val
		}
		mean /= float64(len(v))
		for i := range v {
			v[i] -= mean
		}
	}
	for i := range b {
		b[i] = math.Cos(0.3 * float64(i))
	}
	removeMean(b)
	amg := NewAMGPreconditioner()
	require.NoError(t, amg.SetOperator(A))
	x := make([]float64, n*n)
	cg := &CG{RelTol: 1e-10, MaxIter: 100, Project: removeMean}
	res, err := cg.Solve(A, amg, b, x)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.True(t, residualNorm(A, b, x) < 1e-7*math.Sqrt(utils.Dot(b, b)))
}

func TestJacobiSmoother(t *testing.T) {
	var (
		n = 20
		A = laplacian2D(n, false)
		x = make([]float64, n*n)
	)
	// checkerboard is the highest frequency mode
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			x[j*n+i] = float64(1 - 2*((i+j)%2))
		}
	}
	energy := func(v []float64) float64 {
		av := make([]float64, len(v))
		utils.CSRMulVec(A, v, av)
		return utils.Dot(v, av)
	}
	e0 := energy(x)
	js := NewJacobiSmoother(2./3, 3)
	require.NoError(t, js.SetOperator(A))
	js.Mult(make([]float64, n*n), x)
	assert.True(t, energy(x) < 0.1*e0)
	{ // zero sweeps leave the field untouched
		y := []float64{1, 2, 3, 4}
		js0 := NewJacobiSmoother(2./3, 0)
		require.NoError(t, js0.SetOperator(laplacian2D(2, true)))
		js0.Mult(make([]float64, 4), y)
		assert.Equal(t, []float64{1, 2, 3, 4}, y)
	}
}

func TestPreconditionerSelection(t *testing.T) {
	pt, err := ParsePreconditionerType("amg")
	require.NoError(t, err)
	assert.Equal(t, AMG, pt)
	pt, err = ParsePreconditionerType("")
	require.NoError(t, err)
	assert.Equal(t, AMG, pt)
	pt, err = ParsePreconditionerType("Device")
	require.NoError(t, err)
	assert.Equal(t, Device, pt)
	assert.Equal(t, "Device", pt.String())
	_, err = ParsePreconditionerType("ilu")
	assert.Error(t, err)

	p, err := NewPreconditioner(AMG)
	require.NoError(t, err)
	_, isAMG := p.(*AMGPreconditioner)
	assert.True(t, isAMG)
	assert.Error(t, CheckAvailable(PreconditionerType(9)))
}

func TestAMGCoarseSolve(t *testing.T) {
	shifted := func(n int, shift float64) *sparse.CSR {
		L := laplacian2D(n, false)
		sa := utils.NewSparseAssembler(n*n, n*n)
		raw := L.RawMatrix()
		for i := 0; i < raw.I; i++ {
			for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
				sa.Add(i, raw.Ind[p], raw.Data[p])
			}
			sa.Add(i, i, shift)
		}
		return sa.ToCSR()
	}
	{ // Diagonally dominant operators without strong connections relax on the fine level
		var (
			n = 30
			A = shifted(n, 4)
			b = make([]float64, n*n)
			x = make([]float64, n*n)
		)
		for i := range b {
			b[i] = math.Sin(float64(i))
		}
		amg := NewAMGPreconditioner()
		require.NoError(t, amg.SetOperator(A))
		assert.Equal(t, 1, amg.NumLevels())
		assert.Nil(t, amg.chol)
		assert.Nil(t, amg.coarse)
		res, err := (&CG{RelTol: 1e-12, MaxIter: 100}).Solve(A, amg, b, x)
		require.NoError(t, err)
		assert.True(t, res.Iterations < 15, "iterations %d", res.Iterations)
		assert.True(t, residualNorm(A, b, x) < 1e-10*math.Sqrt(utils.Dot(b, b)))
	}
	{ // Small nonsingular operators are factored and solved exactly
		A := laplacian2D(8, true)
		amg := NewAMGPreconditioner()
		require.NoError(t, amg.SetOperator(A))
		assert.Equal(t, 1, amg.NumLevels())
		assert.NotNil(t, amg.chol)
		b := make([]float64, 64)
		for i := range b {
			b[i] = float64(i % 7)
		}
		x := make([]float64, 64)
		res, err := (&CG{RelTol: 1e-12, MaxIter: 10}).Solve(A, amg, b, x)
		require.NoError(t, err)
		assert.True(t, res.Iterations <= 2, "iterations %d", res.Iterations)
	}
	{ // Small singular operators use the pseudo-inverse
		amg := NewAMGPreconditioner()
		require.NoError(t, amg.SetOperator(laplacian2D(8, false)))
		assert.Nil(t, amg.chol)
		assert.NotNil(t, amg.coarse)
		amg.Release()
		assert.Nil(t, amg.coarse)
	}
}
