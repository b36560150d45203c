package distance

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/heatdist/comm"
	"github.com/notargets/heatdist/fem"
	"github.com/notargets/heatdist/mesh"
	"github.com/notargets/heatdist/solver"
)

type fakeCells struct {
	c        comm.Communicator
	measures []float64
	geom     mesh.ElementType
	order    int
}

func (fc fakeCells) Comm() comm.Communicator        { return fc.c }
func (fc fakeCells) NumLocalCells() int             { return len(fc.measures) }
func (fc fakeCells) CellMeasure(k int) float64      { return fc.measures[k] }
func (fc fakeCells) BaseGeometry() mesh.ElementType { return fc.geom }
func (fc fakeCells) Order() int                     { return fc.order }

func uniform(n int, v float64) (m []float64) {
	m = make([]float64, n)
	for i := range m {
		m[i] = v
	}
	return
}

// heaviside is 1 inside the sphere of radius r about c and 0 outside, with
// a tanh transition of width w. Its 0.5 contour is the sphere.
func heaviside(c r3.Vec, r, w float64) fem.FunctionCoefficient {
	return func(x r3.Vec) float64 {
		phi := r3.Norm(r3.Sub(x, c)) - r
		return 0.5 * (1 - math.Tanh(phi/w))
	}
}

func TestEstimateMeshScale(t *testing.T) {
	{ // Quads of area A give sqrt(A), triangles of area A give sqrt(2A)
		dx, err := EstimateMeshScale(fakeCells{comm.Serial{}, uniform(16, 0.25), mesh.Quad, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, dx, 1e-15)
		dx, err = EstimateMeshScale(fakeCells{comm.Serial{}, uniform(8, 0.125), mesh.Triangle, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, dx, 1e-15)
	}
	{ // Segments, hexes and tets
		dx, err := EstimateMeshScale(fakeCells{comm.Serial{}, uniform(10, 0.1), mesh.Line, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0.1, dx, 1e-15)
		dx, err = EstimateMeshScale(fakeCells{comm.Serial{}, uniform(8, 0.125), mesh.Hex, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, dx, 1e-15)
		dx, err = EstimateMeshScale(fakeCells{comm.Serial{}, uniform(6, 1./6), mesh.Tet, 1})
		require.NoError(t, err)
		assert.InDelta(t, 1., dx, 1e-15)
	}
	{ // Higher order divides the cell size
		dx, err := EstimateMeshScale(fakeCells{comm.Serial{}, uniform(4, 1), mesh.Quad, 2})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, dx, 1e-15)
	}
	{ // Unsupported geometry and empty domains are errors
		_, err := EstimateMeshScale(fakeCells{comm.Serial{}, uniform(4, 1), mesh.Prism, 1})
		assert.ErrorIs(t, err, ErrUnsupportedGeometry)
		_, err = EstimateMeshScale(fakeCells{comm.Serial{}, nil, mesh.Quad, 1})
		assert.ErrorIs(t, err, ErrEmptyDomain)
		_, err = EstimateMeshScale(fakeCells{comm.Serial{}, uniform(4, 0), mesh.Quad, 1})
		assert.ErrorIs(t, err, ErrEmptyDomain)
	}
	{ // Measures and counts are summed over the ranks, some of which own nothing
		var (
			np    = 3
			w     = comm.NewWorld(np)
			cells = [][]float64{uniform(10, 0.25), nil, uniform(6, 0.25)}
			dxs   = make([]float64, np)
		)
		require.NoError(t, w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) (err error) {
			dxs[c.Rank()], err = EstimateMeshScale(fakeCells{c, cells[c.Rank()], mesh.Quad, 1})
			return
		}))
		for r := 0; r < np; r++ {
			assert.Equal(t, 0.5, dxs[r])
		}
	}
	{ // A real mesh through the space
		m, err := mesh.NewRectangleMesh(8, 4, [2]float64{0, 0}, [2]float64{2, 1}, mesh.Triangle)
		require.NoError(t, err)
		sp, err := fem.NewH1Space(m, 1, nil)
		require.NoError(t, err)
		dx, err := EstimateMeshScale(sp)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, dx, 1e-14)
	}
}

func TestPeakTransform(t *testing.T) {
	assert.Equal(t, 0., PeakTransform(-0.1))
	assert.Equal(t, 0., PeakTransform(1.1))
	assert.Equal(t, 0., PeakTransform(math.NaN()))
	assert.Equal(t, 0., PeakTransform(0))
	assert.Equal(t, 0., PeakTransform(1))
	assert.Equal(t, 1., PeakTransform(0.5))
	for x := -0.5; x <= 1.5; x += 0.01 {
		y := PeakTransform(x)
		assert.True(t, y >= 0 && y <= 1)
		// symmetric about the contour value
		assert.InDelta(t, y, PeakTransform(1-x), 1e-14)
		// values in range stay in range, so the transform can be reapplied
		assert.True(t, PeakTransform(y) >= 0)
	}
}

func TestSmoothField(t *testing.T) {
	m, err := mesh.NewRectangleMesh(6, 6, [2]float64{0, 0}, [2]float64{1, 1}, mesh.Quad)
	require.NoError(t, err)
	sp, err := fem.NewH1Space(m, 1, nil)
	require.NoError(t, err)
	spike := func() fem.Field {
		f := sp.NewField()
		f.Data()[3*7+3] = 1
		return f
	}
	{ // Zero steps leave the field untouched
		f := spike()
		before := append([]float64(nil), f.Data()...)
		require.NoError(t, SmoothField(sp, f, 0, 2./3))
		assert.Equal(t, before, f.Data())
	}
	{ // Negative steps are rejected
		f := spike()
		assert.ErrorIs(t, SmoothField(sp, f, -1, 2./3), ErrInvalidSmoothSteps)
	}
	{ // Smoothing spreads a spike and lowers its peak
		f := spike()
		require.NoError(t, SmoothField(sp, f, 3, 2./3))
		data := f.Data()
		assert.Less(t, data[3*7+3], 1.)
		assert.Greater(t, data[3*7+4], 0.)
		assert.Greater(t, data[2*7+3], 0.)
	}
	{ // Constants are preserved
		f := sp.NewField()
		f.ProjectCoefficient(fem.ConstantCoefficient(0.7))
		require.NoError(t, SmoothField(sp, f, 5, 2./3))
		for _, v := range f.Data() {
			assert.InDelta(t, 0.7, v, 1e-14)
		}
	}
}

func TestNewSolver(t *testing.T) {
	m, err := mesh.NewRectangleMesh(4, 4, [2]float64{0, 0}, [2]float64{1, 1}, mesh.Quad)
	require.NoError(t, err)
	sp, err := fem.NewH1Space(m, 1, nil)
	require.NoError(t, err)
	{ // Construction leaves a ready solver with the boundary dofs collected
		s, err := NewSolver(sp, DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, Ready, s.State())
		assert.InDelta(t, 0.25, s.MeshScale(), 1e-15)
		assert.InDelta(t, 0.0625, s.DiffusionTime(), 1e-15)
		assert.Len(t, s.EssentialDofs(), 16)
		// the returned list is a copy
		ess := s.EssentialDofs()
		ess[0] = -1
		assert.NotEqual(t, -1, s.EssentialDofs()[0])
	}
	{ // Invalid configurations are rejected before a solver exists
		for _, mod := range []func(*Config){
			func(c *Config) { c.DiffusionCoefficient = 0 },
			func(c *Config) { c.RelTol = -1 },
			func(c *Config) { c.MaxIterations = 0 },
			func(c *Config) { c.SmootherWeight = 2 },
			func(c *Config) { c.DiffusionCoefficient = math.NaN() },
		} {
			cfg := DefaultConfig()
			mod(&cfg)
			s, err := NewSolver(sp, cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, s)
		}
	}
	{ // Unsupported geometry surfaces from the estimator
		_, err := NewSolver(prismSpace{sp}, DefaultConfig())
		assert.ErrorIs(t, err, ErrUnsupportedGeometry)
	}
}

// prismSpace reports a geometry the estimator does not know.
type prismSpace struct {
	*fem.H1Space
}

func (prismSpace) BaseGeometry() mesh.ElementType { return mesh.Prism }

func TestDistance1D(t *testing.T) {
	var (
		n     = 40
		h     = 1. / float64(n)
		xstar = 0.5
	)
	m, err := mesh.NewLineMesh(n, 0, 1)
	require.NoError(t, err)
	sp, err := fem.NewH1Space(m, 1, nil)
	require.NoError(t, err)
	s, err := NewSolver(sp, DefaultConfig())
	require.NoError(t, err)
	dist, err := s.ComputeDistance(heaviside(r3.Vec{X: xstar}, 0, 2*h), 0, true)
	require.NoError(t, err)
	assert.Equal(t, Done, s.State())
	var minVal = math.Inf(1)
	for v, d := range dist.Data() {
		x := m.Vertices[v][0]
		assert.InDelta(t, math.Abs(x-xstar), d, 2*h, "x = %v", x)
		minVal = math.Min(minVal, d)
	}
	assert.Equal(t, 0., minVal)
	stats := s.Stats()
	for i := range stats.Iterations {
		assert.Greater(t, stats.Iterations[i], 0)
	}
}

func TestDistance2D(t *testing.T) {
	var (
		n      = 24
		h      = 2. / float64(n)
		radius = 0.3
	)
	m, err := mesh.NewRectangleMesh(n, n, [2]float64{-1, -1}, [2]float64{1, 1}, mesh.Quad)
	require.NoError(t, err)
	sp, err := fem.NewH1Space(m, 1, nil)
	require.NoError(t, err)
	s, err := NewSolver(sp, DefaultConfig())
	require.NoError(t, err)
	levelSet := heaviside(r3.Vec{}, radius, h)
	dist, err := s.ComputeDistance(levelSet, 0, true)
	require.NoError(t, err)
	data := append([]float64(nil), dist.Data()...)
	vid := func(i, j int) int { return j*(n+1) + i }
	{ // Non-negative with a zero minimum on the contour
		argmin := 0
		for v, d := range data {
			assert.GreaterOrEqual(t, d, 0.)
			if d < data[argmin] {
				argmin = v
			}
		}
		assert.Equal(t, 0., data[argmin])
		r := math.Hypot(m.Vertices[argmin][0], m.Vertices[argmin][1])
		assert.InDelta(t, radius, r, 2*h)
	}
	{ // Roughly the radius at the centre, growing outward toward the boundary
		assert.InDelta(t, radius, data[vid(n/2, n/2)], 0.15)
		for i := n/2 + 7; i < n; i++ {
			assert.Greater(t, data[vid(i+1, n/2)], data[vid(i, n/2)], "i = %d", i)
		}
		assert.Greater(t, data[vid(n, n)], data[vid(n, n/2)])
		assert.Greater(t, data[vid(0, 0)], data[vid(0, n/2)])
		assert.InDelta(t, math.Sqrt2-radius, data[vid(n, n)], 0.3)
	}
	{ // The diffused field is the average of the Dirichlet and Neumann solves
		uD, err := s.Diffuse(s.Source(), true)
		require.NoError(t, err)
		uN, err := s.Diffuse(s.Source(), false)
		require.NoError(t, err)
		diffused := s.Diffused().Data()
		for i := range diffused {
			assert.InDelta(t, 0.5*(uD.Data()[i]+uN.Data()[i]), diffused[i], 1e-15)
		}
		for _, d := range s.EssentialDofs() {
			assert.InDelta(t, 0., uD.Data()[d], 1e-14)
		}
	}
	{ // Repeated runs are deterministic
		again, err := s.ComputeDistance(levelSet, 0, true)
		require.NoError(t, err)
		assert.Equal(t, data, again.Data())
	}
	{ // Smoothing first still gives a valid distance
		dist, err := s.ComputeDistance(levelSet, 2, true)
		require.NoError(t, err)
		minVal := math.Inf(1)
		for _, d := range dist.Data() {
			minVal = math.Min(minVal, d)
		}
		assert.Equal(t, 0., minVal)
	}
}

func TestDistanceBump(t *testing.T) {
	var (
		nx, ny = 32, 16
		center = r3.Vec{X: 1, Y: 0.5}
	)
	m, err := mesh.NewRectangleMesh(nx, ny, [2]float64{0, 0}, [2]float64{2, 1}, mesh.Quad)
	require.NoError(t, err)
	sp, err := fem.NewH1Space(m, 1, nil)
	require.NoError(t, err)
	s, err := NewSolver(sp, DefaultConfig())
	require.NoError(t, err)
	bump := fem.FunctionCoefficient(func(x r3.Vec) float64 {
		return 0.5 * math.Exp(-r3.Norm2(r3.Sub(x, center))/0.05)
	})
	dist, err := s.ComputeDistance(bump, 0, true)
	require.NoError(t, err)
	data := dist.Data()
	vid := func(i, j int) int { return j*(nx+1) + i }
	{ // The minimum sits on the peak of the bump
		argmin := 0
		for v, d := range data {
			assert.GreaterOrEqual(t, d, 0.)
			if d < data[argmin] {
				argmin = v
			}
		}
		assert.Equal(t, 0., data[argmin])
		assert.Equal(t, vid(nx/2, ny/2), argmin)
	}
	{ // Growing toward the boundary
		for i := nx / 2; i < nx-1; i++ {
			assert.Greater(t, data[vid(i+1, ny/2)], data[vid(i, ny/2)], "i = %d", i)
		}
		for i := nx / 2; i > 1; i-- {
			assert.Greater(t, data[vid(i-1, ny/2)], data[vid(i, ny/2)], "i = %d", i)
		}
	}
	{ // The diffusion operator has no strong connections and stays on one level
		amg := solver.NewAMGPreconditioner()
		require.NoError(t, amg.SetOperator(sp.AssembleMatrix(1, s.DiffusionTime())))
		assert.Equal(t, 1, amg.NumLevels())
		amg.Release()
	}
}

func TestComputeDistanceErrors(t *testing.T) {
	m, err := mesh.NewRectangleMesh(12, 12, [2]float64{-1, -1}, [2]float64{1, 1}, mesh.Triangle)
	require.NoError(t, err)
	sp, err := fem.NewH1Space(m, 1, nil)
	require.NoError(t, err)
	levelSet := heaviside(r3.Vec{}, 0.4, 0.2)
	{ // Negative smoothing is rejected without touching the state
		s, err := NewSolver(sp, DefaultConfig())
		require.NoError(t, err)
		dist, err := s.ComputeDistance(levelSet, -2, true)
		assert.ErrorIs(t, err, ErrInvalidSmoothSteps)
		assert.Nil(t, dist)
		assert.Equal(t, Ready, s.State())
	}
	{ // A capped solve fails and returns the solver to Ready
		cfg := DefaultConfig()
		cfg.MaxIterations = 1
		s, err := NewSolver(sp, cfg)
		require.NoError(t, err)
		dist, err := s.ComputeDistance(levelSet, 0, true)
		assert.ErrorIs(t, err, solver.ErrNotConverged)
		assert.Nil(t, dist)
		assert.Equal(t, Ready, s.State())
	}
}

func TestDistanceMultiRank(t *testing.T) {
	m, err := mesh.NewRectangleMesh(12, 12, [2]float64{-1, -1}, [2]float64{1, 1}, mesh.Triangle)
	require.NoError(t, err)
	levelSet := heaviside(r3.Vec{X: 0.2, Y: -0.1}, 0.35, 0.2)

	sp, err := fem.NewH1Space(m, 1, nil)
	require.NoError(t, err)
	s, err := NewSolver(sp, DefaultConfig())
	require.NoError(t, err)
	serial, err := s.ComputeDistance(levelSet, 1, true)
	require.NoError(t, err)

	var (
		np      = 3
		w       = comm.NewWorld(np)
		results = make([][]float64, np)
		mu      sync.Mutex
	)
	require.NoError(t, m.Partition(np))
	require.NoError(t, w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) (err error) {
		var (
			sp   *fem.H1Space
			s    *Solver
			dist fem.Field
		)
		if sp, err = fem.NewH1Space(m, 1, c); err != nil {
			return
		}
		if s, err = NewSolver(sp, DefaultConfig()); err != nil {
			return
		}
		if dist, err = s.ComputeDistance(levelSet, 1, true); err != nil {
			return
		}
		mu.Lock()
		results[c.Rank()] = append([]float64(nil), dist.Data()...)
		mu.Unlock()
		return
	}))
	for r := 1; r < np; r++ {
		assert.Equal(t, results[0], results[r])
	}
	assert.InDeltaSlice(t, serial.Data(), results[0], 1e-8)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Constructed", Constructed.String())
	assert.Equal(t, "Ready", Ready.String())
	assert.Equal(t, "Computing", Computing.String())
	assert.Equal(t, "Done", Done.String())
	assert.Equal(t, "State(4)", State(4).String())
}
