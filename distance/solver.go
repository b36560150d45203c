// Package distance computes approximate distance fields from level sets
// with the heat method: the 0.5 contour of a level set is diffused for a
// short time, the normalized gradient of the result is integrated with a
// Poisson solve, and the field is shifted so its minimum is zero.
package distance

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/james-bowman/sparse"

	"github.com/notargets/heatdist/fem"
	"github.com/notargets/heatdist/solver"
	"github.com/notargets/heatdist/utils"
)

var (
	ErrInvalidSmoothSteps = errors.New("smoothing steps must not be negative")
	ErrInvalidConfig      = errors.New("invalid distance solver configuration")
)

type Config struct {
	// DiffusionCoefficient scales the diffusion time, dt = coefficient * dx^2.
	DiffusionCoefficient float64
	RelTol               float64
	MaxIterations        int
	PrintLevel           int
	Preconditioner       solver.PreconditionerType
	SmootherWeight       float64
}

func DefaultConfig() Config {
	return Config{
		DiffusionCoefficient: 1.0,
		RelTol:               1e-12,
		MaxIterations:        100,
		PrintLevel:           0,
		Preconditioner:       solver.AMG,
		SmootherWeight:       2. / 3,
	}
}

func (cfg Config) validate() (err error) {
	switch {
	case !(cfg.DiffusionCoefficient > 0):
		err = fmt.Errorf("%w: diffusion coefficient %v", ErrInvalidConfig, cfg.DiffusionCoefficient)
	case !(cfg.RelTol > 0):
		err = fmt.Errorf("%w: relative tolerance %v", ErrInvalidConfig, cfg.RelTol)
	case cfg.MaxIterations < 1:
		err = fmt.Errorf("%w: max iterations %d", ErrInvalidConfig, cfg.MaxIterations)
	case !(cfg.SmootherWeight > 0 && cfg.SmootherWeight < 2):
		err = fmt.Errorf("%w: smoother weight %v", ErrInvalidConfig, cfg.SmootherWeight)
	default:
		err = solver.CheckAvailable(cfg.Preconditioner)
	}
	return
}

type State uint8

const (
	Constructed State = iota
	Ready
	Computing
	Done
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "Constructed"
	case Ready:
		return "Ready"
	case Computing:
		return "Computing"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Stats records the work done by the last ComputeDistance call.
type Stats struct {
	SourceTime, DiffusionTime, PoissonTime time.Duration
	// Iterations of the Dirichlet, Neumann and Poisson solves
	Iterations [3]int
}

// Solver computes distance fields on one discretization. It belongs to a
// single rank; ranks sharing a communicator must call ComputeDistance
// together.
type Solver struct {
	space     fem.Discretization
	cfg       Config
	state     State
	dx        float64
	essential []int

	source, diffused, distance fem.Field
	stats                      Stats
}

// NewSolver estimates the mesh scale, collects the boundary dofs and
// checks the configuration. Configuration errors are returned before any
// solver exists.
func NewSolver(space fem.Discretization, cfg Config) (s *Solver, err error) {
	if err = cfg.validate(); err != nil {
		return
	}
	s = &Solver{
		space: space,
		cfg:   cfg,
		state: Constructed,
	}
	if s.dx, err = EstimateMeshScale(space); err != nil {
		return nil, err
	}
	s.essential = space.EssentialDofs(fem.AllBoundaryMarker(space))
	s.source = space.NewField()
	s.diffused = space.NewField()
	s.distance = space.NewField()
	s.state = Ready
	return
}

func (s *Solver) State() State      { return s.state }
func (s *Solver) MeshScale() float64 { return s.dx }
func (s *Solver) Config() Config     { return s.cfg }
func (s *Solver) Stats() Stats       { return s.stats }

// EssentialDofs returns a copy of the dofs constrained in the Dirichlet
// diffusion solve.
func (s *Solver) EssentialDofs() []int {
	ess := make([]int, len(s.essential))
	copy(ess, s.essential)
	return ess
}

// Source is the smoothed and transformed level set of the last call.
func (s *Solver) Source() fem.Field { return s.source }

// Diffused is the averaged diffusion result of the last call.
func (s *Solver) Diffused() fem.Field { return s.diffused }

// DiffusionTime is the time step of the diffusion solves.
func (s *Solver) DiffusionTime() float64 {
	return s.cfg.DiffusionCoefficient * s.dx * s.dx
}

func (s *Solver) logf(format string, args ...any) {
	if s.cfg.PrintLevel > 0 {
		log.Printf(format, args...)
	}
}

// ComputeDistance returns the distance to the 0.5 contour of levelSet. The
// returned field is owned by the solver and is overwritten by the next
// call. On error the solver returns to Ready and no field is returned.
func (s *Solver) ComputeDistance(levelSet fem.Coefficient, smoothSteps int, applyPeakTransform bool) (dist fem.Field, err error) {
	if s.state == Constructed {
		err = fmt.Errorf("solver is not ready")
		return
	}
	if smoothSteps < 0 {
		err = fmt.Errorf("%w: %d", ErrInvalidSmoothSteps, smoothSteps)
		return
	}
	s.state = Computing
	s.stats = Stats{}
	defer func() {
		if err != nil {
			s.state = Ready
			dist = nil
			return
		}
		s.state = Done
	}()

	start := time.Now()
	s.source.ProjectCoefficient(levelSet)
	if err = SmoothField(s.space, s.source, smoothSteps, s.cfg.SmootherWeight); err != nil {
		return
	}
	if applyPeakTransform {
		ApplyPeakTransform(s.source)
	}
	s.stats.SourceTime = time.Since(start)

	start = time.Now()
	var uD, uN fem.Field
	if uD, err = s.diffuse(s.source, true, 0); err != nil {
		return
	}
	if uN, err = s.diffuse(s.source, false, 1); err != nil {
		return
	}
	diffused, dData, nData := s.diffused.Data(), uD.Data(), uN.Data()
	for i := range diffused {
		diffused[i] = 0.5 * (dData[i] + nData[i])
	}
	s.stats.DiffusionTime = time.Since(start)
	s.logf("diffusion: dt = %g, %d + %d iterations", s.DiffusionTime(),
		s.stats.Iterations[0], s.stats.Iterations[1])

	start = time.Now()
	if err = s.poisson(); err != nil {
		return
	}
	if err = utils.CheckFinite("distance", s.distance.Data()); err != nil {
		return
	}
	s.stats.PoissonTime = time.Since(start)

	s.normalize()
	s.logf("distance: %d Poisson iterations", s.stats.Iterations[2])
	dist = s.distance
	return
}

// Diffuse solves (M + dt K) u = M src once, with the boundary dofs fixed at
// zero when constrained and without constraints otherwise.
func (s *Solver) Diffuse(src fem.Field, constrained bool) (u fem.Field, err error) {
	slot := 1
	if constrained {
		slot = 0
	}
	return s.diffuse(src, constrained, slot)
}

func (s *Solver) diffuse(src fem.Field, constrained bool, slot int) (u fem.Field, err error) {
	var (
		A = s.space.AssembleMatrix(1, s.DiffusionTime())
		b = s.space.AssembleDomainLF(fem.FieldCoefficient{Field: src})
	)
	u = s.space.NewField()
	x := u.Data()
	if constrained {
		A, b = fem.FormLinearSystem(A, b, x, s.essential)
	}
	var (
		stage = "Neumann"
		it    int
	)
	if constrained {
		stage = "Dirichlet"
	}
	if it, err = s.solve(stage, A, b, x, nil); err != nil {
		return nil, err
	}
	s.stats.Iterations[slot] = it
	return
}

// poisson solves K d = b with b_i the integral of X . grad v_i, where X is
// the unit vector field pointing down the gradient of the diffused field.
// K is singular with the constants as null space, so b and the iterates
// are kept orthogonal to them.
func (s *Solver) poisson() (err error) {
	var (
		K = s.space.AssembleMatrix(0, 1)
		b = s.space.AssembleDomainLFGrad(newNormalizedGradient(s.diffused))
		x = s.distance.Data()
	)
	for i := range x {
		x[i] = 0
	}
	removeMean(b)
	s.stats.Iterations[2], err = s.solve("Poisson", K, b, x, removeMean)
	return
}

func (s *Solver) solve(stage string, op *sparse.CSR, b, x []float64, project func([]float64)) (iterations int, err error) {
	var prec solver.Preconditioner
	if prec, err = solver.NewPreconditioner(s.cfg.Preconditioner); err != nil {
		return
	}
	defer prec.Release()
	if err = prec.SetOperator(op); err != nil {
		err = fmt.Errorf("%s preconditioner: %w", stage, err)
		return
	}
	cg := &solver.CG{
		RelTol:     s.cfg.RelTol,
		MaxIter:    s.cfg.MaxIterations,
		PrintLevel: s.cfg.PrintLevel,
		Project:    project,
	}
	var res solver.Result
	res, err = cg.Solve(op, prec, b, x)
	iterations = res.Iterations
	if err != nil {
		err = fmt.Errorf("%s solve: %w", stage, err)
	}
	return
}

// normalize shifts the distance so its global minimum is zero.
func (s *Solver) normalize() {
	localMin := s.distance.OwnedMin()
	globalMin := s.space.Comm().AllReduceMin(localMin)
	if math.IsInf(globalMin, 0) {
		return
	}
	data := s.distance.Data()
	for i := range data {
		data[i] -= globalMin
	}
}

func removeMean(v []float64) {
	if len(v) == 0 {
		return
	}
	var mean float64
	for _, val := range v {
		mean += val
	}
	mean /= float64(len(v))
	for i := range v {
		v[i] -= mean
	}
}
