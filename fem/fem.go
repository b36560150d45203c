// Package fem is a first order continuous Lagrange (H1) discretization over
// mesh.Mesh: projection and evaluation of fields, mass, stiffness and
// linear form assembly, and elimination of essential dofs.
package fem

import (
	"errors"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/heatdist/comm"
	"github.com/notargets/heatdist/mesh"
)

var (
	ErrUnsupportedOrder   = errors.New("unsupported polynomial order")
	ErrUnsupportedElement = errors.New("unsupported element type")
)

// QuadraturePoint locates a point inside a cell, both in the reference
// element and in physical coordinates.
type QuadraturePoint struct {
	Cell int // global cell index
	Ref  [3]float64
	X    r3.Vec
}

// Coefficient is a scalar function evaluated at points of the domain.
type Coefficient interface {
	Eval(qp QuadraturePoint) float64
}

// VectorCoefficient is a vector function of length Dimension() evaluated at
// points of the domain.
type VectorCoefficient interface {
	EvalVector(qp QuadraturePoint, dst []float64)
}

// FunctionCoefficient adapts a function of position.
type FunctionCoefficient func(x r3.Vec) float64

func (f FunctionCoefficient) Eval(qp QuadraturePoint) float64 { return f(qp.X) }

type ConstantCoefficient float64

func (c ConstantCoefficient) Eval(QuadraturePoint) float64 { return float64(c) }

// FieldCoefficient evaluates a field of the same space.
type FieldCoefficient struct {
	Field Field
}

func (c FieldCoefficient) Eval(qp QuadraturePoint) float64 { return c.Field.Eval(qp) }

// Field is a discrete function with one value per dof.
type Field interface {
	Space() Discretization
	// Data is the dof vector, shared with the field.
	Data() []float64
	ProjectCoefficient(c Coefficient)
	Eval(qp QuadraturePoint) float64
	// Gradient writes the physical gradient at qp into grad.
	Gradient(qp QuadraturePoint, grad []float64)
	// OwnedMin is the smallest value over the dofs owned by this rank,
	// +Inf when the rank owns none.
	OwnedMin() float64
}

// Discretization is what the distance solver needs from a finite element
// space distributed over the ranks of a communicator.
type Discretization interface {
	Comm() comm.Communicator
	Dimension() int
	Order() int
	// NumLocalCells counts the cells owned by this rank; CellMeasure and
	// CellGeometry take a local cell index.
	NumLocalCells() int
	CellMeasure(k int) float64
	CellGeometry(k int) mesh.ElementType
	// BaseGeometry is the geometry of the first cell of the mesh, the same
	// on every rank.
	BaseGeometry() mesh.ElementType
	BoundaryAttributes() []int
	// EssentialDofs lists the dofs on boundary faces whose attribute a has
	// marker[a-1] set.
	EssentialDofs(marker []bool) []int
	NumDofs() int
	NewField() Field
	// AssembleMatrix assembles massCoef*M + diffusionCoef*K.
	AssembleMatrix(massCoef, diffusionCoef float64) *sparse.CSR
	AssembleDomainLF(c Coefficient) []float64
	AssembleDomainLFGrad(c VectorCoefficient) []float64
}
