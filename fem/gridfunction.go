package fem

import "math"

// GridFunction is a field of an H1Space.
type GridFunction struct {
	space *H1Space
	data  []float64
}

func NewGridFunction(sp *H1Space) *GridFunction {
	return &GridFunction{
		space: sp,
		data:  make([]float64, sp.NumDofs()),
	}
}

func (gf *GridFunction) Space() Discretization { return gf.space }
func (gf *GridFunction) Data() []float64       { return gf.data }

// ProjectCoefficient interpolates c at the nodes.
func (gf *GridFunction) ProjectCoefficient(c Coefficient) {
	for v := range gf.data {
		gf.data[v] = c.Eval(gf.space.NodePoint(v))
	}
}

func (gf *GridFunction) Eval(qp QuadraturePoint) (val float64) {
	var (
		re    = gf.space.refs[qp.Cell]
		N     = make([]float64, len(re.nodes))
		verts = gf.space.mesh.Elements[qp.Cell]
	)
	re.shape(qp.Ref, N)
	for i, v := range verts {
		val += N[i] * gf.data[v]
	}
	return
}

func (gf *GridFunction) Gradient(qp QuadraturePoint, grad []float64) {
	var (
		re    = gf.space.refs[qp.Cell]
		N     = make([]float64, len(re.nodes))
		dN    = make([][3]float64, len(re.nodes))
		verts = gf.space.mesh.Elements[qp.Cell]
	)
	for d := range grad {
		grad[d] = 0
	}
	// The jacobian was checked when the space was built.
	_, _ = gf.space.shapeAt(qp.Cell, qp.Ref, N, dN)
	for i, v := range verts {
		for d := range grad {
			grad[d] += dN[i][d] * gf.data[v]
		}
	}
}

func (gf *GridFunction) OwnedMin() (m float64) {
	m = math.Inf(1)
	for v, val := range gf.data {
		if gf.space.ownedDofs[v] && val < m {
			m = val
		}
	}
	return
}

// EvalAt evaluates the field at a physical point, false outside the mesh.
func (gf *GridFunction) EvalAt(x [3]float64) (val float64, ok bool) {
	qp, found := gf.space.Locate(vec(x))
	if !found {
		return
	}
	return gf.Eval(qp), true
}
