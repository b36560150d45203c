package fem

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/heatdist/comm"
	"github.com/notargets/heatdist/mesh"
	"github.com/notargets/heatdist/utils"
)

// cellQuad caches the geometry of one cell at its quadrature points.
type cellQuad struct {
	x    []r3.Vec
	wdet []float64      // quadrature weight times |det J|
	N    [][]float64    // [qp][node]
	dN   [][][3]float64 // physical shape gradients [qp][node]
}

// H1Space is the order 1 Lagrange space with one dof per mesh vertex. Every
// rank holds the whole mesh and assembles the global system; cells and dofs
// are partitioned only to decide which rank contributes what to reductions.
type H1Space struct {
	mesh  *mesh.Mesh
	order int
	dim   int
	comm  comm.Communicator

	refs       []*refElement // per cell
	geom       []cellQuad
	localCells []int
	ownedDofs  []bool

	// a cell and local node for every vertex, used for nodal interpolation
	vertexCell  []int
	vertexLocal []int
}

// NewH1Space builds the space on m, which must not be modified while the
// space is in use. Cells are owned according to m.EToP when it was set for
// c.Size() partitions, otherwise by contiguous blocks.
func NewH1Space(m *mesh.Mesh, order int, c comm.Communicator) (sp *H1Space, err error) {
	if order != 1 {
		err = fmt.Errorf("%w: %d, only order 1 is provided", ErrUnsupportedOrder, order)
		return
	}
	if c == nil {
		c = comm.Serial{}
	}
	sp = &H1Space{
		mesh:        m,
		order:       order,
		dim:         m.Dim,
		comm:        c,
		refs:        make([]*refElement, m.NumElements),
		geom:        make([]cellQuad, m.NumElements),
		vertexCell:  make([]int, m.NumVertices),
		vertexLocal: make([]int, m.NumVertices),
	}
	for v := range sp.vertexCell {
		sp.vertexCell[v] = -1
	}
	for k := 0; k < m.NumElements; k++ {
		if sp.refs[k], err = getRefElement(m.ElementTypes[k]); err != nil {
			return nil, fmt.Errorf("element %d: %w", k, err)
		}
		if err = sp.buildCellQuad(k); err != nil {
			return nil, err
		}
		for i, v := range m.Elements[k] {
			if sp.vertexCell[v] < 0 {
				sp.vertexCell[v], sp.vertexLocal[v] = k, i
			}
		}
	}
	for v, k := range sp.vertexCell {
		if k < 0 {
			return nil, fmt.Errorf("vertex %d is not used by any element", v)
		}
	}
	sp.partition()
	return
}

func (sp *H1Space) partition() {
	var (
		m     = sp.mesh
		size  = sp.comm.Size()
		rank  = sp.comm.Rank()
		part  = m.EToP
		valid = len(part) == m.NumElements
	)
	for _, p := range part {
		if p < 0 || p >= size {
			valid = false
			break
		}
	}
	if !valid {
		part = mesh.BlockPartition(m.NumElements, size)
	}
	// a dof belongs to the lowest partition among its cells
	owner := make([]int, m.NumVertices)
	for v := range owner {
		owner[v] = size
	}
	for k := 0; k < m.NumElements; k++ {
		if part[k] == rank {
			sp.localCells = append(sp.localCells, k)
		}
		for _, v := range m.Elements[k] {
			owner[v] = min(owner[v], part[k])
		}
	}
	sp.ownedDofs = make([]bool, m.NumVertices)
	for v, p := range owner {
		sp.ownedDofs[v] = p == rank
	}
}

// jacobian returns d x / d r for cell k at reference point r.
func (sp *H1Space) jacobian(k int, dN [][3]float64) (J *mat.Dense) {
	J = mat.NewDense(sp.dim, sp.dim, nil)
	for i, v := range sp.mesh.Elements[k] {
		X := sp.mesh.Vertices[v]
		for a := 0; a < sp.dim; a++ {
			for b := 0; b < sp.dim; b++ {
				J.Set(a, b, J.At(a, b)+X[a]*dN[i][b])
			}
		}
	}
	return
}

// shapeAt evaluates the shape functions of cell k and their physical
// gradients at reference point r, returning |det J|.
func (sp *H1Space) shapeAt(k int, r [3]float64, N []float64, dN [][3]float64) (detJ float64, err error) {
	var (
		re   = sp.refs[k]
		dNr  = make([][3]float64, len(re.nodes))
		J    *mat.Dense
		Jinv mat.Dense
	)
	re.shape(r, N)
	re.dshape(r, dNr)
	J = sp.jacobian(k, dNr)
	detJ = math.Abs(mat.Det(J))
	if detJ < 1e-300 {
		err = fmt.Errorf("element %d has a degenerate jacobian", k)
		return
	}
	if err = Jinv.Inverse(J); err != nil {
		err = fmt.Errorf("element %d: %w", k, err)
		return
	}
	for i := range dNr {
		var g [3]float64
		for a := 0; a < sp.dim; a++ {
			for b := 0; b < sp.dim; b++ {
				g[a] += Jinv.At(b, a) * dNr[i][b]
			}
		}
		dN[i] = g
	}
	return
}

func (sp *H1Space) mapToPhysical(k int, N []float64) (x r3.Vec) {
	for i, v := range sp.mesh.Elements[k] {
		x = r3.Add(x, r3.Scale(N[i], sp.mesh.Vertex(v)))
	}
	return
}

func (sp *H1Space) buildCellQuad(k int) (err error) {
	var (
		re  = sp.refs[k]
		nq  = len(re.quad)
		nn  = len(re.nodes)
		geo = cellQuad{
			x:    make([]r3.Vec, nq),
			wdet: make([]float64, nq),
			N:    make([][]float64, nq),
			dN:   make([][][3]float64, nq),
		}
	)
	for q, qp := range re.quad {
		geo.N[q] = make([]float64, nn)
		geo.dN[q] = make([][3]float64, nn)
		var detJ float64
		if detJ, err = sp.shapeAt(k, qp.ref, geo.N[q], geo.dN[q]); err != nil {
			return
		}
		geo.wdet[q] = qp.w * detJ
		geo.x[q] = sp.mapToPhysical(k, geo.N[q])
	}
	sp.geom[k] = geo
	return
}

func (sp *H1Space) Mesh() *mesh.Mesh          { return sp.mesh }
func (sp *H1Space) Comm() comm.Communicator   { return sp.comm }
func (sp *H1Space) Dimension() int            { return sp.dim }
func (sp *H1Space) Order() int                { return sp.order }
func (sp *H1Space) NumDofs() int              { return sp.mesh.NumVertices }
func (sp *H1Space) NumLocalCells() int        { return len(sp.localCells) }
func (sp *H1Space) LocalCell(k int) int       { return sp.localCells[k] }
func (sp *H1Space) IsOwned(dof int) bool      { return sp.ownedDofs[dof] }
func (sp *H1Space) BoundaryAttributes() []int { return sp.mesh.BoundaryAttributes() }

func (sp *H1Space) CellMeasure(k int) (vol float64) {
	for _, w := range sp.geom[sp.localCells[k]].wdet {
		vol += w
	}
	return
}

func (sp *H1Space) CellGeometry(k int) mesh.ElementType {
	return sp.mesh.ElementTypes[sp.localCells[k]]
}

func (sp *H1Space) BaseGeometry() mesh.ElementType {
	return sp.mesh.ElementTypes[0]
}

func (sp *H1Space) EssentialDofs(marker []bool) (dofs []int) {
	seen := make(map[int]bool)
	for _, bf := range sp.mesh.BoundaryFaces {
		a := bf.Attribute - 1
		if a < 0 || a >= len(marker) || !marker[a] {
			continue
		}
		for _, v := range bf.Vertices {
			if !seen[v] {
				seen[v] = true
				dofs = append(dofs, v)
			}
		}
	}
	sort.Ints(dofs)
	return
}

// AllBoundaryMarker marks every boundary attribute of the mesh.
func AllBoundaryMarker(d Discretization) (marker []bool) {
	attrs := d.BoundaryAttributes()
	if len(attrs) == 0 {
		return
	}
	marker = make([]bool, attrs[len(attrs)-1])
	for _, a := range attrs {
		marker[a-1] = true
	}
	return
}

func (sp *H1Space) NewField() Field {
	return NewGridFunction(sp)
}

// NodePoint is the quadrature point at vertex v.
func (sp *H1Space) NodePoint(v int) QuadraturePoint {
	k, i := sp.vertexCell[v], sp.vertexLocal[v]
	return QuadraturePoint{
		Cell: k,
		Ref:  sp.refs[k].nodes[i],
		X:    sp.mesh.Vertex(v),
	}
}

// Locate finds the cell containing x and the reference coordinates of x in
// it. Points outside the mesh return false.
func (sp *H1Space) Locate(x r3.Vec) (qp QuadraturePoint, found bool) {
	tol := utils.NODETOL
	for k := 0; k < sp.mesh.NumElements; k++ {
		if !sp.inBoundingBox(k, x, tol) {
			continue
		}
		r, ok := sp.invertMap(k, x)
		if ok && sp.refs[k].inside(r, tol) {
			return QuadraturePoint{Cell: k, Ref: r, X: x}, true
		}
	}
	return
}

func (sp *H1Space) inBoundingBox(k int, x r3.Vec, tol float64) bool {
	p := [3]float64{x.X, x.Y, x.Z}
	for d := 0; d < sp.dim; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range sp.mesh.Elements[k] {
			lo = math.Min(lo, sp.mesh.Vertices[v][d])
			hi = math.Max(hi, sp.mesh.Vertices[v][d])
		}
		pad := tol * (1 + hi - lo)
		if p[d] < lo-pad || p[d] > hi+pad {
			return false
		}
	}
	return true
}

// invertMap solves x(r) = x with Newton iterations; one step suffices for
// simplices.
func (sp *H1Space) invertMap(k int, x r3.Vec) (r [3]float64, ok bool) {
	var (
		re     = sp.refs[k]
		N      = make([]float64, len(re.nodes))
		dNr    = make([][3]float64, len(re.nodes))
		target = [3]float64{x.X, x.Y, x.Z}
	)
	r = re.center()
	for iter := 0; iter < 20; iter++ {
		re.shape(r, N)
		re.dshape(r, dNr)
		xr := sp.mapToPhysical(k, N)
		cur := [3]float64{xr.X, xr.Y, xr.Z}
		res := mat.NewVecDense(sp.dim, nil)
		var resNorm float64
		for d := 0; d < sp.dim; d++ {
			res.SetVec(d, target[d]-cur[d])
			resNorm = math.Max(resNorm, math.Abs(target[d]-cur[d]))
		}
		J := sp.jacobian(k, dNr)
		var dr mat.VecDense
		if err := dr.SolveVec(J, res); err != nil {
			return
		}
		var step float64
		for d := 0; d < sp.dim; d++ {
			r[d] += dr.AtVec(d)
			step = math.Max(step, math.Abs(dr.AtVec(d)))
		}
		if step < 1e-13 || resNorm == 0 {
			ok = true
			return
		}
	}
	ok = true
	return
}
