package fem

import (
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/heatdist/utils"
)

func vec(x [3]float64) r3.Vec { return r3.Vec{X: x[0], Y: x[1], Z: x[2]} }

func (sp *H1Space) quadPoint(k, q int) QuadraturePoint {
	return QuadraturePoint{
		Cell: k,
		Ref:  sp.refs[k].quad[q].ref,
		X:    sp.geom[k].x[q],
	}
}

// AssembleMatrix assembles massCoef*M + diffusionCoef*K over every cell,
// with M the mass and K the stiffness matrix.
func (sp *H1Space) AssembleMatrix(massCoef, diffusionCoef float64) *sparse.CSR {
	n := sp.NumDofs()
	sa := utils.NewSparseAssembler(n, n)
	for k, verts := range sp.mesh.Elements {
		var (
			geo = sp.geom[k]
			nn  = len(verts)
			Ke  = make([]float64, nn*nn)
		)
		for q, w := range geo.wdet {
			N, dN := geo.N[q], geo.dN[q]
			for i := 0; i < nn; i++ {
				for j := 0; j < nn; j++ {
					var grad float64
					for d := 0; d < sp.dim; d++ {
						grad += dN[i][d] * dN[j][d]
					}
					Ke[i*nn+j] += w * (massCoef*N[i]*N[j] + diffusionCoef*grad)
				}
			}
		}
		for i, vi := range verts {
			for j, vj := range verts {
				sa.Add(vi, vj, Ke[i*nn+j])
			}
		}
	}
	return sa.ToCSR()
}

// AssembleDomainLF assembles b_i = integral of c times v_i.
func (sp *H1Space) AssembleDomainLF(c Coefficient) (b []float64) {
	b = make([]float64, sp.NumDofs())
	for k, verts := range sp.mesh.Elements {
		geo := sp.geom[k]
		for q, w := range geo.wdet {
			f := c.Eval(sp.quadPoint(k, q))
			for i, v := range verts {
				b[v] += w * f * geo.N[q][i]
			}
		}
	}
	return
}

// AssembleDomainLFGrad assembles b_i = integral of Q . grad v_i.
func (sp *H1Space) AssembleDomainLFGrad(c VectorCoefficient) (b []float64) {
	var (
		Q = make([]float64, sp.dim)
	)
	b = make([]float64, sp.NumDofs())
	for k, verts := range sp.mesh.Elements {
		geo := sp.geom[k]
		for q, w := range geo.wdet {
			c.EvalVector(sp.quadPoint(k, q), Q)
			for i, v := range verts {
				var dot float64
				for d := 0; d < sp.dim; d++ {
					dot += Q[d] * geo.dN[q][i][d]
				}
				b[v] += w * dot
			}
		}
	}
	return
}

// FormLinearSystem imposes x[j] for every essential dof j on A x = b. The
// constrained rows and columns of the returned operator are identity and
// the known values are moved to the right hand side. A and b are not
// modified.
func FormLinearSystem(A *sparse.CSR, b, x []float64, ess []int) (Ac *sparse.CSR, bc []float64) {
	var (
		n     = len(b)
		isEss = make([]bool, n)
		raw   = A.RawMatrix()
		rows  = make([]map[int]float64, n)
	)
	bc = make([]float64, n)
	copy(bc, b)
	for _, j := range ess {
		isEss[j] = true
	}
	for i := 0; i < n; i++ {
		if isEss[i] {
			rows[i] = map[int]float64{i: 1}
			bc[i] = x[i]
			continue
		}
		rows[i] = make(map[int]float64)
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			j, aij := raw.Ind[p], raw.Data[p]
			if isEss[j] {
				bc[i] -= aij * x[j]
				continue
			}
			rows[i][j] = aij
		}
	}
	Ac = utils.NewCSRFromRows(n, n, rows)
	return
}
