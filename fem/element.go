package fem

import (
	"fmt"
	"math"

	"github.com/notargets/heatdist/mesh"
)

type quadPoint struct {
	ref [3]float64
	w   float64
}

// refElement is a linear Lagrange element on its reference cell. Lines,
// quads and hexes use [0,1]^d; simplices use the unit simplex.
type refElement struct {
	et     mesh.ElementType
	dim    int
	nodes  [][3]float64
	quad   []quadPoint
	shape  func(r [3]float64, N []float64)
	dshape func(r [3]float64, dN [][3]float64)
}

var (
	gaussPts = [2]float64{0.5 - 0.5/math.Sqrt(3), 0.5 + 0.5/math.Sqrt(3)}

	refElements = map[mesh.ElementType]*refElement{
		mesh.Line: {
			et:    mesh.Line,
			dim:   1,
			nodes: [][3]float64{{0, 0, 0}, {1, 0, 0}},
			quad:  tensorGauss(1),
			shape: func(r [3]float64, N []float64) {
				N[0], N[1] = 1-r[0], r[0]
			},
			dshape: func(r [3]float64, dN [][3]float64) {
				dN[0], dN[1] = [3]float64{-1}, [3]float64{1}
			},
		},
		mesh.Triangle: {
			et:    mesh.Triangle,
			dim:   2,
			nodes: [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
			quad: []quadPoint{
				{ref: [3]float64{1. / 6, 1. / 6}, w: 1. / 6},
				{ref: [3]float64{2. / 3, 1. / 6}, w: 1. / 6},
				{ref: [3]float64{1. / 6, 2. / 3}, w: 1. / 6},
			},
			shape: func(r [3]float64, N []float64) {
				N[0], N[1], N[2] = 1-r[0]-r[1], r[0], r[1]
			},
			dshape: func(r [3]float64, dN [][3]float64) {
				dN[0], dN[1], dN[2] = [3]float64{-1, -1}, [3]float64{1, 0}, [3]float64{0, 1}
			},
		},
		mesh.Quad: {
			et:    mesh.Quad,
			dim:   2,
			nodes: [][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
			quad:  tensorGauss(2),
			shape: func(r [3]float64, N []float64) {
				for i, c := range quadCorners {
					N[i] = lin(c[0], r[0]) * lin(c[1], r[1])
				}
			},
			dshape: func(r [3]float64, dN [][3]float64) {
				for i, c := range quadCorners {
					dN[i] = [3]float64{
						dlin(c[0]) * lin(c[1], r[1]),
						lin(c[0], r[0]) * dlin(c[1]),
					}
				}
			},
		},
		mesh.Tet: {
			et:    mesh.Tet,
			dim:   3,
			nodes: [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
			quad:  tetQuadrature(),
			shape: func(r [3]float64, N []float64) {
				N[0], N[1], N[2], N[3] = 1-r[0]-r[1]-r[2], r[0], r[1], r[2]
			},
			dshape: func(r [3]float64, dN [][3]float64) {
				dN[0], dN[1], dN[2], dN[3] = [3]float64{-1, -1, -1},
					[3]float64{1, 0, 0}, [3]float64{0, 1, 0}, [3]float64{0, 0, 1}
			},
		},
		mesh.Hex: {
			et:    mesh.Hex,
			dim:   3,
			nodes: hexCorners[:],
			quad:  tensorGauss(3),
			shape: func(r [3]float64, N []float64) {
				for i, c := range hexCorners {
					N[i] = lin(c[0], r[0]) * lin(c[1], r[1]) * lin(c[2], r[2])
				}
			},
			dshape: func(r [3]float64, dN [][3]float64) {
				for i, c := range hexCorners {
					dN[i] = [3]float64{
						dlin(c[0]) * lin(c[1], r[1]) * lin(c[2], r[2]),
						lin(c[0], r[0]) * dlin(c[1]) * lin(c[2], r[2]),
						lin(c[0], r[0]) * lin(c[1], r[1]) * dlin(c[2]),
					}
				}
			},
		},
	}

	quadCorners = [4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	hexCorners  = [8][3]float64{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	}
)

func getRefElement(et mesh.ElementType) (re *refElement, err error) {
	var ok bool
	if re, ok = refElements[et]; !ok {
		err = fmt.Errorf("%w: %s", ErrUnsupportedElement, et)
	}
	return
}

func lin(c, x float64) float64 {
	if c == 0 {
		return 1 - x
	}
	return x
}

func dlin(c float64) float64 {
	if c == 0 {
		return -1
	}
	return 1
}

// tensorGauss is the 2 point Gauss rule on [0,1]^dim.
func tensorGauss(dim int) (qps []quadPoint) {
	w := math.Pow(0.5, float64(dim))
	switch dim {
	case 1:
		for _, r := range gaussPts {
			qps = append(qps, quadPoint{ref: [3]float64{r}, w: w})
		}
	case 2:
		for _, s := range gaussPts {
			for _, r := range gaussPts {
				qps = append(qps, quadPoint{ref: [3]float64{r, s}, w: w})
			}
		}
	case 3:
		for _, t := range gaussPts {
			for _, s := range gaussPts {
				for _, r := range gaussPts {
					qps = append(qps, quadPoint{ref: [3]float64{r, s, t}, w: w})
				}
			}
		}
	}
	return
}

// tetQuadrature is the 4 point rule exact for quadratics.
func tetQuadrature() (qps []quadPoint) {
	const (
		a = 0.5854101966249685
		b = 0.1381966011250105
		w = 1. / 24
	)
	for i := 0; i < 4; i++ {
		ref := [3]float64{b, b, b}
		if i < 3 {
			ref[i] = a
		}
		qps = append(qps, quadPoint{ref: ref, w: w})
	}
	return
}

// inside reports whether a reference point lies in the reference cell.
func (re *refElement) inside(r [3]float64, tol float64) bool {
	switch re.et {
	case mesh.Line:
		return r[0] >= -tol && r[0] <= 1+tol
	case mesh.Triangle:
		return r[0] >= -tol && r[1] >= -tol && r[0]+r[1] <= 1+tol
	case mesh.Tet:
		return r[0] >= -tol && r[1] >= -tol && r[2] >= -tol && r[0]+r[1]+r[2] <= 1+tol
	default:
		for d := 0; d < re.dim; d++ {
			if r[d] < -tol || r[d] > 1+tol {
				return false
			}
		}
		return true
	}
}

// center is a point inside the reference cell used to start point location.
func (re *refElement) center() (r [3]float64) {
	for _, n := range re.nodes {
		for d := 0; d < 3; d++ {
			r[d] += n[d] / float64(len(re.nodes))
		}
	}
	return
}
