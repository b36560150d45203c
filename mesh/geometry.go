package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vertex returns vertex v as a point.
func (m *Mesh) Vertex(v int) r3.Vec {
	c := m.Vertices[v]
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}
}

// Centroid is the vertex average of element k.
func (m *Mesh) Centroid(k int) (c r3.Vec) {
	verts := m.Elements[k]
	for _, v := range verts {
		c = r3.Add(c, m.Vertex(v))
	}
	c = r3.Scale(1/float64(len(verts)), c)
	return
}

// ElementVolume is the length, area or volume of element k.
func (m *Mesh) ElementVolume(k int) (vol float64) {
	var (
		verts = m.Elements[k]
		p     = make([]r3.Vec, len(verts))
	)
	for i, v := range verts {
		p[i] = m.Vertex(v)
	}
	switch m.ElementTypes[k] {
	case Line:
		vol = r3.Norm(r3.Sub(p[1], p[0]))
	case Triangle:
		vol = triArea(p[0], p[1], p[2])
	case Quad:
		vol = quadArea(p)
	case Tet:
		vol = tetVolume(p[0], p[1], p[2], p[3])
	case Hex:
		vol = hexVolume(p)
	case Prism:
		vol = tetVolume(p[0], p[1], p[2], p[3]) +
			tetVolume(p[1], p[2], p[3], p[4]) +
			tetVolume(p[2], p[3], p[4], p[5])
	case Pyramid:
		vol = tetVolume(p[0], p[1], p[2], p[4]) +
			tetVolume(p[0], p[2], p[3], p[4])
	}
	return
}

func triArea(a, b, c r3.Vec) float64 {
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
}

func tetVolume(a, b, c, d r3.Vec) float64 {
	return math.Abs(r3.Dot(r3.Sub(b, a), r3.Cross(r3.Sub(c, a), r3.Sub(d, a)))) / 6
}

// quadArea integrates the bilinear map Jacobian with 2x2 Gauss points, exact
// for planar quadrilaterals.
func quadArea(p []r3.Vec) (area float64) {
	g := [2]float64{0.5 - 0.5/math.Sqrt(3), 0.5 + 0.5/math.Sqrt(3)}
	for _, s := range g {
		for _, t := range g {
			ds := r3.Add(r3.Scale(1-t, r3.Sub(p[1], p[0])), r3.Scale(t, r3.Sub(p[2], p[3])))
			dt := r3.Add(r3.Scale(1-s, r3.Sub(p[3], p[0])), r3.Scale(s, r3.Sub(p[2], p[1])))
			area += 0.25 * r3.Norm(r3.Cross(ds, dt))
		}
	}
	return
}

// hexVolume integrates the trilinear map Jacobian with 2x2x2 Gauss points.
func hexVolume(p []r3.Vec) (vol float64) {
	var (
		g = [2]float64{0.5 - 0.5/math.Sqrt(3), 0.5 + 0.5/math.Sqrt(3)}
		// reference corners in gmsh ordering
		ref = [8][3]float64{
			{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
			{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
		}
	)
	lin := func(c, x float64) float64 {
		if c == 0 {
			return 1 - x
		}
		return x
	}
	dlin := func(c float64) float64 {
		if c == 0 {
			return -1
		}
		return 1
	}
	for _, r := range g {
		for _, s := range g {
			for _, t := range g {
				var dr, ds, dt r3.Vec
				for i, c := range ref {
					dr = r3.Add(dr, r3.Scale(dlin(c[0])*lin(c[1], s)*lin(c[2], t), p[i]))
					ds = r3.Add(ds, r3.Scale(lin(c[0], r)*dlin(c[1])*lin(c[2], t), p[i]))
					dt = r3.Add(dt, r3.Scale(lin(c[0], r)*lin(c[1], s)*dlin(c[2]), p[i]))
				}
				vol += 0.125 * math.Abs(r3.Dot(dr, r3.Cross(ds, dt)))
			}
		}
	}
	return
}
