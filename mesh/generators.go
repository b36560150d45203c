package mesh

import "fmt"

// NewLineMesh returns n uniform segments on [x0, x1]. The left end has
// boundary attribute 1 and the right end attribute 2.
func NewLineMesh(n int, x0, x1 float64) (m *Mesh, err error) {
	if n < 1 || !(x1 > x0) {
		err = fmt.Errorf("invalid line mesh: n = %d, [%v, %v]", n, x0, x1)
		return
	}
	m = NewMesh()
	h := (x1 - x0) / float64(n)
	for i := 0; i <= n; i++ {
		m.Vertices = append(m.Vertices, []float64{x0 + float64(i)*h, 0, 0})
	}
	// Keep the right end exact
	m.Vertices[n][0] = x1
	for i := 0; i < n; i++ {
		m.Elements = append(m.Elements, []int{i, i + 1})
		m.ElementTypes = append(m.ElementTypes, Line)
	}
	m.BoundaryFaces = []BoundaryFace{
		{Vertices: []int{0}, Attribute: 1},
		{Vertices: []int{n}, Attribute: 2},
	}
	m.BoundaryTags[1] = "left"
	m.BoundaryTags[2] = "right"
	err = m.Finalize()
	return
}

// NewRectangleMesh returns an nx by ny grid on [min, max]. Each cell is a
// Quad, or two Triangles split along the diagonal from its lower left
// corner. Boundary attributes are 1 bottom, 2 right, 3 top and 4 left.
func NewRectangleMesh(nx, ny int, min, max [2]float64, et ElementType) (m *Mesh, err error) {
	if nx < 1 || ny < 1 || !(max[0] > min[0]) || !(max[1] > min[1]) {
		err = fmt.Errorf("invalid rectangle mesh: %d x %d on %v..%v", nx, ny, min, max)
		return
	}
	if et != Quad && et != Triangle {
		err = fmt.Errorf("rectangle mesh requires Quad or Triangle elements, got %s", et)
		return
	}
	m = NewMesh()
	var (
		x   = gridCoords(nx, min[0], max[0])
		y   = gridCoords(ny, min[1], max[1])
		vid = func(i, j int) int { return j*(nx+1) + i }
	)
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			m.Vertices = append(m.Vertices, []float64{x[i], y[j], 0})
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			v0, v1, v2, v3 := vid(i, j), vid(i+1, j), vid(i+1, j+1), vid(i, j+1)
			if et == Quad {
				m.Elements = append(m.Elements, []int{v0, v1, v2, v3})
				m.ElementTypes = append(m.ElementTypes, Quad)
				continue
			}
			m.Elements = append(m.Elements, []int{v0, v1, v2}, []int{v0, v2, v3})
			m.ElementTypes = append(m.ElementTypes, Triangle, Triangle)
		}
	}
	for i := 0; i < nx; i++ {
		m.BoundaryFaces = append(m.BoundaryFaces,
			BoundaryFace{Vertices: []int{vid(i, 0), vid(i+1, 0)}, Attribute: 1},
			BoundaryFace{Vertices: []int{vid(i, ny), vid(i+1, ny)}, Attribute: 3},
		)
	}
	for j := 0; j < ny; j++ {
		m.BoundaryFaces = append(m.BoundaryFaces,
			BoundaryFace{Vertices: []int{vid(nx, j), vid(nx, j+1)}, Attribute: 2},
			BoundaryFace{Vertices: []int{vid(0, j), vid(0, j+1)}, Attribute: 4},
		)
	}
	for attr, name := range map[int]string{1: "bottom", 2: "right", 3: "top", 4: "left"} {
		m.BoundaryTags[attr] = name
	}
	err = m.Finalize()
	return
}

// NewBoxMesh returns an nx by ny by nz grid on [min, max] of Hex cells, or
// of six Tets per cell (Kuhn subdivision, conforming across cells).
// Boundary attributes are 1 z=min, 2 y=min, 3 x=max, 4 y=max, 5 x=min and
// 6 z=max.
func NewBoxMesh(nx, ny, nz int, min, max [3]float64, et ElementType) (m *Mesh, err error) {
	if nx < 1 || ny < 1 || nz < 1 {
		err = fmt.Errorf("invalid box mesh: %d x %d x %d", nx, ny, nz)
		return
	}
	for d := 0; d < 3; d++ {
		if !(max[d] > min[d]) {
			err = fmt.Errorf("invalid box mesh bounds: %v..%v", min, max)
			return
		}
	}
	if et != Hex && et != Tet {
		err = fmt.Errorf("box mesh requires Hex or Tet elements, got %s", et)
		return
	}
	m = NewMesh()
	var (
		x   = gridCoords(nx, min[0], max[0])
		y   = gridCoords(ny, min[1], max[1])
		z   = gridCoords(nz, min[2], max[2])
		vid = func(i, j, k int) int { return (k*(ny+1)+j)*(nx+1) + i }
	)
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				m.Vertices = append(m.Vertices, []float64{x[i], y[j], z[k]})
			}
		}
	}
	// Kuhn paths from corner (0,0,0) to (1,1,1), one tet per axis ordering
	perms := [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				if et == Hex {
					m.Elements = append(m.Elements, []int{
						vid(i, j, k), vid(i+1, j, k), vid(i+1, j+1, k), vid(i, j+1, k),
						vid(i, j, k+1), vid(i+1, j, k+1), vid(i+1, j+1, k+1), vid(i, j+1, k+1),
					})
					m.ElementTypes = append(m.ElementTypes, Hex)
					continue
				}
				for _, perm := range perms {
					c := [3]int{i, j, k}
					tet := []int{vid(c[0], c[1], c[2])}
					for _, axis := range perm {
						c[axis]++
						tet = append(tet, vid(c[0], c[1], c[2]))
					}
					m.Elements = append(m.Elements, tet)
					m.ElementTypes = append(m.ElementTypes, Tet)
				}
			}
		}
	}
	m.BoundaryTags = map[int]string{1: "zmin", 2: "ymin", 3: "xmax", 4: "ymax", 5: "xmin", 6: "zmax"}
	if err = m.Finalize(); err != nil {
		return
	}
	// Exterior faces all received attribute 1; classify them by position.
	for n := range m.BoundaryFaces {
		bf := &m.BoundaryFaces[n]
		bf.Attribute = boxSide(m, bf.Vertices, min, max)
	}
	return
}

func boxSide(m *Mesh, verts []int, min, max [3]float64) int {
	on := func(d int, val float64) bool {
		for _, v := range verts {
			if m.Vertices[v][d] != val {
				return false
			}
		}
		return true
	}
	switch {
	case on(2, min[2]):
		return 1
	case on(1, min[1]):
		return 2
	case on(0, max[0]):
		return 3
	case on(1, max[1]):
		return 4
	case on(0, min[0]):
		return 5
	default:
		return 6
	}
}

func gridCoords(n int, x0, x1 float64) (x []float64) {
	x = make([]float64, n+1)
	h := (x1 - x0) / float64(n)
	for i := range x {
		x[i] = x0 + float64(i)*h
	}
	x[n] = x1
	return
}
