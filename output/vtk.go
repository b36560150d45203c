// Package output writes distance results: VTK legacy files for ParaView and
// VisIt, PNG heat maps of 2-D fields, and a SQLite store of runs.
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/notargets/heatdist/mesh"
)

// PointData is a named nodal field, one value per mesh vertex.
type PointData struct {
	Name string
	Data []float64
}

var vtkCellType = map[mesh.ElementType]int{
	mesh.Line:     3,
	mesh.Triangle: 5,
	mesh.Quad:     9,
	mesh.Tet:      10,
	mesh.Hex:      12,
	mesh.Prism:    13,
	mesh.Pyramid:  14,
}

// WriteVTK writes m and its point data as an ASCII legacy unstructured grid.
func WriteVTK(w io.Writer, m *mesh.Mesh, title string, fields ...PointData) (err error) {
	for _, f := range fields {
		if len(f.Data) != m.NumVertices {
			return fmt.Errorf("point data %q has %d values, mesh has %d vertices",
				f.Name, len(f.Data), m.NumVertices)
		}
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# vtk DataFile Version 3.0\n%s\nASCII\nDATASET UNSTRUCTURED_GRID\n", title)
	fmt.Fprintf(bw, "POINTS %d double\n", m.NumVertices)
	for _, v := range m.Vertices {
		var x [3]float64
		copy(x[:], v)
		fmt.Fprintf(bw, "%.16g %.16g %.16g\n", x[0], x[1], x[2])
	}
	var size int
	for _, verts := range m.Elements {
		size += len(verts) + 1
	}
	fmt.Fprintf(bw, "CELLS %d %d\n", m.NumElements, size)
	for _, verts := range m.Elements {
		fmt.Fprintf(bw, "%d", len(verts))
		for _, v := range verts {
			fmt.Fprintf(bw, " %d", v)
		}
		fmt.Fprintln(bw)
	}
	fmt.Fprintf(bw, "CELL_TYPES %d\n", m.NumElements)
	for _, et := range m.ElementTypes {
		fmt.Fprintf(bw, "%d\n", vtkCellType[et])
	}
	if len(fields) > 0 {
		fmt.Fprintf(bw, "POINT_DATA %d\n", m.NumVertices)
	}
	for _, f := range fields {
		fmt.Fprintf(bw, "SCALARS %s double 1\nLOOKUP_TABLE default\n", f.Name)
		for _, val := range f.Data {
			fmt.Fprintf(bw, "%.16g\n", val)
		}
	}
	if len(m.EToP) == m.NumElements {
		fmt.Fprintf(bw, "CELL_DATA %d\nSCALARS partition int 1\nLOOKUP_TABLE default\n", m.NumElements)
		for _, p := range m.EToP {
			fmt.Fprintf(bw, "%d\n", p)
		}
	}
	return bw.Flush()
}

func WriteVTKFile(filename string, m *mesh.Mesh, title string, fields ...PointData) (err error) {
	var file *os.File
	if file, err = os.Create(filename); err != nil {
		return
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteVTK(file, m, title, fields...)
}
