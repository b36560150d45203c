package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Gambit element type codes
const (
	gambitQuad     = 2
	gambitTriangle = 3
	gambitTet      = 6
)

// gambitFaces lists the local vertices of each numbered face, zero based.
var gambitFaces = map[ElementType][][]int{
	Triangle: {{0, 1}, {1, 2}, {2, 0}},
	Quad:     {{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	Tet:      {{0, 1, 2}, {0, 1, 3}, {1, 2, 3}, {0, 2, 3}},
}

// ReadGambit reads a Gambit neutral (.neu) file of triangles, quads or
// tets. Element groups become element tags; boundary condition sets are
// numbered as attributes 1, 2, ... in file order and named by their title.
func ReadGambit(filename string) (*Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open file %s: %w", filename, err)
	}
	defer file.Close()
	return ParseGambit(file)
}

func ParseGambit(r io.Reader) (m *Mesh, err error) {
	var (
		reader = bufio.NewReader(r)
		line   string
	)
	// Skip first six lines
	if err = skipLines(6, reader); err != nil {
		return
	}
	if line, err = getLine(reader); err != nil {
		return
	}
	var Nv, K, Ngrps, Nbcs, Nsd, dum int
	if n, serr := fmt.Sscanf(line, "%d %d %d %d %d %d", &Nv, &K, &Ngrps, &Nbcs, &Nsd, &dum); serr != nil || n < 6 {
		return nil, fmt.Errorf("malformed Gambit header %q", line)
	}
	if Nsd < 2 || Nsd > 3 {
		return nil, fmt.Errorf("space dimensions not 2 or 3: %d", Nsd)
	}
	if err = skipLines(2, reader); err != nil {
		return
	}

	m = NewMesh()
	m.Vertices = make([][]float64, Nv)
	for i := 0; i < Nv; i++ {
		if line, err = getLine(reader); err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) < 1+Nsd {
			return nil, fmt.Errorf("malformed node line %q", line)
		}
		ind, perr := strconv.Atoi(fields[0])
		if perr != nil || ind < 1 || ind > Nv {
			return nil, fmt.Errorf("bad node index in %q", line)
		}
		coords := make([]float64, 3)
		for d := 0; d < Nsd; d++ {
			if coords[d], err = strconv.ParseFloat(fields[1+d], 64); err != nil {
				return nil, fmt.Errorf("failed to parse node %d coordinate: %w", ind, err)
			}
		}
		m.Vertices[ind-1] = coords
	}
	if err = skipLines(2, reader); err != nil {
		return
	}

	m.Elements = make([][]int, K)
	m.ElementTypes = make([]ElementType, K)
	m.ElementTags = make([]int, K)
	for i := 0; i < K; i++ {
		if line, err = getLine(reader); err != nil {
			return nil, err
		}
		ints, perr := atois(strings.Fields(line))
		if perr != nil || len(ints) < 3 {
			return nil, fmt.Errorf("malformed element line %q", line)
		}
		ind, typ, nnodes := ints[0], ints[1], ints[2]
		var et ElementType
		switch typ {
		case gambitTriangle:
			et = Triangle
		case gambitQuad:
			et = Quad
		case gambitTet:
			et = Tet
		default:
			return nil, fmt.Errorf("%w: Gambit element type %d", ErrUnsupportedFormat, typ)
		}
		if ind < 1 || ind > K || nnodes != et.NumVertices() || len(ints) < 3+nnodes {
			return nil, fmt.Errorf("malformed element line %q", line)
		}
		verts := make([]int, nnodes)
		for j := range verts {
			verts[j] = ints[3+j] - 1
		}
		m.Elements[ind-1], m.ElementTypes[ind-1] = verts, et
	}
	if err = skipLines(2, reader); err != nil {
		return
	}

	for g := 0; g < Ngrps; g++ {
		/*
		   GROUP:           1 ELEMENTS:        977 MATERIAL:      1.000 NFLAGS:          0
		                     epsilon: 1.000
		          0
		*/
		if line, err = getLine(reader); err != nil {
			return nil, err
		}
		var (
			gn, elnum int
			matval    float64
		)
		if n, serr := fmt.Sscanf(line, "GROUP: %d ELEMENTS: %d MATERIAL: %f", &gn, &elnum, &matval); serr != nil || n < 3 {
			return nil, fmt.Errorf("malformed element group header %q", line)
		}
		if err = skipLines(2, reader); err != nil {
			return
		}
		for read := 0; read < elnum; {
			if line, err = getLine(reader); err != nil {
				return nil, err
			}
			ints, perr := atois(strings.Fields(line))
			if perr != nil {
				return nil, fmt.Errorf("malformed element group line %q", line)
			}
			for _, k := range ints {
				if k < 1 || k > K {
					return nil, fmt.Errorf("element group %d references element %d", gn, k)
				}
				m.ElementTags[k-1] = gn
			}
			read += len(ints)
		}
		if err = skipLines(2, reader); err != nil {
			return
		}
	}

	for b := 0; b < Nbcs; b++ {
		// The section header of every set after the first
		if b != 0 {
			if err = skipLines(1, reader); err != nil {
				return
			}
		}
		if line, err = getLine(reader); err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("malformed boundary condition header %q", line)
		}
		numFaces, perr := strconv.Atoi(fields[2])
		if perr != nil {
			return nil, fmt.Errorf("malformed boundary condition header %q", line)
		}
		attr := b + 1
		m.BoundaryTags[attr] = fields[0]
		for f := 0; f < numFaces; f++ {
			if line, err = getLine(reader); err != nil {
				return nil, err
			}
			ints, perr := atois(strings.Fields(line))
			if perr != nil || len(ints) < 3 || ints[0] < 1 || ints[0] > K {
				return nil, fmt.Errorf("malformed boundary face line %q", line)
			}
			k, face := ints[0]-1, ints[2]-1
			local := gambitFaces[m.ElementTypes[k]]
			if face < 0 || face >= len(local) {
				return nil, fmt.Errorf("element %d has no face %d", k+1, face+1)
			}
			verts := make([]int, len(local[face]))
			for j, lv := range local[face] {
				verts[j] = m.Elements[k][lv]
			}
			m.BoundaryFaces = append(m.BoundaryFaces, BoundaryFace{Vertices: verts, Attribute: attr})
		}
		if err = skipLines(1, reader); err != nil {
			return
		}
	}
	for i, v := range m.Vertices {
		if v == nil {
			return nil, fmt.Errorf("node %d missing from the coordinates", i+1)
		}
	}
	if err = m.Finalize(); err != nil {
		return nil, err
	}
	return
}

func atois(fields []string) (ints []int, err error) {
	ints = make([]int, len(fields))
	for i, f := range fields {
		if ints[i], err = strconv.Atoi(f); err != nil {
			return
		}
	}
	return
}

func getLine(reader *bufio.Reader) (line string, err error) {
	line, err = reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && len(line) != 0 {
			err = nil
		} else {
			if err == io.EOF {
				err = fmt.Errorf("early end of file")
			}
			return
		}
	}
	line = strings.TrimRight(line, "\r\n") // Strip away the newline
	return
}

func skipLines(n int, reader *bufio.Reader) (err error) {
	for i := 0; i < n; i++ {
		if _, err = getLine(reader); err != nil {
			return
		}
	}
	return
}
