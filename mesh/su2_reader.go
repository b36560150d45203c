package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// su2Types maps SU2 (VTK) element type numbers to element types.
var su2Types = map[int]ElementType{
	3:  Line,
	5:  Triangle,
	9:  Quad,
	10: Tet,
	12: Hex,
	13: Prism,
	14: Pyramid,
}

// ReadSU2 reads an SU2 native format file
func ReadSU2(filename string) (*Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseSU2(file)
}

// ParseSU2 reads an SU2 native mesh. Markers are numbered as boundary
// attributes 1, 2, ... in the order they appear, and their names are kept
// in BoundaryTags.
func ParseSU2(r io.Reader) (*Mesh, error) {
	var (
		mesh    = NewMesh()
		scanner = bufio.NewScanner(r)
		ndime   int
	)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	// next returns the next line that is neither blank nor a comment
	next := func() (string, bool) {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "%") {
				continue
			}
			return line, true
		}
		return "", false
	}
	keyValue := func(line, key string) (val int, err error) {
		fields := strings.Fields(strings.TrimPrefix(line, key))
		if len(fields) == 0 || !strings.HasPrefix(line, key) {
			err = fmt.Errorf("expected %s, got %q", key, line)
			return
		}
		if val, err = strconv.Atoi(fields[0]); err != nil {
			err = fmt.Errorf("failed to parse %s %q: %w", key, line, err)
		}
		return
	}
	readElement := func(line string) (et ElementType, verts []int, err error) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			err = fmt.Errorf("malformed element line %q", line)
			return
		}
		su2Type, _ := strconv.Atoi(fields[0])
		var known bool
		if et, known = su2Types[su2Type]; !known {
			err = fmt.Errorf("unsupported SU2 element type %d", su2Type)
			return
		}
		numNodes := et.NumVertices()
		if len(fields) < numNodes+1 {
			err = fmt.Errorf("element line %q has too few nodes", line)
			return
		}
		verts = make([]int, numNodes)
		for j := 0; j < numNodes; j++ {
			if verts[j], err = strconv.Atoi(fields[1+j]); err != nil {
				return
			}
		}
		return
	}

	for {
		line, ok := next()
		if !ok {
			break
		}
		switch {
		case strings.HasPrefix(line, "NDIME="):
			var err error
			if ndime, err = keyValue(line, "NDIME="); err != nil {
				return nil, err
			}
			if ndime < 1 || ndime > 3 {
				return nil, fmt.Errorf("invalid NDIME=%d", ndime)
			}

		case strings.HasPrefix(line, "NELEM="):
			nelem, err := keyValue(line, "NELEM=")
			if err != nil {
				return nil, err
			}
			mesh.Elements = make([][]int, 0, nelem)
			mesh.ElementTypes = make([]ElementType, 0, nelem)
			mesh.ElementTags = make([]int, 0, nelem)
			for i := 0; i < nelem; i++ {
				text, ok := next()
				if !ok {
					return nil, fmt.Errorf("unexpected end of file reading elements")
				}
				et, verts, err := readElement(text)
				if err != nil {
					return nil, err
				}
				mesh.Elements = append(mesh.Elements, verts)
				mesh.ElementTypes = append(mesh.ElementTypes, et)
				mesh.ElementTags = append(mesh.ElementTags, 0)
			}

		case strings.HasPrefix(line, "NPOIN="):
			npoin, err := keyValue(line, "NPOIN=")
			if err != nil {
				return nil, err
			}
			if ndime == 0 {
				return nil, fmt.Errorf("NPOIN found before NDIME")
			}
			mesh.Vertices = make([][]float64, npoin)
			for i := 0; i < npoin; i++ {
				text, ok := next()
				if !ok {
					return nil, fmt.Errorf("unexpected end of file reading points")
				}
				fields := strings.Fields(text)
				if len(fields) < ndime {
					return nil, fmt.Errorf("malformed point line %q", text)
				}
				coords := make([]float64, 3)
				for j := 0; j < ndime; j++ {
					if coords[j], err = strconv.ParseFloat(fields[j], 64); err != nil {
						return nil, fmt.Errorf("failed to parse point %d: %w", i, err)
					}
				}
				// Point index is optional and follows the coordinates
				ptID := i
				if len(fields) > ndime {
					if id, err := strconv.Atoi(fields[ndime]); err == nil && id >= 0 && id < npoin {
						ptID = id
					}
				}
				mesh.Vertices[ptID] = coords
			}

		case strings.HasPrefix(line, "NMARK="):
			nmark, err := keyValue(line, "NMARK=")
			if err != nil {
				return nil, err
			}
			for i := 0; i < nmark; i++ {
				text, _ := next()
				if !strings.HasPrefix(text, "MARKER_TAG=") {
					return nil, fmt.Errorf("expected MARKER_TAG, got %q", text)
				}
				attr := i + 1
				mesh.BoundaryTags[attr] = strings.TrimSpace(strings.TrimPrefix(text, "MARKER_TAG="))
				text, _ = next()
				nMarkerElems, err := keyValue(text, "MARKER_ELEMS=")
				if err != nil {
					return nil, err
				}
				for j := 0; j < nMarkerElems; j++ {
					text, ok := next()
					if !ok {
						return nil, fmt.Errorf("unexpected end of file reading marker %d", attr)
					}
					fields := strings.Fields(text)
					var verts []int
					if len(fields) > 1 && fields[0] == "1" { // VTK vertex, the end of a 1-D mesh
						v, _ := strconv.Atoi(fields[1])
						verts = []int{v}
					} else if _, verts, err = readElement(text); err != nil {
						return nil, err
					}
					mesh.BoundaryFaces = append(mesh.BoundaryFaces,
						BoundaryFace{Vertices: verts, Attribute: attr})
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	for i, v := range mesh.Vertices {
		if v == nil {
			return nil, fmt.Errorf("point %d missing from file", i)
		}
	}
	if err := mesh.Finalize(); err != nil {
		return nil, err
	}
	return mesh, nil
}
