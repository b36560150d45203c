package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// gmshTypes maps Gmsh element type numbers to element types. Higher order
// elements keep only their corner nodes.
var gmshTypes = map[int]ElementType{
	1:  Line,
	2:  Triangle,
	3:  Quad,
	4:  Tet,
	5:  Hex,
	6:  Prism,
	7:  Pyramid,
	8:  Line,     // 3-node line
	9:  Triangle, // 6-node triangle
	10: Quad,     // 9-node quad
	11: Tet,      // 10-node tet
	12: Hex,      // 27-node hex
	13: Prism,    // 18-node prism
	14: Pyramid,  // 14-node pyramid
	16: Quad,     // 8-node quad
	17: Hex,      // 20-node hex
}

// ReadGmsh reads a Gmsh format file (version 2.2)
func ReadGmsh(filename string) (*Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseGmsh(file)
}

type gmshElement struct {
	etype   ElementType
	physTag int
	nodes   []int // node IDs as written in the file
}

// ParseGmsh reads a Gmsh 2.2 ASCII mesh. Elements of the highest dimension
// present become cells; elements one dimension lower become boundary faces
// whose attribute is their physical tag.
func ParseGmsh(r io.Reader) (*Mesh, error) {
	var (
		mesh     = NewMesh()
		scanner  = bufio.NewScanner(r)
		nodeIdx  = make(map[int]int)
		elements []gmshElement
		maxDim   int
		version  string
	)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "$MeshFormat":
			header, _ := next()
			parts := strings.Fields(header)
			if len(parts) > 0 {
				version = parts[0]
			}
			if len(parts) > 1 && parts[1] != "0" {
				return nil, fmt.Errorf("binary Gmsh files are not supported")
			}
			if !strings.HasPrefix(version, "2") {
				return nil, fmt.Errorf("Gmsh format version %s not supported, need 2.2", version)
			}
			skipTo(scanner, "$EndMeshFormat")

		case "$Nodes":
			header, _ := next()
			numNodes, err := strconv.Atoi(header)
			if err != nil {
				return nil, fmt.Errorf("failed to parse node count %q: %w", header, err)
			}
			mesh.Vertices = make([][]float64, 0, numNodes)
			for i := 0; i < numNodes; i++ {
				text, ok := next()
				if !ok {
					return nil, fmt.Errorf("unexpected end of file in $Nodes")
				}
				fields := strings.Fields(text)
				if len(fields) < 4 {
					return nil, fmt.Errorf("malformed node line %q", text)
				}
				id, err := strconv.Atoi(fields[0])
				if err != nil {
					return nil, fmt.Errorf("failed to parse node id %q: %w", fields[0], err)
				}
				coords := make([]float64, 3)
				for d := 0; d < 3; d++ {
					if coords[d], err = strconv.ParseFloat(fields[1+d], 64); err != nil {
						return nil, fmt.Errorf("failed to parse node %d coordinate: %w", id, err)
					}
				}
				nodeIdx[id] = len(mesh.Vertices)
				mesh.Vertices = append(mesh.Vertices, coords)
			}
			skipTo(scanner, "$EndNodes")

		case "$Elements":
			header, _ := next()
			numElems, err := strconv.Atoi(header)
			if err != nil {
				return nil, fmt.Errorf("failed to parse element count %q: %w", header, err)
			}
			for i := 0; i < numElems; i++ {
				text, ok := next()
				if !ok {
					return nil, fmt.Errorf("unexpected end of file in $Elements")
				}
				fields := strings.Fields(text)
				if len(fields) < 3 {
					continue
				}
				gtype, _ := strconv.Atoi(fields[1])
				etype, known := gmshTypes[gtype]
				if !known {
					continue // points and unsupported types
				}
				numTags, _ := strconv.Atoi(fields[2])
				physTag := 0
				if numTags > 0 && len(fields) > 3 {
					physTag, _ = strconv.Atoi(fields[3])
				}
				offset := 3 + numTags
				numNodes := etype.NumVertices()
				if len(fields) < offset+numNodes {
					return nil, fmt.Errorf("element line %q has too few nodes", text)
				}
				nodes := make([]int, numNodes)
				for j := 0; j < numNodes; j++ {
					nodes[j], _ = strconv.Atoi(fields[offset+j])
				}
				elements = append(elements, gmshElement{etype: etype, physTag: physTag, nodes: nodes})
				if etype.Dimension() > maxDim {
					maxDim = etype.Dimension()
				}
			}
			skipTo(scanner, "$EndElements")

		case "$PhysicalNames":
			header, _ := next()
			numPhysical, _ := strconv.Atoi(header)
			for i := 0; i < numPhysical; i++ {
				text, _ := next()
				fields := strings.Fields(text)
				if len(fields) >= 3 {
					tag, _ := strconv.Atoi(fields[1])
					mesh.BoundaryTags[tag] = strings.Trim(strings.Join(fields[2:], " "), "\"")
				}
			}
			skipTo(scanner, "$EndPhysicalNames")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for _, el := range elements {
		verts := make([]int, len(el.nodes))
		for j, id := range el.nodes {
			idx, ok := nodeIdx[id]
			if !ok {
				return nil, fmt.Errorf("element references unknown node %d", id)
			}
			verts[j] = idx
		}
		switch el.etype.Dimension() {
		case maxDim:
			mesh.Elements = append(mesh.Elements, verts)
			mesh.ElementTypes = append(mesh.ElementTypes, el.etype)
			mesh.ElementTags = append(mesh.ElementTags, el.physTag)
		case maxDim - 1:
			mesh.BoundaryFaces = append(mesh.BoundaryFaces,
				BoundaryFace{Vertices: verts, Attribute: el.physTag})
		}
	}
	if maxDim == 1 {
		// Gmsh writes the end points of 1-D meshes as point elements; the
		// ends get attributes 1 and 2 from Finalize and reorderLineEnds.
		mesh.BoundaryFaces = nil
	}

	if err := mesh.Finalize(); err != nil {
		return nil, err
	}
	if maxDim == 1 {
		reorderLineEnds(mesh)
	}
	return mesh, nil
}

// reorderLineEnds gives the leftmost end of a 1-D mesh attribute 1 and the
// rightmost attribute 2.
func reorderLineEnds(m *Mesh) {
	if len(m.BoundaryFaces) != 2 {
		return
	}
	a, b := &m.BoundaryFaces[0], &m.BoundaryFaces[1]
	if m.Vertices[a.Vertices[0]][0] <= m.Vertices[b.Vertices[0]][0] {
		a.Attribute, b.Attribute = 1, 2
	} else {
		a.Attribute, b.Attribute = 2, 1
	}
}

func skipTo(scanner *bufio.Scanner, marker string) {
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == marker {
			return
		}
	}
}
