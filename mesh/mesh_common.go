package mesh

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for mesh files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported mesh format")

// ElementType represents different element types
type ElementType int

const (
	Line ElementType = iota
	Triangle
	Quad
	Tet
	Hex
	Prism
	Pyramid
)

func (e ElementType) String() string {
	return [...]string{"Line", "Triangle", "Quad", "Tet", "Hex", "Prism", "Pyramid"}[e]
}

// Dimension is the topological dimension of the element.
func (e ElementType) Dimension() int {
	switch e {
	case Line:
		return 1
	case Triangle, Quad:
		return 2
	default:
		return 3
	}
}

// NumVertices is the number of corner vertices of a linear element.
func (e ElementType) NumVertices() int {
	return [...]int{2, 3, 4, 4, 8, 6, 5}[e]
}

// Face represents a face of an element
type Face struct {
	Vertices []int // Sorted vertex indices
	Element  int   // Parent element
	LocalID  int   // Local face ID within element
}

// BoundaryFace is an exterior face carrying a boundary attribute.
type BoundaryFace struct {
	Vertices  []int // Sorted vertex indices
	Element   int   // Owning element
	Attribute int   // Boundary attribute, 1 based
}

// Mesh is an unstructured mesh of linear elements with face connectivity
// and attributed boundary faces.
type Mesh struct {
	// Geometry
	Vertices [][]float64 // Vertex coordinates [nvertices][3]

	// Element data
	Elements     [][]int       // Element to vertex connectivity [nelems][nverts_per_elem]
	ElementTypes []ElementType // Element type for each element
	ElementTags  []int         // Physical group/tag for each element

	// Connectivity (built during initialization)
	EToE [][]int // Element to element connectivity [nelems][nfaces_per_elem]
	EToF [][]int // Element to face connectivity [nelems][nfaces_per_elem]
	EToP []int   // Element to partition mapping (set after partitioning)

	// Face data
	Faces         []Face         // All unique faces in mesh
	FaceMap       map[string]int // Map from sorted vertex string to face ID
	BoundaryFaces []BoundaryFace
	BoundaryTags  map[int]string // Boundary attribute names, when the file provides them

	// Mesh statistics
	NumElements int
	NumVertices int
	NumFaces    int
	Dim         int
}

// NewMesh creates an empty mesh
func NewMesh() *Mesh {
	return &Mesh{
		FaceMap:      make(map[string]int),
		BoundaryTags: make(map[int]string),
	}
}

// ReadMeshFile reads a mesh file based on extension
func ReadMeshFile(filename string) (*Mesh, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".msh":
		return ReadGmsh(filename)
	case ".su2":
		return ReadSU2(filename)
	case ".neu":
		return ReadGambit(filename)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func faceKey(sorted []int) string {
	return fmt.Sprintf("%v", sorted)
}

func sortedCopy(verts []int) (sorted []int) {
	sorted = make([]int, len(verts))
	copy(sorted, verts)
	sort.Ints(sorted)
	return
}

// Finalize sets the mesh counts and dimension, builds connectivity and
// attributes every exterior face. Exterior faces without an attribute read
// from the file get attribute 1.
func (m *Mesh) Finalize() (err error) {
	m.NumElements = len(m.Elements)
	m.NumVertices = len(m.Vertices)
	if m.NumElements == 0 {
		err = fmt.Errorf("mesh has no elements")
		return
	}
	if len(m.ElementTags) != m.NumElements {
		m.ElementTags = make([]int, m.NumElements)
	}
	m.Dim = 0
	for k, et := range m.ElementTypes {
		if et.Dimension() > m.Dim {
			m.Dim = et.Dimension()
		}
		if len(m.Elements[k]) != et.NumVertices() {
			err = fmt.Errorf("element %d of type %s has %d vertices, expected %d",
				k, et, len(m.Elements[k]), et.NumVertices())
			return
		}
		for _, v := range m.Elements[k] {
			if v < 0 || v >= m.NumVertices {
				err = fmt.Errorf("element %d references vertex %d, mesh has %d vertices",
					k, v, m.NumVertices)
				return
			}
		}
	}
	for k, et := range m.ElementTypes {
		if et.Dimension() != m.Dim {
			err = fmt.Errorf("element %d is %d-dimensional in a %d-dimensional mesh",
				k, et.Dimension(), m.Dim)
			return
		}
	}
	m.BuildConnectivity()
	m.attributeBoundary()
	return
}

// BuildConnectivity matches element faces by their sorted vertex lists.
// EToE and EToF hold -1 on exterior faces.
func (m *Mesh) BuildConnectivity() {
	m.EToE = make([][]int, m.NumElements)
	m.EToF = make([][]int, m.NumElements)
	m.Faces = m.Faces[:0]
	m.FaceMap = make(map[string]int)
	for k := 0; k < m.NumElements; k++ {
		fv := GetElementFaces(m.ElementTypes[k], m.Elements[k])
		m.EToE[k], m.EToF[k] = make([]int, len(fv)), make([]int, len(fv))
		for lf, verts := range fv {
			sorted := sortedCopy(verts)
			key := faceKey(sorted)
			fid, shared := m.FaceMap[key]
			if !shared {
				fid = len(m.Faces)
				m.Faces = append(m.Faces, Face{Vertices: sorted, Element: k, LocalID: lf})
				m.FaceMap[key] = fid
				m.EToE[k][lf] = -1
			} else {
				owner := m.Faces[fid]
				m.EToE[k][lf] = owner.Element
				m.EToE[owner.Element][owner.LocalID] = k
			}
			m.EToF[k][lf] = fid
		}
	}
	m.NumFaces = len(m.Faces)
}

// attributeBoundary keeps the boundary faces read from file that match an
// exterior face, then adds every remaining exterior face with attribute 1.
func (m *Mesh) attributeBoundary() {
	var (
		tagged = make(map[string]int)
		faces  []BoundaryFace
	)
	for _, bf := range m.BoundaryFaces {
		tagged[faceKey(sortedCopy(bf.Vertices))] = bf.Attribute
	}
	for elemID := 0; elemID < m.NumElements; elemID++ {
		for localFaceID, neighbor := range m.EToE[elemID] {
			if neighbor >= 0 {
				continue
			}
			face := m.Faces[m.EToF[elemID][localFaceID]]
			attr, ok := tagged[faceKey(face.Vertices)]
			if !ok || attr < 1 {
				attr = 1
			}
			faces = append(faces, BoundaryFace{
				Vertices:  face.Vertices,
				Element:   elemID,
				Attribute: attr,
			})
		}
	}
	m.BoundaryFaces = faces
}

// BoundaryAttributes returns the sorted distinct boundary attributes.
func (m *Mesh) BoundaryAttributes() (attrs []int) {
	seen := make(map[int]bool)
	for _, bf := range m.BoundaryFaces {
		if !seen[bf.Attribute] {
			seen[bf.Attribute] = true
			attrs = append(attrs, bf.Attribute)
		}
	}
	sort.Ints(attrs)
	return
}

// GetElementFaces returns the face vertices for each element type
func GetElementFaces(elemType ElementType, vertices []int) [][]int {
	switch elemType {
	case Line:
		return [][]int{
			{vertices[0]},
			{vertices[1]},
		}
	case Triangle:
		return [][]int{
			{vertices[0], vertices[1]},
			{vertices[1], vertices[2]},
			{vertices[2], vertices[0]},
		}
	case Quad:
		return [][]int{
			{vertices[0], vertices[1]},
			{vertices[1], vertices[2]},
			{vertices[2], vertices[3]},
			{vertices[3], vertices[0]},
		}
	case Tet:
		return [][]int{
			{vertices[0], vertices[2], vertices[1]}, // Face 0
			{vertices[0], vertices[1], vertices[3]}, // Face 1
			{vertices[1], vertices[2], vertices[3]}, // Face 2
			{vertices[0], vertices[3], vertices[2]}, // Face 3
		}
	case Hex:
		return [][]int{
			{vertices[0], vertices[3], vertices[2], vertices[1]}, // Face 0 (bottom)
			{vertices[4], vertices[5], vertices[6], vertices[7]}, // Face 1 (top)
			{vertices[0], vertices[1], vertices[5], vertices[4]}, // Face 2
			{vertices[1], vertices[2], vertices[6], vertices[5]}, // Face 3
			{vertices[2], vertices[3], vertices[7], vertices[6]}, // Face 4
			{vertices[3], vertices[0], vertices[4], vertices[7]}, // Face 5
		}
	case Prism:
		return [][]int{
			{vertices[0], vertices[2], vertices[1]},              // Face 0 (bottom tri)
			{vertices[3], vertices[4], vertices[5]},              // Face 1 (top tri)
			{vertices[0], vertices[1], vertices[4], vertices[3]}, // Face 2 (quad)
			{vertices[1], vertices[2], vertices[5], vertices[4]}, // Face 3 (quad)
			{vertices[2], vertices[0], vertices[3], vertices[5]}, // Face 4 (quad)
		}
	case Pyramid:
		return [][]int{
			{vertices[0], vertices[3], vertices[2], vertices[1]}, // Face 0 (base quad)
			{vertices[0], vertices[1], vertices[4]},              // Face 1 (tri)
			{vertices[1], vertices[2], vertices[4]},              // Face 2 (tri)
			{vertices[2], vertices[3], vertices[4]},              // Face 3 (tri)
			{vertices[3], vertices[0], vertices[4]},              // Face 4 (tri)
		}
	default:
		return [][]int{}
	}
}

// BaseGeometry is the element type shared by every element, or false when
// the mesh mixes element types.
func (m *Mesh) BaseGeometry() (et ElementType, uniform bool) {
	if len(m.ElementTypes) == 0 {
		return
	}
	et, uniform = m.ElementTypes[0], true
	for _, t := range m.ElementTypes[1:] {
		if t != et {
			uniform = false
			return
		}
	}
	return
}

// Bounds returns the coordinate bounding box of the vertices.
func (m *Mesh) Bounds() (min, max [3]float64) {
	for d := 0; d < 3; d++ {
		min[d], max[d] = m.Vertices[0][d], m.Vertices[0][d]
	}
	for _, v := range m.Vertices {
		for d := 0; d < 3; d++ {
			if v[d] < min[d] {
				min[d] = v[d]
			}
			if v[d] > max[d] {
				max[d] = v[d]
			}
		}
	}
	return
}

// PrintStatistics prints mesh statistics
func (m *Mesh) PrintStatistics() {
	fmt.Printf("Mesh Statistics:\n")
	fmt.Printf("  Dimension: %d\n", m.Dim)
	fmt.Printf("  Vertices: %d\n", m.NumVertices)
	fmt.Printf("  Elements: %d\n", m.NumElements)
	fmt.Printf("  Faces: %d\n", m.NumFaces)

	typeCounts := make(map[ElementType]int)
	for _, t := range m.ElementTypes {
		typeCounts[t]++
	}
	types := make([]ElementType, 0, len(typeCounts))
	for t := range typeCounts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	fmt.Printf("  Element types:\n")
	for _, t := range types {
		fmt.Printf("    %s: %d\n", t, typeCounts[t])
	}

	attrCounts := make(map[int]int)
	for _, bf := range m.BoundaryFaces {
		attrCounts[bf.Attribute]++
	}
	fmt.Printf("  Boundary faces: %d\n", len(m.BoundaryFaces))
	for _, attr := range m.BoundaryAttributes() {
		name := m.BoundaryTags[attr]
		if name == "" {
			name = "-"
		}
		fmt.Printf("    attribute %d (%s): %d\n", attr, name, attrCounts[attr])
	}

	var total float64
	for k := 0; k < m.NumElements; k++ {
		total += m.ElementVolume(k)
	}
	fmt.Printf("  Total measure: %.6g\n", total)
}
