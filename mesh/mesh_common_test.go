package mesh

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func totalMeasure(m *Mesh) (total float64) {
	for k := 0; k < m.NumElements; k++ {
		total += m.ElementVolume(k)
	}
	return
}

func TestBuildConnectivity(t *testing.T) {
	{ // Two tets sharing a face are reciprocal neighbors
		m := NewMesh()
		m.Vertices = [][]float64{
			{0, 0, 0}, // 0
			{1, 0, 0}, // 1
			{0, 1, 0}, // 2
			{0, 0, 1}, // 3
			{1, 1, 1}, // 4
		}
		m.Elements = [][]int{
			{0, 1, 2, 3}, // Tet 0
			{1, 2, 3, 4}, // Tet 1 - shares face {1,2,3} with Tet 0
		}
		m.ElementTypes = []ElementType{Tet, Tet}
		require.NoError(t, m.Finalize())
		assert.Equal(t, 3, m.Dim)
		assert.Equal(t, 7, m.NumFaces)
		assert.Equal(t, 6, len(m.BoundaryFaces))
		assert.Equal(t, []int{1}, m.BoundaryAttributes())

		var shared int
		for i, neighbor := range m.EToE[0] {
			if neighbor >= 0 {
				shared++
				assert.Equal(t, 1, neighbor)
				assert.Equal(t, 0, m.Faces[m.EToF[0][i]].Element)
				var back int
				for j, nb := range m.EToE[1] {
					if nb == 0 {
						back++
						assert.Equal(t, m.EToF[0][i], m.EToF[1][j])
					}
				}
				assert.Equal(t, 1, back)
			}
		}
		assert.Equal(t, 1, shared)
	}
	{ // Bad connectivity is rejected
		m := NewMesh()
		m.Vertices = [][]float64{{0, 0, 0}, {1, 0, 0}}
		m.Elements = [][]int{{0, 2}}
		m.ElementTypes = []ElementType{Line}
		assert.Error(t, m.Finalize())
		assert.Error(t, NewMesh().Finalize())
	}
}

func TestGenerators(t *testing.T) {
	{ // Line mesh
		m, err := NewLineMesh(10, -1, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, m.Dim)
		assert.Equal(t, 10, m.NumElements)
		assert.Equal(t, 11, m.NumVertices)
		assert.InDelta(t, 2., totalMeasure(m), 1e-14)
		assert.Equal(t, []int{1, 2}, m.BoundaryAttributes())
		for _, bf := range m.BoundaryFaces {
			if bf.Attribute == 1 {
				assert.Equal(t, -1., m.Vertices[bf.Vertices[0]][0])
			} else {
				assert.Equal(t, 1., m.Vertices[bf.Vertices[0]][0])
			}
		}
		_, err = NewLineMesh(0, 0, 1)
		assert.Error(t, err)
	}
	{ // Rectangle meshes of quads and triangles
		for _, et := range []ElementType{Quad, Triangle} {
			m, err := NewRectangleMesh(4, 3, [2]float64{0, 0}, [2]float64{2, 1.5}, et)
			require.NoError(t, err)
			assert.Equal(t, 2, m.Dim)
			assert.Equal(t, 20, m.NumVertices)
			if et == Quad {
				assert.Equal(t, 12, m.NumElements)
			} else {
				assert.Equal(t, 24, m.NumElements)
			}
			assert.InDelta(t, 3., totalMeasure(m), 1e-13)
			assert.Equal(t, 14, len(m.BoundaryFaces))
			assert.Equal(t, []int{1, 2, 3, 4}, m.BoundaryAttributes())
			for _, bf := range m.BoundaryFaces {
				a, b := m.Vertices[bf.Vertices[0]], m.Vertices[bf.Vertices[1]]
				switch bf.Attribute {
				case 1:
					assert.True(t, a[1] == 0 && b[1] == 0)
				case 2:
					assert.True(t, a[0] == 2 && b[0] == 2)
				case 3:
					assert.True(t, a[1] == 1.5 && b[1] == 1.5)
				case 4:
					assert.True(t, a[0] == 0 && b[0] == 0)
				}
			}
			et2, uniform := m.BaseGeometry()
			assert.True(t, uniform)
			assert.Equal(t, et, et2)
		}
		_, err := NewRectangleMesh(2, 2, [2]float64{0, 0}, [2]float64{1, 1}, Hex)
		assert.Error(t, err)
	}
	{ // Box meshes of hexes and tets
		for _, et := range []ElementType{Hex, Tet} {
			m, err := NewBoxMesh(2, 3, 2, [3]float64{0, 0, 0}, [3]float64{1, 1.5, 2}, et)
			require.NoError(t, err)
			assert.Equal(t, 3, m.Dim)
			assert.InDelta(t, 3., totalMeasure(m), 1e-13)
			assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, m.BoundaryAttributes())
			facesPerSquare := 1
			if et == Tet {
				facesPerSquare = 2
			}
			assert.Equal(t, facesPerSquare*2*(2*3+3*2+2*2), len(m.BoundaryFaces))
			// interior faces are shared by exactly two elements
			var interior int
			for k := 0; k < m.NumElements; k++ {
				for _, nb := range m.EToE[k] {
					if nb >= 0 {
						interior++
					}
				}
			}
			assert.Equal(t, 2*(m.NumFaces-len(m.BoundaryFaces)), interior)
		}
	}
}

func TestElementVolume(t *testing.T) {
	m := NewMesh()
	m.Vertices = [][]float64{
		{0, 0, 0}, {2, 0, 0}, {2, 1, 0}, {0, 1, 0},
		{0, 0, 3}, {2, 0, 3}, {2, 1, 3}, {0, 1, 3},
	}
	m.Elements = [][]int{
		{0, 1, 2, 3, 4, 5, 6, 7},
		{0, 1, 3, 4},
		{0, 1, 3, 4, 5, 7},
		{0, 1, 2, 3, 4},
	}
	m.ElementTypes = []ElementType{Hex, Tet, Prism, Pyramid}
	assert.InDelta(t, 6., m.ElementVolume(0), 1e-14)
	assert.InDelta(t, 1., m.ElementVolume(1), 1e-14)
	assert.InDelta(t, 3., m.ElementVolume(2), 1e-14)
	assert.InDelta(t, 2., m.ElementVolume(3), 1e-14)

	q := NewMesh()
	q.Vertices = [][]float64{{0, 0, 0}, {2, 0, 0}, {3, 1, 0}, {0, 1, 0}}
	q.Elements = [][]int{{0, 1, 2, 3}, {0, 1, 2}}
	q.ElementTypes = []ElementType{Quad, Triangle}
	assert.InDelta(t, 2.5, q.ElementVolume(0), 1e-14)
	assert.InDelta(t, 1., q.ElementVolume(1), 1e-14)
	c := q.Centroid(1)
	assert.InDelta(t, 5./3, c.X, 1e-14)
}

const gmshSquare = `$MeshFormat
2.2 0 8
$EndMeshFormat
$PhysicalNames
2
1 7 "wall"
2 9 "fluid"
$EndPhysicalNames
$Nodes
4
1 0 0 0
2 1 0 0
3 1 1 0
4 0 1 0
$EndNodes
$Elements
7
1 15 2 0 1 1
2 1 2 7 1 1 2
3 1 2 7 2 2 3
4 1 2 7 3 3 4
5 1 2 8 4 4 1
6 2 2 9 1 1 2 3
7 2 2 9 1 1 3 4
$EndElements
`

func TestReadGmsh(t *testing.T) {
	m, err := ParseGmsh(strings.NewReader(gmshSquare))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Dim)
	assert.Equal(t, 2, m.NumElements)
	assert.Equal(t, 4, m.NumVertices)
	assert.Equal(t, []int{9, 9}, m.ElementTags)
	assert.Equal(t, []int{7, 8}, m.BoundaryAttributes())
	assert.Equal(t, "wall", m.BoundaryTags[7])
	assert.InDelta(t, 1., totalMeasure(m), 1e-14)

	_, err = ParseGmsh(strings.NewReader("$MeshFormat\n4.1 0 8\n$EndMeshFormat\n"))
	assert.Error(t, err)
}

const su2Square = `% square of two triangles
NDIME= 2
NELEM= 2
5 0 1 2 0
5 0 2 3 1
NPOIN= 4
0.0 0.0 0
1.0 0.0 1
1.0 1.0 2
0.0 1.0 3
NMARK= 2
MARKER_TAG= lower
MARKER_ELEMS= 1
3 0 1
MARKER_TAG= outer
MARKER_ELEMS= 3
3 1 2
3 2 3
3 3 0
`

func TestReadSU2(t *testing.T) {
	m, err := ParseSU2(strings.NewReader(su2Square))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Dim)
	assert.Equal(t, 2, m.NumElements)
	assert.Equal(t, []int{1, 2}, m.BoundaryAttributes())
	assert.Equal(t, "lower", m.BoundaryTags[1])
	assert.Equal(t, "outer", m.BoundaryTags[2])
	assert.Equal(t, 4, len(m.BoundaryFaces))
	assert.InDelta(t, 1., totalMeasure(m), 1e-14)

	_, err = ReadMeshFile(filepath.Join(t.TempDir(), "mesh.vtk"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

const gambitSquare = `        CONTROL INFO 2.0.0
** GAMBIT NEUTRAL FILE
square
PROGRAM:                Gambit     VERSION:  2.0.0
Jan 2026
     NUMNP     NELEM     NGRPS    NBSETS     NDFCD     NDFVL
         4         2         1         2         2         2
ENDOFSECTION
   NODAL COORDINATES 2.0.0
         1   0.0   0.0
         2   1.0   0.0
         3   1.0   1.0
         4   0.0   1.0
ENDOFSECTION
      ELEMENTS/CELLS 2.0.0
         1  3  3         1         2         3
         2  3  3         1         3         4
ENDOFSECTION
       ELEMENT GROUP 2.0.0
GROUP:           1 ELEMENTS:          2 MATERIAL:          2 NFLAGS:          1
                           fluid
       0
         1         2
ENDOFSECTION
 BOUNDARY CONDITIONS 2.0.0
                    Wall       1       2       0       6
         1         3         1
         1         3         2
ENDOFSECTION
 BOUNDARY CONDITIONS 2.0.0
                  Inflow       1       2       0       6
         2         3         2
         2         3         3
ENDOFSECTION
`

func TestReadGambit(t *testing.T) {
	{ // Element groups become tags, boundary sets attributes in file order
		m, err := ParseGambit(strings.NewReader(gambitSquare))
		require.NoError(t, err)
		assert.Equal(t, 2, m.Dim)
		assert.Equal(t, 2, m.NumElements)
		assert.Equal(t, []int{1, 1}, m.ElementTags)
		assert.Equal(t, []int{1, 2}, m.BoundaryAttributes())
		assert.Equal(t, "Wall", m.BoundaryTags[1])
		assert.Equal(t, "Inflow", m.BoundaryTags[2])
		assert.Equal(t, []int{0, 2, 3}, m.Elements[1])
		assert.InDelta(t, 1., totalMeasure(m), 1e-14)
		counts := make(map[int]int)
		for _, bf := range m.BoundaryFaces {
			counts[bf.Attribute]++
		}
		assert.Equal(t, map[int]int{1: 2, 2: 2}, counts)
	}
	{ // By file extension
		filename := filepath.Join(t.TempDir(), "square.neu")
		require.NoError(t, os.WriteFile(filename, []byte(gambitSquare), 0644))
		m, err := ReadMeshFile(filename)
		require.NoError(t, err)
		assert.Equal(t, 4, m.NumVertices)
	}
	{ // Truncated and unsupported input
		_, err := ParseGambit(strings.NewReader(gambitSquare[:400]))
		assert.Error(t, err)
		brick := strings.Replace(gambitSquare, "1  3  3         1         2         3",
			"1  4  8         1         2         3", 1)
		_, err = ParseGambit(strings.NewReader(brick))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	}
}

func TestPartition(t *testing.T) {
	m, err := NewRectangleMesh(5, 5, [2]float64{0, 0}, [2]float64{1, 1}, Quad)
	require.NoError(t, err)
	require.NoError(t, m.Partition(3))
	var total int
	for p := 0; p < 3; p++ {
		n := len(m.PartitionElements(p))
		assert.True(t, n >= 8 && n <= 9)
		total += n
	}
	assert.Equal(t, 25, total)
	assert.Error(t, m.Partition(0))
	assert.Equal(t, []int{0, 0, 1, 1, 2}, BlockPartition(5, 3))
	assert.False(t, math.IsNaN(totalMeasure(m)))
}
