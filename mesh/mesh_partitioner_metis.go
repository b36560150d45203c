//go:build metis

package mesh

import (
	"fmt"

	metis "github.com/notargets/go-metis"
)

func init() {
	graphPartitioner = partitionMETIS
}

// partitionMETIS partitions the element dual graph, weighting elements by
// vertex count and faces by their vertex count.
func partitionMETIS(m *Mesh, nparts int) (part []int, err error) {
	xadj, adjncy, vwgt, adjwgt := buildMetisGraph(m)

	opts := make([]int32, metis.NoOptions)
	if err = metis.SetDefaultOptions(opts); err != nil {
		err = fmt.Errorf("failed to set METIS options: %w", err)
		return
	}
	// minimize communication volume
	opts[metis.OptionObjType] = metis.ObjTypeVol
	ubvec := []float32{1.05}

	part32, _, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, vwgt, adjwgt,
		int32(nparts), nil, ubvec, opts,
	)
	if err != nil {
		err = fmt.Errorf("METIS partitioning failed: %w", err)
		return
	}
	part = make([]int, m.NumElements)
	for i := range part {
		part[i] = int(part32[i])
	}
	return
}

// buildMetisGraph converts mesh connectivity to METIS format
func buildMetisGraph(m *Mesh) (xadj, adjncy, vwgt, adjwgt []int32) {
	ne := m.NumElements
	vwgt = make([]int32, ne)
	xadj = make([]int32, ne+1)
	for elem := 0; elem < ne; elem++ {
		vwgt[elem] = int32(len(m.Elements[elem]))
		for faceIdx, neighbor := range m.EToE[elem] {
			if neighbor >= 0 && neighbor != elem {
				adjncy = append(adjncy, int32(neighbor))
				face := m.Faces[m.EToF[elem][faceIdx]]
				adjwgt = append(adjwgt, int32(len(face.Vertices)))
			}
		}
		xadj[elem+1] = int32(len(adjncy))
	}
	return
}
