package mesh

import (
	"fmt"
	"log"
	"math"

	"github.com/notargets/heatdist/utils"
)

// graphPartitioner is set when the binary is built with METIS support.
var graphPartitioner func(m *Mesh, nparts int) (part []int, err error)

// Partition assigns every element to one of nparts partitions, filling EToP.
// METIS is used when available, otherwise contiguous blocks of elements.
func (m *Mesh) Partition(nparts int) (err error) {
	if nparts < 1 {
		err = fmt.Errorf("invalid partition count %d", nparts)
		return
	}
	if nparts == 1 || graphPartitioner == nil || nparts > m.NumElements {
		m.EToP = BlockPartition(m.NumElements, nparts)
		return
	}
	log.Printf("Partitioning mesh with %d elements into %d parts", m.NumElements, nparts)
	var part []int
	if part, err = graphPartitioner(m, nparts); err != nil {
		return
	}
	m.EToP = part
	m.analyzePartition(nparts)
	return
}

// BlockPartition splits n elements into nparts contiguous blocks.
func BlockPartition(n, nparts int) (part []int) {
	pm := utils.NewPartitionMap(nparts, n)
	part = make([]int, n)
	for k := range part {
		part[k] = pm.Owner(k)
	}
	return
}

// PartitionElements returns the elements assigned to partition partID.
func (m *Mesh) PartitionElements(partID int) (elements []int) {
	for elem := 0; elem < m.NumElements; elem++ {
		if m.EToP[elem] == partID {
			elements = append(elements, elem)
		}
	}
	return
}

// analyzePartition reports the load balance and the faces cut by the
// partition boundaries.
func (m *Mesh) analyzePartition(nparts int) {
	var (
		counts   = make([]int, nparts)
		cutFaces int
	)
	for elem := 0; elem < m.NumElements; elem++ {
		counts[m.EToP[elem]]++
		for _, neighbor := range m.EToE[elem] {
			if neighbor > elem && m.EToP[neighbor] != m.EToP[elem] {
				cutFaces++
			}
		}
	}
	var (
		avg      = float64(m.NumElements) / float64(nparts)
		maxCount = 0
		minCount = math.MaxInt
	)
	for _, c := range counts {
		maxCount = max(maxCount, c)
		minCount = min(minCount, c)
	}
	log.Printf("Partition Analysis:")
	log.Printf("  Cut faces: %d", cutFaces)
	log.Printf("  Load imbalance: %.2f%%", (float64(maxCount)/avg-1)*100)
	log.Printf("  Load range: [%d, %d], avg: %.1f", minCount, maxCount, avg)
}
