package distance

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/heatdist/comm"
	"github.com/notargets/heatdist/mesh"
)

var (
	ErrUnsupportedGeometry = errors.New("unsupported cell geometry")
	ErrEmptyDomain         = errors.New("domain has no measurable cells")
)

// CellSet is the part of a discretization the mesh scale depends on.
type CellSet interface {
	Comm() comm.Communicator
	NumLocalCells() int
	CellMeasure(k int) float64
	BaseGeometry() mesh.ElementType
	Order() int
}

// EstimateMeshScale returns the characteristic cell size divided by the
// approximation order. Every rank must call it; the total measure and the
// total cell count are summed over all ranks.
func EstimateMeshScale(cs CellSet) (dx float64, err error) {
	var (
		c       = cs.Comm()
		nLocal  = cs.NumLocalCells()
		measure float64
	)
	for k := 0; k < nLocal; k++ {
		measure += cs.CellMeasure(k)
	}
	volume := c.AllReduceSum(measure)
	count := c.AllReduceSumInt(nLocal)
	if count == 0 {
		err = ErrEmptyDomain
		return
	}
	avg := volume / float64(count)
	switch geom := cs.BaseGeometry(); geom {
	case mesh.Line:
		dx = avg
	case mesh.Quad:
		dx = math.Sqrt(avg)
	case mesh.Triangle:
		dx = math.Sqrt(2 * avg)
	case mesh.Hex:
		dx = math.Cbrt(avg)
	case mesh.Tet:
		dx = math.Cbrt(6 * avg)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedGeometry, geom)
		return
	}
	if order := cs.Order(); order > 0 {
		dx /= float64(order)
	}
	if !(dx > 0) || math.IsInf(dx, 0) {
		err = fmt.Errorf("%w: mesh scale %v from measure %v over %d cells",
			ErrEmptyDomain, dx, volume, count)
	}
	return
}
