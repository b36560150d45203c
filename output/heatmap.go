package output

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PointEvaluator evaluates a field at a physical point, false when the point
// is outside the domain.
type PointEvaluator interface {
	EvalAt(x [3]float64) (float64, bool)
}

// SampleGrid is a regular sampling of a field, NaN outside the domain. It
// implements plotter.GridXYZ.
type SampleGrid struct {
	nx, ny   int
	min, del [2]float64
	z        []float64
}

// Sample evaluates f at the centres of an nx by ny grid over [min, max].
func Sample(f PointEvaluator, nx, ny int, min, max [2]float64) (g *SampleGrid, err error) {
	if nx < 1 || ny < 1 || !(max[0] > min[0]) || !(max[1] > min[1]) {
		err = fmt.Errorf("invalid sampling grid %d x %d on %v..%v", nx, ny, min, max)
		return
	}
	g = &SampleGrid{
		nx:  nx,
		ny:  ny,
		min: min,
		del: [2]float64{(max[0] - min[0]) / float64(nx), (max[1] - min[1]) / float64(ny)},
		z:   make([]float64, nx*ny),
	}
	for r := 0; r < ny; r++ {
		for c := 0; c < nx; c++ {
			val, ok := f.EvalAt([3]float64{g.X(c), g.Y(r), 0})
			if !ok {
				val = math.NaN()
			}
			g.z[r*nx+c] = val
		}
	}
	return
}

func (g *SampleGrid) Dims() (c, r int)   { return g.nx, g.ny }
func (g *SampleGrid) Z(c, r int) float64 { return g.z[r*g.nx+c] }
func (g *SampleGrid) X(c int) float64    { return g.min[0] + (float64(c)+0.5)*g.del[0] }
func (g *SampleGrid) Y(r int) float64    { return g.min[1] + (float64(r)+0.5)*g.del[1] }

func (g *SampleGrid) Min() float64 {
	m := math.Inf(1)
	for _, v := range g.z {
		if !math.IsNaN(v) {
			m = math.Min(m, v)
		}
	}
	return m
}

func (g *SampleGrid) Max() float64 {
	m := math.Inf(-1)
	for _, v := range g.z {
		if !math.IsNaN(v) {
			m = math.Max(m, v)
		}
	}
	return m
}

// WriteHeatMap samples f over [min, max] and saves a heat map. The image
// format follows the file extension (png, svg, pdf, ...).
func WriteHeatMap(filename, title string, f PointEvaluator, min, max [2]float64, resolution int) (err error) {
	var g *SampleGrid
	if g, err = Sample(f, resolution, resolution, min, max); err != nil {
		return
	}
	if math.IsInf(g.Min(), 0) {
		return fmt.Errorf("heat map of %q: no sample point lies inside the mesh", title)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	hm := plotter.NewHeatMap(g, palette.Heat(64, 1))
	p.Add(hm)
	if err = p.Save(6*vg.Inch, 6*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save heat map: %w", err)
	}
	return
}
