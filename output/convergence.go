package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// ConvergenceStudy collects distance errors over a sequence of refined
// meshes.
type ConvergenceStudy struct {
	Title     string
	MeshScale []float64
	RMS, Max  []float64
}

func NewConvergenceStudy(title string) *ConvergenceStudy {
	return &ConvergenceStudy{Title: title}
}

func (cs *ConvergenceStudy) Add(dx, rms, max float64) {
	cs.MeshScale = append(cs.MeshScale, dx)
	cs.RMS = append(cs.RMS, rms)
	cs.Max = append(cs.Max, max)
}

// DistanceError returns the RMS and maximum nodal difference of two fields.
func DistanceError(dist, exact []float64) (rms, max float64) {
	if len(dist) == 0 {
		return
	}
	rms = floats.Distance(dist, exact, 2) / math.Sqrt(float64(len(dist)))
	max = floats.Distance(dist, exact, math.Inf(1))
	return
}

// Orders returns the observed convergence order between successive
// entries, log(e[i-1]/e[i]) / log(dx[i-1]/dx[i]); the first entry is NaN.
func (cs *ConvergenceStudy) Orders() (rmsOrder, maxOrder []float64) {
	n := len(cs.MeshScale)
	rmsOrder, maxOrder = make([]float64, n), make([]float64, n)
	for i := range rmsOrder {
		if i == 0 {
			rmsOrder[i], maxOrder[i] = math.NaN(), math.NaN()
			continue
		}
		ratio := math.Log(cs.MeshScale[i-1] / cs.MeshScale[i])
		rmsOrder[i] = math.Log(cs.RMS[i-1]/cs.RMS[i]) / ratio
		maxOrder[i] = math.Log(cs.Max[i-1]/cs.Max[i]) / ratio
	}
	return
}

var convergenceHeader = []string{"title", "dx", "rms", "max", "rmsOrder", "maxOrder"}

func (cs *ConvergenceStudy) WriteCSV(w io.Writer) (err error) {
	cw := csv.NewWriter(w)
	if err = cw.Write(convergenceHeader); err != nil {
		return
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	rmsOrder, maxOrder := cs.Orders()
	for i := range cs.MeshScale {
		if err = cw.Write([]string{cs.Title, f(cs.MeshScale[i]), f(cs.RMS[i]), f(cs.Max[i]),
			f(rmsOrder[i]), f(maxOrder[i])}); err != nil {
			return
		}
	}
	cw.Flush()
	return cw.Error()
}

func (cs *ConvergenceStudy) Print() {
	rmsOrder, maxOrder := cs.Orders()
	fmt.Printf("Title = %s\n", cs.Title)
	for i := range cs.MeshScale {
		fmt.Printf("%10.5f, %12.5e, %12.5e, %6.2f, %6.2f\n",
			cs.MeshScale[i], cs.RMS[i], cs.Max[i], rmsOrder[i], maxOrder[i])
	}
}

// ReadConvergenceCSV reads studies written by WriteCSV, keyed by title.
// The order columns are recomputed, not read.
func ReadConvergenceCSV(r io.Reader) (studies map[string]*ConvergenceStudy, err error) {
	var records [][]string
	if records, err = csv.NewReader(r).ReadAll(); err != nil {
		return
	}
	studies = make(map[string]*ConvergenceStudy)
	for i, rec := range records {
		if i == 0 {
			continue
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("line %d: %d fields, need at least 4", i+1, len(rec))
		}
		var vals [3]float64
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(rec[1+j], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
		}
		cs, ok := studies[rec[0]]
		if !ok {
			cs = NewConvergenceStudy(rec[0])
			studies[rec[0]] = cs
		}
		cs.Add(vals[0], vals[1], vals[2])
	}
	return
}
