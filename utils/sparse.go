package utils

import (
	"sort"

	"github.com/james-bowman/sparse"
)

// SparseAssembler accumulates repeated (i, j) contributions, the way finite
// element element matrices are scattered into a global operator.
type SparseAssembler struct {
	M      *sparse.DOK
	nr, nc int
}

func NewSparseAssembler(nr, nc int) (sa *SparseAssembler) {
	sa = &SparseAssembler{
		M:  sparse.NewDOK(nr, nc),
		nr: nr,
		nc: nc,
	}
	return
}

func (sa *SparseAssembler) Dims() (r, c int) { return sa.nr, sa.nc }

// Add sums v into entry (i, j).
func (sa *SparseAssembler) Add(i, j int, v float64) {
	sa.M.Set(i, j, sa.M.At(i, j)+v)
}

// ToCSR compresses the accumulated entries into a CSR matrix whose rows hold
// column indices in increasing order.
func (sa *SparseAssembler) ToCSR() *sparse.CSR {
	rows := make([]map[int]float64, sa.nr)
	sa.M.DoNonZero(func(i, j int, v float64) {
		if rows[i] == nil {
			rows[i] = make(map[int]float64)
		}
		rows[i][j] += v
	})
	return NewCSRFromRows(sa.nr, sa.nc, rows)
}

// NewCSRFromRows builds a CSR matrix from one column->value map per row.
func NewCSRFromRows(nr, nc int, rows []map[int]float64) *sparse.CSR {
	var (
		nnz  int
		ia   = make([]int, nr+1)
		ja   []int
		data []float64
	)
	for _, row := range rows {
		nnz += len(row)
	}
	ja = make([]int, 0, nnz)
	data = make([]float64, 0, nnz)
	cols := make([]int, 0)
	for i, row := range rows {
		cols = cols[:0]
		for j := range row {
			cols = append(cols, j)
		}
		sort.Ints(cols)
		for _, j := range cols {
			ja = append(ja, j)
			data = append(data, row[j])
		}
		ia[i+1] = len(ja)
	}
	return sparse.NewCSR(nr, nc, ia, ja, data)
}

// CSRMulVec computes y = A x.
func CSRMulVec(A *sparse.CSR, x, y []float64) {
	raw := A.RawMatrix()
	for i := 0; i < raw.I; i++ {
		var sum float64
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			sum += raw.Data[p] * x[raw.Ind[p]]
		}
		y[i] = sum
	}
}

// CSRDiagonal returns the main diagonal of a square CSR matrix.
func CSRDiagonal(A *sparse.CSR) (diag []float64) {
	raw := A.RawMatrix()
	diag = make([]float64, raw.I)
	for i := 0; i < raw.I; i++ {
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			if raw.Ind[p] == i {
				diag[i] += raw.Data[p]
			}
		}
	}
	return
}

// CSRRows expands a CSR matrix into one column->value map per row.
func CSRRows(A *sparse.CSR) (rows []map[int]float64) {
	raw := A.RawMatrix()
	rows = make([]map[int]float64, raw.I)
	for i := 0; i < raw.I; i++ {
		rows[i] = make(map[int]float64, raw.Indptr[i+1]-raw.Indptr[i])
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			rows[i][raw.Ind[p]] += raw.Data[p]
		}
	}
	return
}

// CSRTranspose returns A^T.
func CSRTranspose(A *sparse.CSR) *sparse.CSR {
	var (
		raw  = A.RawMatrix()
		rows = make([]map[int]float64, raw.J)
	)
	for i := 0; i < raw.I; i++ {
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			j := raw.Ind[p]
			if rows[j] == nil {
				rows[j] = make(map[int]float64)
			}
			rows[j][i] += raw.Data[p]
		}
	}
	return NewCSRFromRows(raw.J, raw.I, rows)
}

// CSRMul returns the sparse product A B.
func CSRMul(A, B *sparse.CSR) *sparse.CSR {
	var (
		ra   = A.RawMatrix()
		rb   = B.RawMatrix()
		rows = make([]map[int]float64, ra.I)
	)
	for i := 0; i < ra.I; i++ {
		row := make(map[int]float64)
		for p := ra.Indptr[i]; p < ra.Indptr[i+1]; p++ {
			k, aik := ra.Ind[p], ra.Data[p]
			for q := rb.Indptr[k]; q < rb.Indptr[k+1]; q++ {
				row[rb.Ind[q]] += aik * rb.Data[q]
			}
		}
		rows[i] = row
	}
	return NewCSRFromRows(ra.I, rb.J, rows)
}
