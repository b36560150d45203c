// Package comm provides the collective reductions the distance solver needs
// across ranks. A World runs every rank as a goroutine of one process.
package comm

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Communicator is the set of collectives a rank participates in. Every rank
// of a world must call the same collectives in the same order.
type Communicator interface {
	Rank() int
	Size() int
	AllReduceSum(v float64) float64
	AllReduceMin(v float64) float64
	AllReduceSumInt(v int) int
	Barrier()
}

// Serial is the single-rank communicator.
type Serial struct{}

func (Serial) Rank() int                      { return 0 }
func (Serial) Size() int                      { return 1 }
func (Serial) AllReduceSum(v float64) float64 { return v }
func (Serial) AllReduceMin(v float64) float64 { return v }
func (Serial) AllReduceSumInt(v int) int      { return v }
func (Serial) Barrier()                       {}

// World is an in-process group of ranks sharing a generation barrier.
type World struct {
	size       int
	mu         sync.Mutex
	cond       *sync.Cond
	vals       []float64
	arrived    int
	generation int
	result     float64
}

func NewWorld(size int) (w *World) {
	if size < 1 {
		size = 1
	}
	w = &World{
		size: size,
		vals: make([]float64, size),
	}
	w.cond = sync.NewCond(&w.mu)
	return
}

func (w *World) Size() int { return w.size }

// Rank returns the communicator of rank r.
func (w *World) Rank(r int) Communicator {
	if r < 0 || r >= w.size {
		panic(fmt.Errorf("rank %d out of range [0,%d)", r, w.size))
	}
	return &rankComm{world: w, rank: r}
}

// Run starts fn on every rank and waits for all of them. The first error
// returned by any rank is returned. A rank that fails before a collective its
// peers are waiting on leaves them blocked, so fn must not return early on
// one rank only.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c Communicator) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < w.size; r++ {
		c := w.Rank(r)
		g.Go(func() error {
			return fn(gctx, c)
		})
	}
	return g.Wait()
}

type reduceOp func(vals []float64) float64

func sumOp(vals []float64) (sum float64) {
	for _, v := range vals {
		sum += v
	}
	return
}

func minOp(vals []float64) (min float64) {
	min = math.Inf(1)
	for _, v := range vals {
		if v < min {
			min = v
		}
	}
	return
}

// reduce deposits v for rank and blocks until all ranks arrived. The last
// rank to arrive combines the contributions in rank order.
func (w *World) reduce(rank int, v float64, op reduceOp) (result float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	gen := w.generation
	w.vals[rank] = v
	w.arrived++
	if w.arrived == w.size {
		w.result = op(w.vals)
		w.arrived = 0
		w.generation++
		w.cond.Broadcast()
		return w.result
	}
	for gen == w.generation {
		w.cond.Wait()
	}
	// The result is only overwritten once every rank re-enters the next
	// collective, which this rank has not done yet.
	return w.result
}

type rankComm struct {
	world *World
	rank  int
}

func (c *rankComm) Rank() int { return c.rank }
func (c *rankComm) Size() int { return c.world.size }

func (c *rankComm) AllReduceSum(v float64) float64 {
	return c.world.reduce(c.rank, v, sumOp)
}

func (c *rankComm) AllReduceMin(v float64) float64 {
	return c.world.reduce(c.rank, v, minOp)
}

func (c *rankComm) AllReduceSumInt(v int) int {
	return int(math.Round(c.world.reduce(c.rank, float64(v), sumOp)))
}

func (c *rankComm) Barrier() {
	c.world.reduce(c.rank, 0, sumOp)
}
