package comm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerial(t *testing.T) {
	var c Communicator = Serial{}
	assert.Equal(t, 0, c.Rank())
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, 2.5, c.AllReduceSum(2.5))
	assert.Equal(t, -1., c.AllReduceMin(-1))
	assert.Equal(t, 3, c.AllReduceSumInt(3))
}

func TestWorldReductions(t *testing.T) {
	{ // Every rank sees the same sums and minima across repeated collectives
		var (
			np      = 5
			w       = NewWorld(np)
			sums    = make([]float64, np)
			mins    = make([]float64, np)
			counts  = make([]int, np)
			repeats = 50
		)
		err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
			r := c.Rank()
			for n := 0; n < repeats; n++ {
				sums[r] += c.AllReduceSum(float64(r + n))
				mins[r] = c.AllReduceMin(float64(10 - r))
				counts[r] = c.AllReduceSumInt(r)
				c.Barrier()
			}
			return nil
		})
		require.NoError(t, err)
		var expectedSum float64
		for n := 0; n < repeats; n++ {
			expectedSum += float64(10 + np*n)
		}
		for r := 0; r < np; r++ {
			assert.Equal(t, expectedSum, sums[r])
			assert.Equal(t, 6., mins[r])
			assert.Equal(t, 10, counts[r])
		}
	}
	{ // Reductions are combined in rank order, identical on all ranks
		var (
			np      = 4
			w       = NewWorld(np)
			results = make([]float64, np)
		)
		vals := []float64{1e16, 1, -1e16, 1}
		require.NoError(t, w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
			results[c.Rank()] = c.AllReduceSum(vals[c.Rank()])
			return nil
		}))
		expected := ((vals[0] + vals[1]) + vals[2]) + vals[3]
		for r := 0; r < np; r++ {
			assert.Equal(t, expected, results[r])
		}
	}
	{ // Errors from a rank are returned by Run
		w := NewWorld(3)
		boom := errors.New("boom")
		err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
			c.Barrier()
			if c.Rank() == 1 {
				return boom
			}
			return nil
		})
		assert.ErrorIs(t, err, boom)
	}
	{ // Out of range ranks panic
		w := NewWorld(2)
		assert.Panics(t, func() { w.Rank(2) })
		assert.Equal(t, 1, NewWorld(0).Size())
	}
}
