package ratio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"takerflow/internal/aggregation"
)

type fakeStore struct {
	sums  map[string]aggregation.Vector
	fails map[string]error
	block map[string]bool
}

func (f fakeStore) RangeSum(ctx context.Context, label string) (aggregation.Vector, bool, error) {
	if f.block[label] {
		<-ctx.Done()
		return aggregation.Vector{}, false, ctx.Err()
	}
	if err := f.fails[label]; err != nil {
		return aggregation.Vector{}, false, err
	}
	v, ok := f.sums[label]
	return v, ok, nil
}

// go test -v --run TestOf
func TestOf(t *testing.T) {
	pct, ok := Of(aggregation.Vector{30, 70, 0, 0, 0, 0})
	assert.True(t, ok)
	assert.Equal(t, 70, pct)

	// short 10+20+0, long 5+0+0 -> 5/35 = 14.28
	pct, ok = Of(aggregation.Vector{10, 5, 20, 0, 0, 0})
	assert.True(t, ok)
	assert.Equal(t, 14, pct)

	// 2/3 rounds up
	pct, ok = Of(aggregation.Vector{1, 2, 0, 0, 0, 0})
	assert.True(t, ok)
	assert.Equal(t, 67, pct)

	_, ok = Of(aggregation.Vector{})
	assert.False(t, ok)
}

// go test -v --run TestComputeNeutralDefaults
func TestComputeNeutralDefaults(t *testing.T) {
	store := fakeStore{
		sums: map[string]aggregation.Vector{
			"30m": {0, 0, 0, 0, 30, 70},
			"1h":  {},
		},
		fails: map[string]error{"4h": errors.New("connection reset")},
	}
	engine := NewEngine(store, []string{"30m", "1h", "2h", "4h"})

	snap := engine.Compute(context.Background())
	assert.Equal(t, Snapshot{"30m": 70, "1h": Neutral, "2h": Neutral, "4h": Neutral}, snap)
}

// go test -v --run TestComputeTimeout
func TestComputeTimeout(t *testing.T) {
	store := fakeStore{
		sums:  map[string]aggregation.Vector{"30m": {10, 90, 0, 0, 0, 0}},
		block: map[string]bool{"1d": true},
	}
	engine := NewEngine(store, []string{"30m", "1d"}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	snap := engine.Compute(context.Background())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, Snapshot{"30m": 90, "1d": Neutral}, snap)
}
