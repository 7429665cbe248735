package percentile

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"ctleak/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestSelectMatchesSort(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(300)
		a := make([]int64, n)
		for i := range a {
			// small range forces many duplicates
			a[i] = rng.Int64N(int64(1 + rng.IntN(50)))
		}
		sorted := append([]int64(nil), a...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		k := rng.IntN(n)
		got := Select(append([]int64(nil), a...), k)
		require.Equal(t, sorted[k], got, "n=%d k=%d", n, k)
	}
}

func TestQuantileEdges(t *testing.T) {
	_, err := Quantile(nil, 0.5)
	assert.ErrorIs(t, err, core.ErrNoSamples)

	v, err := Quantile([]int64{5, 1, 3}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = Quantile([]int64{5, 1, 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v, "which=1 clamps to the maximum")
}

func TestQuantileMatchesEmpirical(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	a := make([]int64, 1000)
	f := make([]float64, len(a))
	for i := range a {
		a[i] = rng.Int64N(1 << 20)
	}
	sorted := append([]int64(nil), a...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, v := range sorted {
		f[i] = float64(v)
	}

	for _, p := range []float64{0.1, 0.5, 0.9, 0.999} {
		got, err := Quantile(append([]int64(nil), a...), p)
		require.NoError(t, err)
		// index floor(n*p) is the empirical quantile at p + 1/n
		want := stat.Quantile(p+1/float64(len(a))-1e-9, stat.Empirical, f, nil)
		assert.Equal(t, want, float64(got), "p=%v", p)
	}
}

func TestSchedule(t *testing.T) {
	assert.InDelta(t, 1-math.Pow(0.5, 0.1), Schedule(0, 100), 1e-15)
	assert.InDelta(t, 1-math.Pow(0.5, 10), Schedule(99, 100), 1e-15)
	for i := 1; i < 100; i++ {
		assert.Greater(t, Schedule(i, 100), Schedule(i-1, 100))
	}
}

func TestTableFractionsFollowSchedule(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	const n = 100000
	const k = 100
	samples := make([]int64, n)
	for i := range samples {
		samples[i] = 1000 + int64(rng.ExpFloat64()*200)
	}
	original := append([]int64(nil), samples...)

	table := NewTable(k)
	require.False(t, table.Computed())
	require.NoError(t, table.Prepare(samples))
	require.True(t, table.Computed())
	assert.Equal(t, original, samples, "Prepare must not reorder its input")

	for i := 0; i < k; i++ {
		thr := table.At(i)
		below := 0
		for _, s := range samples {
			if s < thr {
				below++
			}
		}
		q := Schedule(i, k)
		frac := float64(below) / n
		// ties at integer ticks can pull the strict fraction down a little
		tol := 4*math.Sqrt(q*(1-q)/n) + 0.01
		assert.InDelta(t, q, frac, tol, "threshold %d", i)
	}
}

func TestTablePreparedOnce(t *testing.T) {
	table := NewTable(4)
	require.NoError(t, table.Prepare([]int64{10, 20, 30, 40}))
	first := table.Values()

	require.NoError(t, table.Prepare([]int64{1000, 2000, 3000, 4000}))
	assert.Equal(t, first, table.Values())
}

func TestTableZeroThresholdIsComputed(t *testing.T) {
	table := NewTable(3)
	require.NoError(t, table.Prepare([]int64{0, 0, 0, 0}))
	assert.True(t, table.Computed())
	assert.Equal(t, []int64{0, 0, 0}, table.Values())

	require.NoError(t, table.Prepare([]int64{9, 9, 9, 9}))
	assert.Equal(t, int64(0), table.At(2), "an all-zero table stays frozen")
}

func TestTableEmptySamples(t *testing.T) {
	table := NewTable(3)
	assert.ErrorIs(t, table.Prepare(nil), core.ErrNoSamples)
	assert.False(t, table.Computed())
}
