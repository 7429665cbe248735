package profiling

import (
	"testing"

	"ctleak/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeTicks(t *testing.T) {
	ticks := []int64{10, 20, -5, 30, 40, 1000}
	s, err := SummarizeTicks(ticks)
	require.NoError(t, err)

	assert.Equal(t, 5, s.Count)
	assert.Equal(t, 1, s.Wraparounds)
	assert.InDelta(t, 220, s.Mean, 1e-9)
	assert.Equal(t, 10.0, s.Min)
	assert.Equal(t, 1000.0, s.Max)
	assert.Equal(t, 30.0, s.Median)
	assert.Greater(t, s.Skewness, 0.0, "one slow trial skews right")
	assert.LessOrEqual(t, s.Q25, s.Median)
	assert.LessOrEqual(t, s.Median, s.Q75)
}

func TestSummarizeTicksAllWrapped(t *testing.T) {
	s, err := SummarizeTicks([]int64{-1, -2})
	assert.ErrorIs(t, err, core.ErrNoSamples)
	assert.ErrorIs(t, err, core.ErrWraparound)
	assert.Equal(t, 2, s.Wraparounds)

	_, err = SummarizeTicks(nil)
	assert.ErrorIs(t, err, core.ErrNoSamples)
	assert.NotErrorIs(t, err, core.ErrWraparound)
}

func TestSkewnessSymmetric(t *testing.T) {
	assert.InDelta(t, 0, calculateSkewness([]float64{1, 2, 3, 4, 5}, 3, 1.5811), 1e-9)
	assert.Equal(t, 0.0, calculateSkewness([]float64{1, 2}, 1.5, 0.7))
}
