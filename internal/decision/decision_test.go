package decision

import (
	"math"
	"math/rand/v2"
	"testing"

	"ctleak/domain/leakage"
	"ctleak/internal/percentile"
	"ctleak/internal/ttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(a *ttest.Accumulator, rng *rand.Rand, n int, shift float64) {
	for i := 0; i < n; i++ {
		c := leakage.Class(i & 1)
		a.Push(100+rng.NormFloat64()*5+float64(c)*shift, c)
	}
}

func smallParams() leakage.Params {
	p := leakage.DefaultParams()
	p.NumberPercentiles = 3
	return p
}

func TestClassify(t *testing.T) {
	e := New(leakage.DefaultParams())
	tests := []struct {
		t    float64
		want leakage.Severity
	}{
		{0, leakage.SeverityNone},
		{10, leakage.SeverityNone},
		{-10, leakage.SeverityNone},
		{10.01, leakage.SeverityModerate},
		{-250, leakage.SeverityModerate},
		{500, leakage.SeverityModerate},
		{500.5, leakage.SeverityBananas},
		{math.Inf(-1), leakage.SeverityBananas},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Classify(tt.t), "t=%v", tt.t)
	}
}

func TestMaxTestIgnoresVariantsBelowFloor(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	v := ttest.NewVariants(3)
	fill(v.At(0), rng, 30000, 0)
	// a huge effect on too few samples must not win
	fill(v.At(2), rng, 1000, 100)
	// a moderate effect above the floor wins
	fill(v.At(3), rng, 30000, 1)

	e := New(smallParams())
	assert.Equal(t, 3, e.MaxTest(v))
}

func TestMaxTestDefaultsToUncropped(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	v := ttest.NewVariants(3)
	fill(v.At(1), rng, 500, 50)

	e := New(smallParams())
	assert.Equal(t, 0, e.MaxTest(v))

	r := e.Decide(v, nil)
	assert.Equal(t, 0, r.Variant)
	assert.Equal(t, leakage.VariantUncropped, r.VariantKind)
	assert.Equal(t, leakage.OutcomeInconclusive, r.Outcome)
	assert.True(t, r.ConstantTime)
	assert.Equal(t, 0.0, r.MaxT)
	assert.Equal(t, 1.0, r.PValue)
	assert.Equal(t, leakage.EnoughMeasurements, r.StillToGo)
}

func TestDecideNoLeakWithEnoughSamples(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	v := ttest.NewVariants(3)
	fill(v.Uncropped(), rng, 40000, 0)

	r := New(smallParams()).Decide(v, nil)
	assert.Equal(t, leakage.OutcomeNoLeak, r.Outcome)
	assert.True(t, r.ConstantTime)
	assert.True(t, r.Enough())
	assert.LessOrEqual(t, r.MaxT, 10.0)
	assert.Equal(t, int64(40000), r.Traces)
	assert.InDelta(t, r.MaxT/math.Sqrt(40000), r.Tau, 1e-12)
	assert.InDelta(t, 100, r.Class0.Mean, 0.2)
	assert.InDelta(t, 25, r.Class1.Variance, 1.5)
	assert.InDelta(t, 5, r.Class1.StdDev, 0.2)
}

func TestDecideLeakDiagnostics(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	v := ttest.NewVariants(3)
	fill(v.Uncropped(), rng, 40000, 1)

	r := New(smallParams()).Decide(v, nil)
	require.Equal(t, leakage.OutcomeLeaking, r.Outcome)
	assert.False(t, r.ConstantTime)
	assert.Equal(t, leakage.SeverityModerate, r.Severity)
	assert.Greater(t, r.MaxT, 10.0)
	assert.Less(t, r.PValue, 1e-6)

	want := 25 / (r.Tau * r.Tau)
	assert.InDelta(t, want, r.TracesToDetect, 1e-6)
	assert.Less(t, r.TracesToDetect, float64(r.Traces))
}

func TestDecideLeakBelowFloorStillLeaks(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	v := ttest.NewVariants(3)
	fill(v.Uncropped(), rng, 110, 50)

	r := New(smallParams()).Decide(v, nil)
	assert.Equal(t, leakage.OutcomeLeaking, r.Outcome)
	assert.False(t, r.Enough())
	assert.Greater(t, r.MaxT, 10.0)
}

func TestDecideReportsCropThreshold(t *testing.T) {
	rng := rand.New(rand.NewPCG(6, 6))
	v := ttest.NewVariants(3)
	fill(v.At(2), rng, 30000, 2)

	table := percentile.NewTable(3)
	require.NoError(t, table.Prepare([]int64{10, 20, 30, 40, 50, 60, 70, 80}))

	r := New(smallParams()).Decide(v, table)
	assert.Equal(t, 2, r.Variant)
	assert.Equal(t, leakage.VariantCropped, r.VariantKind)
	assert.Equal(t, table.At(1), r.CropThreshold)
}

func TestDecideZeroVarianceLeak(t *testing.T) {
	v := ttest.NewVariants(1)
	for i := 0; i < 20000; i++ {
		c := leakage.Class(i & 1)
		v.Uncropped().Push(100+float64(c), c)
	}
	e := New(smallParams())
	r := e.Decide(v, nil)
	assert.Equal(t, leakage.SeverityBananas, r.Severity)
	assert.False(t, math.IsInf(r.MaxT, 0))
	assert.False(t, math.IsInf(r.Tau, 0))
	assert.True(t, e.Confident(&r))
}
