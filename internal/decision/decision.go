// Package decision turns the test variant set into a verdict.
package decision

import (
	"math"

	"ctleak/domain/leakage"
	"ctleak/internal/percentile"
	"ctleak/internal/ttest"
)

// Engine holds the thresholds and floors of a run.
type Engine struct {
	enough    int64
	tModerate float64
	tBananas  float64
}

// New builds an engine from validated parameters.
func New(p leakage.Params) *Engine {
	return &Engine{
		enough:    p.EnoughMeasurements,
		tModerate: p.TModerate,
		tBananas:  p.TBananas,
	}
}

// MaxTest returns the index of the variant with the largest |t| among those
// whose class-0 count reached the floor. Variant 0 wins when none qualifies.
func (e *Engine) MaxTest(v *ttest.Variants) int {
	ret := 0
	max := 0.0
	for i := 0; i < v.Len(); i++ {
		test := v.At(i)
		if test.Count(leakage.ClassFixed) < e.enough {
			continue
		}
		t, err := test.Compute()
		if err != nil {
			continue
		}
		if x := math.Abs(t); x > max {
			max = x
			ret = i
		}
	}
	return ret
}

// Classify grades |t| against the two thresholds.
func (e *Engine) Classify(t float64) leakage.Severity {
	x := math.Abs(t)
	switch {
	case x > e.tBananas:
		return leakage.SeverityBananas
	case x > e.tModerate:
		return leakage.SeverityModerate
	default:
		return leakage.SeverityNone
	}
}

// Decide builds the report for the current state of the variants. The caller
// fills identity, timing and measurement bookkeeping.
func (e *Engine) Decide(v *ttest.Variants, table *percentile.Table) leakage.Report {
	mt := e.MaxTest(v)
	test := v.At(mt)

	r := leakage.Report{
		Variant:     mt,
		VariantKind: v.Kind(mt),
		Class0:      classStats(test, leakage.ClassFixed),
		Class1:      classStats(test, leakage.ClassRandom),
		Traces:      test.Total(),
	}
	if r.VariantKind == leakage.VariantCropped && table != nil && table.Computed() {
		r.CropThreshold = table.At(mt - 1)
	}

	t, err := test.Compute()
	sufficient := err == nil
	if sufficient {
		// a zero-variance difference is reported as the largest finite t
		r.MaxT = math.Min(math.Abs(t), math.MaxFloat64)
		if p, err := test.PValue(); err == nil {
			r.PValue = p
		}
	} else {
		r.PValue = 1
	}

	if r.Traces > 0 {
		r.Tau = r.MaxT / math.Sqrt(float64(r.Traces))
	}
	// zero when no effect has been observed yet
	if r.Tau > 0 {
		r.TracesToDetect = (leakage.DetectT * leakage.DetectT) / (r.Tau * r.Tau)
	}
	if short := e.enough - r.Traces; short > 0 {
		r.StillToGo = short
	}

	r.Severity = e.Classify(r.MaxT)
	r.ConstantTime = r.Severity == leakage.SeverityNone
	switch {
	case !r.ConstantTime:
		r.Outcome = leakage.OutcomeLeaking
	case sufficient && test.Count(leakage.ClassFixed) >= e.enough:
		r.Outcome = leakage.OutcomeNoLeak
	default:
		r.Outcome = leakage.OutcomeInconclusive
	}
	return r
}

// Confident reports whether an early stop is justified: the statistic passed
// t_bananas on a variant that met the floor.
func (e *Engine) Confident(r *leakage.Report) bool {
	return r.Severity == leakage.SeverityBananas && r.Class0.Count >= e.enough
}

func classStats(a *ttest.Accumulator, c leakage.Class) leakage.ClassStats {
	variance := a.Variance(c)
	return leakage.ClassStats{
		Count:    a.Count(c),
		Mean:     a.Mean(c),
		Variance: variance,
		StdDev:   math.Sqrt(variance),
	}
}
