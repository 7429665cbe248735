// Package percentile computes the cropping thresholds of a detection run.
package percentile

import (
	"math"

	"ctleak/domain/core"
)

// Quantile returns the order statistic at index floor(len(samples)*which) with
// expected linear cost. samples is reordered in place.
func Quantile(samples []int64, which float64) (int64, error) {
	n := len(samples)
	if n == 0 {
		return 0, core.ErrNoSamples
	}
	pos := int(float64(n) * which)
	if pos < 0 {
		pos = 0
	}
	if pos >= n {
		pos = n - 1
	}
	return Select(samples, pos), nil
}

// Select partially orders a so that a[k] is its k-th smallest element and returns it.
// It runs Hoare-style quickselect with a median-of-three pivot.
func Select(a []int64, k int) int64 {
	lo, hi := 0, len(a)-1
	for lo < hi {
		mid := lo + (hi-lo)/2
		if a[mid] < a[lo] {
			a[mid], a[lo] = a[lo], a[mid]
		}
		if a[hi] < a[lo] {
			a[hi], a[lo] = a[lo], a[hi]
		}
		if a[hi] < a[mid] {
			a[hi], a[mid] = a[mid], a[hi]
		}
		pivot := a[mid]

		i, j := lo, hi
		for i <= j {
			for a[i] < pivot {
				i++
			}
			for a[j] > pivot {
				j--
			}
			if i <= j {
				a[i], a[j] = a[j], a[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return a[k]
		}
	}
	return a[k]
}

// Schedule returns the quantile of threshold i out of k: 1 - 0.5^(10*(i+1)/k).
// Thresholds crowd the fast bulk of the distribution and thin out in the tail.
func Schedule(i, k int) float64 {
	return 1 - math.Pow(0.5, 10*float64(i+1)/float64(k))
}

// Table holds the frozen cropping thresholds of one run.
type Table struct {
	values   []int64
	computed bool
}

// NewTable returns an uncomputed table with k slots.
func NewTable(k int) *Table {
	return &Table{values: make([]int64, k)}
}

// Computed reports whether Prepare has succeeded.
func (t *Table) Computed() bool {
	return t.computed
}

// Len is the number of thresholds.
func (t *Table) Len() int {
	return len(t.values)
}

// At returns threshold j.
func (t *Table) At(j int) int64 {
	return t.values[j]
}

// Values returns a copy of the thresholds.
func (t *Table) Values() []int64 {
	out := make([]int64, len(t.values))
	copy(out, t.values)
	return out
}

// Prepare fills the table from samples on first use and is a no-op afterwards.
// samples is not modified.
func (t *Table) Prepare(samples []int64) error {
	if t.computed {
		return nil
	}
	if len(samples) == 0 {
		return core.ErrNoSamples
	}
	scratch := make([]int64, len(samples))
	k := len(t.values)
	for i := 0; i < k; i++ {
		copy(scratch, samples)
		v, err := Quantile(scratch, Schedule(i, k))
		if err != nil {
			return err
		}
		t.values[i] = v
	}
	t.computed = true
	return nil
}
