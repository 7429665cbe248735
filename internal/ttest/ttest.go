// Package ttest implements an online two-class Welch's t-test.
//
// Every accumulator keeps only count, mean and the sum of squared deviations
// per class (Welford), so Push is O(1) and never allocates.
package ttest

import (
	"math"

	"ctleak/domain/core"
	"ctleak/domain/leakage"

	"gonum.org/v1/gonum/stat/distuv"
)

// Accumulator is the streaming state of one test variant. The zero value is ready to use.
type Accumulator struct {
	mean [2]float64
	m2   [2]float64
	n    [2]float64
}

// Push adds one observation to class.
func (a *Accumulator) Push(x float64, class leakage.Class) {
	c := class & 1
	a.n[c]++
	delta := x - a.mean[c]
	a.mean[c] += delta / a.n[c]
	a.m2[c] += delta * (x - a.mean[c])
}

// Compute returns Welch's t = (mean1 - mean0) / sqrt(var1/n1 + var0/n0).
// It returns core.ErrInsufficientData until both classes hold at least two samples.
func (a *Accumulator) Compute() (float64, error) {
	if a.n[0] < 2 || a.n[1] < 2 {
		return 0, core.ErrInsufficientData
	}
	num := a.mean[1] - a.mean[0]
	den := math.Sqrt(a.m2[0]/(a.n[0]-1)/a.n[0] + a.m2[1]/(a.n[1]-1)/a.n[1])
	if den == 0 {
		if num == 0 {
			return 0, nil
		}
		return math.Copysign(math.Inf(1), num), nil
	}
	return num / den, nil
}

// Count returns the number of observations pushed into class.
func (a *Accumulator) Count(class leakage.Class) int64 {
	return int64(a.n[class&1])
}

// Total returns n0+n1.
func (a *Accumulator) Total() int64 {
	return int64(a.n[0] + a.n[1])
}

// Mean returns the running mean of class.
func (a *Accumulator) Mean(class leakage.Class) float64 {
	return a.mean[class&1]
}

// M2 returns the running sum of squared deviations of class.
func (a *Accumulator) M2(class leakage.Class) float64 {
	return a.m2[class&1]
}

// Variance returns the unbiased sample variance of class, zero below two samples.
func (a *Accumulator) Variance(class leakage.Class) float64 {
	c := class & 1
	if a.n[c] < 2 {
		return 0
	}
	return a.m2[c] / (a.n[c] - 1)
}

// DegreesOfFreedom is the Welch-Satterthwaite approximation.
func (a *Accumulator) DegreesOfFreedom() (float64, error) {
	if a.n[0] < 2 || a.n[1] < 2 {
		return 0, core.ErrInsufficientData
	}
	s0 := a.Variance(0) / a.n[0]
	s1 := a.Variance(1) / a.n[1]
	if s0+s1 == 0 {
		return a.n[0] + a.n[1] - 2, nil
	}
	return (s0 + s1) * (s0 + s1) / (s0*s0/(a.n[0]-1) + s1*s1/(a.n[1]-1)), nil
}

// PValue is the two-sided probability of a |t| at least this large under equal means.
func (a *Accumulator) PValue() (float64, error) {
	t, err := a.Compute()
	if err != nil {
		return 1, err
	}
	if math.IsInf(t, 0) {
		return 0, nil
	}
	df, err := a.DegreesOfFreedom()
	if err != nil {
		return 1, err
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t)), nil
}
