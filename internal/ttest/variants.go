package ttest

import (
	"ctleak/domain/leakage"
)

// Variants is the fixed test variant set of one detection run: index 0 is the
// uncropped test, 1..k are cropped at percentile k-1, the last is second order.
type Variants struct {
	tests       []Accumulator
	percentiles int
}

// NewVariants allocates 1 + percentiles + 1 zeroed accumulators.
func NewVariants(percentiles int) *Variants {
	return &Variants{
		tests:       make([]Accumulator, percentiles+2),
		percentiles: percentiles,
	}
}

// Len is the number of variants.
func (v *Variants) Len() int {
	return len(v.tests)
}

// At returns variant i.
func (v *Variants) At(i int) *Accumulator {
	return &v.tests[i]
}

// Uncropped returns variant 0.
func (v *Variants) Uncropped() *Accumulator {
	return &v.tests[0]
}

// Cropped returns the variant cropped at percentile threshold j.
func (v *Variants) Cropped(j int) *Accumulator {
	return &v.tests[j+1]
}

// SecondOrder returns the centered-square variant.
func (v *Variants) SecondOrder() *Accumulator {
	return &v.tests[v.percentiles+1]
}

// Percentiles is the number of cropped variants.
func (v *Variants) Percentiles() int {
	return v.percentiles
}

// Kind classifies variant i.
func (v *Variants) Kind(i int) leakage.VariantKind {
	switch {
	case i == 0:
		return leakage.VariantUncropped
	case i == v.percentiles+1:
		return leakage.VariantSecondOrder
	default:
		return leakage.VariantCropped
	}
}
