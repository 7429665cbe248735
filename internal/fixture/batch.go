package fixture

import (
	"ctleak/domain/leakage"
)

// batch holds the buffers of one pass. They are reused by every batch of a
// run; nothing in them survives into the statistics except through updates.
type batch struct {
	classes []leakage.Class
	inputs  [][]byte
	before  []int64
	after   []int64
	exec    []int64
}

func newBatch(n, chunk int) *batch {
	payload := make([]byte, n*chunk)
	inputs := make([][]byte, n)
	for i := range inputs {
		inputs[i] = payload[i*chunk : (i+1)*chunk : (i+1)*chunk]
	}
	return &batch{
		classes: make([]leakage.Class, n),
		inputs:  inputs,
		before:  make([]int64, n),
		after:   make([]int64, n),
		exec:    make([]int64, n),
	}
}

// differentiate leaves negative values in place; they mark wraparound gaps.
func (b *batch) differentiate() {
	for i := range b.exec {
		b.exec[i] = b.after[i] - b.before[i]
	}
}

func (b *batch) window(drop int) []int64 {
	return b.exec[drop : len(b.exec)-drop]
}
