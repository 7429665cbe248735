//go:build amd64

package cycles

import (
	"ctleak/ports"
)

// rdtsc reads the time stamp counter behind an LFENCE.
// Implemented in cycles_amd64.s
func rdtsc() uint64

// TSC reads the x86 time stamp counter.
type TSC struct{}

func (TSC) Now() int64 {
	return int64(rdtsc())
}

func (TSC) Name() string {
	return "rdtsc"
}

func hardware() ports.CycleSource {
	return TSC{}
}
