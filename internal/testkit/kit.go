// Package testkit provides deterministic timing fixtures for engine tests.
package testkit

import (
	"math"
	"math/rand/v2"

	"ctleak/domain/leakage"
)

// VirtualClock is a cycle source that only moves when a fake device advances it.
type VirtualClock struct {
	now int64
}

// NewVirtualClock starts the clock at origin.
func NewVirtualClock(origin int64) *VirtualClock {
	return &VirtualClock{now: origin}
}

func (c *VirtualClock) Now() int64 {
	return c.now
}

func (c *VirtualClock) Name() string {
	return "virtual"
}

// Advance moves the clock forward by ticks.
func (c *VirtualClock) Advance(ticks int64) {
	c.now += ticks
}

// Rewind moves the clock backwards, simulating a counter wraparound.
func (c *VirtualClock) Rewind(ticks int64) {
	c.now -= ticks
}

// TimingFunc returns the tick cost of one operation for a class.
type TimingFunc func(class leakage.Class) int64

// NormalTiming draws both classes from N(mean, std) and adds shift to class 1.
// Costs are rounded and never below one tick.
func NormalTiming(seed uint64, mean, std, shift float64) TimingFunc {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func(class leakage.Class) int64 {
		x := mean + std*r.NormFloat64()
		if class == leakage.ClassRandom {
			x += shift
		}
		return max(1, int64(math.Round(x)))
	}
}

// ExponentialTiming draws heavy-tailed costs: base plus Exp(1)*scale.
func ExponentialTiming(seed uint64, base, scale float64) TimingFunc {
	r := rand.New(rand.NewPCG(seed, ^seed))
	return func(leakage.Class) int64 {
		return int64(base + scale*r.ExpFloat64())
	}
}

// ConstantTiming costs the same for every trial.
func ConstantTiming(ticks int64) TimingFunc {
	return func(leakage.Class) int64 { return ticks }
}

// SyntheticDevice spends Timing(class) ticks of the virtual clock in Operate
// and SetupCost ticks in Reset and Teardown, so a fixture that times anything
// besides Operate is caught by the test.
type SyntheticDevice struct {
	Clock     *VirtualClock
	Timing    TimingFunc
	SetupCost int64
	// WrapAt lists 1-based Operate calls that rewind the clock instead.
	WrapAt map[int]bool

	Resets    int
	Operates  int
	Teardowns int
	Classes   [2]int

	ResetErr    error
	TeardownErr error
}

// NewSyntheticDevice wires a device to clock.
func NewSyntheticDevice(clock *VirtualClock, timing TimingFunc) *SyntheticDevice {
	return &SyntheticDevice{Clock: clock, Timing: timing, SetupCost: 1000}
}

func (d *SyntheticDevice) Reset() error {
	d.Resets++
	d.Clock.Advance(d.SetupCost)
	return d.ResetErr
}

func (d *SyntheticDevice) Operate(_ []byte, class leakage.Class) {
	d.Operates++
	d.Classes[class&1]++
	if d.WrapAt[d.Operates] {
		d.Clock.Rewind(1 << 20)
		return
	}
	d.Clock.Advance(d.Timing(class))
}

func (d *SyntheticDevice) Teardown() error {
	d.Teardowns++
	d.Clock.Advance(d.SetupCost)
	return d.TeardownErr
}

// BytesSource is a deterministic ports.RandomSource cycling through a pattern.
type BytesSource struct {
	Pattern []byte
	pos     int
}

func (s *BytesSource) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = s.Pattern[s.pos%len(s.Pattern)]
		s.pos++
	}
	return len(p), nil
}

// FailingSource returns Err on every read.
type FailingSource struct {
	Err error
}

func (s FailingSource) Read([]byte) (int, error) {
	return 0, s.Err
}
