// Package cycles reads the tick counters that bracket a timed trial.
package cycles

import (
	"time"

	"ctleak/ports"
)

// Monotonic counts nanoseconds on the runtime's monotonic clock.
type Monotonic struct {
	epoch time.Time
}

// NewMonotonic returns a nanosecond source starting near zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{epoch: time.Now()}
}

func (m *Monotonic) Now() int64 {
	return int64(time.Since(m.epoch))
}

func (m *Monotonic) Name() string {
	return "monotonic"
}

// Default returns the most precise source available on this architecture.
func Default() ports.CycleSource {
	if src := hardware(); src != nil {
		return src
	}
	return NewMonotonic()
}
