package leakage

import (
	"fmt"
	"math"

	"ctleak/domain/core"
)

const (
	// EnoughMeasurements is the class-0 count a variant needs before it takes part in selection.
	EnoughMeasurements = 10000
	// SecondOrderFloor is the combined uncropped count that activates the second-order test.
	SecondOrderFloor = 10000
	// TThresholdBananas: test failed, with overwhelming probability.
	TThresholdBananas = 500
	// TThresholdModerate: test failed.
	TThresholdModerate = 10
	// DetectT is the t value a projection aims to reach.
	DetectT = 5
)

// Params fixes every knob of a detection run.
type Params struct {
	NumberMeasurements int   `json:"number_measurements"`
	DropSize           int   `json:"drop_size"`
	ChunkSize          int   `json:"chunk_size"`
	NumberPercentiles  int   `json:"number_percentiles"`
	TotalMeasurements  int   `json:"total_measurements"`
	EnoughMeasurements int64 `json:"enough_measurements"`
	SecondOrderFloor   int64 `json:"second_order_floor"`

	TModerate float64 `json:"t_moderate"`
	TBananas  float64 `json:"t_bananas"`

	// EarlyStop ends the run once a variant above the floor exceeds TBananas.
	EarlyStop bool `json:"early_stop"`
	// MaxBatchBytes caps the buffers allocated per batch.
	MaxBatchBytes int64 `json:"max_batch_bytes"`
}

// DefaultParams mirrors the classic harness: 150 trials per batch, 20 dropped at each edge.
// The budget buys about 75000 class-0 trials, well past EnoughMeasurements, so
// a default run can conclude "no detected leak".
func DefaultParams() Params {
	return Params{
		NumberMeasurements: 150,
		DropSize:           20,
		ChunkSize:          32,
		NumberPercentiles:  100,
		TotalMeasurements:  150 * 1000,
		EnoughMeasurements: EnoughMeasurements,
		SecondOrderFloor:   SecondOrderFloor,
		TModerate:          TThresholdModerate,
		TBananas:           TThresholdBananas,
		MaxBatchBytes:      1 << 30,
	}
}

// Validate rejects inconsistent parameters. Nothing is clamped.
func (p Params) Validate() error {
	if p.NumberMeasurements <= 0 {
		return core.NewConfigError("number_measurements", "must be positive")
	}
	if p.DropSize < 0 {
		return core.NewConfigError("drop_size", "must not be negative")
	}
	if p.NumberMeasurements <= 2*p.DropSize {
		return core.ErrDropTooLarge
	}
	if p.NumberPercentiles <= 0 {
		return core.ErrNoPercentiles
	}
	if p.ChunkSize <= 0 {
		return core.ErrNoChunk
	}
	if p.TotalMeasurements < 0 {
		return core.NewConfigError("total_measurements", "must not be negative")
	}
	if p.EnoughMeasurements < 0 || p.SecondOrderFloor < 0 {
		return core.NewConfigError("floors", "must not be negative")
	}
	if p.TModerate <= 0 || p.TBananas < p.TModerate {
		return core.NewConfigError("thresholds", "need 0 < t_moderate <= t_bananas")
	}
	if p.MaxBatchBytes <= 0 {
		return core.NewConfigError("max_batch_bytes", "must be positive")
	}
	return nil
}

// Window is the number of trials per batch that reach the statistics.
func (p Params) Window() int {
	return p.NumberMeasurements - 2*p.DropSize
}

// Rounds is how many batches the total budget buys, always at least one.
func (p Params) Rounds() int {
	return p.TotalMeasurements/p.Window() + 1
}

// Variants is the size of the test variant set.
func (p Params) Variants() int {
	return 1 + p.NumberPercentiles + 1
}

// perTrialOverhead is the fixed bytes a trial costs besides its input: two
// tick readings, the differenced time and the class.
const perTrialOverhead = 3*8 + 1

// BatchBytes estimates the buffers one batch allocates: two tick arrays, the
// differenced times, the classes and the input payloads. A size that does not
// fit in an int is reported as core.ErrResourceExhausted.
func (p Params) BatchBytes() (int64, error) {
	if p.NumberMeasurements <= 0 || p.ChunkSize < 0 {
		return 0, core.NewConfigError("batch", "needs positive number_measurements and chunk_size")
	}
	n := int64(p.NumberMeasurements)
	if p.ChunkSize > math.MaxInt-perTrialOverhead {
		return 0, fmt.Errorf("%w: chunk_size %d overflows the address space", core.ErrResourceExhausted, p.ChunkSize)
	}
	perTrial := int64(p.ChunkSize) + perTrialOverhead
	if perTrial > math.MaxInt/n {
		return 0, fmt.Errorf("%w: %d trials of %d bytes overflow the address space",
			core.ErrResourceExhausted, p.NumberMeasurements, p.ChunkSize)
	}
	return n * perTrial, nil
}
