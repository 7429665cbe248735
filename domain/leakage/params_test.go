package leakage

import (
	"math"
	"testing"

	"ctleak/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParamsValid(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, 110, p.Window())
	assert.Equal(t, 102, p.Variants())
	assert.Equal(t, 150000/110+1, p.Rounds())
}

func TestDefaultBudgetReachesFloor(t *testing.T) {
	p := DefaultParams()
	// classes are drawn uniformly, so half the in-window trials are class 0
	class0 := int64(p.Rounds()*p.Window()) / 2
	assert.Greater(t, class0, 2*p.EnoughMeasurements)
	assert.Greater(t, class0, p.SecondOrderFloor)
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		want   error
	}{
		{"drop equals half", func(p *Params) { p.NumberMeasurements = 40; p.DropSize = 20 }, core.ErrDropTooLarge},
		{"drop exceeds half", func(p *Params) { p.DropSize = 100 }, core.ErrDropTooLarge},
		{"zero percentiles", func(p *Params) { p.NumberPercentiles = 0 }, core.ErrNoPercentiles},
		{"zero chunk", func(p *Params) { p.ChunkSize = 0 }, core.ErrNoChunk},
		{"negative drop", func(p *Params) { p.DropSize = -1 }, core.ErrInvalidConfig},
		{"inverted thresholds", func(p *Params) { p.TBananas = 5 }, core.ErrInvalidConfig},
		{"no memory", func(p *Params) { p.MaxBatchBytes = 0 }, core.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, core.IsConfigError(err))
		})
	}
}

func TestRoundsAtLeastOne(t *testing.T) {
	p := DefaultParams()
	p.TotalMeasurements = 0
	assert.Equal(t, 1, p.Rounds())
}

func TestBatchBytes(t *testing.T) {
	p := DefaultParams()
	need, err := p.BatchBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(3*8*150+150+150*32), need)
}

func TestBatchBytesOverflow(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		// product wraps to exactly zero in 64 bits
		{"product wraps to zero", func(p *Params) { p.NumberMeasurements = 1 << 32; p.ChunkSize = 1<<32 - 25 }},
		{"huge chunk", func(p *Params) { p.ChunkSize = math.MaxInt - 10 }},
		{"huge batch", func(p *Params) { p.NumberMeasurements = math.MaxInt / 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			require.NoError(t, p.Validate())
			_, err := p.BatchBytes()
			assert.ErrorIs(t, err, core.ErrResourceExhausted)
			assert.True(t, core.IsResourceError(err))
		})
	}
}
