package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctleak/adapters/rng"
	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/internal/generator"
)

func TestEqualFunctions(t *testing.T) {
	tests := []struct {
		a, b []byte
		want bool
	}{
		{[]byte("abc"), []byte("abc"), true},
		{[]byte("abc"), []byte("abd"), false},
		{[]byte("abc"), []byte("xbc"), false},
		{[]byte("abc"), []byte("ab"), false},
		{nil, []byte{}, true},
		{[]byte{0xff}, []byte{0x7f}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EqualConstantTime(tt.a, tt.b), "ct %q %q", tt.a, tt.b)
		assert.Equal(t, tt.want, EqualEarlyExit(tt.a, tt.b), "vt %q %q", tt.a, tt.b)
	}
}

func TestCtEq(t *testing.T) {
	for x := 0; x < 256; x++ {
		for _, y := range []int{0, 1, 127, 128, 255, x} {
			want := choice(0)
			if x == y {
				want = 1
			}
			assert.Equal(t, want, ctEq(byte(x), byte(y)))
		}
	}
}

func TestDeviceInputs(t *testing.T) {
	g := generator.New(rng.NewSeeded(8))
	d, err := NewVariableTime(g, 16)
	require.NoError(t, err)

	inputs := make([][]byte, 4)
	for i := range inputs {
		inputs[i] = make([]byte, 32)
	}
	classes := []leakage.Class{0, 1, 0, 1}
	require.NoError(t, d.PrepareInputs(inputs, classes))

	for i, c := range classes {
		require.NoError(t, d.Reset())
		d.Operate(inputs[i], c)
		require.NoError(t, d.Teardown())
		assert.Equal(t, c == leakage.ClassFixed, d.got)
	}
}

func TestDeviceErrors(t *testing.T) {
	g := generator.New(rng.NewSeeded(8))
	_, err := NewConstantTime(g, 0)
	assert.True(t, core.IsConfigError(err))

	d, err := NewConstantTime(g, 16)
	require.NoError(t, err)
	err = d.PrepareInputs([][]byte{make([]byte, 8)}, []leakage.Class{0})
	assert.True(t, core.IsConfigError(err))

	d.Equal = func(a, b []byte) bool { return false }
	d.Operate(make([]byte, 16), leakage.ClassFixed)
	assert.ErrorIs(t, d.Teardown(), core.ErrSelfCheck)
}
