// Package compare times byte-string equality checks against a fixed secret.
// Class 0 inputs equal the secret, class 1 inputs are random.
package compare

import (
	"fmt"

	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/internal/generator"
)

// choice is 1 or 0, never anything else.
type choice uint

// ctEq returns 1 when x == y without branching on either.
func ctEq(x, y byte) choice {
	return choice((uint32(x^y) - 1) >> 31)
}

// EqualConstantTime walks both strings to the end regardless of where they differ.
func EqualConstantTime(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	equal := choice(1)
	for i := range a {
		equal &= ctEq(a[i], b[i])
	}
	return equal == 1
}

// EqualEarlyExit returns at the first differing byte.
func EqualEarlyExit(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Device compares each trial input against the secret with Equal.
type Device struct {
	Equal  func(a, b []byte) bool
	secret []byte
	gen    *generator.Generator

	class leakage.Class
	got   bool
}

// NewDevice draws a secret of size bytes from g, which also feeds the class 1 inputs.
func NewDevice(equal func(a, b []byte) bool, g *generator.Generator, size int) (*Device, error) {
	if size <= 0 {
		return nil, core.NewConfigError("compare", "secret length must be positive")
	}
	secret, err := g.GenerateTokens(1, size)
	if err != nil {
		return nil, err
	}
	return &Device{Equal: equal, secret: secret[0], gen: g}, nil
}

// NewConstantTime is the ct_compare target.
func NewConstantTime(g *generator.Generator, size int) (*Device, error) {
	return NewDevice(EqualConstantTime, g, size)
}

// NewVariableTime is the vt_compare target.
func NewVariableTime(g *generator.Generator, size int) (*Device, error) {
	return NewDevice(EqualEarlyExit, g, size)
}

// PrepareInputs copies the secret into class 0 inputs and randomizes the rest.
func (d *Device) PrepareInputs(inputs [][]byte, classes []leakage.Class) error {
	for i, in := range inputs {
		if len(in) < len(d.secret) {
			return core.NewConfigError("chunk_size", fmt.Sprintf("must be at least %d for compare", len(d.secret)))
		}
		if classes[i] == leakage.ClassFixed {
			copy(in, d.secret)
			continue
		}
		if err := d.gen.FillInputs(inputs[i : i+1]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) Reset() error {
	return nil
}

func (d *Device) Operate(input []byte, class leakage.Class) {
	d.class = class
	d.got = d.Equal(input[:len(d.secret)], d.secret)
}

// Teardown checks class 0 compared equal. A random input can match the
// secret only with negligible probability, so class 1 is not checked.
func (d *Device) Teardown() error {
	if d.class == leakage.ClassFixed && !d.got {
		return fmt.Errorf("%w: equal strings compared unequal", core.ErrSelfCheck)
	}
	return nil
}
