package mulhi

import (
	"fmt"
	"math/bits"

	"ctleak/domain/core"
	"ctleak/domain/leakage"
)

// Device times one high-half multiply per trial. Class 1 uses the 32x32
// product, class 0 the 64x64 one. Operands are decoded and the multiply is
// chosen before the bracket; the result is checked after it.
type Device struct {
	ops     []Operand
	inputs  [][]byte
	classes []leakage.Class
	next    int

	cur   Operand
	class leakage.Class
	mul   func(*Device)
	got   uint32
}

func mulHigh64(d *Device) {
	hi, _ := bits.Mul64(d.cur.M0, uint64(d.cur.N))
	d.got = uint32(hi)
}

func mulHigh32(d *Device) {
	d.got = uint32((uint64(d.cur.M1) * uint64(d.cur.N)) >> 32)
}

// NewDevice measures against ops, which must cover a whole batch.
func NewDevice(ops []Operand) (*Device, error) {
	if len(ops) == 0 {
		return nil, core.NewConfigError("mulhi", "needs at least one operand row")
	}
	return &Device{ops: ops}, nil
}

// PrepareInputs copies one operand row into each trial input. Every batch
// starts again from the first row.
func (d *Device) PrepareInputs(inputs [][]byte, classes []leakage.Class) error {
	if len(classes) != len(inputs) {
		return fmt.Errorf("%d classes for %d inputs", len(classes), len(inputs))
	}
	if len(d.ops) < len(inputs) {
		return fmt.Errorf("%w: %d rows for %d trials", core.ErrOperandsExhausted, len(d.ops), len(inputs))
	}
	for i, in := range inputs {
		if len(in) < OperandSize {
			return core.NewConfigError("chunk_size", fmt.Sprintf("must be at least %d for mulhi", OperandSize))
		}
		d.ops[i].encode(in)
	}
	d.inputs = inputs
	d.classes = classes
	d.next = 0
	return nil
}

func (d *Device) Reset() error {
	if d.next >= len(d.inputs) {
		return fmt.Errorf("trial %d has no prepared operands", d.next)
	}
	d.cur = decode(d.inputs[d.next])
	d.class = d.classes[d.next]
	d.mul = mulHigh64
	if d.class == leakage.ClassRandom {
		d.mul = mulHigh32
	}
	d.got = 0
	d.next++
	return nil
}

// Operate runs the multiply Reset selected for the prepared class.
func (d *Device) Operate(_ []byte, _ leakage.Class) {
	d.mul(d)
}

func (d *Device) Teardown() error {
	if d.got != d.cur.Q || d.cur.N/d.cur.D != d.cur.Q {
		return fmt.Errorf("%w: class %d computed %d for %d/%d, want %d",
			core.ErrSelfCheck, d.class, d.got, d.cur.N, d.cur.D, d.cur.Q)
	}
	return nil
}
