package queue

import (
	"fmt"

	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/internal/generator"
)

// fixture builds the two queues every trial starts from: one element for
// class 0 and two for class 1. Both are built regardless of class so setup
// costs the same either way.
type fixture struct {
	tokens *generator.TokenPool
	q      [2]*Queue
}

func (f *fixture) reset() {
	f.q[0] = New()
	f.q[1] = New()
	f.q[0].InsertHead(f.tokens.Next())
	f.q[1].InsertHead(f.tokens.Next())
	f.q[1].InsertHead(f.tokens.Next())
}

func (f *fixture) teardown() {
	f.q[0], f.q[1] = nil, nil
}

// InsertTailDevice times InsertTail on a one or two element queue.
type InsertTailDevice struct {
	fixture
	pending string
	class   leakage.Class
}

// NewInsertTailDevice draws its strings from tokens.
func NewInsertTailDevice(tokens *generator.TokenPool) *InsertTailDevice {
	return &InsertTailDevice{fixture: fixture{tokens: tokens}}
}

func (d *InsertTailDevice) Reset() error {
	d.pending = d.tokens.Next()
	d.reset()
	return nil
}

func (d *InsertTailDevice) Operate(_ []byte, class leakage.Class) {
	d.class = class
	d.q[class&1].InsertTail(d.pending)
}

func (d *InsertTailDevice) Teardown() error {
	defer d.teardown()
	for c := range d.q {
		want := c + 1
		if c == int(d.class&1) {
			want++
		}
		if got := d.q[c].Size(); got != want {
			return fmt.Errorf("%w: class %d queue holds %d, want %d", core.ErrSelfCheck, c, got, want)
		}
	}
	return nil
}

// SizeDevice times Size on a one or two element queue.
type SizeDevice struct {
	fixture
	class leakage.Class
	got   int
}

// NewSizeDevice draws its strings from tokens.
func NewSizeDevice(tokens *generator.TokenPool) *SizeDevice {
	return &SizeDevice{fixture: fixture{tokens: tokens}}
}

func (d *SizeDevice) Reset() error {
	d.reset()
	return nil
}

func (d *SizeDevice) Operate(_ []byte, class leakage.Class) {
	d.class = class
	d.got = d.q[class&1].Size()
}

func (d *SizeDevice) Teardown() error {
	defer d.teardown()
	if want := int(d.class&1) + 1; d.got != want {
		return fmt.Errorf("%w: size %d, want %d", core.ErrSelfCheck, d.got, want)
	}
	return nil
}
