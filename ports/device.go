package ports

import (
	"ctleak/domain/leakage"
)

// Device is the operation under test.
//
// Reset and Teardown run outside the timed bracket and must cost the same for
// either class. Operate is the only call the cycle source brackets: it must not
// block or log, and any allocation it makes is part of what is measured.
type Device interface {
	Reset() error
	Operate(input []byte, class leakage.Class)
	Teardown() error
}

// InputPreparer is implemented by devices that bring their own operands
// instead of random payload bytes.
type InputPreparer interface {
	PrepareInputs(inputs [][]byte, classes []leakage.Class) error
}

// DeviceFactory builds a fresh device for one detection run.
type DeviceFactory func() (Device, error)
