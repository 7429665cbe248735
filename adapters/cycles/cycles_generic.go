//go:build !amd64

package cycles

import (
	"ctleak/ports"
)

func hardware() ports.CycleSource {
	return nil
}
