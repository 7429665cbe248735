// Package rng provides the random sources used to assign classes and build inputs.
package rng

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"

	"ctleak/ports"
)

// NewCrypto returns the operating system CSPRNG.
func NewCrypto() ports.RandomSource {
	return rand.Reader
}

// NewSeeded returns a reproducible ChaCha8 stream keyed by seed.
func NewSeeded(seed uint64) ports.RandomSource {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	binary.LittleEndian.PutUint64(key[8:16], ^seed)
	return mrand.NewChaCha8(key)
}

// New picks the seeded stream for a non-zero seed and the CSPRNG otherwise.
func New(seed uint64) ports.RandomSource {
	if seed == 0 {
		return NewCrypto()
	}
	return NewSeeded(seed)
}
