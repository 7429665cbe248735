// Package generator assigns trial classes and produces trial inputs.
package generator

import (
	"fmt"
	"io"

	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/ports"
)

// Generator draws classes, payloads and tokens from one random source.
type Generator struct {
	src ports.RandomSource
	buf []byte
}

// New wraps src.
func New(src ports.RandomSource) *Generator {
	return &Generator{src: src}
}

func (g *Generator) read(p []byte) error {
	if _, err := io.ReadFull(g.src, p); err != nil {
		return fmt.Errorf("%w: %v", core.ErrRandomnessFailed, err)
	}
	return nil
}

// AssignClasses fills classes with independent unbiased bits.
func (g *Generator) AssignClasses(classes []leakage.Class) error {
	need := (len(classes) + 7) / 8
	if cap(g.buf) < need {
		g.buf = make([]byte, need)
	}
	bits := g.buf[:need]
	if err := g.read(bits); err != nil {
		return err
	}
	for i := range classes {
		classes[i] = leakage.Class((bits[i/8] >> (i % 8)) & 1)
	}
	return nil
}

// FillInputs overwrites every payload with random bytes.
func (g *Generator) FillInputs(inputs [][]byte) error {
	for _, in := range inputs {
		if err := g.read(in); err != nil {
			return err
		}
	}
	return nil
}

// GenerateTokens returns n independent random strings of length size.
func (g *Generator) GenerateTokens(n, size int) ([][]byte, error) {
	backing := make([]byte, n*size)
	if err := g.read(backing); err != nil {
		return nil, err
	}
	tokens := make([][]byte, n)
	for i := range tokens {
		tokens[i] = backing[i*size : (i+1)*size : (i+1)*size]
	}
	return tokens, nil
}

// TokenPool hands out a fixed set of random strings round robin.
type TokenPool struct {
	tokens []string
	next   int
}

// NewTokenPool draws n tokens of length size from g.
func NewTokenPool(g *Generator, n, size int) (*TokenPool, error) {
	if n <= 0 || size <= 0 {
		return nil, core.NewConfigError("token pool", "needs positive count and length")
	}
	raw, err := g.GenerateTokens(n, size)
	if err != nil {
		return nil, err
	}
	pool := &TokenPool{tokens: make([]string, n)}
	for i, t := range raw {
		pool.tokens[i] = string(t)
	}
	return pool, nil
}

// Next returns the following token, wrapping at the end of the pool.
func (p *TokenPool) Next() string {
	p.next = (p.next + 1) % len(p.tokens)
	return p.tokens[p.next]
}

// Len is the pool size.
func (p *TokenPool) Len() int {
	return len(p.tokens)
}
