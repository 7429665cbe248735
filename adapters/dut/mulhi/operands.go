// Package mulhi times the high half of a fixed-point multiply, the core of
// division by a precomputed reciprocal.
package mulhi

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strings"

	"ctleak/domain/core"
	"ctleak/internal/generator"
)

// OperandSize is the encoded size of one Operand inside a trial input.
const OperandSize = 24

// Operand is one line of an operand file: "m0 m1 n d q", where
// q = n/d = (m0*n)>>64 = (m1*n)>>32.
type Operand struct {
	M0 uint64
	M1 uint32
	N  uint32
	D  uint32
	Q  uint32
}

// Valid reports whether both reciprocals reproduce n/d.
func (o Operand) Valid() bool {
	if o.D == 0 || o.N/o.D != o.Q {
		return false
	}
	hi, _ := bits.Mul64(o.M0, uint64(o.N))
	return uint32(hi) == o.Q && uint32((uint64(o.M1)*uint64(o.N))>>32) == o.Q
}

func (o Operand) encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:], o.M0)
	binary.LittleEndian.PutUint32(dst[8:], o.M1)
	binary.LittleEndian.PutUint32(dst[12:], o.N)
	binary.LittleEndian.PutUint32(dst[16:], o.D)
	binary.LittleEndian.PutUint32(dst[20:], o.Q)
}

func decode(src []byte) Operand {
	return Operand{
		M0: binary.LittleEndian.Uint64(src[0:]),
		M1: binary.LittleEndian.Uint32(src[8:]),
		N:  binary.LittleEndian.Uint32(src[12:]),
		D:  binary.LittleEndian.Uint32(src[16:]),
		Q:  binary.LittleEndian.Uint32(src[20:]),
	}
}

// ParseOperands reads whitespace separated operand lines. Blank lines and
// lines starting with # are skipped. Every row must be self-consistent.
func ParseOperands(r io.Reader) ([]Operand, error) {
	var ops []Operand
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var o Operand
		if _, err := fmt.Sscan(text, &o.M0, &o.M1, &o.N, &o.D, &o.Q); err != nil {
			return nil, core.NewConfigError(fmt.Sprintf("operand line %d", line), err.Error())
		}
		if !o.Valid() {
			return nil, core.NewConfigError(fmt.Sprintf("operand line %d", line), "is not a consistent m0 m1 n d q row")
		}
		ops = append(ops, o)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

// LoadOperands parses the operand file at path.
func LoadOperands(path string) ([]Operand, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("operand file", path)
		}
		return nil, err
	}
	defer f.Close()
	return ParseOperands(f)
}

// WriteOperands writes ops in the format ParseOperands reads.
func WriteOperands(w io.Writer, ops []Operand) error {
	bw := bufio.NewWriter(w)
	for _, o := range ops {
		if _, err := fmt.Fprintf(bw, "%d %d %d %d %d\n", o.M0, o.M1, o.N, o.D, o.Q); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// GenerateOperands draws n random rows. Divisors range over [2, 2^16) and
// dividends over [0, 2^16) so that the 32-bit reciprocal ceil(2^32/d) is exact.
func GenerateOperands(g *generator.Generator, n int) ([]Operand, error) {
	raw, err := g.GenerateTokens(n, 4)
	if err != nil {
		return nil, err
	}
	ops := make([]Operand, n)
	for i, b := range raw {
		d := uint32(binary.LittleEndian.Uint16(b[0:]))
		if d < 2 {
			d += 2
		}
		num := uint32(binary.LittleEndian.Uint16(b[2:]))
		o := Operand{
			M0: reciprocal64(d),
			M1: uint32((uint64(1)<<32 + uint64(d) - 1) / uint64(d)),
			N:  num,
			D:  d,
			Q:  num / d,
		}
		if !o.Valid() {
			return nil, fmt.Errorf("generated inconsistent operand row for d=%d n=%d", d, num)
		}
		ops[i] = o
	}
	return ops, nil
}

// reciprocal64 returns ceil(2^64/d) for d >= 2.
func reciprocal64(d uint32) uint64 {
	q, r := bits.Div64(1, 0, uint64(d))
	if r != 0 {
		q++
	}
	return q
}
