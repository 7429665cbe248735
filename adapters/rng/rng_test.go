package rng

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func read(t *testing.T, n int, src interface{ Read([]byte) (int, error) }) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := io.ReadFull(src, buf)
	require.NoError(t, err)
	return buf
}

func TestSeededIsReproducible(t *testing.T) {
	a := read(t, 64, NewSeeded(5))
	b := read(t, 64, NewSeeded(5))
	c := read(t, 64, NewSeeded(6))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNewSelectsSource(t *testing.T) {
	assert.Equal(t, read(t, 16, NewSeeded(8)), read(t, 16, New(8)))
	assert.Len(t, read(t, 16, New(0)), 16)
}
