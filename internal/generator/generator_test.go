package generator

import (
	"errors"
	"testing"

	"ctleak/adapters/rng"
	"ctleak/domain/core"
	"ctleak/domain/leakage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{}

func (failingSource) Read(p []byte) (int, error) { return 0, errors.New("entropy pool closed") }

func TestAssignClassesBalanced(t *testing.T) {
	g := New(rng.NewSeeded(1))
	classes := make([]leakage.Class, 100000)
	require.NoError(t, g.AssignClasses(classes))

	ones := 0
	for _, c := range classes {
		require.LessOrEqual(t, c, leakage.ClassRandom)
		ones += int(c)
	}
	frac := float64(ones) / float64(len(classes))
	assert.InDelta(t, 0.5, frac, 0.01)
}

func TestAssignClassesDeterministicWithSeed(t *testing.T) {
	a := make([]leakage.Class, 150)
	b := make([]leakage.Class, 150)
	require.NoError(t, New(rng.NewSeeded(42)).AssignClasses(a))
	require.NoError(t, New(rng.NewSeeded(42)).AssignClasses(b))
	assert.Equal(t, a, b)

	c := make([]leakage.Class, 150)
	require.NoError(t, New(rng.NewSeeded(43)).AssignClasses(c))
	assert.NotEqual(t, a, c)
}

func TestFailingSourceIsConfigError(t *testing.T) {
	g := New(failingSource{})
	err := g.AssignClasses(make([]leakage.Class, 8))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRandomnessFailed)
	assert.True(t, core.IsConfigError(err))

	_, err = g.GenerateTokens(4, 7)
	assert.ErrorIs(t, err, core.ErrRandomnessFailed)
}

func TestGenerateTokens(t *testing.T) {
	g := New(rng.NewSeeded(9))
	tokens, err := g.GenerateTokens(150, 7)
	require.NoError(t, err)
	require.Len(t, tokens, 150)
	distinct := map[string]bool{}
	for _, tok := range tokens {
		assert.Len(t, tok, 7)
		assert.Equal(t, 7, cap(tok))
		distinct[string(tok)] = true
	}
	assert.Len(t, distinct, 150)
}

func TestFillInputs(t *testing.T) {
	g := New(rng.NewSeeded(10))
	inputs := [][]byte{make([]byte, 32), make([]byte, 32)}
	require.NoError(t, g.FillInputs(inputs))
	assert.NotEqual(t, make([]byte, 32), inputs[0])
	assert.NotEqual(t, inputs[0], inputs[1])
}

func TestTokenPoolRoundRobin(t *testing.T) {
	pool, err := NewTokenPool(New(rng.NewSeeded(3)), 3, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Len())

	seen := []string{pool.Next(), pool.Next(), pool.Next()}
	assert.Equal(t, seen[0], pool.Next())
	assert.NotEqual(t, seen[0], seen[1])

	_, err = NewTokenPool(New(rng.NewSeeded(3)), 0, 7)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
