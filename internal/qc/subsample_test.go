package qc

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickSmallInputPassesThrough(t *testing.T) {
	s := newSampler()
	got := s.pick(4, 10)
	assert.Equal(t, []int{0, 1, 2, 3}, got)

	// A passthrough must not advance the stream: the next constrained
	// pick matches a fresh sampler's first pick.
	constrained := s.pick(100, 5)
	fresh := newSampler().pick(100, 5)
	assert.Equal(t, fresh, constrained)
}

func TestPickDeterministicAndSorted(t *testing.T) {
	a := newSampler().pick(10000, 100)
	b := newSampler().pick(10000, 100)
	require.Len(t, a, 100)
	assert.Equal(t, a, b, "same seed must select the same indices")
	assert.True(t, sort.IntsAreSorted(a))

	seen := make(map[int]bool)
	for _, i := range a {
		require.False(t, seen[i], "index %d picked twice", i)
		require.GreaterOrEqual(t, i, 0)
		require.Less(t, i, 10000)
		seen[i] = true
	}
}

func TestPickSequenceIsReproducible(t *testing.T) {
	draw := func() [][]int {
		s := newSampler()
		return [][]int{s.pick(50, 10), s.pick(300, 20), s.pick(7, 100)}
	}
	assert.Equal(t, draw(), draw())
}
