package qc

import (
	"sort"

	"golang.org/x/exp/rand"
)

// Subsampling bounds for the visual artifacts. Plots are diagnostic, not
// exhaustive; caps keep rendering cheap on dense recordings.
const (
	MaxRasterUnits   = 80
	MaxSpikesPerUnit = 500
	MaxScatterPoints = 200000
)

// subsampleSeed fixes the RNG stream so identical inputs always select
// identical indices.
const subsampleSeed = 0

// sampler draws bounded index subsets from a fixed-seed stream. All draws
// for one QC run come from a single sampler, in a fixed call order, so the
// whole artifact set is reproducible.
type sampler struct {
	rng *rand.Rand
}

func newSampler() *sampler {
	return &sampler{rng: rand.New(rand.NewSource(subsampleSeed))}
}

// pick selects at most k of n indices without replacement and returns them
// sorted ascending. When n <= k all indices are returned and the RNG stream
// is not advanced.
func (s *sampler) pick(n, k int) []int {
	idx := make([]int, 0, min(n, k))
	if n <= k {
		for i := 0; i < n; i++ {
			idx = append(idx, i)
		}
		return idx
	}
	idx = append(idx, s.rng.Perm(n)[:k]...)
	sort.Ints(idx)
	return idx
}
