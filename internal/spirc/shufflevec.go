package spirc

import "math/rand"

// ShuffleVec is a slice that remembers the swap indices of its last
// in-place Fisher-Yates shuffle so it can be restored to its original
// order. Grounded on original_source/connect/src/shuffle_vec.rs.
type ShuffleVec[T any] struct {
	items   []T
	indices []int
}

// NewShuffleVec wraps items (not copied) in an unshuffled ShuffleVec.
func NewShuffleVec[T any](items []T) *ShuffleVec[T] {
	return &ShuffleVec[T]{items: items}
}

// Items returns the current (possibly shuffled) slice.
func (s *ShuffleVec[T]) Items() []T { return s.items }

func (s *ShuffleVec[T]) Len() int { return len(s.items) }

// ShuffleWithSeed re-orders the vector in place using a seeded
// deterministic Fisher-Yates pass, recording the swap indices so
// Unshuffle can reverse it. Calling it while already shuffled unshuffles
// first, matching the original's shuffle_with_rng.
func (s *ShuffleVec[T]) ShuffleWithSeed(seed uint64) {
	if s.indices != nil {
		s.Unshuffle()
	}
	n := len(s.items)
	if n <= 1 {
		s.indices = []int{}
		return
	}
	rng := rand.New(rand.NewSource(int64(seed)))

	indices := make([]int, 0, n-1)
	for i := n - 1; i >= 1; i-- {
		j := rng.Intn(i + 1)
		indices = append(indices, j)
	}
	// indices[k] corresponds to i = n-1-k, descending; apply swaps in the
	// same order they were drawn.
	k := 0
	for i := n - 1; i >= 1; i-- {
		s.items[i], s.items[indices[k]] = s.items[indices[k]], s.items[i]
		k++
	}
	s.indices = indices
}

// Unshuffle replays the recorded swap indices in reverse, restoring the
// vector to the order it had before ShuffleWithSeed.
func (s *ShuffleVec[T]) Unshuffle() {
	if s.indices == nil {
		return
	}
	indices := s.indices
	s.indices = nil

	n := len(s.items)
	for i := 1; i < n; i++ {
		j := indices[n-i-1]
		s.items[j], s.items[i] = s.items[i], s.items[j]
	}
}

// Shuffled reports whether a shuffle is currently applied.
func (s *ShuffleVec[T]) Shuffled() bool { return s.indices != nil }
