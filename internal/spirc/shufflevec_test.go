package spirc

import "testing"

func TestShuffleWithSeedIsDeterministic(t *testing.T) {
	base := make([]int, 100)
	for i := range base {
		base[i] = i
	}

	a := append([]int(nil), base...)
	b := append([]int(nil), base...)

	va := NewShuffleVec(a)
	vb := NewShuffleVec(b)
	va.ShuffleWithSeed(0xdeadbeef)
	vb.ShuffleWithSeed(0xdeadbeef)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different permutations at index %d: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestShuffleThenUnshuffleRestoresOriginalOrder(t *testing.T) {
	base := make([]int, 100)
	for i := range base {
		base[i] = i
	}
	v := NewShuffleVec(append([]int(nil), base...))
	v.ShuffleWithSeed(0xdeadbeef)
	v.Unshuffle()

	for i, want := range base {
		if v.items[i] != want {
			t.Fatalf("unshuffle mismatch at %d: got %d, want %d", i, v.items[i], want)
		}
	}
}

func TestShuffleProducesAPermutation(t *testing.T) {
	base := make([]int, 50)
	for i := range base {
		base[i] = i
	}
	v := NewShuffleVec(append([]int(nil), base...))
	v.ShuffleWithSeed(42)

	seen := make(map[int]bool, len(base))
	for _, x := range v.items {
		seen[x] = true
	}
	if len(seen) != len(base) {
		t.Fatalf("shuffled result is not a permutation: %d distinct values, want %d", len(seen), len(base))
	}
}

func TestShuffleWithSeedHandlesEmptyAndSingleElement(t *testing.T) {
	empty := NewShuffleVec([]int{})
	empty.ShuffleWithSeed(1)
	if len(empty.Items()) != 0 {
		t.Fatalf("shuffling an empty vec changed its length: %d", len(empty.Items()))
	}

	single := NewShuffleVec([]int{7})
	single.ShuffleWithSeed(1)
	if got := single.Items(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("shuffling a single-element vec changed it: %v", got)
	}
	single.Unshuffle()
}

func TestShuffledReportsState(t *testing.T) {
	v := NewShuffleVec([]int{1, 2, 3, 4, 5})
	if v.Shuffled() {
		t.Error("Shuffled() = true before any shuffle")
	}
	v.ShuffleWithSeed(1)
	if !v.Shuffled() {
		t.Error("Shuffled() = false after ShuffleWithSeed")
	}
	v.Unshuffle()
	if v.Shuffled() {
		t.Error("Shuffled() = true after Unshuffle")
	}
}
