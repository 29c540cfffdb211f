package service

import "math/rand/v2"

// Random is the subset of *rand.Rand the simulation draws from. Each student
// session owns one, so no source is shared between goroutines.
type Random interface {
	Float64() float64
	IntN(n int) int
}

// NewRandom returns a PCG-backed source. Streams with the same seed are
// independent and reproducible.
func NewRandom(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// sampleIndices picks k distinct indices out of [0, n) using a partial
// Fisher-Yates shuffle.
func sampleIndices(rnd Random, n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rnd.IntN(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}
