package game

import "math/rand/v2"

// Source draws symbols. *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// NewSource returns a deterministic Source for the given seed.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// generate draws n independent symbols in [0, symbols).
func generate(src Source, n, symbols int) []int {
	seq := make([]int, n)
	for i := range seq {
		seq[i] = src.IntN(symbols)
	}
	return seq
}

func randomSeed() uint64 { return rand.Uint64() }
