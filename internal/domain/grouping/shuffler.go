package grouping

import (
	"math/rand/v2"
	"time"
)

// Shuffler permutes n elements through swap. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// NewSeededShuffler returns a PCG-backed shuffler. A zero seed draws one
// from the clock.
func NewSeededShuffler(seed uint64) Shuffler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// identityShuffler leaves the order untouched.
type identityShuffler struct{}

func (identityShuffler) Shuffle(int, func(i, j int)) {}

// IdentityShuffler keeps the pool in A-then-B order. Useful for tests and
// reproducible demos.
func IdentityShuffler() Shuffler {
	return identityShuffler{}
}
