// internal/shuffle/shuffle.go
//
// Uniform in-place permutation (Fisher–Yates / Knuth).
//
// The randomness source is injected so callers can use crypto/rand in
// production and a seeded math/rand/v2 generator in tests.

package shuffle

import (
	"crypto/rand"
	"math/big"
)

// Source draws a uniformly random integer in [0, n). n is always > 0.
// *math/rand/v2.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

// Slice permutes s in place. Every one of the len(s)! orderings is equally
// likely provided src is uniform.
func Slice[T any](src Source, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// Crypto is a Source backed by crypto/rand.
type Crypto struct{}

// IntN returns a cryptographically random integer in [0, n).
func (Crypto) IntN(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand.Reader does not fail on supported platforms.
		panic("shuffle: crypto/rand: " + err.Error())
	}
	return int(v.Int64())
}
