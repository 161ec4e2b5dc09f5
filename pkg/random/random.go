// Package random provides the random sources modules draw from.
package random

import (
	"crypto/rand"
	"math/big"
	mathrand "math/rand/v2"
)

// Source draws uniform integers.
type Source interface {
	// IntN returns a value in [0, n). It panics when n <= 0.
	IntN(n int) int
}

// New returns a crypto-grade source when secure is set, the fast
// math/rand/v2 source otherwise.
func New(secure bool) Source {
	if secure {
		return secureSource{}
	}

	return fastSource{}
}

// Between returns a value in [lo, hi].
func Between(src Source, lo int, hi int) int {
	return lo + src.IntN(hi-lo+1)
}

type fastSource struct{}

func (fastSource) IntN(n int) int {
	return mathrand.IntN(n)
}

type secureSource struct{}

func (secureSource) IntN(n int) int {
	if n <= 0 {
		panic("random: invalid argument to IntN")
	}

	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand.Reader does not fail on supported platforms.
		panic(err)
	}

	return int(v.Int64())
}
