// Package entropy resolves run seeds and builds the explicit random sources
// threaded through grid generation and relocation.
// No package-level random state is used anywhere in the simulator.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Stream offsets derive independent sources from one run seed.
const (
	StreamGrid       int64 = 0
	StreamRelocation int64 = 100
)

// Seed returns the configured seed, or a fresh one from crypto/rand when nil.
func Seed(configured *int64) int64 {
	if configured != nil {
		return *configured
	}
	return CryptoSeed()
}

// New returns a deterministic source for the given seed and stream.
func New(seed, stream int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(seed + stream))
}

// CryptoSeed draws a non-negative int64 from crypto/rand.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic("entropy: crypto/rand unavailable: " + err.Error())
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}
