package rtpsession

import (
	"crypto/rand"
	"encoding/binary"
)

// RandomSource supplies the SSRC/sequence-number/timestamp randomness a
// local track is seeded with. Dependency-injected (spec §9 Design Notes) so
// tests can swap in a deterministic source instead of crypto/rand.
type RandomSource interface {
	// SSRC returns a value in [0, 2^31), per spec §3.
	SSRC() uint32
	// Uint16 returns a random 16-bit value for initial sequence numbers.
	Uint16() uint16
	// Uint32 returns a random 32-bit value for initial timestamps.
	Uint32() uint32
}

// cryptoRandSource is the default RandomSource, backed by crypto/rand —
// the same source the teacher uses for SSRC generation
// (pkg/rtp/session.go generateSSRC).
type cryptoRandSource struct{}

func (cryptoRandSource) SSRC() uint32 {
	return cryptoRandSource{}.Uint32() & 0x7fffffff
}

func (cryptoRandSource) Uint16() uint16 {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint16(b[:])
}

func (cryptoRandSource) Uint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// DefaultRandomSource is the crypto/rand-backed RandomSource used when a
// Session is constructed without an explicit override.
var DefaultRandomSource RandomSource = cryptoRandSource{}
