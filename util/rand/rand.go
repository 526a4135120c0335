/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package rand

import (
	cryptorand "crypto/rand"
	"encoding/base64"
)

// Bytes generates a cryptographically random byte slice of length ln.
func Bytes(ln int) []byte {
	b := make([]byte, ln)
	if _, err := cryptorand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// Nonce returns a random base64 string suitable for SASL nonces.
func Nonce(ln int) string {
	return base64.RawStdEncoding.EncodeToString(Bytes(ln))
}

// Mulberry32 is a tiny seeded pseudo-random generator.
// It is deterministic for a given seed, which is what the avatar
// placeholder generation relies on. It is not suitable for anything
// security sensitive.
type Mulberry32 struct {
	state uint32
}

// NewMulberry32 returns a generator seeded with the given value.
func NewMulberry32(seed uint32) *Mulberry32 {
	return &Mulberry32{state: seed}
}

// NewMulberry32String returns a generator seeded by hashing a string.
func NewMulberry32String(seed string) *Mulberry32 {
	return NewMulberry32(StringSeed(seed))
}

// Next returns the next pseudo-random 32 bit value.
func (m *Mulberry32) Next() uint32 {
	m.state += 0x6d2b79f5
	z := m.state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return z ^ (z >> 14)
}

// Float64 returns a pseudo-random value in [0, 1).
func (m *Mulberry32) Float64() float64 {
	return float64(m.Next()) / 4294967296.0
}

// Intn returns a pseudo-random value in [0, n).
func (m *Mulberry32) Intn(n int) int {
	return int(m.Next() % uint32(n))
}

// StringSeed derives a 32 bit seed from a string (FNV-1a).
func StringSeed(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
