/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package rand

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytesLength(t *testing.T) {
	b := Bytes(32)
	require.Len(t, b, 32)

	b2 := Bytes(32)
	require.NotEqual(t, b, b2)
}

func TestMulberry32Determinism(t *testing.T) {
	m1 := NewMulberry32String("ortuño@jackal.im")
	m2 := NewMulberry32String("ortuño@jackal.im")

	for i := 0; i < 64; i++ {
		require.Equal(t, m1.Next(), m2.Next())
	}
}

func TestMulberry32Distribution(t *testing.T) {
	m := NewMulberry32(1234)

	seen := map[int]bool{}
	for i := 0; i < 256; i++ {
		v := m.Intn(8)
		require.True(t, v >= 0 && v < 8)
		seen[v] = true
	}
	require.Len(t, seen, 8)
}
