/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package jid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJID_ParseFull(t *testing.T) {
	j, err := NewWithString("ortuman@jackal.im/balcony", false)
	require.Nil(t, err)
	require.Equal(t, "ortuman", j.Node())
	require.Equal(t, "jackal.im", j.Domain())
	require.Equal(t, "balcony", j.Resource())
	require.True(t, j.IsFullWithUser())
	require.Equal(t, "ortuman@jackal.im/balcony", j.String())
}

func TestJID_ParseBareAndServer(t *testing.T) {
	j, err := NewWithString("ortuman@jackal.im", false)
	require.Nil(t, err)
	require.True(t, j.IsBare())

	srv, err := NewWithString("jackal.im", false)
	require.Nil(t, err)
	require.True(t, srv.IsServer())
}

func TestJID_Invalid(t *testing.T) {
	_, err := NewWithString("ortuman@", false)
	require.NotNil(t, err)

	_, err = NewWithString("ortuman@jackal.im/", false)
	require.NotNil(t, err)
}

func TestJID_CaseMapping(t *testing.T) {
	j, err := NewWithString("ORTUMAN@jackal.im/Balcony", false)
	require.Nil(t, err)
	require.Equal(t, "ortuman", j.Node())
	require.Equal(t, "jackal.im", j.Domain())
	// resource is an opaque string and preserves case
	require.Equal(t, "Balcony", j.Resource())
}

func TestJID_ToBareJID(t *testing.T) {
	j, err := NewWithString("a@b.com/c", true)
	require.Nil(t, err)
	require.Equal(t, "a@b.com", j.ToBareJID().String())
}

func TestJID_Matches(t *testing.T) {
	j1, _ := NewWithString("a@b.com/c", true)
	j2, _ := NewWithString("a@b.com/d", true)

	require.True(t, j1.Matches(j2, MatchesBare))
	require.False(t, j1.Matches(j2, MatchesFull))
}
