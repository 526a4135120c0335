/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package wisp

import (
	"bytes"
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	var cfg1, cfg2 Config
	b, err := ioutil.ReadFile("./testdata/config_basic.yml")
	require.Nil(t, err)
	err = cfg1.FromBuffer(bytes.NewBuffer(b))
	require.Nil(t, err)
	err = cfg2.FromFile("./testdata/config_basic.yml")
	require.Nil(t, err)
	require.Equal(t, cfg1, cfg2)

	require.Equal(t, "debug", cfg1.Logger.Level)
	require.Equal(t, "jackal.im", cfg1.Client.Domain)
	require.Equal(t, "wss://jackal.im:5443/ws", cfg1.Client.URL)
}

func TestBadConfigFile(t *testing.T) {
	var cfg Config
	err := cfg.FromFile("./testdata/not_a_config.yml")
	require.NotNil(t, err)
}
