/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package wisp

import (
	"bytes"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/wisp-im/wisp/client"
)

// LoggerConfig represents the logging facade configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents a global engine configuration.
type Config struct {
	Logger LoggerConfig  `yaml:"logger"`
	Client client.Config `yaml:"client"`
}

// FromFile loads default global configuration from
// a specified file.
func (cfg *Config) FromFile(configFile string) error {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, cfg)
}

// FromBuffer loads default global configuration from
// a specified byte buffer.
func (cfg *Config) FromBuffer(buf *bytes.Buffer) error {
	return yaml.Unmarshal(buf.Bytes(), cfg)
}
