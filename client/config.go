/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package client

import (
	"fmt"
	"time"
)

const (
	defaultResource      = "wisp"
	defaultMaxStanzaSize = 32768
	defaultKeepAlive     = time.Duration(120) * time.Second
	defaultHistoryWindow = 50
	defaultPageSize      = 20
)

// Config represents a client configuration.
type Config struct {
	// Domain is the XMPP service domain.
	Domain string

	// URL is the websocket endpoint the service listens on.
	URL string

	// Resource is the resource identifier requested at bind time.
	Resource string

	// MaxStanzaSize is the maximum accepted incoming stanza size.
	MaxStanzaSize int

	// KeepAlive is the incoming traffic read deadline.
	KeepAlive time.Duration

	// Register requests in-band account registration before
	// authenticating.
	Register bool

	// ConferenceService is the multi user chat service domain.
	ConferenceService string

	// DataDir is the directory the local cache lives in.
	DataDir string

	// HistoryWindow is the maximum number of archived messages kept
	// per peer.
	HistoryWindow int

	// PageSize is the number of messages requested per archive page.
	PageSize int
}

type configProxy struct {
	Domain            string `yaml:"domain"`
	URL               string `yaml:"url"`
	Resource          string `yaml:"resource"`
	MaxStanzaSize     int    `yaml:"max_stanza_size"`
	KeepAlive         int    `yaml:"keep_alive"`
	Register          bool   `yaml:"register"`
	ConferenceService string `yaml:"conference_service"`
	DataDir           string `yaml:"data_dir"`
	HistoryWindow     int    `yaml:"history_window"`
	PageSize          int    `yaml:"page_size"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := configProxy{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	if len(p.Domain) == 0 {
		return fmt.Errorf("client.Config: domain value must be set")
	}
	c.Domain = p.Domain
	c.URL = p.URL
	if len(c.URL) == 0 {
		c.URL = fmt.Sprintf("wss://%s:5443/ws", p.Domain)
	}
	c.Resource = p.Resource
	if len(c.Resource) == 0 {
		c.Resource = defaultResource
	}
	c.MaxStanzaSize = p.MaxStanzaSize
	if c.MaxStanzaSize == 0 {
		c.MaxStanzaSize = defaultMaxStanzaSize
	}
	c.KeepAlive = time.Duration(p.KeepAlive) * time.Second
	if c.KeepAlive == 0 {
		c.KeepAlive = defaultKeepAlive
	}
	c.Register = p.Register
	c.ConferenceService = p.ConferenceService
	if len(c.ConferenceService) == 0 {
		c.ConferenceService = "conference." + p.Domain
	}
	c.DataDir = p.DataDir
	if len(c.DataDir) == 0 {
		c.DataDir = ".wisp"
	}
	c.HistoryWindow = p.HistoryWindow
	if c.HistoryWindow == 0 {
		c.HistoryWindow = defaultHistoryWindow
	}
	c.PageSize = p.PageSize
	if c.PageSize == 0 {
		c.PageSize = defaultPageSize
	}
	return nil
}
