/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package transport

import (
	"io"
)

// Type represents a stream transport type.
type Type int

const (
	// WebSocket represents a websocket transport type.
	WebSocket Type = iota + 1
)

// String returns Type string representation.
func (tt Type) String() string {
	switch tt {
	case WebSocket:
		return "websocket"
	}
	return ""
}

// Transport represents a stream transport mechanism.
type Transport interface {
	io.ReadWriteCloser

	// Type returns transport type value.
	Type() Type

	// WriteString writes a raw string to the transport.
	WriteString(s string) (n int, err error)

	// Flush writes any buffered data to the underlying writer.
	Flush() error
}
