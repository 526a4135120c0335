/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package transport

import (
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConn represents a websocket connection interface.
type WebSocketConn interface {
	NextReader() (messageType int, r io.Reader, err error)
	NextWriter(int) (io.WriteCloser, error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type webSocketTransport struct {
	conn      WebSocketConn
	keepAlive time.Duration
}

// NewWebSocketTransport creates a websocket class stream transport.
func NewWebSocketTransport(conn WebSocketConn, keepAlive time.Duration) Transport {
	wst := &webSocketTransport{
		conn:      conn,
		keepAlive: keepAlive,
	}
	return wst
}

func (w *webSocketTransport) Read(p []byte) (n int, err error) {
	_, r, err := w.conn.NextReader()
	if err != nil {
		return 0, err
	}
	if w.keepAlive > 0 {
		_ = w.conn.SetReadDeadline(time.Now().Add(w.keepAlive))
	}
	return r.Read(p)
}

func (w *webSocketTransport) Write(p []byte) (n int, err error) {
	nw, err := w.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return 0, err
	}
	defer func() { _ = nw.Close() }()

	return nw.Write(p)
}

func (w *webSocketTransport) WriteString(str string) (int, error) {
	nw, err := w.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return 0, err
	}
	defer func() { _ = nw.Close() }()

	n, err := io.Copy(nw, strings.NewReader(str))
	return int(n), err
}

func (w *webSocketTransport) Close() error {
	return w.conn.Close()
}

func (w *webSocketTransport) Type() Type {
	return WebSocket
}

// Flush is a no-op: every websocket frame is flushed on writer close.
func (w *webSocketTransport) Flush() error {
	return nil
}
