/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
)

const wsSubprotocol = "xmpp"

// Dialer establishes websocket stream transports. Consecutive dial
// failures trip an internal circuit breaker so a dead endpoint is not
// hammered on every reconnect attempt.
type Dialer struct {
	URL       string
	KeepAlive time.Duration
	TLSConfig *tls.Config

	cb *gobreaker.CircuitBreaker
	ws *websocket.Dialer
}

// NewDialer returns an initialized websocket transport dialer.
func NewDialer(url string, keepAlive time.Duration, tlsCfg *tls.Config) *Dialer {
	return &Dialer{
		URL:       url,
		KeepAlive: keepAlive,
		TLSConfig: tlsCfg,
		cb:        gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "dial"}),
		ws: &websocket.Dialer{
			Subprotocols:     []string{wsSubprotocol},
			TLSClientConfig:  tlsCfg,
			HandshakeTimeout: time.Second * 5,
		},
	}
}

// Dial connects to the configured endpoint and returns a stream transport.
func (d *Dialer) Dial(ctx context.Context) (Transport, error) {
	conn, err := d.cb.Execute(func() (interface{}, error) {
		hdr := http.Header{}
		conn, _, err := d.ws.DialContext(ctx, d.URL, hdr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return NewWebSocketTransport(conn.(*websocket.Conn), d.KeepAlive), nil
}
