/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package session

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wisp-im/wisp/transport"
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

type fakeTransport struct {
	in     *bytes.Buffer
	out    *bytes.Buffer
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: new(bytes.Buffer), out: new(bytes.Buffer)}
}

func (t *fakeTransport) Read(p []byte) (int, error) {
	if t.in.Len() == 0 {
		return 0, io.EOF
	}
	return t.in.Read(p)
}
func (t *fakeTransport) Write(p []byte) (int, error)       { return t.out.Write(p) }
func (t *fakeTransport) WriteString(s string) (int, error) { return t.out.WriteString(s) }
func (t *fakeTransport) Close() error                      { t.closed = true; return nil }
func (t *fakeTransport) Type() transport.Type              { return transport.WebSocket }
func (t *fakeTransport) Flush() error                      { return nil }

func testSession(t *testing.T, tr transport.Transport) *Session {
	t.Helper()
	j, err := jid.NewWithString("ortuman@jackal.im", true)
	require.Nil(t, err)
	return New("s1", &Config{
		JID:           j,
		Transport:     tr,
		MaxStanzaSize: 32768,
		RemoteDomain:  "jackal.im",
	})
}

func TestSession_Open(t *testing.T) {
	tr := newFakeTransport()
	s := testSession(t, tr)

	require.Nil(t, s.Open())
	require.Equal(t, `<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" to="jackal.im" version="1.0"/>`, tr.out.String())

	require.NotNil(t, s.Open()) // already opened
}

func TestSession_ReceiveOpenAndStanza(t *testing.T) {
	tr := newFakeTransport()
	s := testSession(t, tr)
	require.Nil(t, s.Open())

	tr.in.WriteString(`<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" from="jackal.im" id="sid-1" version="1.0"/>`)
	elem, sErr := s.Receive()
	require.Nil(t, sErr)
	require.Equal(t, "open", elem.Name())
	require.Equal(t, "sid-1", s.StreamID())

	tr.in.WriteString(`<message from="romeo@jackal.im/yard" type="chat"><body>hi</body></message>`)
	elem, sErr = s.Receive()
	require.Nil(t, sErr)

	msg, ok := elem.(*xmpp.Message)
	require.True(t, ok)
	require.Equal(t, "hi", msg.Body())
	require.Equal(t, "romeo@jackal.im/yard", msg.FromJID().String())
	// missing 'to' defaults to the account bare JID
	require.Equal(t, "ortuman@jackal.im", msg.ToJID().String())
}

func TestSession_ReceiveStreamError(t *testing.T) {
	tr := newFakeTransport()
	s := testSession(t, tr)
	require.Nil(t, s.Open())

	tr.in.WriteString(`<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" from="jackal.im" id="sid-1" version="1.0"/>`)
	_, sErr := s.Receive()
	require.Nil(t, sErr)

	tr.in.WriteString(`<stream:error><conflict xmlns="urn:ietf:params:xml:ns:xmpp-streams"/></stream:error>`)
	_, sErr = s.Receive()
	require.NotNil(t, sErr)
	require.Equal(t, "conflict", sErr.UnderlyingErr.Error())
}

func TestSession_SendClearsStanzaNamespace(t *testing.T) {
	tr := newFakeTransport()
	s := testSession(t, tr)
	require.Nil(t, s.Open())
	tr.out.Reset()

	e := xmpp.NewElementNamespace("message", "jabber:client")
	e.SetType("chat")
	from, _ := jid.NewWithString("ortuman@jackal.im/desk", true)
	to, _ := jid.NewWithString("romeo@jackal.im", true)
	msg, err := xmpp.NewMessageFromElement(e, from, to)
	require.Nil(t, err)

	s.Send(msg)
	require.NotContains(t, tr.out.String(), "jabber:client")
}

func TestSession_Restart(t *testing.T) {
	tr := newFakeTransport()
	s := testSession(t, tr)

	require.NotNil(t, s.Restart()) // not yet opened

	require.Nil(t, s.Open())
	tr.in.WriteString(`<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" from="jackal.im" id="sid-1" version="1.0"/>`)
	_, sErr := s.Receive()
	require.Nil(t, sErr)

	tr.out.Reset()
	require.Nil(t, s.Restart())
	require.Equal(t, `<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" to="jackal.im" version="1.0"/>`, tr.out.String())

	// a second stream header is expected again
	tr.in.WriteString(`<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" from="jackal.im" id="sid-2" version="1.0"/>`)
	_, sErr = s.Receive()
	require.Nil(t, sErr)
	require.Equal(t, "sid-2", s.StreamID())
}

func TestSession_Close(t *testing.T) {
	tr := newFakeTransport()
	s := testSession(t, tr)

	require.NotNil(t, s.Close()) // not opened

	require.Nil(t, s.Open())
	tr.out.Reset()
	require.Nil(t, s.Close())
	require.Equal(t, `<close xmlns="urn:ietf:params:xml:ns:xmpp-framing" />`, tr.out.String())
}
