/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParser_ParseSimpleElement(t *testing.T) {
	p := NewParser(strings.NewReader(`<presence from="a@jabber.org/desk" to="b@jabber.org"/>`), DefaultMode, 0)

	elem, err := p.ParseElement()
	require.Nil(t, err)
	require.NotNil(t, elem)
	require.Equal(t, "presence", elem.Name())
	require.Equal(t, "a@jabber.org/desk", elem.From())
	require.Equal(t, "b@jabber.org", elem.To())
}

func TestParser_ParseNestedElements(t *testing.T) {
	docSrc := `<iq type="get" id="q1"><query xmlns="jabber:iq:roster"><item jid="x@y.z"/></query></iq>`
	p := NewParser(strings.NewReader(docSrc), DefaultMode, 0)

	iq, err := p.ParseElement()
	require.Nil(t, err)
	require.NotNil(t, iq)

	q := iq.Elements().ChildNamespace("query", "jabber:iq:roster")
	require.NotNil(t, q)
	require.Equal(t, 1, q.Elements().Count())
	require.Equal(t, "x@y.z", q.Elements().Child("item").Attributes().Get("jid"))
}

func TestParser_ParseSeveralElements(t *testing.T) {
	docSrc := `<a/>\n<b/>\n<c/>`
	p := NewParser(strings.NewReader(docSrc), DefaultMode, 0)

	a, err := p.ParseElement()
	require.Nil(t, err)
	require.NotNil(t, a)

	// skip whitespace in between
	for {
		b, err := p.ParseElement()
		require.Nil(t, err)
		if b != nil {
			require.Equal(t, "b", b.Name())
			break
		}
	}
}

func TestParser_CloseFrameClosesStream(t *testing.T) {
	docSrc := `<close xmlns="urn:ietf:params:xml:ns:xmpp-framing"/>`
	p := NewParser(strings.NewReader(docSrc), WebSocketStream, 0)

	elem, err := p.ParseElement()
	require.Nil(t, elem)
	require.Equal(t, ErrStreamClosedByPeer, err)
}

func TestParser_TooLargeStanza(t *testing.T) {
	docSrc := `<message><body>` + strings.Repeat("x", 4096) + `</body></message>`
	p := NewParser(strings.NewReader(docSrc), DefaultMode, 512)

	elem, err := p.ParseElement()
	require.Nil(t, elem)
	require.Equal(t, ErrTooLargeStanza, err)
}

func TestParser_MalformedXML(t *testing.T) {
	p := NewParser(strings.NewReader(`<message><body></message>`), DefaultMode, 0)

	elem, err := p.ParseElement()
	require.Nil(t, elem)
	require.NotNil(t, err)
}

func TestParser_RoundTrip(t *testing.T) {
	msg := NewMessageType("m1", ChatType)
	msg.SetFrom("romeo@montague.lit/balcony")
	msg.SetTo("juliet@capulet.lit")
	msg.AppendElement(NewElementName("body").SetText(`m'lady <3 & "more"`))
	msg.AppendElement(NewElementNamespace("active", ChatStateNamespace))

	p := NewParser(strings.NewReader(msg.String()), DefaultMode, 0)
	parsed, err := p.ParseElement()
	require.Nil(t, err)
	require.NotNil(t, parsed)

	require.Equal(t, msg.Name(), parsed.Name())
	require.Equal(t, msg.ID(), parsed.ID())
	require.Equal(t, msg.Type(), parsed.Type())
	require.Equal(t, msg.From(), parsed.From())
	require.Equal(t, msg.Elements().Count(), parsed.Elements().Count())
	require.Equal(t, `m'lady <3 & "more"`, parsed.Elements().Child("body").Text())
	require.NotNil(t, parsed.Elements().ChildNamespace("active", ChatStateNamespace))
}
