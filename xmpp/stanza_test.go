/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wisp-im/wisp/xmpp/jid"
)

func testJID(t *testing.T, str string) *jid.JID {
	t.Helper()
	j, err := jid.NewWithString(str, true)
	require.Nil(t, err)
	return j
}

func TestIQ_Validation(t *testing.T) {
	from := testJID(t, "ortuman@jackal.im/desk")
	to := testJID(t, "jackal.im")

	e := NewElementName("iq")
	_, err := NewIQFromElement(e, from, to)
	require.NotNil(t, err) // missing id

	e.SetID("iq1")
	_, err = NewIQFromElement(e, from, to)
	require.NotNil(t, err) // missing type

	e.SetType("get")
	_, err = NewIQFromElement(e, from, to)
	require.NotNil(t, err) // get requires exactly one child

	e.AppendElement(NewElementNamespace("ping", "urn:xmpp:ping"))
	iq, err := NewIQFromElement(e, from, to)
	require.Nil(t, err)
	require.True(t, iq.IsGet())

	res := iq.ResultIQ()
	require.Equal(t, "iq1", res.ID())
	require.True(t, res.IsResult())
	require.Equal(t, from.String(), res.To())
}

func TestPresence_ShowAndPriority(t *testing.T) {
	from := testJID(t, "a@b.com/phone")

	e := NewElementName("presence")
	e.AppendElement(NewElementName("show").SetText("dnd"))
	e.AppendElement(NewElementName("priority").SetText("10"))
	e.AppendElement(NewElementName("status").SetText("busy"))

	p, err := NewPresenceFromElement(e, from, testJID(t, "b.com"))
	require.Nil(t, err)
	require.Equal(t, DoNotDisturbShowState, p.ShowState())
	require.Equal(t, int8(10), p.Priority())
	require.Equal(t, "busy", p.Status())
}

func TestPresence_InvalidShow(t *testing.T) {
	e := NewElementName("presence")
	e.AppendElement(NewElementName("show").SetText("sleeping"))

	_, err := NewPresenceFromElement(e, testJID(t, "a@b.com/x"), testJID(t, "b.com"))
	require.NotNil(t, err)
}

func TestPresence_VCardAvatarHash(t *testing.T) {
	e := NewElementName("presence")
	x := NewElementNamespace("x", "vcard-temp:x:update")
	x.AppendElement(NewElementName("photo").SetText("cafebabe"))
	e.AppendElement(x)

	p, err := NewPresenceFromElement(e, testJID(t, "a@b.com/x"), testJID(t, "b.com"))
	require.Nil(t, err)
	require.Equal(t, "cafebabe", p.VCardAvatarHash())
}

func TestMessage_Accessors(t *testing.T) {
	e := NewElementName("message")
	e.SetType("chat")
	e.AppendElement(NewElementName("body").SetText("hello"))
	e.AppendElement(NewElementNamespace("composing", ChatStateNamespace))
	e.AppendElement(NewElementNamespace("request", ReceiptsNamespace))

	d := NewElementNamespace("delay", DelayNamespace)
	d.SetAttribute("stamp", "2022-03-04T05:06:07Z")
	e.AppendElement(d)

	m, err := NewMessageFromElement(e, testJID(t, "a@b.com/x"), testJID(t, "me@b.com"))
	require.Nil(t, err)
	require.True(t, m.IsChat())
	require.Equal(t, "hello", m.Body())
	require.Equal(t, ChatStateComposing, m.ChatState())
	require.True(t, m.RequestsReceipt())

	stamp, ok := m.Delay()
	require.True(t, ok)
	require.Equal(t, time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC), stamp.UTC())
}

func TestStanzaError_Parse(t *testing.T) {
	e := NewElementName("iq")
	e.SetID("e1")
	e.SetType(ErrorType)
	errEl := NewElementName("error")
	errEl.SetType("cancel")
	errEl.AppendElement(NewElementNamespace("item-not-found", "urn:ietf:params:xml:ns:xmpp-stanzas"))
	errEl.AppendElement(NewElementNamespace("text", "urn:ietf:params:xml:ns:xmpp-stanzas").SetText("no such node"))
	e.AppendElement(errEl)

	se := NewStanzaErrorFromElement(e)
	require.NotNil(t, se)
	require.Equal(t, "item-not-found", se.Reason())
	require.Equal(t, "no such node", se.Text())
}
