/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package muc

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackal-xmpp/sonar"
	"github.com/stretchr/testify/require"

	"github.com/wisp-im/wisp/event"
	"github.com/wisp-im/wisp/stream"
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

type fakeStream struct {
	mu     sync.Mutex
	jd     *jid.JID
	sent   []xmpp.XElement
	iqs    []*xmpp.IQ
	iqHnds []stream.ResultHandler
}

func newFakeStream(t *testing.T) *fakeStream {
	t.Helper()
	j, err := jid.NewWithString("ortuman@jackal.im/desk", true)
	require.Nil(t, err)
	return &fakeStream{jd: j}
}

func (s *fakeStream) JID() *jid.JID { return s.jd }

func (s *fakeStream) SendElement(_ context.Context, elem xmpp.XElement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, elem)
}

func (s *fakeStream) SendIQ(_ context.Context, iq *xmpp.IQ, hnd stream.ResultHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iqs = append(s.iqs, iq)
	s.iqHnds = append(s.iqHnds, hnd)
	return nil
}

func (s *fakeStream) sentContaining(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, el := range s.sent {
		if strings.Contains(el.String(), substr) {
			return true
		}
	}
	return false
}

func (s *fakeStream) iqContaining(substr string) (*xmpp.IQ, stream.ResultHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, iq := range s.iqs {
		if strings.Contains(iq.String(), substr) {
			return iq, s.iqHnds[i]
		}
	}
	return nil, nil
}

func occupantPresence(t *testing.T, from string, presenceType string, itemAttrs map[string]string, statusCodes ...string) *xmpp.Presence {
	t.Helper()
	e := xmpp.NewElementName("presence")
	if len(presenceType) > 0 {
		e.SetType(presenceType)
	}
	x := xmpp.NewElementNamespace("x", mucUserNamespace)
	if itemAttrs != nil {
		item := xmpp.NewElementName("item")
		for _, k := range []string{"affiliation", "role", "jid"} {
			if v, ok := itemAttrs[k]; ok {
				item.SetAttribute(k, v)
			}
		}
		x.AppendElement(item)
	}
	for _, code := range statusCodes {
		status := xmpp.NewElementName("status")
		status.SetAttribute("code", code)
		x.AppendElement(status)
	}
	e.AppendElement(x)

	fromJID, err := jid.NewWithString(from, true)
	require.Nil(t, err)
	toJID, err := jid.NewWithString("ortuman@jackal.im/desk", true)
	require.Nil(t, err)

	p, err := xmpp.NewPresenceFromElement(e, fromJID, toJID)
	require.Nil(t, err)
	return p
}

func TestService_JoinRoom(t *testing.T) {
	stm := newFakeStream(t)
	sn := sonar.New()

	joinedCh := make(chan *event.MUCEventInfo, 1)
	sn.Subscribe(event.MUCRoomJoined, func(_ context.Context, ev sonar.Event) error {
		joinedCh <- ev.Info().(*event.MUCEventInfo)
		return nil
	})
	m := New(stm, sn, Config{Service: "conference.jabber.org"})

	roomJID, _ := jid.NewWithString("coven@conference.jabber.org", true)
	require.Nil(t, m.JoinRoom(context.Background(), roomJID, "thirdwitch", ""))

	require.True(t, stm.sentContaining(`<x xmlns="http://jabber.org/protocol/muc"/>`))
	require.True(t, stm.sentContaining(`to="coven@conference.jabber.org/thirdwitch"`))

	// server echoes our own occupant presence back with code 110
	m.processPresence(context.Background(), occupantPresence(t, "coven@conference.jabber.org/thirdwitch", "",
		map[string]string{"affiliation": "member", "role": "participant"}, "110"))

	select {
	case inf := <-joinedCh:
		require.Equal(t, "thirdwitch", inf.Nick)
	case <-time.After(time.Second * 5):
		t.Fatal("room joined event not posted")
	}
	room, ok := m.Room(roomJID)
	require.True(t, ok)
	require.True(t, room.Joined())

	occ, ok := room.Occupant("thirdwitch")
	require.True(t, ok)
	require.True(t, occ.IsSelf)
	require.Equal(t, "participant", occ.Role)
}

func TestService_CreatedRoomInstantConfig(t *testing.T) {
	stm := newFakeStream(t)
	m := New(stm, nil, Config{Service: "conference.jabber.org"})

	m.processPresence(context.Background(), occupantPresence(t, "coven@conference.jabber.org/thirdwitch", "",
		map[string]string{"affiliation": "owner", "role": "moderator"}, "110", "201"))

	iq, _ := stm.iqContaining(mucOwnerNamespace)
	require.NotNil(t, iq)
	require.True(t, iq.IsSet())
	require.Equal(t, "coven@conference.jabber.org", iq.To())

	query := iq.Elements().ChildNamespace("query", mucOwnerNamespace)
	form := query.Elements().ChildNamespace("x", dataFormsNamespace)
	require.NotNil(t, form)
	require.Equal(t, "submit", form.Attributes().Get("type"))
}

func TestService_OccupantLifecycle(t *testing.T) {
	stm := newFakeStream(t)
	m := New(stm, nil, Config{Service: "conference.jabber.org"})

	roomJID, _ := jid.NewWithString("coven@conference.jabber.org", true)

	m.processPresence(context.Background(), occupantPresence(t, "coven@conference.jabber.org/firstwitch", "",
		map[string]string{"affiliation": "owner", "role": "moderator"}))

	// a second presence from the same occupant JID must not duplicate it
	m.processPresence(context.Background(), occupantPresence(t, "coven@conference.jabber.org/firstwitch", "",
		map[string]string{"affiliation": "owner", "role": "moderator", "jid": "crone1@shakespeare.lit/desktop"}))

	room, _ := m.Room(roomJID)
	require.Len(t, room.Occupants(), 1)

	occ, _ := room.Occupant("firstwitch")
	require.NotNil(t, occ.RealJID)
	require.Equal(t, "crone1@shakespeare.lit/desktop", occ.RealJID.String())

	m.processPresence(context.Background(), occupantPresence(t, "coven@conference.jabber.org/firstwitch", xmpp.UnavailableType,
		map[string]string{"affiliation": "owner", "role": "none"}))

	room, _ = m.Room(roomJID)
	require.Len(t, room.Occupants(), 0)
}

func TestService_SelfLeaveClearsOccupants(t *testing.T) {
	stm := newFakeStream(t)
	m := New(stm, nil, Config{Service: "conference.jabber.org"})

	roomJID, _ := jid.NewWithString("coven@conference.jabber.org", true)

	m.processPresence(context.Background(), occupantPresence(t, "coven@conference.jabber.org/thirdwitch", "",
		map[string]string{"affiliation": "member", "role": "participant"}, "110"))
	m.processPresence(context.Background(), occupantPresence(t, "coven@conference.jabber.org/firstwitch", "",
		map[string]string{"affiliation": "owner", "role": "moderator"}))

	m.LeaveRoom(context.Background(), roomJID)
	require.True(t, stm.sentContaining(`type="unavailable"`))

	m.processPresence(context.Background(), occupantPresence(t, "coven@conference.jabber.org/thirdwitch", xmpp.UnavailableType,
		map[string]string{"affiliation": "member", "role": "none"}, "110"))

	room, _ := m.Room(roomJID)
	require.False(t, room.Joined())
	require.Len(t, room.Occupants(), 0)
}

func TestService_SubjectAndMessages(t *testing.T) {
	stm := newFakeStream(t)
	sn := sonar.New()

	subjectCh := make(chan *event.MUCEventInfo, 1)
	sn.Subscribe(event.MUCSubjectChanged, func(_ context.Context, ev sonar.Event) error {
		subjectCh <- ev.Info().(*event.MUCEventInfo)
		return nil
	})
	msgCh := make(chan *event.MUCEventInfo, 1)
	sn.Subscribe(event.MUCMessageReceived, func(_ context.Context, ev sonar.Event) error {
		msgCh <- ev.Info().(*event.MUCEventInfo)
		return nil
	})
	m := New(stm, sn, Config{Service: "conference.jabber.org"})

	m.processPresence(context.Background(), occupantPresence(t, "coven@conference.jabber.org/thirdwitch", "",
		map[string]string{"affiliation": "member", "role": "participant"}, "110"))

	subjMsg := xmpp.NewMessageType("s1", xmpp.GroupChatType)
	subjMsg.AppendElement(xmpp.NewElementName("subject").SetText("Fire Burn and Cauldron Bubble!"))
	from, _ := jid.NewWithString("coven@conference.jabber.org/secondwitch", true)
	to, _ := jid.NewWithString("ortuman@jackal.im/desk", true)
	sm, err := xmpp.NewMessageFromElement(subjMsg, from, to)
	require.Nil(t, err)

	m.processMessage(context.Background(), sm)

	select {
	case inf := <-subjectCh:
		require.Equal(t, "Fire Burn and Cauldron Bubble!", inf.Subject)
	case <-time.After(time.Second * 5):
		t.Fatal("subject changed event not posted")
	}
	roomJID, _ := jid.NewWithString("coven@conference.jabber.org", true)
	room, _ := m.Room(roomJID)
	require.Equal(t, "Fire Burn and Cauldron Bubble!", room.Subject)

	bodyMsg := xmpp.NewMessageType("m1", xmpp.GroupChatType)
	bodyMsg.AppendElement(xmpp.NewElementName("body").SetText("Thrice the brinded cat hath mew'd."))
	bm, err := xmpp.NewMessageFromElement(bodyMsg, from, to)
	require.Nil(t, err)

	m.processMessage(context.Background(), bm)

	select {
	case inf := <-msgCh:
		require.Equal(t, "secondwitch", inf.Nick)
		require.Equal(t, "Thrice the brinded cat hath mew'd.", inf.Message.Body())
	case <-time.After(time.Second * 5):
		t.Fatal("message received event not posted")
	}
}

func TestService_DiscoverRooms(t *testing.T) {
	stm := newFakeStream(t)
	m := New(stm, nil, Config{Service: "conference.jabber.org"})
	defer m.Stop(context.Background())

	require.Nil(t, m.DiscoverRooms(context.Background()))

	itemsIQ, itemsHnd := stm.iqContaining(discoItemsNamespace)
	require.NotNil(t, itemsIQ)
	require.Equal(t, "conference.jabber.org", itemsIQ.To())

	res := xmpp.NewIQType(itemsIQ.ID(), xmpp.ResultType)
	query := xmpp.NewElementNamespace("query", discoItemsNamespace)
	item := xmpp.NewElementName("item")
	item.SetAttribute("jid", "coven@conference.jabber.org")
	item.SetAttribute("name", "The Coven")
	query.AppendElement(item)
	res.AppendElement(query)
	itemsHnd(res)

	var infoHnd stream.ResultHandler
	require.Eventually(t, func() bool {
		_, infoHnd = stm.iqContaining(discoInfoNamespace)
		return infoHnd != nil
	}, time.Second*5, time.Millisecond*5)

	infoRes := xmpp.NewElementName("iq")
	infoRes.SetID("info1")
	infoRes.SetType(xmpp.ResultType)
	infoQuery := xmpp.NewElementNamespace("query", discoInfoNamespace)
	identity := xmpp.NewElementName("identity")
	identity.SetAttribute("category", "conference")
	identity.SetAttribute("name", "A Dark Cave")
	infoQuery.AppendElement(identity)
	feature := xmpp.NewElementName("feature")
	feature.SetAttribute("var", passwordProtectedFeature)
	infoQuery.AppendElement(feature)
	form := xmpp.NewElementNamespace("x", dataFormsNamespace)
	field := xmpp.NewElementName("field")
	field.SetAttribute("var", roomInfoNamespace+"_description")
	field.AppendElement(xmpp.NewElementName("value").SetText("The place for all good witches!"))
	form.AppendElement(field)
	infoQuery.AppendElement(form)
	infoRes.AppendElement(infoQuery)

	roomFrom, _ := jid.NewWithString("coven@conference.jabber.org", true)
	own, _ := jid.NewWithString("ortuman@jackal.im/desk", true)
	infoIQ, err := xmpp.NewIQFromElement(infoRes, roomFrom, own)
	require.Nil(t, err)
	infoHnd(infoIQ)

	roomJID, _ := jid.NewWithString("coven@conference.jabber.org", true)
	require.Eventually(t, func() bool {
		room, ok := m.Room(roomJID)
		return ok && room.Description == "The place for all good witches!"
	}, time.Second*5, time.Millisecond*5)

	room, _ := m.Room(roomJID)
	require.Equal(t, "A Dark Cave", room.Name)
	require.True(t, room.PasswordProtected)
}
