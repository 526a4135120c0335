/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package roster

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
	mu      sync.Mutex
	jd      *jid.JID
	sent    []xmpp.XElement
	iqs     []*xmpp.IQ
	iqHnds  []stream.ResultHandler
	handler stream.IQHandler
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

func (s *fakeStream) RegisterIQHandler(h stream.IQHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
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

func (s *fakeStream) lastIQ() (*xmpp.IQ, stream.ResultHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.iqs) == 0 {
		return nil, nil
	}
	return s.iqs[len(s.iqs)-1], s.iqHnds[len(s.iqHnds)-1]
}

func testPresence(t *testing.T, from string, presenceType string, show string, priority string) *xmpp.Presence {
	t.Helper()
	e := xmpp.NewElementName("presence")
	if len(presenceType) > 0 {
		e.SetType(presenceType)
	}
	if len(show) > 0 {
		e.AppendElement(xmpp.NewElementName("show").SetText(show))
	}
	if len(priority) > 0 {
		e.AppendElement(xmpp.NewElementName("priority").SetText(priority))
	}
	fromJID, err := jid.NewWithString(from, true)
	require.Nil(t, err)
	toJID, err := jid.NewWithString("ortuman@jackal.im", true)
	require.Nil(t, err)

	p, err := xmpp.NewPresenceFromElement(e, fromJID, toJID)
	require.Nil(t, err)
	return p
}

func fetchedRoster(t *testing.T, stm *fakeStream, sn *sonar.Sonar, items string) *Roster {
	t.Helper()
	r := New(stm, sn, Config{})
	require.Nil(t, r.Fetch(context.Background()))

	iq, hnd := stm.lastIQ()
	require.NotNil(t, iq)

	res := xmpp.NewIQType(iq.ID(), xmpp.ResultType)
	query := xmpp.NewElementNamespace("query", rosterNamespace)
	for _, item := range parseItems(t, items) {
		query.AppendElement(item)
	}
	res.AppendElement(query)
	hnd(res)

	require.Eventually(t, r.Fetched, time.Second*5, time.Millisecond*5)
	return r
}

func parseItems(t *testing.T, items string) []*xmpp.Element {
	t.Helper()
	var ret []*xmpp.Element
	for _, it := range strings.Split(items, ";") {
		if len(it) == 0 {
			continue
		}
		fields := strings.Split(it, ",")
		item := xmpp.NewElementName("item")
		item.SetAttribute("jid", fields[0])
		if len(fields) > 1 {
			item.SetAttribute("subscription", fields[1])
		}
		ret = append(ret, item)
	}
	return ret
}

func TestRoster_Fetch(t *testing.T) {
	stm := newFakeStream(t)
	r := fetchedRoster(t, stm, nil, "romeo@jackal.im,both;juliet@jackal.im,to")

	contacts := r.Contacts()
	require.Len(t, contacts, 2)

	romeo, _ := jid.NewWithString("romeo@jackal.im", true)
	c, ok := r.Contact(romeo)
	require.True(t, ok)
	require.Equal(t, SubscriptionBoth, c.Subscription)
	require.Equal(t, xmpp.OfflineShowState, c.ShowState())
}

func TestRoster_PushUpdateAndRemove(t *testing.T) {
	stm := newFakeStream(t)
	sn := sonar.New()

	removedCh := make(chan struct{}, 1)
	sn.Subscribe(event.RosterContactRemoved, func(_ context.Context, ev sonar.Event) error {
		removedCh <- struct{}{}
		return nil
	})
	r := fetchedRoster(t, stm, sn, "romeo@jackal.im,both")
	r.Start(context.Background())
	defer r.Stop(context.Background())

	push := xmpp.NewElementName("iq")
	push.SetID("push1")
	push.SetType(xmpp.SetType)
	query := xmpp.NewElementNamespace("query", rosterNamespace)
	item := xmpp.NewElementName("item")
	item.SetAttribute("jid", "romeo@jackal.im")
	item.SetAttribute("subscription", SubscriptionRemove)
	query.AppendElement(item)
	push.AppendElement(query)

	own, _ := jid.NewWithString("ortuman@jackal.im", true)
	iq, err := xmpp.NewIQFromElement(push, own, own)
	require.Nil(t, err)

	require.True(t, r.MatchesIQ(iq))
	r.ProcessIQ(context.Background(), iq)

	select {
	case <-removedCh:
	case <-time.After(time.Second * 5):
		t.Fatal("contact removed event not posted")
	}
	romeo, _ := jid.NewWithString("romeo@jackal.im", true)
	_, ok := r.Contact(romeo)
	require.False(t, ok)

	// the push was acknowledged
	require.True(t, stm.sentContaining(`id="push1"`))
}

func TestRoster_PresencePriorityResolution(t *testing.T) {
	stm := newFakeStream(t)
	r := fetchedRoster(t, stm, nil, "romeo@jackal.im,both")

	r.processPresence(context.Background(), testPresence(t, "romeo@jackal.im/phone", "", "away", "5"))
	r.processPresence(context.Background(), testPresence(t, "romeo@jackal.im/desk", "", "dnd", "10"))

	romeo, _ := jid.NewWithString("romeo@jackal.im", true)
	c, _ := r.Contact(romeo)
	res := c.EffectiveResource()
	require.NotNil(t, res)
	require.Equal(t, "desk", res.Name)
	require.Equal(t, xmpp.DoNotDisturbShowState, c.ShowState())

	// highest priority resource going offline falls back to the next one
	r.processPresence(context.Background(), testPresence(t, "romeo@jackal.im/desk", xmpp.UnavailableType, "", ""))
	c, _ = r.Contact(romeo)
	res = c.EffectiveResource()
	require.Equal(t, "phone", res.Name)

	r.processPresence(context.Background(), testPresence(t, "romeo@jackal.im/phone", xmpp.UnavailableType, "", ""))
	c, _ = r.Contact(romeo)
	require.False(t, c.IsOnline())
	require.Equal(t, xmpp.OfflineShowState, c.ShowState())
}

func TestRoster_PresencePriorityTieRecencyWins(t *testing.T) {
	stm := newFakeStream(t)
	r := fetchedRoster(t, stm, nil, "romeo@jackal.im,both")

	now := time.Date(2022, 5, 1, 10, 0, 0, 0, time.UTC)
	r.nowFn = func() time.Time { return now }
	r.processPresence(context.Background(), testPresence(t, "romeo@jackal.im/phone", "", "", "5"))

	now = now.Add(time.Minute)
	r.processPresence(context.Background(), testPresence(t, "romeo@jackal.im/desk", "", "", "5"))

	romeo, _ := jid.NewWithString("romeo@jackal.im", true)
	c, _ := r.Contact(romeo)
	require.Equal(t, "desk", c.EffectiveResource().Name)
}

func TestRoster_LockedResource(t *testing.T) {
	stm := newFakeStream(t)
	r := fetchedRoster(t, stm, nil, "romeo@jackal.im,both")

	r.processPresence(context.Background(), testPresence(t, "romeo@jackal.im/desk", "", "", "1"))

	msg := xmpp.NewMessageType("m1", xmpp.ChatType)
	msg.AppendElement(xmpp.NewElementName("body").SetText("hi"))
	from, _ := jid.NewWithString("romeo@jackal.im/desk", true)
	to, _ := jid.NewWithString("ortuman@jackal.im", true)
	m, err := xmpp.NewMessageFromElement(msg, from, to)
	require.Nil(t, err)

	r.processMessage(context.Background(), m)

	romeo, _ := jid.NewWithString("romeo@jackal.im", true)
	c, _ := r.Contact(romeo)
	require.Equal(t, "desk", c.LockedResource())

	// a new presence from the locked resource invalidates the lock
	r.processPresence(context.Background(), testPresence(t, "romeo@jackal.im/desk", "", "away", "1"))
	c, _ = r.Contact(romeo)
	require.Equal(t, "", c.LockedResource())
}

func TestRoster_SubscribeAutoApproval(t *testing.T) {
	stm := newFakeStream(t)
	sn := sonar.New()

	requestedCh := make(chan struct{}, 1)
	sn.Subscribe(event.RosterSubscriptionRequested, func(_ context.Context, ev sonar.Event) error {
		requestedCh <- struct{}{}
		return nil
	})
	r := fetchedRoster(t, stm, sn, "romeo@jackal.im,both;mercutio@jackal.im,none")

	// roster contact gets approved right away
	r.processPresence(context.Background(), testPresence(t, "romeo@jackal.im", xmpp.SubscribeType, "", ""))
	require.True(t, stm.sentContaining(`to="romeo@jackal.im" type="subscribed"`))

	// regardless of its subscription state
	r.processPresence(context.Background(), testPresence(t, "mercutio@jackal.im", xmpp.SubscribeType, "", ""))
	require.True(t, stm.sentContaining(`to="mercutio@jackal.im" type="subscribed"`))

	// unknown entity surfaces as a subscription request
	r.processPresence(context.Background(), testPresence(t, "stranger@jackal.im", xmpp.SubscribeType, "", ""))
	select {
	case <-requestedCh:
	case <-time.After(time.Second * 5):
		t.Fatal("subscription requested event not posted")
	}
}

func TestRoster_TypingDebounce(t *testing.T) {
	stm := newFakeStream(t)
	r := New(stm, nil, Config{PausedAfter: time.Millisecond * 50})
	defer r.Stop(context.Background())

	romeo, _ := jid.NewWithString("romeo@jackal.im", true)
	r.NotifyTyping(context.Background(), romeo)

	require.Eventually(t, func() bool {
		return stm.sentContaining("composing")
	}, time.Second*5, time.Millisecond*5)

	// without further typing the composing state decays into paused
	require.Eventually(t, func() bool {
		return stm.sentContaining("paused")
	}, time.Second*5, time.Millisecond*5)
}

func TestRoster_IdleEscalation(t *testing.T) {
	stm := newFakeStream(t)
	r := New(stm, nil, Config{IdleAway: time.Millisecond * 40, IdleExtendedAway: time.Millisecond * 80})
	defer r.Stop(context.Background())

	r.SetPresence(context.Background(), xmpp.AvailableShowState, "", 1)

	require.Eventually(t, func() bool {
		return stm.sentContaining("<show>away</show>")
	}, time.Second*5, time.Millisecond*5)

	require.Eventually(t, func() bool {
		return stm.sentContaining("<show>xa</show>")
	}, time.Second*5, time.Millisecond*5)
}

func TestRoster_IdleNeverOverridesDoNotDisturb(t *testing.T) {
	stm := newFakeStream(t)
	r := New(stm, nil, Config{IdleAway: time.Millisecond * 20, IdleExtendedAway: time.Millisecond * 40})
	defer r.Stop(context.Background())

	r.SetPresence(context.Background(), xmpp.DoNotDisturbShowState, "busy", 1)

	time.Sleep(time.Millisecond * 120)
	require.True(t, stm.sentContaining("<show>dnd</show>"))
	require.False(t, stm.sentContaining("<show>away</show>"))
	require.False(t, stm.sentContaining("<show>xa</show>"))
}
