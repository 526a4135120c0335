/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package muc

import (
	"context"
	"sync"

	"github.com/jackal-xmpp/runqueue"
	"github.com/jackal-xmpp/sonar"

	"github.com/wisp-im/wisp/event"
	"github.com/wisp-im/wisp/log"
	"github.com/wisp-im/wisp/stream"
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	mucNamespace      = "http://jabber.org/protocol/muc"
	mucUserNamespace  = "http://jabber.org/protocol/muc#user"
	mucOwnerNamespace = "http://jabber.org/protocol/muc#owner"
	roomInfoNamespace = "http://jabber.org/protocol/muc#roominfo"

	dataFormsNamespace  = "jabber:x:data"
	discoInfoNamespace  = "http://jabber.org/protocol/disco#info"
	discoItemsNamespace = "http://jabber.org/protocol/disco#items"

	passwordProtectedFeature = "muc_passwordprotected"
)

// Stream defines the stream operations the muc service relies on.
type Stream interface {
	// JID returns the stream bound JID.
	JID() *jid.JID

	// SendElement writes an element to the stream.
	SendElement(ctx context.Context, elem xmpp.XElement)

	// SendIQ writes a request iq registering a response handler.
	SendIQ(ctx context.Context, iq *xmpp.IQ, hnd stream.ResultHandler) error
}

// Config contains muc service configuration.
type Config struct {
	// Service is the conference service domain rooms live under.
	Service string
}

// Service keeps the room and occupant lists in sync with a multi user
// chat conference service.
type Service struct {
	cfg Config
	stm Stream
	sn  *sonar.Sonar
	rq  *runqueue.RunQueue

	subs []sonar.SubID

	mu    sync.RWMutex
	rooms map[string]*Room
}

// New returns an initialized muc service instance.
func New(stm Stream, sn *sonar.Sonar, cfg Config) *Service {
	return &Service{
		cfg:   cfg,
		stm:   stm,
		sn:    sn,
		rq:    runqueue.New("muc", log.Errorf),
		rooms: make(map[string]*Room),
	}
}

// Start subscribes the service to stream traffic.
func (m *Service) Start(_ context.Context) {
	m.subs = append(m.subs, m.sn.Subscribe(event.StreamPresenceReceived, m.onPresenceRecv))
	m.subs = append(m.subs, m.sn.Subscribe(event.StreamMessageReceived, m.onMessageRecv))
}

// Stop detaches the service from stream traffic.
func (m *Service) Stop(_ context.Context) {
	for _, sub := range m.subs {
		m.sn.Unsubscribe(sub)
	}
	c := make(chan struct{})
	m.rq.Stop(func() { close(c) })
	<-c
}

// Rooms returns a snapshot of all known rooms.
func (m *Service) Rooms() []Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		ret = append(ret, *r.clone())
	}
	return ret
}

// Room returns a snapshot of the room identified by the bare
// representation of j.
func (m *Service) Room(j *jid.JID) (Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[j.ToBareJID().String()]
	if !ok {
		return Room{}, false
	}
	return *r.clone(), true
}

// DiscoverRooms queries the conference service for its public room
// list, requesting per room information as items arrive.
func (m *Service) DiscoverRooms(ctx context.Context) error {
	iq := xmpp.NewIQType("", xmpp.GetType)
	iq.SetTo(m.cfg.Service)
	iq.AppendElement(xmpp.NewElementNamespace("query", discoItemsNamespace))

	return m.stm.SendIQ(ctx, iq, func(result *xmpp.IQ) {
		m.rq.Run(func() {
			m.processServiceItems(context.Background(), result)
		})
	})
}

// JoinRoom enters a room under the given nickname by directed presence.
func (m *Service) JoinRoom(ctx context.Context, roomJID *jid.JID, nick, password string) error {
	occJID, err := jid.New(roomJID.Node(), roomJID.Domain(), nick, false)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.rooms[occJID.ToBareJID().String()]; !ok {
		m.rooms[occJID.ToBareJID().String()] = newRoom(occJID)
	}
	m.mu.Unlock()

	presence := xmpp.NewPresence(nil, occJID, xmpp.AvailableType)
	x := xmpp.NewElementNamespace("x", mucNamespace)
	if len(password) > 0 {
		x.AppendElement(xmpp.NewElementName("password").SetText(password))
	}
	presence.AppendElement(x)

	m.stm.SendElement(ctx, presence)
	return nil
}

// LeaveRoom exits a previously joined room.
func (m *Service) LeaveRoom(ctx context.Context, roomJID *jid.JID) {
	m.mu.RLock()
	room, ok := m.rooms[roomJID.ToBareJID().String()]
	var selfJID *jid.JID
	if ok && room.selfJID != nil {
		selfJID = room.selfJID
	}
	m.mu.RUnlock()
	if selfJID == nil {
		return
	}
	m.stm.SendElement(ctx, xmpp.NewPresence(nil, selfJID, xmpp.UnavailableType))
}

// SendMessage sends a groupchat message to the given room.
func (m *Service) SendMessage(ctx context.Context, roomJID *jid.JID, body string) {
	msg := xmpp.NewMessageType("", xmpp.GroupChatType)
	msg.SetTo(roomJID.ToBareJID().String())
	msg.AppendElement(xmpp.NewElementName("body").SetText(body))
	m.stm.SendElement(ctx, msg)
}

// SetSubject requests a room subject change.
func (m *Service) SetSubject(ctx context.Context, roomJID *jid.JID, subject string) {
	msg := xmpp.NewMessageType("", xmpp.GroupChatType)
	msg.SetTo(roomJID.ToBareJID().String())
	msg.AppendElement(xmpp.NewElementName("subject").SetText(subject))
	m.stm.SendElement(ctx, msg)
}

// SetNotify flags whether activity on the given room should raise user
// notifications.
func (m *Service) SetNotify(roomJID *jid.JID, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomJID.ToBareJID().String()]; ok {
		r.Notify = enabled
	}
}

func (m *Service) onPresenceRecv(ctx context.Context, ev sonar.Event) error {
	inf := ev.Info().(*event.StreamEventInfo)
	presence, ok := inf.Stanza.(*xmpp.Presence)
	if !ok {
		return nil
	}
	if presence.Elements().ChildNamespace("x", mucUserNamespace) == nil {
		return nil
	}
	m.rq.Run(func() {
		m.processPresence(ctx, presence)
	})
	return nil
}

func (m *Service) onMessageRecv(ctx context.Context, ev sonar.Event) error {
	inf := ev.Info().(*event.StreamEventInfo)
	msg, ok := inf.Stanza.(*xmpp.Message)
	if !ok || !msg.IsGroupChat() {
		return nil
	}
	m.rq.Run(func() {
		m.processMessage(ctx, msg)
	})
	return nil
}

func (m *Service) processServiceItems(ctx context.Context, result *xmpp.IQ) {
	if !result.IsResult() {
		log.Infof("room discovery failed... (id: %s)", result.ID())
		return
	}
	query := result.Elements().ChildNamespace("query", discoItemsNamespace)
	if query == nil {
		return
	}
	for _, item := range query.Elements().Children("item") {
		roomJID, err := jid.NewWithString(item.Attributes().Get("jid"), false)
		if err != nil {
			log.Error(err)
			continue
		}
		m.mu.Lock()
		room, ok := m.rooms[roomJID.ToBareJID().String()]
		if !ok {
			room = newRoom(roomJID)
			m.rooms[room.JID.String()] = room
		}
		if name := item.Attributes().Get("name"); len(name) > 0 {
			room.Name = name
		}
		m.mu.Unlock()

		m.postMUCEvent(ctx, event.MUCRoomDiscovered, &event.MUCEventInfo{RoomJID: roomJID.ToBareJID()})

		if err := m.requestRoomInfo(ctx, roomJID.ToBareJID()); err != nil {
			log.Error(err)
		}
	}
}

func (m *Service) requestRoomInfo(ctx context.Context, roomJID *jid.JID) error {
	iq := xmpp.NewIQType("", xmpp.GetType)
	iq.SetTo(roomJID.String())
	iq.AppendElement(xmpp.NewElementNamespace("query", discoInfoNamespace))

	return m.stm.SendIQ(ctx, iq, func(result *xmpp.IQ) {
		m.rq.Run(func() {
			m.processRoomInfo(result)
		})
	})
}

func (m *Service) processRoomInfo(result *xmpp.IQ) {
	if !result.IsResult() {
		return
	}
	query := result.Elements().ChildNamespace("query", discoInfoNamespace)
	if query == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[result.FromJID().ToBareJID().String()]
	if !ok {
		return
	}
	if identity := query.Elements().Child("identity"); identity != nil {
		if name := identity.Attributes().Get("name"); len(name) > 0 {
			room.Name = name
		}
	}
	for _, feature := range query.Elements().Children("feature") {
		if feature.Attributes().Get("var") == passwordProtectedFeature {
			room.PasswordProtected = true
		}
	}
	if form := query.Elements().ChildNamespace("x", dataFormsNamespace); form != nil {
		for _, field := range form.Elements().Children("field") {
			if field.Attributes().Get("var") != roomInfoNamespace+"_description" {
				continue
			}
			if value := field.Elements().Child("value"); value != nil {
				room.Description = value.Text()
			}
		}
	}
}

func (m *Service) processPresence(ctx context.Context, presence *xmpp.Presence) {
	from := presence.FromJID()
	roomBare := from.ToBareJID()
	x := presence.Elements().ChildNamespace("x", mucUserNamespace)

	m.mu.Lock()
	room, ok := m.rooms[roomBare.String()]
	if !ok {
		room = newRoom(roomBare)
		m.rooms[room.JID.String()] = room
	}
	self := containsStatusCode(x, "110")
	created := containsStatusCode(x, "201")

	var joined, left, occupantJoined, occupantLeft bool
	nick := from.Resource()

	if presence.IsUnavailable() {
		if _, present := room.occupants[from.String()]; present {
			room.removeOccupant(from.String())
			occupantLeft = !self
		}
		if self || (room.selfJID != nil && room.selfJID.String() == from.String()) {
			// our own exit tears the whole occupant list down
			room.selfJID = nil
			room.occupants = make(map[string]*Occupant)
			left = true
		}
	} else {
		occ := &Occupant{
			OccupantJID: from,
			Nick:        nick,
			Show:        presence.ShowState(),
			Status:      presence.Status(),
			IsSelf:      self,
		}
		if item := x.Elements().Child("item"); item != nil {
			occ.Affiliation = item.Attributes().Get("affiliation")
			occ.Role = item.Attributes().Get("role")
			if realJID := item.Attributes().Get("jid"); len(realJID) > 0 {
				occ.RealJID, _ = jid.NewWithString(realJID, true)
			}
		}
		_, present := room.occupants[from.String()]
		occupantJoined = !present && !self
		if self && room.selfJID == nil {
			room.selfJID = from
			joined = true
		}
		room.setOccupant(occ)
	}
	m.mu.Unlock()

	if created {
		m.acceptInstantRoom(ctx, roomBare)
		m.postMUCEvent(ctx, event.MUCRoomCreated, &event.MUCEventInfo{RoomJID: roomBare})
	}
	switch {
	case joined:
		m.postMUCEvent(ctx, event.MUCRoomJoined, &event.MUCEventInfo{RoomJID: roomBare, Nick: nick})
	case left:
		m.postMUCEvent(ctx, event.MUCRoomLeft, &event.MUCEventInfo{RoomJID: roomBare, Nick: nick})
	case occupantJoined:
		m.postMUCEvent(ctx, event.MUCOccupantJoined, &event.MUCEventInfo{RoomJID: roomBare, Nick: nick})
	case occupantLeft:
		m.postMUCEvent(ctx, event.MUCOccupantLeft, &event.MUCEventInfo{RoomJID: roomBare, Nick: nick})
	case !presence.IsUnavailable():
		m.postMUCEvent(ctx, event.MUCOccupantUpdated, &event.MUCEventInfo{RoomJID: roomBare, Nick: nick})
	}
}

// acceptInstantRoom acknowledges a just created room with an empty
// submit form, accepting the service defaults.
func (m *Service) acceptInstantRoom(ctx context.Context, roomJID *jid.JID) {
	iq := xmpp.NewIQType("", xmpp.SetType)
	iq.SetTo(roomJID.String())
	query := xmpp.NewElementNamespace("query", mucOwnerNamespace)
	form := xmpp.NewElementNamespace("x", dataFormsNamespace)
	form.SetAttribute("type", "submit")
	query.AppendElement(form)
	iq.AppendElement(query)

	if err := m.stm.SendIQ(ctx, iq, nil); err != nil {
		log.Error(err)
	}
}

func (m *Service) processMessage(ctx context.Context, msg *xmpp.Message) {
	roomBare := msg.FromJID().ToBareJID()

	m.mu.Lock()
	room, ok := m.rooms[roomBare.String()]
	if !ok {
		m.mu.Unlock()
		return
	}
	var subjectChanged bool
	if msg.IsSubjectOnly() && msg.Subject() != room.Subject {
		room.Subject = msg.Subject()
		subjectChanged = true
	}
	subject := room.Subject
	m.mu.Unlock()

	if subjectChanged {
		m.postMUCEvent(ctx, event.MUCSubjectChanged, &event.MUCEventInfo{
			RoomJID: roomBare,
			Subject: subject,
		})
		return
	}
	if len(msg.Body()) > 0 {
		m.postMUCEvent(ctx, event.MUCMessageReceived, &event.MUCEventInfo{
			RoomJID: roomBare,
			Nick:    msg.FromJID().Resource(),
			Message: msg,
		})
	}
}

func containsStatusCode(x xmpp.XElement, code string) bool {
	for _, status := range x.Elements().Children("status") {
		if status.Attributes().Get("code") == code {
			return true
		}
	}
	return false
}

func (m *Service) postMUCEvent(ctx context.Context, eventName string, inf *event.MUCEventInfo) {
	if m.sn == nil {
		return
	}
	_ = m.sn.Post(ctx, sonar.NewEventBuilder(eventName).WithInfo(inf).Build())
}
