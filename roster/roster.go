/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package roster

import (
	"context"
	"sync"
	"time"

	"github.com/jackal-xmpp/runqueue"
	"github.com/jackal-xmpp/sonar"

	"github.com/wisp-im/wisp/event"
	"github.com/wisp-im/wisp/log"
	"github.com/wisp-im/wisp/stream"
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

const rosterNamespace = "jabber:iq:roster"

// Stream defines the stream operations the roster relies on.
type Stream interface {
	// JID returns the stream bound JID.
	JID() *jid.JID

	// SendElement writes an element to the stream.
	SendElement(ctx context.Context, elem xmpp.XElement)

	// SendIQ writes a request iq registering a response handler.
	SendIQ(ctx context.Context, iq *xmpp.IQ, hnd stream.ResultHandler) error

	// RegisterIQHandler registers a handler for incoming request iqs.
	RegisterIQHandler(h stream.IQHandler)
}

// Config contains roster configurable timings.
type Config struct {
	// PausedAfter is the inactivity span after which an outgoing
	// composing notification decays into paused.
	PausedAfter time.Duration

	// IdleAway is the inactivity span after which own presence is
	// escalated to away.
	IdleAway time.Duration

	// IdleExtendedAway is the inactivity span after which own presence
	// is escalated to extended away.
	IdleExtendedAway time.Duration

	// Caps is an optional capabilities element attached to every
	// announced own presence.
	Caps xmpp.XElement
}

// Roster keeps the contact list, their presence and chat states in sync
// with the server, and manages the own presence announced to it.
type Roster struct {
	cfg   Config
	stm   Stream
	sn    *sonar.Sonar
	rq    *runqueue.RunQueue
	subs  []sonar.SubID
	nowFn func() time.Time

	mu       sync.RWMutex
	contacts map[string]*Contact
	ver      string
	fetched  bool

	// own announced presence
	show     xmpp.ShowState
	status   string
	priority int8

	idleLevel int
	awayTm    *time.Timer
	xaTm      *time.Timer

	typing   map[string]bool
	typingTm map[string]*time.Timer
}

// New returns an initialized roster instance.
func New(stm Stream, sn *sonar.Sonar, cfg Config) *Roster {
	if cfg.PausedAfter == 0 {
		cfg.PausedAfter = time.Second * 10
	}
	if cfg.IdleAway == 0 {
		cfg.IdleAway = time.Minute * 5
	}
	if cfg.IdleExtendedAway == 0 {
		cfg.IdleExtendedAway = time.Minute * 15
	}
	return &Roster{
		cfg:      cfg,
		stm:      stm,
		sn:       sn,
		rq:       runqueue.New("roster", log.Errorf),
		nowFn:    time.Now,
		contacts: make(map[string]*Contact),
		typing:   make(map[string]bool),
		typingTm: make(map[string]*time.Timer),
	}
}

// Start subscribes the roster to stream traffic.
func (r *Roster) Start(_ context.Context) {
	r.subs = append(r.subs, r.sn.Subscribe(event.StreamPresenceReceived, r.onPresenceRecv))
	r.subs = append(r.subs, r.sn.Subscribe(event.StreamMessageReceived, r.onMessageRecv))
	r.stm.RegisterIQHandler(r)
}

// Stop detaches the roster and cancels all of its timers.
func (r *Roster) Stop(_ context.Context) {
	for _, sub := range r.subs {
		r.sn.Unsubscribe(sub)
	}
	c := make(chan struct{})
	r.rq.Stop(func() { close(c) })
	<-c

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopIdleTimers()
	for to, tm := range r.typingTm {
		tm.Stop()
		delete(r.typingTm, to)
	}
}

// Fetch requests the roster from the server, replacing the local
// contact list when the result arrives.
func (r *Roster) Fetch(ctx context.Context) error {
	iq := xmpp.NewIQType("", xmpp.GetType)
	iq.AppendElement(xmpp.NewElementNamespace("query", rosterNamespace))

	return r.stm.SendIQ(ctx, iq, func(result *xmpp.IQ) {
		r.rq.Run(func() {
			r.processFetchResult(context.Background(), result)
		})
	})
}

// Contacts returns a snapshot of all roster contacts.
func (r *Roster) Contacts() []Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		ret = append(ret, *c.clone())
	}
	return ret
}

// Contact returns a snapshot of the contact identified by the bare
// representation of j.
func (r *Roster) Contact(j *jid.JID) (Contact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[j.ToBareJID().String()]
	if !ok {
		return Contact{}, false
	}
	return *c.clone(), true
}

// Fetched tells whether the initial roster result has been processed.
func (r *Roster) Fetched() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetched
}

// SetNotify flags whether incoming activity from the given contact
// should raise user notifications.
func (r *Roster) SetNotify(j *jid.JID, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contacts[j.ToBareJID().String()]; ok {
		c.Notify = enabled
	}
}

// Version returns the last seen roster version.
func (r *Roster) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ver
}

// AddContact inserts or updates a roster entry.
func (r *Roster) AddContact(ctx context.Context, j *jid.JID, name string, groups ...string) error {
	iq := xmpp.NewIQType("", xmpp.SetType)
	query := xmpp.NewElementNamespace("query", rosterNamespace)
	item := xmpp.NewElementName("item")
	item.SetAttribute("jid", j.ToBareJID().String())
	if len(name) > 0 {
		item.SetAttribute("name", name)
	}
	for _, g := range groups {
		item.AppendElement(xmpp.NewElementName("group").SetText(g))
	}
	query.AppendElement(item)
	iq.AppendElement(query)

	return r.stm.SendIQ(ctx, iq, nil)
}

// RemoveContact removes a roster entry. The server push confirming the
// removal also tears down any presence subscription.
func (r *Roster) RemoveContact(ctx context.Context, j *jid.JID) error {
	iq := xmpp.NewIQType("", xmpp.SetType)
	query := xmpp.NewElementNamespace("query", rosterNamespace)
	item := xmpp.NewElementName("item")
	item.SetAttribute("jid", j.ToBareJID().String())
	item.SetAttribute("subscription", SubscriptionRemove)
	query.AppendElement(item)
	iq.AppendElement(query)

	return r.stm.SendIQ(ctx, iq, nil)
}

// MatchesIQ returns whether or not an iq is a roster push.
func (r *Roster) MatchesIQ(iq *xmpp.IQ) bool {
	return iq.IsSet() && iq.Elements().ChildNamespace("query", rosterNamespace) != nil
}

// ProcessIQ processes a roster push, updating the local contact list.
func (r *Roster) ProcessIQ(ctx context.Context, iq *xmpp.IQ) {
	r.rq.Run(func() {
		r.processPush(ctx, iq)
	})
}

func (r *Roster) processFetchResult(ctx context.Context, result *xmpp.IQ) {
	if !result.IsResult() {
		log.Infof("roster fetch failed... (id: %s)", result.ID())
		return
	}
	query := result.Elements().ChildNamespace("query", rosterNamespace)
	if query == nil {
		return
	}
	r.mu.Lock()
	r.ver = query.Attributes().Get("ver")
	for _, item := range query.Elements().Children("item") {
		c, err := contactFromItem(item)
		if err != nil {
			log.Error(err)
			continue
		}
		if prev, ok := r.contacts[c.JID.String()]; ok {
			// keep presence state across refetches
			c.resources = prev.resources
			c.lockedResource = prev.lockedResource
			c.chatState = prev.chatState
			c.avatarHash = prev.avatarHash
			c.Notify = prev.Notify
		}
		r.contacts[c.JID.String()] = c
	}
	r.fetched = true
	r.mu.Unlock()

	r.postRosterEvent(ctx, event.RosterFetched, &event.RosterEventInfo{})
}

func (r *Roster) processPush(ctx context.Context, iq *xmpp.IQ) {
	// per RFC 6121 only the server may push roster updates
	if from := iq.FromJID(); from != nil {
		ownBare := r.stm.JID().ToBareJID().String()
		if len(from.String()) > 0 && from.String() != ownBare && from.String() != r.stm.JID().Domain() {
			return
		}
	}
	query := iq.Elements().ChildNamespace("query", rosterNamespace)

	r.mu.Lock()
	if ver := query.Attributes().Get("ver"); len(ver) > 0 {
		r.ver = ver
	}
	var updated, removed []*Contact
	for _, item := range query.Elements().Children("item") {
		c, err := contactFromItem(item)
		if err != nil {
			log.Error(err)
			continue
		}
		if c.Subscription == SubscriptionRemove {
			if prev, ok := r.contacts[c.JID.String()]; ok {
				delete(r.contacts, c.JID.String())
				removed = append(removed, prev)
			}
			continue
		}
		if prev, ok := r.contacts[c.JID.String()]; ok {
			c.resources = prev.resources
			c.lockedResource = prev.lockedResource
			c.chatState = prev.chatState
			c.avatarHash = prev.avatarHash
			c.Notify = prev.Notify
		}
		r.contacts[c.JID.String()] = c
		updated = append(updated, c)
	}
	r.mu.Unlock()

	r.stm.SendElement(ctx, iq.ResultIQ())

	for _, c := range removed {
		r.postRosterEvent(ctx, event.RosterContactRemoved, &event.RosterEventInfo{JID: c.JID})
	}
	for _, c := range updated {
		r.postRosterEvent(ctx, event.RosterContactUpdated, &event.RosterEventInfo{
			JID:          c.JID,
			Name:         c.Name,
			Subscription: c.Subscription,
		})
	}
}

func contactFromItem(item xmpp.XElement) (*Contact, error) {
	j, err := jid.NewWithString(item.Attributes().Get("jid"), false)
	if err != nil {
		return nil, err
	}
	c := newContact(j)
	c.Name = item.Attributes().Get("name")
	if sub := item.Attributes().Get("subscription"); len(sub) > 0 {
		c.Subscription = sub
	}
	for _, g := range item.Elements().Children("group") {
		c.Groups = append(c.Groups, g.Text())
	}
	return c, nil
}

func (r *Roster) postRosterEvent(ctx context.Context, eventName string, inf *event.RosterEventInfo) {
	if r.sn == nil {
		return
	}
	_ = r.sn.Post(ctx, sonar.NewEventBuilder(eventName).WithInfo(inf).Build())
}
