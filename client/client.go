/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package client

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/google/uuid"
	"github.com/jackal-xmpp/runqueue"
	"github.com/jackal-xmpp/sonar"
	"github.com/pkg/errors"

	"github.com/wisp-im/wisp/archive"
	"github.com/wisp-im/wisp/cache"
	"github.com/wisp-im/wisp/event"
	"github.com/wisp-im/wisp/log"
	"github.com/wisp-im/wisp/muc"
	"github.com/wisp-im/wisp/roster"
	"github.com/wisp-im/wisp/stream"
	"github.com/wisp-im/wisp/transport"
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	appName    = "wisp"
	appVersion = "0.4.0"
)

var clientFeatures = []string{
	"http://jabber.org/protocol/disco#info",
	"http://jabber.org/protocol/disco#items",
	"http://jabber.org/protocol/muc",
	capsNamespace,
	xmpp.ChatStateNamespace,
	xmpp.ReceiptsNamespace,
	"urn:xmpp:mam:2",
	"urn:xmpp:ping",
	"urn:xmpp:time",
	"jabber:iq:version",
	"vcard-temp",
}

var errNotConnected = errors.New("client: not connected")

// Client glues the stream engine and the entity models together behind
// a single connect and disconnect lifecycle.
type Client struct {
	cfg Config
	sn  *sonar.Sonar
	rq  *runqueue.RunQueue

	cache *cache.Cache
	subs  []sonar.SubID

	mu      sync.RWMutex
	stm     *stream.Stream
	roster  *roster.Roster
	muc     *muc.Service
	archive *archive.Archive
}

// New returns an initialized client instance.
func New(cfg Config) (*Client, error) {
	ch, err := cache.New(cache.Config{DataDir: cfg.DataDir}, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:   cfg,
		sn:    sonar.New(),
		rq:    runqueue.New("client", log.Errorf),
		cache: ch,
	}
	return c, nil
}

// Events returns the client event bus.
func (c *Client) Events() *sonar.Sonar {
	return c.sn
}

// Connect establishes a stream for the given account and keeps the
// entity models synchronized over it until disconnection.
func (c *Client) Connect(ctx context.Context, username, password string) error {
	c.mu.Lock()
	if c.stm != nil {
		c.mu.Unlock()
		return errors.New("client: already connected")
	}
	usrJID, err := jid.New(username, c.cfg.Domain, c.cfg.Resource, false)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	dialer := transport.NewDialer(c.cfg.URL, c.cfg.KeepAlive, &tls.Config{ServerName: c.cfg.Domain})

	stm := stream.New(stream.Options{
		JID:           usrJID,
		Password:      password,
		Dialer:        dialer,
		MaxStanzaSize: c.cfg.MaxStanzaSize,
		Register:      c.cfg.Register,
		AppName:       appName,
		AppVersion:    appVersion,
		Features:      clientFeatures,
	}, c.sn)

	c.stm = stm
	c.roster = roster.New(stm, c.sn, roster.Config{
		Caps: capsElement(appName, clientFeatures),
	})
	c.muc = muc.New(stm, c.sn, muc.Config{Service: c.cfg.ConferenceService})
	c.archive = archive.New(stm, c.sn, archive.Config{
		WindowSize: c.cfg.HistoryWindow,
		PageSize:   c.cfg.PageSize,
	})
	c.mu.Unlock()

	c.roster.Start(ctx)
	c.muc.Start(ctx)
	c.archive.Start(ctx)

	c.subs = append(c.subs, c.sn.Subscribe(event.StreamReady, c.onStreamReady))
	c.subs = append(c.subs, c.sn.Subscribe(event.RosterAvatarChanged, c.onAvatarChanged))

	if err := stm.Connect(ctx); err != nil {
		c.teardown(ctx)
		return err
	}
	return nil
}

// Disconnect closes the stream and detaches all entity models.
func (c *Client) Disconnect(ctx context.Context) {
	c.mu.RLock()
	stm := c.stm
	c.mu.RUnlock()
	if stm == nil {
		return
	}
	stm.Disconnect(ctx, nil)
	c.teardown(ctx)
}

// Close releases all client resources.
func (c *Client) Close(ctx context.Context) error {
	c.Disconnect(ctx)

	ch := make(chan struct{})
	c.rq.Stop(func() { close(ch) })
	<-ch

	return c.cache.Close(ctx)
}

// SendMessage sends a chat message requesting a delivery receipt and
// returns the assigned message identifier.
func (c *Client) SendMessage(ctx context.Context, to *jid.JID, body string) (string, error) {
	c.mu.RLock()
	stm, rst, arc := c.stm, c.roster, c.archive
	c.mu.RUnlock()
	if stm == nil {
		return "", errNotConnected
	}
	msgID := uuid.New().String()
	msg := xmpp.NewMessageType(msgID, xmpp.ChatType)
	msg.SetTo(messageTarget(rst, to))
	msg.AppendElement(xmpp.NewElementName("body").SetText(body))
	msg.AppendElement(xmpp.NewElementNamespace(xmpp.ChatStateActive, xmpp.ChatStateNamespace))
	msg.AppendElement(xmpp.NewElementNamespace("request", xmpp.ReceiptsNamespace))

	// the active state above supersedes any pending composing decay
	rst.ClearTyping(to)

	stm.SendElement(ctx, msg)
	arc.TrackSent(ctx, to, msgID, body)
	return msgID, nil
}

// messageTarget resolves the destination address of an outgoing
// message, preferring the contact locked resource when one is in
// effect.
func messageTarget(rst *roster.Roster, to *jid.JID) string {
	target := to.ToBareJID().String()
	if rst == nil {
		return target
	}
	if c, ok := rst.Contact(to); ok {
		if lockedRes := c.LockedResource(); len(lockedRes) > 0 {
			target += "/" + lockedRes
		}
	}
	return target
}

// SendChatState notifies the peer that we started or stopped writing.
func (c *Client) SendChatState(ctx context.Context, to *jid.JID, composing bool) error {
	c.mu.RLock()
	rst := c.roster
	c.mu.RUnlock()
	if rst == nil {
		return errNotConnected
	}
	if composing {
		rst.NotifyTyping(ctx, to)
	} else {
		rst.CancelTyping(ctx, to)
	}
	return nil
}

// SetPresence announces a new own presence.
func (c *Client) SetPresence(ctx context.Context, show xmpp.ShowState, status string, priority int8) error {
	c.mu.RLock()
	rst := c.roster
	c.mu.RUnlock()
	if rst == nil {
		return errNotConnected
	}
	rst.SetPresence(ctx, show, status, priority)
	return nil
}

// Activity signals user activity, restoring the announced presence.
func (c *Client) Activity(ctx context.Context) {
	c.mu.RLock()
	rst := c.roster
	c.mu.RUnlock()
	if rst != nil {
		rst.Activity(ctx)
	}
}

// JoinRoom enters a multi user chat room under the given nickname.
func (c *Client) JoinRoom(ctx context.Context, roomJID *jid.JID, nick, password string) error {
	c.mu.RLock()
	m := c.muc
	c.mu.RUnlock()
	if m == nil {
		return errNotConnected
	}
	return m.JoinRoom(ctx, roomJID, nick, password)
}

// LeaveRoom exits a previously joined room.
func (c *Client) LeaveRoom(ctx context.Context, roomJID *jid.JID) error {
	c.mu.RLock()
	m := c.muc
	c.mu.RUnlock()
	if m == nil {
		return errNotConnected
	}
	m.LeaveRoom(ctx, roomJID)
	return nil
}

// SendRoomMessage sends a groupchat message to a joined room.
func (c *Client) SendRoomMessage(ctx context.Context, roomJID *jid.JID, body string) error {
	c.mu.RLock()
	m := c.muc
	c.mu.RUnlock()
	if m == nil {
		return errNotConnected
	}
	m.SendMessage(ctx, roomJID, body)
	return nil
}

// RequestSubscription asks the given entity for presence subscription.
func (c *Client) RequestSubscription(ctx context.Context, j *jid.JID) error {
	c.mu.RLock()
	rst := c.roster
	c.mu.RUnlock()
	if rst == nil {
		return errNotConnected
	}
	rst.Subscribe(ctx, j)
	return nil
}

// ApproveSubscription accepts a received subscription request.
func (c *Client) ApproveSubscription(ctx context.Context, j *jid.JID) error {
	c.mu.RLock()
	rst := c.roster
	c.mu.RUnlock()
	if rst == nil {
		return errNotConnected
	}
	rst.Approve(ctx, j)
	return nil
}

// DeclineSubscription rejects a received subscription request.
func (c *Client) DeclineSubscription(ctx context.Context, j *jid.JID) error {
	c.mu.RLock()
	rst := c.roster
	c.mu.RUnlock()
	if rst == nil {
		return errNotConnected
	}
	rst.Decline(ctx, j)
	return nil
}

// Unsubscribe cancels an outgoing presence subscription.
func (c *Client) Unsubscribe(ctx context.Context, j *jid.JID) error {
	c.mu.RLock()
	rst := c.roster
	c.mu.RUnlock()
	if rst == nil {
		return errNotConnected
	}
	rst.Unsubscribe(ctx, j)
	return nil
}

// AddContact inserts or updates a roster entry.
func (c *Client) AddContact(ctx context.Context, j *jid.JID, name string, groups ...string) error {
	c.mu.RLock()
	rst := c.roster
	c.mu.RUnlock()
	if rst == nil {
		return errNotConnected
	}
	return rst.AddContact(ctx, j, name, groups...)
}

// RemoveContact removes a roster entry.
func (c *Client) RemoveContact(ctx context.Context, j *jid.JID) error {
	c.mu.RLock()
	rst := c.roster
	c.mu.RUnlock()
	if rst == nil {
		return errNotConnected
	}
	return rst.RemoveContact(ctx, j)
}

// QueryArchive requests an archive page for the given peer.
func (c *Client) QueryArchive(ctx context.Context, peer *jid.JID, before string) error {
	c.mu.RLock()
	arc := c.archive
	c.mu.RUnlock()
	if arc == nil {
		return errNotConnected
	}
	return arc.Query(ctx, peer, before)
}

// Roster returns a snapshot of the contact list.
func (c *Client) Roster() []roster.Contact {
	c.mu.RLock()
	rst := c.roster
	c.mu.RUnlock()
	if rst == nil {
		return nil
	}
	return rst.Contacts()
}

// Rooms returns a snapshot of the known room list.
func (c *Client) Rooms() []muc.Room {
	c.mu.RLock()
	m := c.muc
	c.mu.RUnlock()
	if m == nil {
		return nil
	}
	return m.Rooms()
}

// History returns the local history window of the given peer.
func (c *Client) History(peer *jid.JID) []archive.Item {
	c.mu.RLock()
	arc := c.archive
	c.mu.RUnlock()
	if arc == nil {
		return nil
	}
	return arc.History(peer)
}

// Avatar resolves the avatar blob of the given entity, falling back
// to a deterministic placeholder when none is cached.
func (c *Client) Avatar(ctx context.Context, j *jid.JID) ([]byte, error) {
	bare := j.ToBareJID().String()

	p, err := c.cache.Profile(bare)
	if err != nil {
		return nil, err
	}
	if p != nil && len(p.Avatar) > 0 {
		blob, err := c.cache.Avatar(p.Avatar)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			return blob, nil
		}
	}
	seed := bare
	if p != nil && len(p.Name) > 0 {
		seed = p.Name
	}
	hash, err := c.cache.PlaceholderAvatar(ctx, seed)
	if err != nil {
		return nil, err
	}
	return c.cache.Avatar(hash)
}

func (c *Client) onStreamReady(ctx context.Context, _ sonar.Event) error {
	c.rq.Run(func() {
		c.mu.RLock()
		stm, rst, m := c.stm, c.roster, c.muc
		c.mu.RUnlock()
		if stm == nil {
			return
		}
		rst.SetPresence(ctx, xmpp.AvailableShowState, "", 0)
		if err := rst.Fetch(ctx); err != nil {
			log.Error(err)
		}
		if err := m.DiscoverRooms(ctx); err != nil {
			log.Error(err)
		}
		if err := c.RequestVCard(ctx, stm.JID()); err != nil {
			log.Error(err)
		}
	})
	return nil
}

// onAvatarChanged fetches the peer vCard when an announced avatar hash
// is not locally cached yet.
func (c *Client) onAvatarChanged(ctx context.Context, ev sonar.Event) error {
	inf := ev.Info().(*event.RosterEventInfo)
	c.rq.Run(func() {
		blob, err := c.cache.Avatar(inf.AvatarHash)
		if err != nil {
			log.Error(err)
			return
		}
		if blob != nil {
			return
		}
		if err := c.RequestVCard(ctx, inf.JID); err != nil {
			log.Error(err)
		}
	})
	return nil
}

func (c *Client) teardown(ctx context.Context) {
	for _, sub := range c.subs {
		c.sn.Unsubscribe(sub)
	}
	c.subs = nil

	c.mu.Lock()
	rst, m, arc := c.roster, c.muc, c.archive
	c.stm = nil
	c.roster = nil
	c.muc = nil
	c.archive = nil
	c.mu.Unlock()

	if rst != nil {
		rst.Stop(ctx)
	}
	if m != nil {
		m.Stop(ctx)
	}
	if arc != nil {
		arc.Stop(ctx)
	}
}
