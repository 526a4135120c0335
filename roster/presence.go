/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package roster

import (
	"context"
	"time"

	"github.com/jackal-xmpp/sonar"

	"github.com/wisp-im/wisp/event"
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	mucUserNamespace     = "http://jabber.org/protocol/muc#user"
	vCardUpdateNamespace = "vcard-temp:x:update"
	capsNamespace        = "http://jabber.org/protocol/caps"
)

func (r *Roster) onPresenceRecv(ctx context.Context, ev sonar.Event) error {
	inf := ev.Info().(*event.StreamEventInfo)
	presence, ok := inf.Stanza.(*xmpp.Presence)
	if !ok {
		return nil
	}
	// occupant presences belong to the muc module
	if presence.Elements().ChildNamespace("x", mucUserNamespace) != nil {
		return nil
	}
	r.rq.Run(func() {
		r.processPresence(ctx, presence)
	})
	return nil
}

func (r *Roster) processPresence(ctx context.Context, presence *xmpp.Presence) {
	switch presence.Type() {
	case xmpp.SubscribeType:
		r.processSubscribe(ctx, presence)
	case xmpp.AvailableType, xmpp.UnavailableType:
		r.processAvailability(ctx, presence)
	case xmpp.SubscribedType, xmpp.UnsubscribedType:
		// contact list changes land through the matching roster push
		r.postRosterEvent(ctx, event.RosterSubscriptionOutcome, &event.RosterEventInfo{
			JID:          presence.FromJID().ToBareJID(),
			Subscription: presence.Type(),
		})
	}
}

func (r *Roster) processSubscribe(ctx context.Context, presence *xmpp.Presence) {
	from := presence.FromJID().ToBareJID()

	r.mu.RLock()
	_, known := r.contacts[from.String()]
	r.mu.RUnlock()

	if known {
		// the sender is already a roster entry, approve right away
		r.stm.SendElement(ctx, xmpp.NewPresence(nil, from, xmpp.SubscribedType))
		return
	}
	r.postRosterEvent(ctx, event.RosterSubscriptionRequested, &event.RosterEventInfo{JID: from})
}

func (r *Roster) processAvailability(ctx context.Context, presence *xmpp.Presence) {
	from := presence.FromJID()
	bare := from.ToBareJID().String()

	r.mu.Lock()
	c, ok := r.contacts[bare]
	if !ok {
		r.mu.Unlock()
		return
	}
	before := effectiveKey(c)

	if len(from.Resource()) > 0 {
		if presence.IsUnavailable() {
			c.removeResource(from.Resource())
		} else {
			c.setResource(from.Resource(), presence.Priority(), presence.ShowState(), presence.Status(), capsNode(presence), r.nowFn())
		}
		// any presence change invalidates the resource lock
		if c.lockedResource == from.Resource() {
			c.lockedResource = ""
		}
	}
	var avatarHash string
	if x := presence.Elements().ChildNamespace("x", vCardUpdateNamespace); x != nil {
		if photo := x.Elements().Child("photo"); photo != nil && photo.Text() != c.avatarHash {
			c.avatarHash = photo.Text()
			avatarHash = photo.Text()
		}
	}
	after := effectiveKey(c)
	changed := before != after
	contactJID := c.JID
	r.mu.Unlock()

	if changed {
		r.postRosterEvent(ctx, event.RosterPresenceChanged, &event.RosterEventInfo{JID: contactJID})
	}
	if len(avatarHash) > 0 {
		r.postRosterEvent(ctx, event.RosterAvatarChanged, &event.RosterEventInfo{
			JID:        contactJID,
			AvatarHash: avatarHash,
		})
	}
}

func capsNode(presence *xmpp.Presence) string {
	c := presence.Elements().ChildNamespace("c", capsNamespace)
	if c == nil {
		return ""
	}
	return c.Attributes().Get("node") + "#" + c.Attributes().Get("ver")
}

type presenceKey struct {
	resource string
	show     xmpp.ShowState
	status   string
	priority int8
}

func effectiveKey(c *Contact) presenceKey {
	res := c.EffectiveResource()
	if res == nil {
		return presenceKey{show: xmpp.OfflineShowState}
	}
	return presenceKey{
		resource: res.Name,
		show:     res.Show,
		status:   res.Status,
		priority: res.Priority,
	}
}

// SetPresence announces a new own presence to the server and resets
// the idle escalation ladder.
func (r *Roster) SetPresence(ctx context.Context, show xmpp.ShowState, status string, priority int8) {
	r.rq.Run(func() {
		r.mu.Lock()
		r.show = show
		r.status = status
		r.priority = priority
		r.idleLevel = 0
		r.mu.Unlock()

		r.sendOwnPresence(ctx)
		r.resetIdleTimers()
	})
}

// Activity signals user activity, rolling back any idle escalation.
func (r *Roster) Activity(ctx context.Context) {
	r.rq.Run(func() {
		r.mu.Lock()
		wasIdle := r.idleLevel > 0
		r.idleLevel = 0
		r.mu.Unlock()

		if wasIdle {
			r.sendOwnPresence(ctx)
		}
		r.resetIdleTimers()
	})
}

// Subscribe requests presence subscription to the given entity.
func (r *Roster) Subscribe(ctx context.Context, j *jid.JID) {
	r.stm.SendElement(ctx, xmpp.NewPresence(nil, j.ToBareJID(), xmpp.SubscribeType))
}

// Unsubscribe cancels an outgoing presence subscription.
func (r *Roster) Unsubscribe(ctx context.Context, j *jid.JID) {
	r.stm.SendElement(ctx, xmpp.NewPresence(nil, j.ToBareJID(), xmpp.UnsubscribeType))
}

// Approve accepts a received subscription request.
func (r *Roster) Approve(ctx context.Context, j *jid.JID) {
	r.stm.SendElement(ctx, xmpp.NewPresence(nil, j.ToBareJID(), xmpp.SubscribedType))
}

// Decline rejects a received subscription request.
func (r *Roster) Decline(ctx context.Context, j *jid.JID) {
	r.stm.SendElement(ctx, xmpp.NewPresence(nil, j.ToBareJID(), xmpp.UnsubscribedType))
}

func (r *Roster) sendOwnPresence(ctx context.Context) {
	r.mu.RLock()
	show, status, priority := r.effectiveOwnShow(), r.status, r.priority
	r.mu.RUnlock()

	presence := xmpp.NewPresenceShow(nil, nil, show, status, priority)
	if r.cfg.Caps != nil {
		presence.AppendElement(r.cfg.Caps)
	}
	r.stm.SendElement(ctx, presence)
}

// effectiveOwnShow derives the announced show state from the user
// chosen one and the idle level. Do-not-disturb is never overridden.
// r.mu must be held.
func (r *Roster) effectiveOwnShow() xmpp.ShowState {
	if r.show == xmpp.DoNotDisturbShowState {
		return r.show
	}
	switch r.idleLevel {
	case 1:
		if r.show == xmpp.AvailableShowState || r.show == xmpp.ChatShowState {
			return xmpp.AwayShowState
		}
	case 2:
		if r.show != xmpp.ExtendedAwayShowState {
			return xmpp.ExtendedAwayShowState
		}
	}
	return r.show
}

func (r *Roster) resetIdleTimers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopIdleTimers()
	r.awayTm = time.AfterFunc(r.cfg.IdleAway, func() { r.escalateIdle(1) })
	r.xaTm = time.AfterFunc(r.cfg.IdleExtendedAway, func() { r.escalateIdle(2) })
}

// r.mu must be held.
func (r *Roster) stopIdleTimers() {
	if r.awayTm != nil {
		r.awayTm.Stop()
		r.awayTm = nil
	}
	if r.xaTm != nil {
		r.xaTm.Stop()
		r.xaTm = nil
	}
}

func (r *Roster) escalateIdle(level int) {
	r.rq.Run(func() {
		r.mu.Lock()
		if r.idleLevel >= level || r.show == xmpp.DoNotDisturbShowState {
			r.mu.Unlock()
			return
		}
		r.idleLevel = level
		r.mu.Unlock()

		r.sendOwnPresence(context.Background())
	})
}
