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

func (r *Roster) onMessageRecv(ctx context.Context, ev sonar.Event) error {
	inf := ev.Info().(*event.StreamEventInfo)
	msg, ok := inf.Stanza.(*xmpp.Message)
	if !ok || msg.IsGroupChat() {
		return nil
	}
	r.rq.Run(func() {
		r.processMessage(ctx, msg)
	})
	return nil
}

func (r *Roster) processMessage(ctx context.Context, msg *xmpp.Message) {
	from := msg.FromJID()
	bare := from.ToBareJID().String()

	r.mu.Lock()
	c, ok := r.contacts[bare]
	if !ok {
		r.mu.Unlock()
		return
	}
	var stateChanged bool
	if state := msg.ChatState(); len(state) > 0 && state != c.chatState {
		c.chatState = state
		stateChanged = true
	}
	// replies follow the resource the contact last wrote from
	if len(msg.Body()) > 0 && len(from.Resource()) > 0 {
		c.lockedResource = from.Resource()
	}
	contactJID := c.JID
	chatState := c.chatState
	r.mu.Unlock()

	if stateChanged {
		r.postRosterEvent(ctx, event.RosterChatStateChanged, &event.RosterEventInfo{
			JID:       contactJID,
			ChatState: chatState,
		})
	}
}

// NotifyTyping sends a composing notification to the given contact.
// Without further calls it decays into a paused notification once the
// configured inactivity span elapses.
func (r *Roster) NotifyTyping(ctx context.Context, to *jid.JID) {
	bare := to.ToBareJID().String()
	r.rq.Run(func() {
		r.mu.Lock()
		alreadyComposing := r.typing[bare]
		r.typing[bare] = true
		if tm := r.typingTm[bare]; tm != nil {
			tm.Stop()
		}
		r.typingTm[bare] = time.AfterFunc(r.cfg.PausedAfter, func() {
			r.pauseTyping(bare)
		})
		r.mu.Unlock()

		if !alreadyComposing {
			r.sendChatState(ctx, bare, xmpp.ChatStateComposing)
		}
	})
}

// ClearTyping drops any pending composing state towards the peer
// without notifying it, for when an outgoing message already carries
// the state change.
func (r *Roster) ClearTyping(to *jid.JID) {
	bare := to.ToBareJID().String()
	r.rq.Run(func() {
		r.clearTyping(bare)
	})
}

// CancelTyping withdraws a previously sent composing notification.
func (r *Roster) CancelTyping(ctx context.Context, to *jid.JID) {
	bare := to.ToBareJID().String()
	r.rq.Run(func() {
		if !r.clearTyping(bare) {
			return
		}
		r.sendChatState(ctx, bare, xmpp.ChatStateActive)
	})
}

func (r *Roster) pauseTyping(bare string) {
	r.rq.Run(func() {
		if !r.clearTyping(bare) {
			return
		}
		r.sendChatState(context.Background(), bare, xmpp.ChatStatePaused)
	})
}

func (r *Roster) clearTyping(bare string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.typing[bare] {
		return false
	}
	delete(r.typing, bare)
	if tm := r.typingTm[bare]; tm != nil {
		tm.Stop()
		delete(r.typingTm, bare)
	}
	return true
}

func (r *Roster) sendChatState(ctx context.Context, bare string, state string) {
	msg := xmpp.NewMessageType("", xmpp.ChatType)
	msg.SetTo(bare)
	msg.AppendElement(xmpp.NewElementNamespace(state, xmpp.ChatStateNamespace))
	r.stm.SendElement(ctx, msg)
}
