/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package event

import (
	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	// RosterFetched event is posted when the initial roster result is processed.
	RosterFetched = "roster.fetched"

	// RosterContactUpdated event is posted when a contact is added or updated
	// by a roster push.
	RosterContactUpdated = "roster.contact.updated"

	// RosterContactRemoved event is posted when a roster push removes a contact.
	RosterContactRemoved = "roster.contact.removed"

	// RosterPresenceChanged event is posted when a contact effective
	// presence changes.
	RosterPresenceChanged = "roster.presence.changed"

	// RosterChatStateChanged event is posted when a contact chat state changes.
	RosterChatStateChanged = "roster.chatstate.changed"

	// RosterSubscriptionRequested event is posted when an unknown entity
	// requests presence subscription.
	RosterSubscriptionRequested = "roster.subscription.requested"

	// RosterAvatarChanged event is posted when a contact announces a new
	// avatar hash.
	RosterAvatarChanged = "roster.avatar.changed"

	// RosterSubscriptionOutcome event is posted when a subscription
	// request of ours is granted or rejected.
	RosterSubscriptionOutcome = "roster.subscription.outcome"
)

// RosterEventInfo contains all info associated to a roster event.
type RosterEventInfo struct {
	// JID is the bare JID of the contact associated to this event.
	JID *jid.JID

	// Name is the contact roster name, when known.
	Name string

	// Subscription is the contact subscription state, when known.
	Subscription string

	// ChatState holds the contact chat state for chat state events.
	ChatState string

	// AvatarHash holds the announced avatar hash for avatar events.
	AvatarHash string
}
