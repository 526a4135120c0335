/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package event

import (
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	// MUCRoomDiscovered event is posted when a room is found on the
	// conference service.
	MUCRoomDiscovered = "muc.room.discovered"

	// MUCRoomJoined event is posted when the own occupant enters a room.
	MUCRoomJoined = "muc.room.joined"

	// MUCRoomLeft event is posted when the own occupant leaves a room.
	MUCRoomLeft = "muc.room.left"

	// MUCRoomCreated event is posted when a joined room required creation.
	MUCRoomCreated = "muc.room.created"

	// MUCOccupantJoined event is posted when a remote occupant enters a room.
	MUCOccupantJoined = "muc.occupant.joined"

	// MUCOccupantUpdated event is posted when an occupant presence,
	// affiliation or role changes.
	MUCOccupantUpdated = "muc.occupant.updated"

	// MUCOccupantLeft event is posted when a remote occupant leaves a room.
	MUCOccupantLeft = "muc.occupant.left"

	// MUCSubjectChanged event is posted when a room subject is set or changed.
	MUCSubjectChanged = "muc.subject.changed"

	// MUCMessageReceived event is posted when a groupchat message is received.
	MUCMessageReceived = "muc.message_received"
)

// MUCEventInfo contains all info associated to a MUC event.
type MUCEventInfo struct {
	// RoomJID is the bare JID of the room associated to this event.
	RoomJID *jid.JID

	// Nick is the occupant nickname associated to this event.
	Nick string

	// Subject holds the room subject for subject events.
	Subject string

	// Message represents the event associated message stanza.
	Message *xmpp.Message
}
