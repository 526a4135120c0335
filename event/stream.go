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
	// StreamConnected event is posted when the stream transport is established.
	StreamConnected = "stream.connected"

	// StreamReady event is posted once resource binding and session
	// establishment have completed and stanzas can flow.
	StreamReady = "stream.ready"

	// StreamDisconnected event is posted when the stream is torn down.
	StreamDisconnected = "stream.disconnected"

	// StreamMessageReceived event is posted when a message stanza is received.
	StreamMessageReceived = "stream.message_received"

	// StreamPresenceReceived event is posted when a presence stanza is received.
	StreamPresenceReceived = "stream.presence_received"
)

// StreamEventInfo contains all info associated to a stream event.
type StreamEventInfo struct {
	// ID is the event stream identifier.
	ID string

	// JID represents the bound stream JID.
	JID *jid.JID

	// Stanza represents the event associated stanza.
	Stanza xmpp.Stanza

	// Err holds the failure that caused a disconnection, when any.
	Err error
}
