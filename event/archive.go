/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package event

import (
	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	// ArchiveSynced event is posted when an archive query completes and
	// its items have been merged into the local window.
	ArchiveSynced = "archive.synced"

	// ArchiveMessageAdded event is posted when a live message is appended
	// to the local archive window.
	ArchiveMessageAdded = "archive.message.added"

	// ArchiveReceiptReceived event is posted when a delivery receipt
	// acknowledges an archived message.
	ArchiveReceiptReceived = "archive.receipt.received"
)

// ArchiveEventInfo contains all info associated to an archive event.
type ArchiveEventInfo struct {
	// JID is the bare JID the archive window belongs to.
	JID *jid.JID

	// MessageID is the identifier of the message associated to this event.
	MessageID string

	// Merged is the number of items merged by a completed sync.
	Merged int

	// Complete tells whether the sync reached the end of the server archive.
	Complete bool
}
