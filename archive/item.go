/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package archive

import (
	"time"

	"github.com/wisp-im/wisp/xmpp/jid"
)

// Item is one archived message inside a peer history window.
type Item struct {
	// ID is the archive identifier of the message.
	ID string

	// From is the message sender JID.
	From *jid.JID

	// Body is the message body text.
	Body string

	// Timestamp is the message archive timestamp.
	Timestamp time.Time

	// Sent tells whether the message was sent by us rather than received.
	Sent bool

	// Acked tells whether a delivery receipt acknowledged the message.
	Acked bool
}

// mergeWindow inserts batch into win keeping chronological order,
// skipping items whose id is already present. A batch whose newest
// message is not newer than the current oldest entry extends the
// window backwards, any other batch extends it forward. Once the
// window exceeds max, entries are evicted from the end opposite the
// insertion side. Returns the updated window, the number of inserted
// items and whether the merge was a backward extension.
func mergeWindow(win, batch []*Item, max int) ([]*Item, int, bool) {
	if len(batch) == 0 {
		return win, 0, false
	}
	existing := make(map[string]struct{}, len(win))
	for _, it := range win {
		existing[it.ID] = struct{}{}
	}
	var fresh []*Item
	for _, it := range batch {
		if _, ok := existing[it.ID]; ok {
			continue
		}
		existing[it.ID] = struct{}{}
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return win, 0, false
	}
	backward := len(win) > 0 && !batch[len(batch)-1].Timestamp.After(win[0].Timestamp)
	if backward {
		win = append(fresh, win...)
		if max > 0 && len(win) > max {
			win = win[:max]
		}
		return win, len(fresh), true
	}
	win = append(win, fresh...)
	if max > 0 && len(win) > max {
		win = win[len(win)-max:]
	}
	return win, len(fresh), false
}
