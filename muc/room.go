/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package muc

import (
	"sort"

	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

// Occupant represents a room participant as seen through its room JID.
type Occupant struct {
	// OccupantJID is the occupant full room JID (room@service/nick).
	OccupantJID *jid.JID

	// Nick is the occupant room nickname.
	Nick string

	// Affiliation is the occupant long lived room affiliation.
	Affiliation string

	// Role is the occupant session scoped room role.
	Role string

	// RealJID is the occupant real JID, when the room discloses it.
	RealJID *jid.JID

	// Show is the occupant announced show state.
	Show xmpp.ShowState

	// Status is the occupant announced status text.
	Status string

	// IsSelf tells whether this occupant is our own join echo.
	IsSelf bool
}

// Room represents a multi user chat room and its occupant list.
type Room struct {
	JID               *jid.JID
	Name              string
	Description       string
	Subject           string
	PasswordProtected bool
	Notify            bool

	selfJID   *jid.JID
	occupants map[string]*Occupant
}

func newRoom(j *jid.JID) *Room {
	return &Room{
		JID:       j.ToBareJID(),
		Notify:    true,
		occupants: make(map[string]*Occupant),
	}
}

// Joined tells whether our own occupant is present in the room.
func (r *Room) Joined() bool {
	return r.selfJID != nil
}

// SelfJID returns our own occupant JID, or nil when not joined.
func (r *Room) SelfJID() *jid.JID {
	return r.selfJID
}

// Occupant returns the occupant known under the given nickname.
func (r *Room) Occupant(nick string) (Occupant, bool) {
	for _, occ := range r.occupants {
		if occ.Nick == nick {
			return *occ, true
		}
	}
	return Occupant{}, false
}

// Occupants returns the room occupant list sorted by nickname.
func (r *Room) Occupants() []Occupant {
	ret := make([]Occupant, 0, len(r.occupants))
	for _, occ := range r.occupants {
		ret = append(ret, *occ)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Nick < ret[j].Nick })
	return ret
}

// setOccupant inserts or replaces an occupant. The list is keyed by
// full room JID so no two entries may ever share one.
func (r *Room) setOccupant(occ *Occupant) {
	r.occupants[occ.OccupantJID.String()] = occ
}

func (r *Room) removeOccupant(occupantJID string) {
	delete(r.occupants, occupantJID)
}

func (r *Room) clone() *Room {
	cp := &Room{
		JID:               r.JID,
		Name:              r.Name,
		Description:       r.Description,
		Subject:           r.Subject,
		PasswordProtected: r.PasswordProtected,
		Notify:            r.Notify,
		selfJID:           r.selfJID,
		occupants:         make(map[string]*Occupant, len(r.occupants)),
	}
	for k, occ := range r.occupants {
		o := *occ
		cp.occupants[k] = &o
	}
	return cp
}
