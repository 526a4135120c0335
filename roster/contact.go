/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package roster

import (
	"sort"
	"time"

	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	// SubscriptionNone represents a 'none' subscription state.
	SubscriptionNone = "none"

	// SubscriptionTo represents a 'to' subscription state.
	SubscriptionTo = "to"

	// SubscriptionFrom represents a 'from' subscription state.
	SubscriptionFrom = "from"

	// SubscriptionBoth represents a 'both' subscription state.
	SubscriptionBoth = "both"

	// SubscriptionRemove represents a 'remove' subscription state.
	SubscriptionRemove = "remove"
)

// Resource holds the last presence seen for one contact resource.
type Resource struct {
	Name      string
	Priority  int8
	Show      xmpp.ShowState
	Status    string
	Caps      string
	UpdatedAt time.Time
}

// Contact represents a roster entry and its known presence state.
type Contact struct {
	JID          *jid.JID
	Name         string
	Groups       []string
	Subscription string
	Notify       bool

	resources      map[string]*Resource
	lockedResource string
	chatState      string
	avatarHash     string
}

func newContact(j *jid.JID) *Contact {
	return &Contact{
		JID:          j.ToBareJID(),
		Subscription: SubscriptionNone,
		Notify:       true,
		resources:    make(map[string]*Resource),
	}
}

func (c *Contact) setResource(name string, priority int8, show xmpp.ShowState, status, caps string, at time.Time) {
	c.resources[name] = &Resource{
		Name:      name,
		Priority:  priority,
		Show:      show,
		Status:    status,
		Caps:      caps,
		UpdatedAt: at,
	}
}

func (c *Contact) removeResource(name string) {
	delete(c.resources, name)
}

// EffectiveResource returns the resource presence updates should be
// attributed to: the highest priority one, most recently updated on ties.
// A nil return means the contact is offline.
func (c *Contact) EffectiveResource() *Resource {
	var best *Resource
	for _, r := range c.resources {
		switch {
		case best == nil:
			best = r
		case r.Priority > best.Priority:
			best = r
		case r.Priority == best.Priority && r.UpdatedAt.After(best.UpdatedAt):
			best = r
		}
	}
	return best
}

// ShowState returns the contact effective show state.
func (c *Contact) ShowState() xmpp.ShowState {
	if res := c.EffectiveResource(); res != nil {
		return res.Show
	}
	return xmpp.OfflineShowState
}

// Status returns the contact effective status text.
func (c *Contact) Status() string {
	if res := c.EffectiveResource(); res != nil {
		return res.Status
	}
	return ""
}

// IsOnline tells whether the contact has at least one available resource.
func (c *Contact) IsOnline() bool {
	return len(c.resources) > 0
}

// LockedResource returns the resource replies should be addressed to,
// or an empty string when no resource lock is in effect.
func (c *Contact) LockedResource() string {
	return c.lockedResource
}

// ChatState returns the contact last known chat state.
func (c *Contact) ChatState() string {
	return c.chatState
}

// AvatarHash returns the last avatar hash announced by the contact.
func (c *Contact) AvatarHash() string {
	return c.avatarHash
}

// Resources returns the contact available resources sorted by
// descending priority.
func (c *Contact) Resources() []Resource {
	ret := make([]Resource, 0, len(c.resources))
	for _, r := range c.resources {
		ret = append(ret, *r)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Priority != ret[j].Priority {
			return ret[i].Priority > ret[j].Priority
		}
		return ret[i].UpdatedAt.After(ret[j].UpdatedAt)
	})
	return ret
}

func (c *Contact) clone() *Contact {
	cp := &Contact{
		JID:            c.JID,
		Name:           c.Name,
		Groups:         append([]string(nil), c.Groups...),
		Subscription:   c.Subscription,
		Notify:         c.Notify,
		resources:      make(map[string]*Resource, len(c.resources)),
		lockedResource: c.lockedResource,
		chatState:      c.chatState,
		avatarHash:     c.avatarHash,
	}
	for name, r := range c.resources {
		res := *r
		cp.resources[name] = &res
	}
	return cp
}
