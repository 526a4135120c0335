/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	// AvailableType represents an 'available' Presence type.
	AvailableType = ""

	// UnavailableType represents an 'unavailable' Presence type.
	UnavailableType = "unavailable"

	// SubscribeType represents a 'subscribe' Presence type.
	SubscribeType = "subscribe"

	// UnsubscribeType represents an 'unsubscribe' Presence type.
	UnsubscribeType = "unsubscribe"

	// SubscribedType represents a 'subscribed' Presence type.
	SubscribedType = "subscribed"

	// UnsubscribedType represents an 'unsubscribed' Presence type.
	UnsubscribedType = "unsubscribed"

	// ProbeType represents a 'probe' Presence type.
	ProbeType = "probe"
)

// ShowState represents a Presence show state.
type ShowState int

const (
	// AvailableShowState represents an 'available' Presence show state.
	AvailableShowState ShowState = iota

	// ChatShowState represents a 'chat' Presence show state.
	ChatShowState

	// AwayShowState represents an 'away' Presence show state.
	AwayShowState

	// ExtendedAwayShowState represents an 'xa' Presence show state.
	ExtendedAwayShowState

	// DoNotDisturbShowState represents a 'dnd' Presence show state.
	DoNotDisturbShowState

	// OfflineShowState is the derived state of an entity with no
	// available resources. It never appears on the wire.
	OfflineShowState
)

// String returns the wire representation of a show state.
func (ss ShowState) String() string {
	switch ss {
	case ChatShowState:
		return "chat"
	case AwayShowState:
		return "away"
	case ExtendedAwayShowState:
		return "xa"
	case DoNotDisturbShowState:
		return "dnd"
	}
	return ""
}

// Presence type represents a <presence> element.
type Presence struct {
	stanzaElement
	showState ShowState
	priority  int8
}

// NewPresenceFromElement creates a Presence object from an XElement.
func NewPresenceFromElement(e XElement, from *jid.JID, to *jid.JID) (*Presence, error) {
	if e.Name() != PresenceName {
		return nil, fmt.Errorf("wrong Presence element name: %s", e.Name())
	}
	presenceType := e.Type()
	if !isPresenceType(presenceType) {
		return nil, fmt.Errorf(`invalid Presence "type" attribute: %s`, presenceType)
	}
	p := &Presence{}
	p.copyFrom(e)

	if err := p.setShow(); err != nil {
		return nil, err
	}
	if err := p.setPriority(); err != nil {
		return nil, err
	}
	p.SetFromJID(from)
	p.SetToJID(to)
	p.SetNamespace("")
	return p, nil
}

// NewPresence creates and returns a new Presence element.
func NewPresence(from *jid.JID, to *jid.JID, presenceType string) *Presence {
	p := &Presence{}
	p.SetName(PresenceName)
	if from != nil {
		p.SetFromJID(from)
	}
	if to != nil {
		p.SetToJID(to)
	}
	if len(presenceType) > 0 {
		p.SetType(presenceType)
	}
	return p
}

// NewPresenceShow creates an available Presence carrying show,
// status and priority sub elements.
func NewPresenceShow(from *jid.JID, to *jid.JID, show ShowState, status string, priority int8) *Presence {
	p := NewPresence(from, to, AvailableType)
	if s := show.String(); len(s) > 0 {
		p.AppendElement(NewElementName("show").SetText(s))
	}
	if len(status) > 0 {
		p.AppendElement(NewElementName("status").SetText(status))
	}
	if priority != 0 {
		p.AppendElement(NewElementName("priority").SetText(strconv.Itoa(int(priority))))
	}
	p.showState = show
	p.priority = priority
	return p
}

// IsAvailable returns true if this is an 'available' type Presence.
func (p *Presence) IsAvailable() bool {
	return p.Type() == AvailableType
}

// IsUnavailable returns true if this is an 'unavailable' type Presence.
func (p *Presence) IsUnavailable() bool {
	return p.Type() == UnavailableType
}

// IsSubscribe returns true if this is a 'subscribe' type Presence.
func (p *Presence) IsSubscribe() bool {
	return p.Type() == SubscribeType
}

// IsUnsubscribe returns true if this is an 'unsubscribe' type Presence.
func (p *Presence) IsUnsubscribe() bool {
	return p.Type() == UnsubscribeType
}

// IsSubscribed returns true if this is a 'subscribed' type Presence.
func (p *Presence) IsSubscribed() bool {
	return p.Type() == SubscribedType
}

// IsUnsubscribed returns true if this is an 'unsubscribed' type Presence.
func (p *Presence) IsUnsubscribed() bool {
	return p.Type() == UnsubscribedType
}

// IsProbe returns true if this is a 'probe' type Presence.
func (p *Presence) IsProbe() bool {
	return p.Type() == ProbeType
}

// Status returns the presence status text.
func (p *Presence) Status() string {
	if st := p.elements.Child("status"); st != nil {
		return st.Text()
	}
	return ""
}

// ShowState returns the presence show state.
func (p *Presence) ShowState() ShowState {
	return p.showState
}

// Priority returns the presence priority value.
func (p *Presence) Priority() int8 {
	return p.priority
}

// CapsNode returns the XEP-0115 capability node#ver identifier, or an
// empty string when the presence carries no caps element.
func (p *Presence) CapsNode() string {
	c := p.elements.ChildNamespace("c", "http://jabber.org/protocol/caps")
	if c == nil {
		return ""
	}
	node := c.Attributes().Get("node")
	ver := c.Attributes().Get("ver")
	if len(node) == 0 || len(ver) == 0 {
		return ""
	}
	return node + "#" + ver
}

// VCardAvatarHash returns the vcard-temp:x:update photo hash carried
// by the presence, or an empty string when absent.
func (p *Presence) VCardAvatarHash() string {
	x := p.elements.ChildNamespace("x", "vcard-temp:x:update")
	if x == nil {
		return ""
	}
	if photo := x.Elements().Child("photo"); photo != nil {
		return photo.Text()
	}
	return ""
}

func isPresenceType(presenceType string) bool {
	switch presenceType {
	case ErrorType, AvailableType, UnavailableType, SubscribeType,
		UnsubscribeType, SubscribedType, UnsubscribedType, ProbeType:
		return true
	default:
		return false
	}
}

func (p *Presence) setShow() error {
	shs := p.elements.Children("show")
	switch len(shs) {
	case 0:
		p.showState = AvailableShowState
	case 1:
		switch shs[0].Text() {
		case "away":
			p.showState = AwayShowState
		case "chat":
			p.showState = ChatShowState
		case "dnd":
			p.showState = DoNotDisturbShowState
		case "xa":
			p.showState = ExtendedAwayShowState
		default:
			return fmt.Errorf("invalid Presence show state: %s", shs[0].Text())
		}
	default:
		return errors.New("a Presence stanza must not contain more than one <show/> element")
	}
	return nil
}

func (p *Presence) setPriority() error {
	ps := p.elements.Children("priority")
	switch len(ps) {
	case 0:
		break
	case 1:
		pr, err := strconv.Atoi(ps[0].Text())
		if err != nil {
			return err
		}
		if pr < -128 || pr > 127 {
			return errors.New("priority value must be an integer between -128 and +127")
		}
		p.priority = int8(pr)
	default:
		return errors.New("a Presence stanza must not contain more than one <priority/> element")
	}
	return nil
}
