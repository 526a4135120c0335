/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"fmt"
	"time"

	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	// NormalType represents a 'normal' message type.
	NormalType = "normal"

	// HeadlineType represents a 'headline' message type.
	HeadlineType = "headline"

	// ChatType represents a 'chat' message type.
	ChatType = "chat"

	// GroupChatType represents a 'groupchat' message type.
	GroupChatType = "groupchat"
)

// ChatStateNamespace is the XEP-0085 chat state notifications namespace.
const ChatStateNamespace = "http://jabber.org/protocol/chatstates"

// DelayNamespace is the XEP-0203 delayed delivery namespace.
const DelayNamespace = "urn:xmpp:delay"

// ReceiptsNamespace is the XEP-0184 message delivery receipts namespace.
const ReceiptsNamespace = "urn:xmpp:receipts"

// Chat states defined by XEP-0085.
const (
	ChatStateActive    = "active"
	ChatStateComposing = "composing"
	ChatStatePaused    = "paused"
	ChatStateInactive  = "inactive"
	ChatStateGone      = "gone"
)

// Message type represents a <message> element.
type Message struct {
	stanzaElement
}

// NewMessageFromElement creates a Message object from an XElement.
func NewMessageFromElement(e XElement, from *jid.JID, to *jid.JID) (*Message, error) {
	if e.Name() != MessageName {
		return nil, fmt.Errorf("wrong Message element name: %s", e.Name())
	}
	messageType := e.Type()
	if !isMessageType(messageType) {
		return nil, fmt.Errorf(`invalid Message "type" attribute: %s`, messageType)
	}
	m := &Message{}
	m.copyFrom(e)
	m.SetFromJID(from)
	m.SetToJID(to)
	m.SetNamespace("")
	return m, nil
}

// NewMessageType creates and returns a new Message element.
func NewMessageType(identifier string, messageType string) *Message {
	msg := &Message{}
	msg.SetName(MessageName)
	msg.SetID(identifier)
	msg.SetType(messageType)
	return msg
}

// IsNormal returns true if this is a 'normal' type Message.
func (m *Message) IsNormal() bool {
	return m.Type() == NormalType || m.Type() == ""
}

// IsHeadline returns true if this is a 'headline' type Message.
func (m *Message) IsHeadline() bool {
	return m.Type() == HeadlineType
}

// IsChat returns true if this is a 'chat' type Message.
func (m *Message) IsChat() bool {
	return m.Type() == ChatType
}

// IsGroupChat returns true if this is a 'groupchat' type Message.
func (m *Message) IsGroupChat() bool {
	return m.Type() == GroupChatType
}

// IsMessageWithBody returns true if the message has a body sub element.
func (m *Message) IsMessageWithBody() bool {
	return m.elements.Child("body") != nil
}

// Body returns the message body text, or an empty string when absent.
func (m *Message) Body() string {
	if b := m.elements.Child("body"); b != nil {
		return b.Text()
	}
	return ""
}

// Subject returns the message subject text, or an empty string when absent.
func (m *Message) Subject() string {
	if s := m.elements.Child("subject"); s != nil {
		return s.Text()
	}
	return ""
}

// IsSubjectOnly returns true if the message carries a subject and no body.
func (m *Message) IsSubjectOnly() bool {
	return m.elements.Child("subject") != nil && m.elements.Child("body") == nil
}

// ChatState returns the XEP-0085 chat state carried by the message,
// or an empty string when none is present.
func (m *Message) ChatState() string {
	for _, state := range []string{ChatStateActive, ChatStateComposing, ChatStatePaused, ChatStateInactive, ChatStateGone} {
		if m.elements.ChildNamespace(state, ChatStateNamespace) != nil {
			return state
		}
	}
	return ""
}

// Delay returns the XEP-0203 delayed delivery timestamp. The second
// return value reports whether a valid delay element was present.
func (m *Message) Delay() (time.Time, bool) {
	d := m.elements.ChildNamespace("delay", DelayNamespace)
	if d == nil {
		return time.Time{}, false
	}
	stamp, err := time.Parse(time.RFC3339, d.Attributes().Get("stamp"))
	if err != nil {
		return time.Time{}, false
	}
	return stamp, true
}

// RequestsReceipt returns true if the sender asked for a delivery receipt.
func (m *Message) RequestsReceipt() bool {
	return m.elements.ChildNamespace("request", ReceiptsNamespace) != nil
}

// ReceiptID returns the identifier of the message a delivery receipt
// acknowledges, or an empty string if the message is not a receipt.
func (m *Message) ReceiptID() string {
	if rc := m.elements.ChildNamespace("received", ReceiptsNamespace); rc != nil {
		return rc.Attributes().Get("id")
	}
	return ""
}

func isMessageType(messageType string) bool {
	switch messageType {
	case "", ErrorType, NormalType, HeadlineType, ChatType, GroupChatType:
		return true
	default:
		return false
	}
}
