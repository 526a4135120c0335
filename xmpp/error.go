/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"strconv"
)

const stanzasNamespace = "urn:ietf:params:xml:ns:xmpp-stanzas"

// StanzaError represents a stanza "error" element.
type StanzaError struct {
	code      int
	errorType string
	reason    string
	text      string
}

func newStanzaError(code int, errorType string, reason string) *StanzaError {
	return &StanzaError{
		code:      code,
		errorType: errorType,
		reason:    reason,
	}
}

// NewStanzaErrorFromElement parses the error sub element of a stanza
// of type 'error'. Returns nil if the element carries no error child.
func NewStanzaErrorFromElement(elem XElement) *StanzaError {
	errEl := elem.Error()
	if errEl == nil {
		return nil
	}
	se := &StanzaError{errorType: errEl.Type()}
	se.code, _ = strconv.Atoi(errEl.Attributes().Get("code"))
	for _, child := range errEl.Elements().All() {
		if child.Namespace() != stanzasNamespace {
			continue
		}
		if child.Name() == "text" {
			se.text = child.Text()
			continue
		}
		se.reason = child.Name()
	}
	return se
}

// Error satisfies the error interface.
func (se *StanzaError) Error() string {
	if len(se.text) > 0 {
		return se.reason + ": " + se.text
	}
	return se.reason
}

// Reason returns the defined error condition name.
func (se *StanzaError) Reason() string {
	return se.reason
}

// Text returns the optional human readable error description.
func (se *StanzaError) Text() string {
	return se.text
}

// Element returns StanzaError equivalent XML element.
func (se *StanzaError) Element() *Element {
	err := &Element{}
	err.SetName("error")
	if se.code > 0 {
		err.SetAttribute("code", strconv.Itoa(se.code))
	}
	err.SetAttribute("type", se.errorType)
	err.AppendElement(NewElementNamespace(se.reason, stanzasNamespace))
	return err
}

const (
	authErrorType   = "auth"
	cancelErrorType = "cancel"
	modifyErrorType = "modify"
	waitErrorType   = "wait"
)

var (
	// ErrBadRequest is returned when the sender has sent XML that is
	// malformed or that cannot be processed.
	ErrBadRequest = newStanzaError(400, modifyErrorType, "bad-request")

	// ErrNotAuthorized is returned when proper credentials are required
	// before being allowed to perform the action.
	ErrNotAuthorized = newStanzaError(401, authErrorType, "not-authorized")

	// ErrItemNotFound is returned when the addressed JID or item
	// requested cannot be found.
	ErrItemNotFound = newStanzaError(404, cancelErrorType, "item-not-found")

	// ErrFeatureNotImplemented is returned when the requested feature
	// is not implemented and therefore the stanza cannot be processed.
	ErrFeatureNotImplemented = newStanzaError(501, cancelErrorType, "feature-not-implemented")

	// ErrServiceUnavailable is returned when the requested service is
	// not currently provided.
	ErrServiceUnavailable = newStanzaError(503, cancelErrorType, "service-unavailable")

	// ErrJidMalformed is returned when a communicated XMPP address does
	// not adhere to the JID syntax.
	ErrJidMalformed = newStanzaError(400, modifyErrorType, "jid-malformed")
)

// NewErrorStanzaFromStanza returns an error stanza derived from a stanza.
func NewErrorStanzaFromStanza(stanza Stanza, stanzaErr *StanzaError) Stanza {
	e := &stanzaElement{}
	e.copyFrom(stanza)
	e.SetType(ErrorType)
	if stanza.ToJID() != nil {
		e.SetFromJID(stanza.ToJID())
	}
	if stanza.FromJID() != nil {
		e.SetToJID(stanza.FromJID())
	}
	e.AppendElement(stanzaErr.Element())
	return e
}
