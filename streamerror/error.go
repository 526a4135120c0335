/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package streamerror

import (
	"github.com/wisp-im/wisp/xmpp"
)

// StreamError represents a "stream:error" element.
type StreamError struct {
	reason string
}

var (
	// ErrInvalidXML represents 'invalid-xml' stream error.
	ErrInvalidXML = newStreamError("invalid-xml")

	// ErrInvalidNamespace represents 'invalid-namespace' stream error.
	ErrInvalidNamespace = newStreamError("invalid-namespace")

	// ErrHostUnknown represents 'host-unknown' stream error.
	ErrHostUnknown = newStreamError("host-unknown")

	// ErrInvalidFrom represents 'invalid-from' stream error.
	ErrInvalidFrom = newStreamError("invalid-from")

	// ErrConnectionTimeout represents 'connection-timeout' stream error.
	ErrConnectionTimeout = newStreamError("connection-timeout")

	// ErrUnsupportedStanzaType represents 'unsupported-stanza-type' stream error.
	ErrUnsupportedStanzaType = newStreamError("unsupported-stanza-type")

	// ErrUnsupportedVersion represents 'unsupported-version' stream error.
	ErrUnsupportedVersion = newStreamError("unsupported-version")

	// ErrNotAuthorized represents 'not-authorized' stream error.
	ErrNotAuthorized = newStreamError("not-authorized")

	// ErrPolicyViolation represents 'policy-violation' stream error.
	ErrPolicyViolation = newStreamError("policy-violation")

	// ErrConflict represents 'conflict' stream error.
	ErrConflict = newStreamError("conflict")

	// ErrSystemShutdown represents 'system-shutdown' stream error.
	ErrSystemShutdown = newStreamError("system-shutdown")

	// ErrInternalServerError represents 'internal-server-error' stream error.
	ErrInternalServerError = newStreamError("internal-server-error")
)

func newStreamError(reason string) *StreamError {
	return &StreamError{reason: reason}
}

// FromElement maps an incoming stream error element to its error value,
// falling back to a fresh value for reasons not defined locally.
func FromElement(elem xmpp.XElement) *StreamError {
	for _, se := range []*StreamError{
		ErrInvalidXML, ErrInvalidNamespace, ErrHostUnknown, ErrInvalidFrom,
		ErrConnectionTimeout, ErrUnsupportedStanzaType, ErrUnsupportedVersion,
		ErrNotAuthorized, ErrPolicyViolation, ErrConflict, ErrSystemShutdown,
		ErrInternalServerError,
	} {
		if elem.Elements().ChildNamespace(se.reason, "urn:ietf:params:xml:ns:xmpp-streams") != nil {
			return se
		}
	}
	if children := elem.Elements().All(); len(children) > 0 {
		return newStreamError(children[0].Name())
	}
	return ErrInternalServerError
}

// Element returns the stream error XML representation.
func (se *StreamError) Element() *xmpp.Element {
	ret := xmpp.NewElementName("stream:error")
	ret.AppendElement(xmpp.NewElementNamespace(se.reason, "urn:ietf:params:xml:ns:xmpp-streams"))
	return ret
}

// Error satisfies error interface.
func (se *StreamError) Error() string {
	return se.reason
}
