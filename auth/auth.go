/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package auth

import (
	"github.com/wisp-im/wisp/xmpp"
)

// Namespace is the RFC 6120 SASL namespace.
const Namespace = "urn:ietf:params:xml:ns:xmpp-sasl"

// Credentials groups the secrets an authenticator derives its proofs from.
type Credentials struct {
	Username string
	Password string
	AuthzID  string
	Domain   string
}

// Authenticator defines a generic client side authenticator state machine.
// Payloads crossing the interface are base64 encoded, matching the text
// content of the SASL wire elements.
type Authenticator interface {

	// Mechanism returns authenticator mechanism name.
	Mechanism() string

	// Init returns the mechanism initial response payload.
	// An empty string means the <auth/> element carries no text.
	Init() (string, error)

	// ProcessChallenge computes the response payload for a server challenge.
	ProcessChallenge(challenge string) (string, error)

	// VerifySuccess validates the server final payload. A non-nil
	// return means the server failed its integrity proof and the
	// stream must be torn down.
	VerifySuccess(payload string) error

	// Authenticated returns whether or not authentication has been completed.
	Authenticated() bool

	// Reset resets authenticator internal state, erasing any transient
	// proof material.
	Reset()
}

// SASLError represents a specific SASL error type.
type SASLError struct {
	reason string
}

func newSASLError(reason string) error {
	return &SASLError{reason}
}

// Element returns the SASL error XML representation.
func (se *SASLError) Element() xmpp.XElement {
	return xmpp.NewElementName(se.reason)
}

// Error satisfies error interface.
func (se *SASLError) Error() string {
	return se.reason
}

var (
	// ErrSASLIncorrectEncoding represents an 'incorrect-encoding' authentication error.
	ErrSASLIncorrectEncoding = newSASLError("incorrect-encoding")

	// ErrSASLMalformedRequest represents a 'malformed-request' authentication error.
	ErrSASLMalformedRequest = newSASLError("malformed-request")

	// ErrSASLNotAuthorized represents a 'not-authorized' authentication error.
	ErrSASLNotAuthorized = newSASLError("not-authorized")

	// ErrSASLMechanismUnavailable represents an 'invalid-mechanism' authentication error.
	ErrSASLMechanismUnavailable = newSASLError("invalid-mechanism")

	// ErrSASLTemporaryAuthFailure represents a 'temporary-auth-failure' authentication error.
	ErrSASLTemporaryAuthFailure = newSASLError("temporary-auth-failure")

	// ErrSASLIntegrityCheckFailed is returned when a server proof or
	// nonce fails verification. It never comes off the wire; it is a
	// local detection of a misbehaving or impersonated server.
	ErrSASLIntegrityCheckFailed = newSASLError("integrity-check-failed")

	// ErrNoSuitableMechanism is returned when no advertised mechanism
	// is locally supported.
	ErrNoSuitableMechanism = newSASLError("no-suitable-mechanism")
)

// preference order, strongest first
var mechanismPreference = []string{
	"SCRAM-SHA-256",
	"SCRAM-SHA-1",
	"DIGEST-MD5",
	"PLAIN",
}

// New returns the preferred authenticator among the server advertised
// mechanisms, or ErrNoSuitableMechanism when none is supported.
func New(advertised []string, creds *Credentials) (Authenticator, error) {
	offered := make(map[string]bool, len(advertised))
	for _, m := range advertised {
		offered[m] = true
	}
	for _, m := range mechanismPreference {
		if !offered[m] {
			continue
		}
		switch m {
		case "SCRAM-SHA-256":
			return NewScram(creds, ScramSHA256), nil
		case "SCRAM-SHA-1":
			return NewScram(creds, ScramSHA1), nil
		case "DIGEST-MD5":
			return NewDigestMD5(creds), nil
		case "PLAIN":
			return NewPlain(creds), nil
		}
	}
	return nil, ErrNoSuitableMechanism
}

// ErrorFromElement maps a SASL <failure/> element to its error value.
func ErrorFromElement(failure xmpp.XElement) error {
	for _, err := range []error{
		ErrSASLIncorrectEncoding,
		ErrSASLMalformedRequest,
		ErrSASLNotAuthorized,
		ErrSASLMechanismUnavailable,
		ErrSASLTemporaryAuthFailure,
	} {
		saslErr := err.(*SASLError)
		if failure.Elements().Child(saslErr.reason) != nil {
			return err
		}
	}
	if child := failure.Elements().All(); len(child) > 0 {
		return newSASLError(child[0].Name())
	}
	return ErrSASLNotAuthorized
}
