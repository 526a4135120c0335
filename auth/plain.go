/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package auth

import (
	"encoding/base64"
)

// Plain represents a PLAIN authenticator.
type Plain struct {
	creds         *Credentials
	authenticated bool
}

// NewPlain returns a new PLAIN authenticator instance.
func NewPlain(creds *Credentials) *Plain {
	return &Plain{creds: creds}
}

// Mechanism returns authenticator mechanism name.
func (p *Plain) Mechanism() string {
	return "PLAIN"
}

// Init returns the authzid\0authcid\0password initial response.
func (p *Plain) Init() (string, error) {
	raw := p.creds.AuthzID + "\x00" + p.creds.Username + "\x00" + p.creds.Password
	return base64.StdEncoding.EncodeToString([]byte(raw)), nil
}

// ProcessChallenge fails: PLAIN defines no challenges.
func (p *Plain) ProcessChallenge(_ string) (string, error) {
	return "", ErrSASLMalformedRequest
}

// VerifySuccess always succeeds: PLAIN provides no server proof.
func (p *Plain) VerifySuccess(_ string) error {
	p.authenticated = true
	return nil
}

// Authenticated returns whether or not authentication has been completed.
func (p *Plain) Authenticated() bool {
	return p.authenticated
}

// Reset resets PLAIN internal state.
func (p *Plain) Reset() {
	p.authenticated = false
}
