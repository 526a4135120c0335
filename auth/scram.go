/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/wisp-im/wisp/util/rand"
	"github.com/wisp-im/wisp/util/stringsutil"
	"golang.org/x/crypto/pbkdf2"
)

// ScramType represents a scram authenticator class.
type ScramType int

const (
	// ScramSHA1 represents SCRAM-SHA-1 authentication method.
	ScramSHA1 ScramType = iota

	// ScramSHA256 represents SCRAM-SHA-256 authentication method.
	ScramSHA256
)

type scramState int

const (
	startScramState scramState = iota
	challengedScramState
	respondedScramState
)

const gs2NoBindHeader = "n,,"

// Scram represents a client side SCRAM authenticator.
type Scram struct {
	creds         *Credentials
	tp            ScramType
	h             func() hash.Hash
	state         scramState
	cNonce        string
	firstMessage  string
	srvSignature  []byte
	authenticated bool
}

// NewScram returns a new scram authenticator instance.
func NewScram(creds *Credentials, scramType ScramType) *Scram {
	s := &Scram{
		creds: creds,
		tp:    scramType,
		state: startScramState,
	}
	switch s.tp {
	case ScramSHA1:
		s.h = sha1.New
	case ScramSHA256:
		s.h = sha256.New
	}
	return s
}

// Mechanism returns authenticator mechanism name.
func (s *Scram) Mechanism() string {
	switch s.tp {
	case ScramSHA1:
		return "SCRAM-SHA-1"
	case ScramSHA256:
		return "SCRAM-SHA-256"
	}
	return ""
}

// Init returns the client first message payload.
func (s *Scram) Init() (string, error) {
	if len(s.cNonce) == 0 {
		s.cNonce = rand.Nonce(18)
	}
	s.firstMessage = fmt.Sprintf("n=%s,r=%s", escapeSaslName(s.creds.Username), s.cNonce)

	s.state = challengedScramState
	return base64.StdEncoding.EncodeToString([]byte(gs2NoBindHeader + s.firstMessage)), nil
}

// ProcessChallenge computes the client final message for the server
// first message, verifying that the server echoed back the client nonce.
func (s *Scram) ProcessChallenge(challenge string) (string, error) {
	if s.state != challengedScramState {
		return "", ErrSASLNotAuthorized
	}
	b, err := base64.StdEncoding.DecodeString(challenge)
	if err != nil {
		return "", ErrSASLIncorrectEncoding
	}
	srvFirstMessage := string(b)

	var srvNonce, salt64 string
	var iterCount int
	for _, p := range strings.Split(srvFirstMessage, ",") {
		key, val := stringsutil.SplitKeyAndValue(p, '=')
		switch key {
		case "r":
			srvNonce = val
		case "s":
			salt64 = val
		case "i":
			iterCount, err = strconv.Atoi(val)
			if err != nil {
				return "", ErrSASLMalformedRequest
			}
		}
	}
	if len(srvNonce) == 0 || len(salt64) == 0 || iterCount == 0 {
		return "", ErrSASLMalformedRequest
	}
	// the server nonce must extend ours
	if !strings.HasPrefix(srvNonce, s.cNonce) || srvNonce == s.cNonce {
		return "", ErrSASLIntegrityCheckFailed
	}
	salt, err := base64.StdEncoding.DecodeString(salt64)
	if err != nil {
		return "", ErrSASLIncorrectEncoding
	}
	c := base64.StdEncoding.EncodeToString([]byte(gs2NoBindHeader))
	clientFinalMessageBare := fmt.Sprintf("c=%s,r=%s", c, srvNonce)

	saltedPassword := SaltedPassword([]byte(s.creds.Password), salt, iterCount, s.h)

	clientKey := s.hmac([]byte("Client Key"), saltedPassword)
	storedKey := s.hash(clientKey)
	authMessage := s.firstMessage + "," + srvFirstMessage + "," + clientFinalMessageBare
	clientSignature := s.hmac([]byte(authMessage), storedKey)

	clientProof := make([]byte, len(clientKey))
	for i := 0; i < len(clientKey); i++ {
		clientProof[i] = clientKey[i] ^ clientSignature[i]
	}
	serverKey := s.hmac([]byte("Server Key"), saltedPassword)
	s.srvSignature = s.hmac([]byte(authMessage), serverKey)

	clientFinalMessage := clientFinalMessageBare + ",p=" + base64.StdEncoding.EncodeToString(clientProof)

	s.state = respondedScramState
	return base64.StdEncoding.EncodeToString([]byte(clientFinalMessage)), nil
}

// VerifySuccess validates the server signature carried in the success payload.
func (s *Scram) VerifySuccess(payload string) error {
	if s.state != respondedScramState {
		return ErrSASLNotAuthorized
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ErrSASLIncorrectEncoding
	}
	key, val := stringsutil.SplitKeyAndValue(string(b), '=')
	if key != "v" {
		return ErrSASLMalformedRequest
	}
	v, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return ErrSASLIncorrectEncoding
	}
	if !hmac.Equal(v, s.srvSignature) {
		return ErrSASLIntegrityCheckFailed
	}
	s.authenticated = true
	s.eraseTransientMaterial()
	return nil
}

// Authenticated returns whether or not authentication has been completed.
func (s *Scram) Authenticated() bool {
	return s.authenticated
}

// Reset resets scram internal state.
func (s *Scram) Reset() {
	s.authenticated = false

	s.state = startScramState
	s.cNonce = ""
	s.firstMessage = ""
	s.eraseTransientMaterial()
}

func (s *Scram) eraseTransientMaterial() {
	for i := range s.srvSignature {
		s.srvSignature[i] = 0
	}
	s.srvSignature = nil
}

func (s *Scram) hmac(b []byte, key []byte) []byte {
	m := hmac.New(s.h, key)
	m.Write(b)
	return m.Sum(nil)
}

func (s *Scram) hash(b []byte) []byte {
	h := s.h()
	h.Write(b)
	return h.Sum(nil)
}

// https://tools.ietf.org/html/rfc5802#section-5.1 saslname encoding
func escapeSaslName(name string) string {
	name = strings.ReplaceAll(name, "=", "=3D")
	return strings.ReplaceAll(name, ",", "=2C")
}

// SaltedPassword computes a salted password using the HMAC variant of PBKDF2.
func SaltedPassword(password, salt []byte, iterationCount int, h func() hash.Hash) []byte {
	hKeyLen := h().Size()
	return pbkdf2.Key(password, salt, iterationCount, hKeyLen, h)
}
