/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package auth

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/wisp-im/wisp/util/rand"
	"github.com/wisp-im/wisp/util/stringsutil"
)

type digestMD5State int

const (
	startDigestMD5State digestMD5State = iota
	challengedDigestMD5State
	respondedDigestMD5State
)

type digestMD5Parameters struct {
	username  string
	realm     string
	nonce     string
	cnonce    string
	nc        string
	qop       string
	servType  string
	digestURI string
	response  string
	charset   string
	authID    string
}

func (r *digestMD5Parameters) setParameter(p string) {
	key, val := stringsutil.SplitKeyAndValue(p, '=')
	val = stringsutil.UnquoteValue(val)

	switch key {
	case "username":
		r.username = val
	case "realm":
		r.realm = val
	case "nonce":
		r.nonce = val
	case "cnonce":
		r.cnonce = val
	case "nc":
		r.nc = val
	case "qop":
		r.qop = val
	case "serv-type":
		r.servType = val
	case "digest-uri":
		r.digestURI = val
	case "response":
		r.response = val
	case "charset":
		r.charset = val
	case "authzid":
		r.authID = val
	}
}

// DigestMD5 represents a client side DIGEST-MD5 authenticator.
type DigestMD5 struct {
	creds         *Credentials
	state         digestMD5State
	cnonce        string
	expectedAuth  string
	rspauthOK     bool
	authenticated bool
}

// NewDigestMD5 returns a new digest-md5 authenticator instance.
func NewDigestMD5(creds *Credentials) *DigestMD5 {
	return &DigestMD5{
		creds: creds,
		state: startDigestMD5State,
	}
}

// Mechanism returns authenticator mechanism name.
func (d *DigestMD5) Mechanism() string {
	return "DIGEST-MD5"
}

// Init returns an empty initial response: the server challenges first.
func (d *DigestMD5) Init() (string, error) {
	d.state = challengedDigestMD5State
	return "", nil
}

// ProcessChallenge computes the digest response for the server challenge,
// and validates the rspauth mutual authentication value on the second round.
func (d *DigestMD5) ProcessChallenge(challenge string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(challenge)
	if err != nil {
		return "", ErrSASLIncorrectEncoding
	}
	switch d.state {
	case challengedDigestMD5State:
		return d.handleChallenge(string(b))
	case respondedDigestMD5State:
		if err := d.verifyRspauth(string(b)); err != nil {
			return "", err
		}
		return "", nil
	}
	return "", ErrSASLNotAuthorized
}

// VerifySuccess validates an rspauth value carried in the success payload,
// if the server deferred it to the final round.
func (d *DigestMD5) VerifySuccess(payload string) error {
	if d.state != respondedDigestMD5State {
		return ErrSASLNotAuthorized
	}
	if !d.rspauthOK {
		if len(payload) == 0 {
			return ErrSASLIntegrityCheckFailed
		}
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return ErrSASLIncorrectEncoding
		}
		if err := d.verifyRspauth(string(b)); err != nil {
			return err
		}
	}
	d.authenticated = true
	d.expectedAuth = ""
	return nil
}

// Authenticated returns whether or not authentication has been completed.
func (d *DigestMD5) Authenticated() bool {
	return d.authenticated
}

// Reset resets digest-md5 internal state.
func (d *DigestMD5) Reset() {
	d.state = startDigestMD5State
	d.cnonce = ""
	d.expectedAuth = ""
	d.rspauthOK = false
	d.authenticated = false
}

func (d *DigestMD5) handleChallenge(challenge string) (string, error) {
	srv := d.parseParameters(challenge)
	if len(srv.nonce) == 0 {
		return "", ErrSASLMalformedRequest
	}
	if len(srv.qop) > 0 && !containsQop(srv.qop, "auth") {
		return "", ErrSASLMechanismUnavailable
	}
	realm := srv.realm
	if len(realm) == 0 {
		realm = d.creds.Domain
	}
	if len(d.cnonce) == 0 {
		d.cnonce = base64.StdEncoding.EncodeToString(rand.Bytes(16))
	}
	params := &digestMD5Parameters{
		username:  d.creds.Username,
		realm:     realm,
		nonce:     srv.nonce,
		cnonce:    d.cnonce,
		nc:        "00000001",
		qop:       "auth",
		digestURI: "xmpp/" + d.creds.Domain,
		authID:    d.creds.AuthzID,
	}
	params.response = d.computeResponse(params, true)
	d.expectedAuth = d.computeResponse(params, false)

	resp := fmt.Sprintf(`username="%s",realm="%s",nonce="%s",cnonce="%s",nc=%s,qop=%s,digest-uri="%s",response=%s,charset=utf-8`,
		params.username, params.realm, params.nonce, params.cnonce, params.nc, params.qop, params.digestURI, params.response)
	if len(params.authID) > 0 {
		resp += fmt.Sprintf(`,authzid="%s"`, params.authID)
	}
	d.state = respondedDigestMD5State
	return base64.StdEncoding.EncodeToString([]byte(resp)), nil
}

func (d *DigestMD5) verifyRspauth(payload string) error {
	key, val := stringsutil.SplitKeyAndValue(payload, '=')
	if key != "rspauth" {
		return ErrSASLMalformedRequest
	}
	if val != d.expectedAuth {
		return ErrSASLIntegrityCheckFailed
	}
	d.rspauthOK = true
	return nil
}

func (d *DigestMD5) parseParameters(str string) *digestMD5Parameters {
	params := &digestMD5Parameters{}
	s := strings.Split(str, ",")
	for i := 0; i < len(s); i++ {
		params.setParameter(s[i])
	}
	return params
}

func (d *DigestMD5) computeResponse(params *digestMD5Parameters, asClient bool) string {
	x := params.username + ":" + params.realm + ":" + d.creds.Password
	y := d.md5Hash([]byte(x))

	a1 := bytes.NewBuffer(y)
	a1.WriteString(":" + params.nonce + ":" + params.cnonce)
	if len(params.authID) > 0 {
		a1.WriteString(":" + params.authID)
	}

	var c string
	if asClient {
		c = "AUTHENTICATE"
	} else {
		c = ""
	}
	a2 := bytes.NewBuffer([]byte(c))
	a2.WriteString(":" + params.digestURI)

	ha1 := hex.EncodeToString(d.md5Hash(a1.Bytes()))
	ha2 := hex.EncodeToString(d.md5Hash(a2.Bytes()))

	kd := ha1
	kd += ":" + params.nonce
	kd += ":" + params.nc
	kd += ":" + params.cnonce
	kd += ":" + params.qop
	kd += ":" + ha2
	return hex.EncodeToString(d.md5Hash([]byte(kd)))
}

func (d *DigestMD5) md5Hash(b []byte) []byte {
	hasher := md5.New()
	hasher.Write(b)
	return hasher.Sum(nil)
}

func containsQop(qopList, qop string) bool {
	for _, q := range strings.Split(qopList, ",") {
		if strings.TrimSpace(q) == qop {
			return true
		}
	}
	return false
}
