/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package client

import (
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"

	"github.com/wisp-im/wisp/xmpp"
)

const (
	capsNamespace = "http://jabber.org/protocol/caps"
	capsNode      = "https://github.com/wisp-im/wisp"
)

// capsVerification computes the XEP-0115 verification string over the
// client identity and its supported feature set.
func capsVerification(category, typ, name string, features []string) string {
	sorted := append([]string(nil), features...)
	sort.Strings(sorted)

	var sb strings.Builder
	sb.WriteString(category + "/" + typ + "//" + name + "<")
	for _, f := range sorted {
		sb.WriteString(f + "<")
	}
	h := sha1.Sum([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(h[:])
}

// capsElement builds the entity capabilities element announced with
// every own presence.
func capsElement(appName string, features []string) *xmpp.Element {
	c := xmpp.NewElementNamespace("c", capsNamespace)
	c.SetAttribute("hash", "sha-1")
	c.SetAttribute("node", capsNode)
	c.SetAttribute("ver", capsVerification("client", "pc", appName, features))
	return c
}
