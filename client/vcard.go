/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package client

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/wisp-im/wisp/cache"
	"github.com/wisp-im/wisp/log"
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

const vCardNamespace = "vcard-temp"

// RequestVCard fetches the vCard of the given entity, feeding the
// received name, note and avatar into the profile cache.
func (c *Client) RequestVCard(ctx context.Context, j *jid.JID) error {
	c.mu.RLock()
	stm := c.stm
	c.mu.RUnlock()
	if stm == nil {
		return errNotConnected
	}
	bare := j.ToBareJID().String()

	iq := xmpp.NewIQType("", xmpp.GetType)
	if bare != stm.JID().ToBareJID().String() {
		iq.SetTo(bare)
	}
	iq.AppendElement(xmpp.NewElementNamespace("vCard", vCardNamespace))

	return stm.SendIQ(ctx, iq, func(result *xmpp.IQ) {
		c.rq.Run(func() {
			c.processVCard(context.Background(), bare, result)
		})
	})
}

func (c *Client) processVCard(ctx context.Context, bare string, result *xmpp.IQ) {
	if !result.IsResult() {
		return
	}
	vCard := result.Elements().ChildNamespace("vCard", vCardNamespace)
	if vCard == nil {
		return
	}
	var p cache.Profile
	if fn := vCard.Elements().Child("FN"); fn != nil {
		p.Name = fn.Text()
	}
	if desc := vCard.Elements().Child("DESC"); desc != nil {
		p.Note = desc.Text()
	}
	if photo := vCard.Elements().Child("PHOTO"); photo != nil {
		if binval := photo.Elements().Child("BINVAL"); binval != nil {
			blob, err := base64.StdEncoding.DecodeString(stripSpace(binval.Text()))
			if err != nil {
				log.Error(err)
			} else if len(blob) > 0 {
				hash, err := c.cache.PutAvatar(ctx, blob)
				if err != nil {
					log.Error(err)
				} else {
					p.Avatar = hash
				}
			}
		}
	}
	if err := c.cache.SetProfile(ctx, bare, p); err != nil {
		log.Error(err)
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}
