/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package stream

import (
	"time"

	"github.com/wisp-im/wisp/xmpp"
)

const (
	pingNamespace       = "urn:xmpp:ping"
	timeNamespace       = "urn:xmpp:time"
	versionNamespace    = "jabber:iq:version"
	discoInfoNamespace  = "http://jabber.org/protocol/disco#info"
	discoItemsNamespace = "http://jabber.org/protocol/disco#items"
)

// respond answers the request iqs every client is expected to serve.
// A nil return means the request is not locally handled.
func (s *Stream) respond(iq *xmpp.IQ) xmpp.XElement {
	if !iq.IsGet() {
		return nil
	}
	switch {
	case iq.Elements().ChildNamespace("ping", pingNamespace) != nil:
		return iq.ResultIQ()

	case iq.Elements().ChildNamespace("time", timeNamespace) != nil:
		return s.respondTime(iq)

	case iq.Elements().ChildNamespace("query", versionNamespace) != nil:
		return s.respondVersion(iq)

	case iq.Elements().ChildNamespace("query", discoInfoNamespace) != nil:
		return s.respondDiscoInfo(iq)

	case iq.Elements().ChildNamespace("query", discoItemsNamespace) != nil:
		return s.respondDiscoItems(iq)
	}
	return nil
}

func (s *Stream) respondTime(iq *xmpp.IQ) xmpp.XElement {
	res := iq.ResultIQ()
	timeElem := xmpp.NewElementNamespace("time", timeNamespace)

	now := time.Now()
	timeElem.AppendElement(xmpp.NewElementName("tzo").SetText(now.Format("-07:00")))
	timeElem.AppendElement(xmpp.NewElementName("utc").SetText(now.UTC().Format("2006-01-02T15:04:05Z")))

	res.AppendElement(timeElem)
	return res
}

func (s *Stream) respondVersion(iq *xmpp.IQ) xmpp.XElement {
	res := iq.ResultIQ()
	query := xmpp.NewElementNamespace("query", versionNamespace)
	query.AppendElement(xmpp.NewElementName("name").SetText(s.opts.AppName))
	query.AppendElement(xmpp.NewElementName("version").SetText(s.opts.AppVersion))

	res.AppendElement(query)
	return res
}

func (s *Stream) respondDiscoInfo(iq *xmpp.IQ) xmpp.XElement {
	res := iq.ResultIQ()
	query := xmpp.NewElementNamespace("query", discoInfoNamespace)

	identity := xmpp.NewElementName("identity")
	identity.SetAttribute("category", "client")
	identity.SetAttribute("type", "pc")
	identity.SetAttribute("name", s.opts.AppName)
	query.AppendElement(identity)

	for _, f := range s.opts.Features {
		feature := xmpp.NewElementName("feature")
		feature.SetAttribute("var", f)
		query.AppendElement(feature)
	}
	res.AppendElement(query)
	return res
}

func (s *Stream) respondDiscoItems(iq *xmpp.IQ) xmpp.XElement {
	res := iq.ResultIQ()
	res.AppendElement(xmpp.NewElementNamespace("query", discoItemsNamespace))
	return res
}
