/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package stream

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/wisp-im/wisp/log"
	"github.com/wisp-im/wisp/xmpp"
)

const registerNamespace = "jabber:iq:register"

func (s *Stream) requestRegistrationForm(ctx context.Context) {
	iq := xmpp.NewIQType(s.id+":reg:form", xmpp.GetType)
	iq.AppendElement(xmpp.NewElementNamespace("query", registerNamespace))

	s.setState(registering)
	s.writeElement(ctx, iq)
}

func (s *Stream) handleRegistering(ctx context.Context, elem xmpp.XElement) {
	iq, ok := elem.(*xmpp.IQ)
	if !ok {
		s.failRegistration(ctx, errors.New("registration: unexpected element"))
		return
	}
	if iq.IsError() {
		if se := xmpp.NewStanzaErrorFromElement(iq); se != nil {
			s.failRegistration(ctx, se)
			return
		}
		s.failRegistration(ctx, errors.New("registration failed"))
		return
	}
	switch iq.ID() {
	case s.id + ":reg:form":
		s.submitRegistration(ctx, iq)

	case s.id + ":reg:submit":
		log.Infof("account registered... (username: %s)", s.opts.JID.Node())
		atomic.StoreUint32(&s.registered, 1)
		s.startAuthentication(ctx, s.features)

	default:
		s.failRegistration(ctx, errors.New("registration: unexpected iq response"))
	}
}

func (s *Stream) submitRegistration(ctx context.Context, form *xmpp.IQ) {
	query := form.Elements().ChildNamespace("query", registerNamespace)
	if query == nil {
		s.failRegistration(ctx, errors.New("registration: malformed form"))
		return
	}
	if query.Elements().Child("registered") != nil {
		// account already exists, proceed to authentication
		atomic.StoreUint32(&s.registered, 1)
		s.startAuthentication(ctx, s.features)
		return
	}
	iq := xmpp.NewIQType(s.id+":reg:submit", xmpp.SetType)
	q := xmpp.NewElementNamespace("query", registerNamespace)
	q.AppendElement(xmpp.NewElementName("username").SetText(s.opts.JID.Node()))
	q.AppendElement(xmpp.NewElementName("password").SetText(s.opts.Password))
	iq.AppendElement(q)

	s.writeElement(ctx, iq)
}

func (s *Stream) failRegistration(ctx context.Context, err error) {
	log.Infof("stream registration failed... (id: %s): %v", s.id, err)
	s.signalReady(err)
	s.disconnect(ctx, nil)
}
