/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package session

import (
	stdxml "encoding/xml"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/wisp-im/wisp/log"
	"github.com/wisp-im/wisp/pool"
	"github.com/wisp-im/wisp/streamerror"
	"github.com/wisp-im/wisp/transport"
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	jabberClientNamespace = "jabber:client"
	framedStreamNamespace = "urn:ietf:params:xml:ns:xmpp-framing"
)

var bufPool = pool.NewBufferPool()

type namespaceSettable interface {
	SetNamespace(string)
}

// Error represents a session error.
type Error struct {
	// Element returns the original incoming element that generated
	// the session error.
	Element xmpp.XElement

	// UnderlyingErr is the underlying session error.
	UnderlyingErr error
}

// A Config structure is used to configure an XMPP session.
type Config struct {
	// JID defines the initial session JID.
	JID *jid.JID

	// Transport provides the underlying session transport
	// that will be used to send and received elements.
	Transport transport.Transport

	// MaxStanzaSize defines the maximum stanza size that
	// can be read from the session transport.
	MaxStanzaSize int

	// RemoteDomain represents the receiving entity domain name.
	RemoteDomain string
}

// Session represents a client to server XMPP session over a framed transport.
type Session struct {
	id           string
	tr           transport.Transport
	remoteDomain string
	maxStanza    int
	opened       uint32
	started      uint32

	mu       sync.RWMutex
	pr       *xmpp.Parser
	streamID string
	sJID     *jid.JID
}

// New creates a new session instance.
func New(id string, config *Config) *Session {
	return &Session{
		id:           id,
		tr:           config.Transport,
		pr:           xmpp.NewParser(config.Transport, xmpp.WebSocketStream, config.MaxStanzaSize),
		remoteDomain: config.RemoteDomain,
		maxStanza:    config.MaxStanzaSize,
		sJID:         config.JID,
	}
}

// StreamID returns the server assigned stream identifier.
func (s *Session) StreamID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamID
}

// SetJID updates current session JID.
func (s *Session) SetJID(sessionJID *jid.JID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sJID = sessionJID
}

// JID returns current session JID.
func (s *Session) JID() *jid.JID {
	return s.jid()
}

// Open initializes the session sending the stream open payload.
func (s *Session) Open() error {
	if !atomic.CompareAndSwapUint32(&s.opened, 0, 1) {
		return errors.New("session already opened")
	}
	return s.sendOpen()
}

// Restart reopens the stream on the same transport. Used after a
// successful authentication round, when a fresh stream is negotiated.
func (s *Session) Restart() error {
	if atomic.LoadUint32(&s.opened) == 0 {
		return errors.New("session is not opened")
	}
	atomic.StoreUint32(&s.started, 0)

	s.mu.Lock()
	s.pr = xmpp.NewParser(s.tr, xmpp.WebSocketStream, s.maxStanza)
	s.mu.Unlock()

	return s.sendOpen()
}

// Close closes session sending the stream close payload.
// Is responsability of the caller to close underlying transport.
func (s *Session) Close() error {
	if atomic.LoadUint32(&s.opened) == 0 {
		return errors.New("session already closed")
	}
	_, err := io.WriteString(s.tr, fmt.Sprintf(`<close xmlns="%s" />`, framedStreamNamespace))
	return err
}

// Send writes an XML element to the underlying session transport.
func (s *Session) Send(elem xmpp.XElement) {
	// clear namespace if sending a stanza
	if e, ok := elem.(namespaceSettable); elem.IsStanza() && ok {
		e.SetNamespace("")
	}
	log.Debugf("SEND(%s): %v", s.id, elem)
	elem.ToXML(s.tr, true)
}

// Receive returns next incoming session element.
func (s *Session) Receive() (xmpp.XElement, *Error) {
	s.mu.RLock()
	pr := s.pr
	s.mu.RUnlock()

	elem, err := pr.ParseElement()
	if err != nil {
		return nil, s.mapErrorToSessionError(err)
	} else if elem != nil {
		log.Debugf("RECV(%s): %v", s.id, elem)

		if elem.Name() == "stream:error" || (elem.Name() == "error" && elem.Namespace() == "http://etherx.jabber.org/streams") {
			return nil, &Error{Element: elem, UnderlyingErr: streamerror.FromElement(elem)}
		}
		if atomic.LoadUint32(&s.started) == 0 {
			if err := s.validateStreamElement(elem); err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.streamID = elem.ID()
			s.mu.Unlock()
			atomic.StoreUint32(&s.started, 1)

		} else if elem.IsStanza() {
			stanza, err := s.buildStanza(elem)
			if err != nil {
				return nil, err
			}
			return stanza, nil
		}
	}
	return elem, nil
}

func (s *Session) sendOpen() error {
	ops := xmpp.NewElementName("open")
	ops.SetAttribute("xmlns", framedStreamNamespace)
	ops.SetAttribute("to", s.remoteDomain)
	ops.SetAttribute("version", "1.0")

	buf := bufPool.Get()
	defer bufPool.Put(buf)
	ops.ToXML(buf, true)

	log.Debugf("SEND(%s): %s", s.id, buf.String())

	_, err := s.tr.Write(buf.Bytes())
	return err
}

func (s *Session) buildStanza(elem xmpp.XElement) (xmpp.Stanza, *Error) {
	if err := s.validateNamespace(elem); err != nil {
		return nil, err
	}
	fromJID, toJID, err := s.extractAddresses(elem)
	if err != nil {
		return nil, err
	}
	switch elem.Name() {
	case "iq":
		iq, err := xmpp.NewIQFromElement(elem, fromJID, toJID)
		if err != nil {
			log.Error(err)
			return nil, &Error{Element: elem, UnderlyingErr: xmpp.ErrBadRequest}
		}
		return iq, nil

	case "presence":
		presence, err := xmpp.NewPresenceFromElement(elem, fromJID, toJID)
		if err != nil {
			log.Error(err)
			return nil, &Error{Element: elem, UnderlyingErr: xmpp.ErrBadRequest}
		}
		return presence, nil

	case "message":
		message, err := xmpp.NewMessageFromElement(elem, fromJID, toJID)
		if err != nil {
			log.Error(err)
			return nil, &Error{Element: elem, UnderlyingErr: xmpp.ErrBadRequest}
		}
		return message, nil
	}
	return nil, &Error{UnderlyingErr: streamerror.ErrUnsupportedStanzaType}
}

func (s *Session) extractAddresses(elem xmpp.XElement) (*jid.JID, *jid.JID, *Error) {
	var fromJID, toJID *jid.JID
	var err error

	from := elem.From()
	if len(from) > 0 {
		fromJID, err = jid.NewWithString(from, false)
		if err != nil {
			return nil, nil, &Error{Element: elem, UnderlyingErr: xmpp.ErrJidMalformed}
		}
	} else {
		// the server is the implicit sender
		fromJID, _ = jid.New("", s.remoteDomain, "", true)
	}
	to := elem.To()
	if len(to) > 0 {
		toJID, err = jid.NewWithString(to, false)
		if err != nil {
			return nil, nil, &Error{Element: elem, UnderlyingErr: xmpp.ErrJidMalformed}
		}
	} else {
		toJID = s.jid().ToBareJID() // account's bare JID as default 'to'
	}
	return fromJID, toJID, nil
}

func (s *Session) validateStreamElement(elem xmpp.XElement) *Error {
	if elem.Name() != "open" {
		return &Error{UnderlyingErr: streamerror.ErrUnsupportedStanzaType}
	}
	if elem.Namespace() != framedStreamNamespace {
		return &Error{UnderlyingErr: streamerror.ErrInvalidNamespace}
	}
	if elem.Version() != "1.0" {
		return &Error{UnderlyingErr: streamerror.ErrUnsupportedVersion}
	}
	return nil
}

func (s *Session) validateNamespace(elem xmpp.XElement) *Error {
	ns := elem.Namespace()
	if len(ns) == 0 || ns == jabberClientNamespace {
		return nil
	}
	return &Error{UnderlyingErr: streamerror.ErrInvalidNamespace}
}

func (s *Session) jid() *jid.JID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sJID
}

func (s *Session) mapErrorToSessionError(err error) *Error {
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
		break

	case xmpp.ErrStreamClosedByPeer:
		_ = s.Close()

	case xmpp.ErrTooLargeStanza:
		return &Error{UnderlyingErr: streamerror.ErrPolicyViolation}

	default:
		switch e := err.(type) {
		case net.Error:
			if e.Timeout() {
				return &Error{UnderlyingErr: streamerror.ErrConnectionTimeout}
			}
			return &Error{UnderlyingErr: err}
		case *stdxml.SyntaxError:
			return &Error{UnderlyingErr: streamerror.ErrInvalidXML}
		default:
			return &Error{UnderlyingErr: err}
		}
	}
	return &Error{}
}
