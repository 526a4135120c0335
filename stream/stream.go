/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackal-xmpp/runqueue"
	"github.com/jackal-xmpp/sonar"
	"github.com/pkg/errors"

	"github.com/wisp-im/wisp/auth"
	"github.com/wisp-im/wisp/event"
	"github.com/wisp-im/wisp/log"
	"github.com/wisp-im/wisp/session"
	"github.com/wisp-im/wisp/streamerror"
	"github.com/wisp-im/wisp/transport"
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	bindNamespace    = "urn:ietf:params:xml:ns:xmpp-bind"
	sessionNamespace = "urn:ietf:params:xml:ns:xmpp-session"
)

const (
	closed uint32 = iota
	opening
	awaitingFeatures
	registering
	authenticating
	binding
	establishingSession
	ready
	disconnected
)

// Options contains the stream configurable parameters.
type Options struct {
	// JID is the account JID. Its resource, when present, is requested
	// at bind time.
	JID *jid.JID

	// Password is the account password.
	Password string

	// Dialer establishes the stream transport.
	Dialer *transport.Dialer

	// MaxStanzaSize defines the maximum incoming stanza size.
	MaxStanzaSize int

	// Register tells whether an in-band account registration must be
	// attempted before authenticating.
	Register bool

	// AppName and AppVersion identify this client on version queries.
	AppName    string
	AppVersion string

	// Features is the disco feature set announced by this client.
	Features []string
}

// Stream represents a client to server XMPP stream. All stream logic
// runs serialized on an internal run queue, so handlers never race.
type Stream struct {
	id           string
	opts         Options
	dialFn       func(ctx context.Context) (transport.Transport, error)
	tr           transport.Transport
	sess         *session.Session
	authr        auth.Authenticator
	correlator   *correlator
	sn           *sonar.Sonar
	rq           *runqueue.RunQueue
	started      uint32
	state        uint32
	registered   uint32
	sessRequired bool
	features     xmpp.XElement
	sendQueue    []xmpp.XElement

	readyOnce sync.Once
	readyCh   chan error

	mu         sync.RWMutex
	boundJID   *jid.JID
	iqHandlers []IQHandler
}

// IQHandler represents a request iq handler module.
type IQHandler interface {
	// MatchesIQ returns whether or not an iq should be
	// processed by this handler.
	MatchesIQ(iq *xmpp.IQ) bool

	// ProcessIQ processes a matched iq taking according actions.
	ProcessIQ(ctx context.Context, iq *xmpp.IQ)
}

// New creates a stream instance posting its lifecycle events to sn.
func New(opts Options, sn *sonar.Sonar) *Stream {
	id := nextStreamID()
	var dialFn func(ctx context.Context) (transport.Transport, error)
	if opts.Dialer != nil {
		dialFn = opts.Dialer.Dial
	}
	return &Stream{
		id:         id,
		opts:       opts,
		dialFn:     dialFn,
		correlator: newCorrelator(),
		sn:         sn,
		rq:         runqueue.New(id, log.Errorf),
		readyCh:    make(chan error, 1),
	}
}

// ID returns the stream identifier.
func (s *Stream) ID() string { return s.id }

// JID returns the server bound JID, or the configured account JID
// before binding completes.
func (s *Stream) JID() *jid.JID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundJID != nil {
		return s.boundJID
	}
	return s.opts.JID
}

// Connect dials the transport and negotiates the stream up to the
// ready state, blocking until negotiation finishes or ctx expires.
func (s *Stream) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		return errors.New("stream already started")
	}
	if s.dialFn == nil {
		atomic.StoreUint32(&s.started, 0)
		return errors.New("no dialer configured")
	}
	tr, err := s.dialFn(ctx)
	if err != nil {
		atomic.StoreUint32(&s.started, 0)
		return err
	}
	s.tr = tr
	s.sess = session.New(s.id, &session.Config{
		JID:           s.opts.JID,
		Transport:     tr,
		MaxStanzaSize: s.opts.MaxStanzaSize,
		RemoteDomain:  s.opts.JID.Domain(),
	})
	s.setState(opening)
	s.postStreamEvent(ctx, event.StreamConnected, nil, nil)

	go s.doRead()

	s.rq.Run(func() {
		_ = s.sess.Open()
	})
	select {
	case err := <-s.readyCh:
		return err
	case <-ctx.Done():
		s.Disconnect(ctx, nil)
		return ctx.Err()
	}
}

// Disconnect closes the stream waiting until all pending work is done.
func (s *Stream) Disconnect(ctx context.Context, err error) {
	if s.getState() == disconnected {
		return
	}
	waitCh := make(chan struct{})
	s.rq.Run(func() {
		s.disconnect(ctx, err)
		close(waitCh)
	})
	<-waitCh
}

// SendElement writes an element to the stream. Elements sent before
// the stream becomes ready are queued and flushed afterwards.
func (s *Stream) SendElement(ctx context.Context, elem xmpp.XElement) {
	if s.getState() == disconnected {
		return
	}
	s.rq.Run(func() {
		if s.getState() != ready {
			s.sendQueue = append(s.sendQueue, elem)
			return
		}
		s.writeElement(ctx, elem)
	})
}

// SendIQ writes a request iq registering hnd to receive its response.
// A fresh identifier is assigned when the request carries none.
func (s *Stream) SendIQ(ctx context.Context, iq *xmpp.IQ, hnd ResultHandler) error {
	if err := s.correlator.track(iq, hnd); err != nil {
		return err
	}
	s.SendElement(ctx, iq)
	return nil
}

// RegisterIQHandler registers a handler for incoming request iqs.
func (s *Stream) RegisterIQHandler(h IQHandler) {
	s.mu.Lock()
	s.iqHandlers = append(s.iqHandlers, h)
	s.mu.Unlock()
}

// PendingIQs returns the number of in-flight iq requests.
func (s *Stream) PendingIQs() int {
	return s.correlator.size()
}

// runs on its own goroutine
func (s *Stream) doRead() {
	elem, sErr := s.sess.Receive()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if sErr == nil {
		s.rq.Run(func() {
			s.readElement(ctx, elem)
		})
	} else {
		s.rq.Run(func() {
			if s.getState() == disconnected {
				return // already disconnected...
			}
			s.handleSessionError(ctx, sErr)
		})
	}
}

func (s *Stream) readElement(ctx context.Context, elem xmpp.XElement) {
	if elem != nil {
		s.handleElement(ctx, elem)
	}
	if s.getState() != disconnected {
		go s.doRead()
	}
}

func (s *Stream) handleElement(ctx context.Context, elem xmpp.XElement) {
	state := s.getState()
	if state > opening && state < ready {
		// service requests are answered in any negotiation state
		if iq, ok := elem.(*xmpp.IQ); ok && (iq.IsGet() || iq.IsSet()) {
			if resp := s.respond(iq); resp != nil {
				s.writeElement(ctx, resp)
			}
			return
		}
	}
	switch state {
	case opening:
		s.handleOpening(elem)
	case awaitingFeatures:
		s.handleFeatures(ctx, elem)
	case registering:
		s.handleRegistering(ctx, elem)
	case authenticating:
		s.handleAuthenticating(ctx, elem)
	case binding:
		s.handleBinding(ctx, elem)
	case establishingSession:
		s.handleEstablishingSession(ctx, elem)
	case ready:
		s.handleReady(ctx, elem)
	}
}

func (s *Stream) handleOpening(elem xmpp.XElement) {
	if elem.Name() != "open" {
		return
	}
	s.setState(awaitingFeatures)
}

func (s *Stream) handleFeatures(ctx context.Context, elem xmpp.XElement) {
	if elem.Name() == "open" {
		// stream header of a restarted stream
		return
	}
	if elem.Name() != "stream:features" {
		s.disconnectWithStreamError(ctx, streamerror.ErrUnsupportedStanzaType)
		return
	}
	s.features = elem
	if s.authenticated() {
		s.bindResource(ctx, elem)
		return
	}
	if s.opts.Register && atomic.LoadUint32(&s.registered) == 0 {
		s.requestRegistrationForm(ctx)
		return
	}
	s.startAuthentication(ctx, elem)
}

func (s *Stream) startAuthentication(ctx context.Context, features xmpp.XElement) {
	mechanisms := features.Elements().ChildNamespace("mechanisms", auth.Namespace)
	if mechanisms == nil {
		// no authentication offered, negotiate the rest
		s.bindResource(ctx, features)
		return
	}
	var advertised []string
	for _, m := range mechanisms.Elements().All() {
		if m.Name() == "mechanism" {
			advertised = append(advertised, m.Text())
		}
	}
	authr, err := auth.New(advertised, &auth.Credentials{
		Username: s.opts.JID.Node(),
		Password: s.opts.Password,
		Domain:   s.opts.JID.Domain(),
	})
	if err != nil {
		s.signalReady(err)
		s.disconnect(ctx, nil)
		return
	}
	s.authr = authr

	initial, err := authr.Init()
	if err != nil {
		s.signalReady(err)
		s.disconnect(ctx, nil)
		return
	}
	authElem := xmpp.NewElementNamespace("auth", auth.Namespace)
	authElem.SetAttribute("mechanism", authr.Mechanism())
	if len(initial) > 0 {
		authElem.SetText(initial)
	} else {
		authElem.SetText("=")
	}
	s.setState(authenticating)
	s.writeElement(ctx, authElem)
}

func (s *Stream) handleAuthenticating(ctx context.Context, elem xmpp.XElement) {
	if elem.Namespace() != auth.Namespace {
		s.disconnectWithStreamError(ctx, streamerror.ErrInvalidNamespace)
		return
	}
	switch elem.Name() {
	case "challenge":
		resp, err := s.authr.ProcessChallenge(elem.Text())
		if err != nil {
			s.failAuthentication(ctx, err)
			return
		}
		respElem := xmpp.NewElementNamespace("response", auth.Namespace)
		respElem.SetText(resp)
		s.writeElement(ctx, respElem)

	case "success":
		if err := s.authr.VerifySuccess(elem.Text()); err != nil {
			s.failAuthentication(ctx, err)
			return
		}
		s.setState(awaitingFeatures)
		if err := s.sess.Restart(); err != nil {
			s.signalReady(err)
			s.disconnect(ctx, err)
		}

	case "failure":
		s.failAuthentication(ctx, auth.ErrorFromElement(elem))

	default:
		s.disconnectWithStreamError(ctx, streamerror.ErrUnsupportedStanzaType)
	}
}

func (s *Stream) failAuthentication(ctx context.Context, err error) {
	log.Infof("stream authentication failed... (id: %s): %v", s.id, err)
	s.authr.Reset()
	s.signalReady(err)
	s.disconnect(ctx, nil)
}

func (s *Stream) bindResource(ctx context.Context, features xmpp.XElement) {
	if features.Elements().ChildNamespace("bind", bindNamespace) == nil {
		s.finishNegotiation(ctx)
		return
	}
	hasSession := features.Elements().ChildNamespace("session", sessionNamespace) != nil

	iq := xmpp.NewIQType(s.id+":bind", xmpp.SetType)
	bindElem := xmpp.NewElementNamespace("bind", bindNamespace)
	if rsc := s.opts.JID.Resource(); len(rsc) > 0 {
		bindElem.AppendElement(xmpp.NewElementName("resource").SetText(rsc))
	}
	iq.AppendElement(bindElem)

	s.setState(binding)
	s.sessRequired = hasSession
	s.writeElement(ctx, iq)
}

func (s *Stream) handleBinding(ctx context.Context, elem xmpp.XElement) {
	iq, ok := elem.(*xmpp.IQ)
	if !ok || iq.ID() != s.id+":bind" {
		return // unrelated traffic while negotiating
	}
	if !iq.IsResult() {
		s.signalReady(errors.New("resource binding failed"))
		s.disconnect(ctx, nil)
		return
	}
	bindElem := iq.Elements().ChildNamespace("bind", bindNamespace)
	if bindElem == nil || bindElem.Elements().Child("jid") == nil {
		s.signalReady(errors.New("resource binding failed"))
		s.disconnect(ctx, nil)
		return
	}
	boundJID, err := jid.NewWithString(bindElem.Elements().Child("jid").Text(), false)
	if err != nil {
		s.signalReady(err)
		s.disconnect(ctx, nil)
		return
	}
	s.mu.Lock()
	s.boundJID = boundJID
	s.mu.Unlock()
	s.sess.SetJID(boundJID)

	if s.sessRequired {
		iq := xmpp.NewIQType(s.id+":session", xmpp.SetType)
		iq.AppendElement(xmpp.NewElementNamespace("session", sessionNamespace))
		s.setState(establishingSession)
		s.writeElement(ctx, iq)
		return
	}
	s.finishNegotiation(ctx)
}

func (s *Stream) handleEstablishingSession(ctx context.Context, elem xmpp.XElement) {
	iq, ok := elem.(*xmpp.IQ)
	if !ok || iq.ID() != s.id+":session" {
		return // unrelated traffic while negotiating
	}
	if !iq.IsResult() {
		s.signalReady(errors.New("session establishment failed"))
		s.disconnect(ctx, nil)
		return
	}
	s.finishNegotiation(ctx)
}

func (s *Stream) finishNegotiation(ctx context.Context) {
	// send pending elements...
	for _, el := range s.sendQueue {
		s.writeElement(ctx, el)
	}
	s.sendQueue = nil
	s.setState(ready)

	log.Infof("stream ready... (id: %s, jid: %s)", s.id, s.JID())
	s.postStreamEvent(ctx, event.StreamReady, nil, nil)
	s.signalReady(nil)
}

func (s *Stream) handleReady(ctx context.Context, elem xmpp.XElement) {
	stanza, ok := elem.(xmpp.Stanza)
	if !ok {
		return
	}
	switch st := stanza.(type) {
	case *xmpp.IQ:
		s.handleIQ(ctx, st)
	case *xmpp.Message:
		s.postStreamEvent(ctx, event.StreamMessageReceived, st, nil)
	case *xmpp.Presence:
		s.postStreamEvent(ctx, event.StreamPresenceReceived, st, nil)
	}
}

func (s *Stream) handleIQ(ctx context.Context, iq *xmpp.IQ) {
	if iq.IsResult() || iq.IsError() {
		if !s.correlator.dispatch(iq) {
			log.Debugf("dropped unsolicited iq response... (id: %s)", iq.ID())
		}
		return
	}
	s.mu.RLock()
	handlers := s.iqHandlers
	s.mu.RUnlock()
	for _, h := range handlers {
		if h.MatchesIQ(iq) {
			h.ProcessIQ(ctx, iq)
			return
		}
	}
	// request iq addressed to this client
	if resp := s.respond(iq); resp != nil {
		s.writeElement(ctx, resp)
		return
	}
	s.writeElement(ctx, xmpp.NewErrorStanzaFromStanza(iq, xmpp.ErrServiceUnavailable))
}

func (s *Stream) writeElement(_ context.Context, elem xmpp.XElement) {
	s.sess.Send(elem)
}

func (s *Stream) handleSessionError(ctx context.Context, sErr *session.Error) {
	switch err := sErr.UnderlyingErr.(type) {
	case nil:
		s.disconnect(ctx, nil)
	case *streamerror.StreamError:
		log.Infof("stream error received... (id: %s): %v", s.id, err)
		s.signalReady(err)
		s.disconnect(ctx, err)
	case *xmpp.StanzaError:
		s.writeStanzaErrorResponse(ctx, sErr.Element, err)
	default:
		log.Error(err)
		s.signalReady(err)
		s.disconnect(ctx, err)
	}
}

func (s *Stream) writeStanzaErrorResponse(ctx context.Context, elem xmpp.XElement, stanzaErr *xmpp.StanzaError) {
	resp := xmpp.NewElementFromElement(elem)
	resp.SetType(xmpp.ErrorType)
	resp.SetFrom(elem.To())
	resp.SetTo(elem.From())
	resp.AppendElement(stanzaErr.Element())
	s.writeElement(ctx, resp)
}

func (s *Stream) disconnect(ctx context.Context, err error) {
	if s.getState() == disconnected {
		return
	}
	if s.getState() != closed {
		_ = s.sess.Close()
	}
	s.setState(disconnected)
	if s.tr != nil {
		_ = s.tr.Close()
	}
	// pending responses can never arrive
	s.correlator.clear()
	s.sendQueue = nil

	s.postStreamEvent(ctx, event.StreamDisconnected, nil, err)
	s.signalReady(errors.New("stream disconnected"))

	s.rq.Stop(nil) // stop processing messages
}

func (s *Stream) disconnectWithStreamError(ctx context.Context, err *streamerror.StreamError) {
	s.writeElement(ctx, err.Element())
	s.signalReady(err)
	s.disconnect(ctx, err)
}

func (s *Stream) signalReady(err error) {
	s.readyOnce.Do(func() {
		s.readyCh <- err
	})
}

func (s *Stream) authenticated() bool {
	return s.authr != nil && s.authr.Authenticated()
}

func (s *Stream) postStreamEvent(ctx context.Context, eventName string, stanza xmpp.Stanza, err error) {
	if s.sn == nil {
		return
	}
	_ = s.sn.Post(ctx, sonar.NewEventBuilder(eventName).
		WithInfo(&event.StreamEventInfo{
			ID:     s.id,
			JID:    s.JID(),
			Stanza: stanza,
			Err:    err,
		}).
		Build(),
	)
}

func (s *Stream) setState(state uint32) {
	atomic.StoreUint32(&s.state, state)
}

func (s *Stream) getState() uint32 {
	return atomic.LoadUint32(&s.state)
}

var streamCounter uint64

func nextStreamID() string {
	return fmt.Sprintf("stream:%d", atomic.AddUint64(&streamCounter, 1))
}
