/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package archive

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jackal-xmpp/runqueue"
	"github.com/jackal-xmpp/sonar"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/wisp-im/wisp/event"
	"github.com/wisp-im/wisp/log"
	"github.com/wisp-im/wisp/stream"
	"github.com/wisp-im/wisp/xmpp"
	"github.com/wisp-im/wisp/xmpp/jid"
)

const (
	mamNamespace     = "urn:xmpp:mam:2"
	rsmNamespace     = "http://jabber.org/protocol/rsm"
	forwardNamespace = "urn:xmpp:forward:0"

	dataFormsNamespace = "jabber:x:data"
)

var (
	// ErrQueryInFlight is returned when a query is requested while a
	// previous one has not yet completed.
	ErrQueryInFlight = errors.New("archive: query already in flight")

	// ErrArchiveInconsistent is logged when a server reply does not
	// match the buffered page contents.
	ErrArchiveInconsistent = errors.New("archive: inconsistent page bounds")
)

const (
	idle uint32 = iota
	inFlight
)

// Stream defines the stream operations the archive relies on.
type Stream interface {
	// JID returns the stream bound JID.
	JID() *jid.JID

	// SendElement writes an element to the stream.
	SendElement(ctx context.Context, elem xmpp.XElement)

	// SendIQ writes a request iq registering a response handler.
	SendIQ(ctx context.Context, iq *xmpp.IQ, hnd stream.ResultHandler) error
}

// Config contains archive configurable limits.
type Config struct {
	// WindowSize is the maximum number of messages kept per peer.
	WindowSize int

	// PageSize is the number of messages requested per archive page.
	PageSize int
}

// Archive reconciles per peer local history windows against the server
// side message archive.
type Archive struct {
	cfg Config
	stm Stream
	sn  *sonar.Sonar
	rq  *runqueue.RunQueue

	subs []sonar.SubID

	mu      sync.RWMutex
	windows map[string][]*Item
	begun   map[string]bool

	// single in-flight query, released when its fin arrives
	qState uint32
	qPeer  string
	qID    string
	page   []*Item
}

// New returns an initialized archive instance.
func New(stm Stream, sn *sonar.Sonar, cfg Config) *Archive {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 50
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 20
	}
	return &Archive{
		cfg:     cfg,
		stm:     stm,
		sn:      sn,
		rq:      runqueue.New("archive", log.Errorf),
		windows: make(map[string][]*Item),
		begun:   make(map[string]bool),
	}
}

// Start subscribes the archive to stream traffic.
func (a *Archive) Start(_ context.Context) {
	a.subs = append(a.subs, a.sn.Subscribe(event.StreamMessageReceived, a.onMessageRecv))
	a.subs = append(a.subs, a.sn.Subscribe(event.StreamDisconnected, a.onDisconnect))
}

// Stop detaches the archive from stream traffic.
func (a *Archive) Stop(_ context.Context) {
	for _, sub := range a.subs {
		a.sn.Unsubscribe(sub)
	}
	c := make(chan struct{})
	a.rq.Stop(func() { close(c) })
	<-c
}

// History returns a snapshot of the peer history window, ordered from
// oldest to newest.
func (a *Archive) History(peer *jid.JID) []Item {
	a.mu.RLock()
	defer a.mu.RUnlock()
	win := a.windows[peer.ToBareJID().String()]
	ret := make([]Item, 0, len(win))
	for _, it := range win {
		ret = append(ret, *it)
	}
	return ret
}

// BeginningReached tells whether the peer history window is known to
// extend back to the start of the server archive.
func (a *Archive) BeginningReached(peer *jid.JID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.begun[peer.ToBareJID().String()]
}

// Query requests an archive page for the given peer. Pass a non empty
// before cursor to page backwards from it, an empty one to fetch the
// most recent page. Only one query may be in flight at a time.
func (a *Archive) Query(ctx context.Context, peer *jid.JID, before string) error {
	bare := peer.ToBareJID().String()

	a.mu.Lock()
	if a.qState == inFlight {
		a.mu.Unlock()
		return ErrQueryInFlight
	}
	a.qState = inFlight
	a.qPeer = bare
	a.qID = uuid.New()
	a.page = nil
	queryID := a.qID
	a.mu.Unlock()

	iq := xmpp.NewIQType("", xmpp.SetType)
	query := xmpp.NewElementNamespace("query", mamNamespace)
	query.SetAttribute("queryid", queryID)

	form := xmpp.NewElementNamespace("x", dataFormsNamespace)
	form.SetAttribute("type", "submit")
	formType := xmpp.NewElementName("field")
	formType.SetAttribute("var", "FORM_TYPE")
	formType.SetAttribute("type", "hidden")
	formType.AppendElement(xmpp.NewElementName("value").SetText(mamNamespace))
	form.AppendElement(formType)
	with := xmpp.NewElementName("field")
	with.SetAttribute("var", "with")
	with.AppendElement(xmpp.NewElementName("value").SetText(bare))
	form.AppendElement(with)
	query.AppendElement(form)

	set := xmpp.NewElementNamespace("set", rsmNamespace)
	set.AppendElement(xmpp.NewElementName("max").SetText(strconv.Itoa(a.cfg.PageSize)))
	// an empty before pages backwards from the archive end
	set.AppendElement(xmpp.NewElementName("before").SetText(before))
	query.AppendElement(set)

	iq.AppendElement(query)

	err := a.stm.SendIQ(ctx, iq, func(result *xmpp.IQ) {
		a.rq.Run(func() {
			a.processFin(context.Background(), queryID, result)
		})
	})
	if err != nil {
		a.releaseQuery()
	}
	return err
}

func (a *Archive) onMessageRecv(ctx context.Context, ev sonar.Event) error {
	inf := ev.Info().(*event.StreamEventInfo)
	msg, ok := inf.Stanza.(*xmpp.Message)
	if !ok || msg.IsGroupChat() {
		return nil
	}
	a.rq.Run(func() {
		a.processMessage(ctx, msg)
	})
	return nil
}

func (a *Archive) onDisconnect(_ context.Context, _ sonar.Event) error {
	a.rq.Run(func() {
		a.releaseQuery()
	})
	return nil
}

func (a *Archive) processMessage(ctx context.Context, msg *xmpp.Message) {
	if result := msg.Elements().ChildNamespace("result", mamNamespace); result != nil {
		a.bufferResult(result)
		return
	}
	if receiptID := msg.ReceiptID(); len(receiptID) > 0 {
		a.ackReceipt(ctx, msg.FromJID(), receiptID)
		return
	}
	if len(msg.Body()) == 0 {
		return
	}
	a.appendLive(ctx, msg)
}

// bufferResult stacks one forwarded archive message until the matching
// fin arrives.
func (a *Archive) bufferResult(result xmpp.XElement) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.qState != inFlight || result.Attributes().Get("queryid") != a.qID {
		return
	}
	fwd := result.Elements().ChildNamespace("forwarded", forwardNamespace)
	if fwd == nil {
		return
	}
	msgElem := fwd.Elements().Child("message")
	if msgElem == nil {
		return
	}
	from, err := jid.NewWithString(msgElem.Attributes().Get("from"), true)
	if err != nil {
		log.Error(err)
		return
	}
	stamp := time.Now()
	if delay := fwd.Elements().ChildNamespace("delay", xmpp.DelayNamespace); delay != nil {
		if t, err := time.Parse(time.RFC3339, delay.Attributes().Get("stamp")); err == nil {
			stamp = t
		}
	}
	var body string
	if b := msgElem.Elements().Child("body"); b != nil {
		body = b.Text()
	}
	a.page = append(a.page, &Item{
		ID:        result.Attributes().Get("id"),
		From:      from,
		Body:      body,
		Timestamp: stamp,
		Sent:      from.ToBareJID().String() == a.stm.JID().ToBareJID().String(),
	})
}

// processFin slices the buffered page between the reported first and
// last ids and merges the batch into the peer window.
func (a *Archive) processFin(ctx context.Context, queryID string, result *xmpp.IQ) {
	a.mu.Lock()
	if a.qState != inFlight || a.qID != queryID {
		a.mu.Unlock()
		return
	}
	peer := a.qPeer
	page := a.page
	a.qState = idle
	a.qPeer = ""
	a.qID = ""
	a.page = nil

	if !result.IsResult() {
		a.mu.Unlock()
		log.Infof("archive query failed... (peer: %s)", peer)
		return
	}
	fin := result.Elements().ChildNamespace("fin", mamNamespace)
	if fin == nil {
		a.mu.Unlock()
		return
	}
	complete := fin.Attributes().Get("complete") == "true"

	batch := page
	if set := fin.Elements().ChildNamespace("set", rsmNamespace); set != nil {
		first, last := set.Elements().Child("first"), set.Elements().Child("last")
		if first != nil && last != nil {
			lo, hi := -1, -1
			for i, it := range page {
				if it.ID == first.Text() {
					lo = i
				}
				if it.ID == last.Text() {
					hi = i
				}
			}
			switch {
			case lo == -1 || hi == -1 || lo > hi:
				log.Error(errors.Wrapf(ErrArchiveInconsistent, "peer: %s", peer))
			default:
				batch = page[lo : hi+1]
			}
		}
	}
	win := a.windows[peer]
	merged, inserted, _ := mergeWindow(win, batch, a.cfg.WindowSize)
	a.windows[peer] = merged

	// with everything already known, matching bounds mean the start of
	// the archive history was reached
	if complete && inserted == 0 && len(batch) > 0 && len(merged) > 0 && batch[0].ID == merged[0].ID {
		a.begun[peer] = true
	}
	if complete && len(batch) == 0 {
		a.begun[peer] = true
	}
	a.mu.Unlock()

	peerJID, err := jid.NewWithString(peer, true)
	if err != nil {
		log.Error(err)
		return
	}
	a.postArchiveEvent(ctx, event.ArchiveSynced, &event.ArchiveEventInfo{
		JID:      peerJID,
		Merged:   inserted,
		Complete: complete,
	})
}

// appendLive appends a live chat message to the peer window, answering
// its delivery receipt request when one is present.
func (a *Archive) appendLive(ctx context.Context, msg *xmpp.Message) {
	peer := msg.FromJID().ToBareJID()
	stamp := time.Now()
	if t, ok := msg.Delay(); ok {
		stamp = t
	}
	it := &Item{
		ID:        msg.ID(),
		From:      msg.FromJID(),
		Body:      msg.Body(),
		Timestamp: stamp,
	}
	a.mu.Lock()
	win, inserted, _ := mergeWindow(a.windows[peer.String()], []*Item{it}, a.cfg.WindowSize)
	a.windows[peer.String()] = win
	a.mu.Unlock()

	if msg.RequestsReceipt() {
		received := xmpp.NewMessageType(uuid.New(), xmpp.ChatType)
		received.SetTo(peer.String())
		rc := xmpp.NewElementNamespace("received", xmpp.ReceiptsNamespace)
		rc.SetAttribute("id", msg.ID())
		received.AppendElement(rc)
		a.stm.SendElement(ctx, received)
	}
	if inserted > 0 {
		a.postArchiveEvent(ctx, event.ArchiveMessageAdded, &event.ArchiveEventInfo{
			JID:       peer,
			MessageID: it.ID,
		})
	}
}

// TrackSent appends a message of ours to the peer window so history
// stays consistent before the next reconciliation.
func (a *Archive) TrackSent(ctx context.Context, peer *jid.JID, messageID, body string) {
	a.rq.Run(func() {
		bare := peer.ToBareJID()
		it := &Item{
			ID:        messageID,
			From:      a.stm.JID().ToBareJID(),
			Body:      body,
			Timestamp: time.Now(),
			Sent:      true,
		}
		a.mu.Lock()
		win, inserted, _ := mergeWindow(a.windows[bare.String()], []*Item{it}, a.cfg.WindowSize)
		a.windows[bare.String()] = win
		a.mu.Unlock()

		if inserted > 0 {
			a.postArchiveEvent(ctx, event.ArchiveMessageAdded, &event.ArchiveEventInfo{
				JID:       bare,
				MessageID: messageID,
			})
		}
	})
}

func (a *Archive) ackReceipt(ctx context.Context, from *jid.JID, receiptID string) {
	bare := from.ToBareJID()

	a.mu.Lock()
	var acked bool
	for _, it := range a.windows[bare.String()] {
		if it.ID == receiptID && !it.Acked {
			it.Acked = true
			acked = true
			break
		}
	}
	a.mu.Unlock()

	if acked {
		a.postArchiveEvent(ctx, event.ArchiveReceiptReceived, &event.ArchiveEventInfo{
			JID:       bare,
			MessageID: receiptID,
		})
	}
}

func (a *Archive) releaseQuery() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.qState = idle
	a.qPeer = ""
	a.qID = ""
	a.page = nil
}

func (a *Archive) postArchiveEvent(ctx context.Context, eventName string, inf *event.ArchiveEventInfo) {
	if a.sn == nil {
		return
	}
	_ = a.sn.Post(ctx, sonar.NewEventBuilder(eventName).WithInfo(inf).Build())
}
