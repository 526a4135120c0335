/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package stream

import (
	"sync"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/wisp-im/wisp/xmpp"
)

// ResultHandler is invoked exactly once with the iq response matching
// a tracked request identifier.
type ResultHandler func(result *xmpp.IQ)

var errDuplicateID = errors.New("correlator: request identifier already in flight")

// correlator matches iq responses to their originating requests by
// stanza identifier.
type correlator struct {
	mu      sync.Mutex
	pending map[string]ResultHandler
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]ResultHandler)}
}

// track registers a response handler for the given request iq,
// assigning a fresh identifier when the request carries none.
func (c *correlator) track(iq *xmpp.IQ, hnd ResultHandler) error {
	if len(iq.ID()) == 0 {
		iq.SetID(uuid.New())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[iq.ID()]; ok {
		return errDuplicateID
	}
	c.pending[iq.ID()] = hnd
	return nil
}

// dispatch routes a response iq to its tracked handler. It reports
// whether the response was consumed. Handlers fire at most once.
func (c *correlator) dispatch(iq *xmpp.IQ) bool {
	c.mu.Lock()
	hnd, ok := c.pending[iq.ID()]
	if ok {
		delete(c.pending, iq.ID())
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if hnd != nil {
		hnd(iq)
	}
	return true
}

// clear drops all pending handlers without invoking them. Used on
// disconnection, when no response can arrive anymore.
func (c *correlator) clear() {
	c.mu.Lock()
	c.pending = make(map[string]ResultHandler)
	c.mu.Unlock()
}

// size returns the number of in-flight requests.
func (c *correlator) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
