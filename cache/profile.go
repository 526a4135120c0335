/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package cache

import (
	"context"
	"encoding/json"

	"github.com/dgraph-io/badger"

	"github.com/wisp-im/wisp/event"
)

// Profile is the cached identity tuple of a bare JID.
type Profile struct {
	Name   string `json:"name"`
	Note   string `json:"note"`
	Avatar string `json:"avat"`
}

// SetProfile merges a partial profile update into the stored entry.
// Empty fields leave the stored value unchanged.
func (c *Cache) SetProfile(ctx context.Context, bareJID string, p Profile) error {
	c.mu.Lock()
	cur := c.profiles[bareJID]
	if cur == nil {
		cur = &Profile{}
	}
	merged := *cur
	if len(p.Name) > 0 {
		merged.Name = p.Name
	}
	if len(p.Note) > 0 {
		merged.Note = p.Note
	}
	if len(p.Avatar) > 0 {
		merged.Avatar = p.Avatar
	}
	c.profiles[bareJID] = &merged
	c.mu.Unlock()

	val, err := json.Marshal(&merged)
	if err != nil {
		return err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return c.setVal(profileKey(bareJID), val, txn)
	})
	if err != nil {
		return err
	}
	c.postCacheEvent(ctx, event.CacheProfileUpdated, &event.CacheEventInfo{
		JID:  bareJID,
		Hash: merged.Avatar,
	})
	return nil
}

// Profile retrieves the stored profile of a bare JID, or nil when
// none is present.
func (c *Cache) Profile(bareJID string) (*Profile, error) {
	c.mu.RLock()
	if p, ok := c.profiles[bareJID]; ok {
		cp := *p
		c.mu.RUnlock()
		return &cp, nil
	}
	c.mu.RUnlock()

	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		v, err := c.getVal(profileKey(bareJID), txn)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, nil
	}
	var p Profile
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.profiles[bareJID] = &p
	c.mu.Unlock()

	cp := p
	return &cp, nil
}

func profileKey(bareJID string) []byte {
	return []byte("profiles:" + bareJID)
}
