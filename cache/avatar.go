/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	"github.com/dgraph-io/badger"

	"github.com/wisp-im/wisp/event"
)

// PutAvatar stores an avatar blob under its content hash, returning
// the hash. Storing the same blob twice yields the same key.
func (c *Cache) PutAvatar(ctx context.Context, blob []byte) (string, error) {
	hash := avatarHash(blob)

	c.mu.Lock()
	_, known := c.avatars[hash]
	if !known {
		c.avatars[hash] = append([]byte(nil), blob...)
	}
	c.mu.Unlock()
	if known {
		return hash, nil
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return c.setVal(avatarKey(hash), blob, txn)
	})
	if err != nil {
		return "", err
	}
	c.postCacheEvent(ctx, event.CacheAvatarUpdated, &event.CacheEventInfo{Hash: hash})
	return hash, nil
}

// Avatar retrieves an avatar blob by content hash, or nil when absent.
func (c *Cache) Avatar(hash string) ([]byte, error) {
	c.mu.RLock()
	if blob, ok := c.avatars[hash]; ok {
		c.mu.RUnlock()
		return append([]byte(nil), blob...), nil
	}
	c.mu.RUnlock()

	var blob []byte
	err := c.db.View(func(txn *badger.Txn) error {
		val, err := c.getVal(avatarKey(hash), txn)
		if err != nil {
			return err
		}
		blob = val
		return nil
	})
	if err != nil {
		return nil, err
	}
	if blob != nil {
		c.mu.Lock()
		c.avatars[hash] = append([]byte(nil), blob...)
		c.mu.Unlock()
	}
	return blob, nil
}

// PlaceholderAvatar returns the hash of a deterministic placeholder
// avatar derived from seed, generating and storing it on first use.
// The same seed always resolves to the same stored blob.
func (c *Cache) PlaceholderAvatar(ctx context.Context, seed string) (string, error) {
	blob, err := renderPlaceholder(seed)
	if err != nil {
		return "", err
	}
	return c.PutAvatar(ctx, blob)
}

func avatarHash(blob []byte) string {
	h := sha1.Sum(blob)
	return hex.EncodeToString(h[:])
}

func avatarKey(hash string) []byte {
	return []byte("avatars:" + hash)
}
