/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/jackal-xmpp/sonar"

	"github.com/wisp-im/wisp/event"
)

// Config contains cache configuration.
type Config struct {
	// DataDir is the directory the durable store lives in.
	DataDir string
}

// Cache is the durable profile and avatar store with an in-memory
// write-through front.
type Cache struct {
	db *badger.DB
	sn *sonar.Sonar

	mu       sync.RWMutex
	avatars  map[string][]byte
	profiles map[string]*Profile
}

// New returns an initialized cache instance backed by the given
// data directory.
func New(cfg Config, sn *sonar.Sonar) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DataDir), os.ModePerm); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(cfg.DataDir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{
		db:       db,
		sn:       sn,
		avatars:  make(map[string][]byte),
		profiles: make(map[string]*Profile),
	}, nil
}

// Close releases the underlying store.
func (c *Cache) Close(_ context.Context) error {
	return c.db.Close()
}

// getVal looks for key returning its value, or nil when absent.
func (c *Cache) getVal(key []byte, txn *badger.Txn) ([]byte, error) {
	item, err := txn.Get(key)
	switch err {
	case nil:
		break
	case badger.ErrKeyNotFound:
		return nil, nil
	default:
		return nil, err
	}
	return item.ValueCopy(nil)
}

// setVal adds a key-value pair to the store.
func (c *Cache) setVal(key, bts []byte, txn *badger.Txn) error {
	val := make([]byte, len(bts))
	copy(val, bts)
	return txn.Set(key, val)
}

func (c *Cache) postCacheEvent(ctx context.Context, eventName string, inf *event.CacheEventInfo) {
	if c.sn == nil {
		return
	}
	_ = c.sn.Post(ctx, sonar.NewEventBuilder(eventName).WithInfo(inf).Build())
}
