/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package event

const (
	// CacheAvatarUpdated event is posted when an avatar is stored or replaced.
	CacheAvatarUpdated = "cache.avatar.updated"

	// CacheProfileUpdated event is posted when a profile entry is merged.
	CacheProfileUpdated = "cache.profile.updated"
)

// CacheEventInfo contains all info associated to a cache event.
type CacheEventInfo struct {
	// JID is the bare JID string the cache entry belongs to.
	JID string

	// Hash is the content hash of the stored avatar, when any.
	Hash string
}
