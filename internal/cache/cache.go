// Package cache holds the currently published leaderboard snapshot.
//
// Readers call Current and keep using the returned snapshot for the whole
// request; a concurrent Publish never changes a snapshot a reader already
// holds. Both operations are single atomic pointer operations and never block.
package cache

import (
	"sync/atomic"

	"github.com/panorama-game/rating-server/internal/ranking"
)

// Cache stores the current snapshot.
// The zero value is not usable; create caches with New.
type Cache struct {
	current atomic.Pointer[ranking.Snapshot]
	version atomic.Uint64
}

// New creates a cache holding an empty, unpublished snapshot
func New() *Cache {
	c := &Cache{}
	c.current.Store(ranking.Empty())
	return c
}

// Publish installs snap as the current snapshot and returns the version it was assigned.
// Publish must only be called from a single writer; versions are strictly increasing.
func (c *Cache) Publish(snap *ranking.Snapshot) uint64 {
	if snap == nil {
		snap = ranking.Empty()
	}
	v := c.version.Add(1)
	c.current.Store(snap.WithVersion(v))
	return v
}

// Current returns the snapshot valid at call time
func (c *Cache) Current() *ranking.Snapshot {
	return c.current.Load()
}

// Published reports whether at least one snapshot has been published
func (c *Cache) Published() bool {
	return c.Current().Version() > 0
}
