package main

import (
	"crypto/sha1"
	"sync"

	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/localfiles"
)

// localCatalog mints a stable ItemId for every local file the watcher
// discovers (localfiles.TrackInfo carries no id of its own) and answers
// player.Config.LocalTracks lookups against what it has seen so far.
type localCatalog struct {
	mu   sync.Mutex
	byID map[ids.ItemId]localfiles.TrackInfo
}

func newLocalCatalog() *localCatalog {
	return &localCatalog{byID: make(map[ids.ItemId]localfiles.TrackInfo)}
}

// idFor derives a deterministic ItemId from the track's filesystem path, so
// the same file maps to the same id across a run.
func idFor(info localfiles.TrackInfo) ids.ItemId {
	sum := sha1.Sum([]byte(info.Path))
	return ids.NewItemId(ids.ItemKindLocalFile, sum[:])
}

func (c *localCatalog) observe(info localfiles.TrackInfo) ids.ItemId {
	id := idFor(info)
	c.mu.Lock()
	c.byID[id] = info
	c.mu.Unlock()
	return id
}

func (c *localCatalog) lookup(id ids.ItemId) (localfiles.TrackInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.byID[id]
	return info, ok
}
