package vfs

import (
	"sync"

	"github.com/tonk-sync/tonk/internal/document"
)

// PathIndex memoizes path -> document id resolution so repeated lookups
// under an unchanged subtree skip the tree walk. It is populated lazily:
// a miss simply means "walk the tree and call Put"; it is never an
// error. Entries are invalidated by any structural change to their
// ancestry, not just to the exact path, since a rename or move upstream
// changes what a cached path component used to mean.
type PathIndex struct {
	mu      sync.RWMutex
	forward map[string]document.ID
	reverse map[document.ID]string
}

func NewPathIndex() *PathIndex {
	return &PathIndex{
		forward: make(map[string]document.ID),
		reverse: make(map[document.ID]string),
	}
}

// Lookup returns the cached document id for path, if any.
func (idx *PathIndex) Lookup(p Path) (document.ID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.forward[p.String()]
	return id, ok
}

// Put records that path currently resolves to id.
func (idx *PathIndex) Put(p Path, id document.ID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	key := p.String()
	if old, ok := idx.reverse[id]; ok && old != key {
		delete(idx.forward, old)
	}
	idx.forward[key] = id
	idx.reverse[id] = key
}

// ReversePath returns the cached path for a document id, if any.
func (idx *PathIndex) ReversePath(id document.ID) (Path, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	raw, ok := idx.reverse[id]
	if !ok {
		return Path{}, false
	}
	p, err := ParsePath(raw)
	if err != nil {
		return Path{}, false
	}
	return p, true
}

// Invalidate drops the cache entry for path and for every path beneath
// it, since a structural change at path invalidates whatever children
// thought they knew about their ancestry.
func (idx *PathIndex) Invalidate(p Path) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for key, id := range idx.forward {
		cached, err := ParsePath(key)
		if err != nil {
			continue
		}
		if p.HasPrefix(cached) || cached.HasPrefix(p) {
			delete(idx.forward, key)
			delete(idx.reverse, id)
		}
	}
}

// InvalidateAll clears the entire cache.
func (idx *PathIndex) InvalidateAll() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.forward = make(map[string]document.ID)
	idx.reverse = make(map[document.ID]string)
}
