package document

import (
	"context"
	"time"

	"github.com/tonk-sync/tonk/internal/clock"
	"github.com/tonk-sync/tonk/internal/resolver"
)

// Handle is the capability a caller (the VFS, the sync protocol) holds on
// one document. All mutation goes through WithDocument so concurrent
// callers never race on the same document's CRDT state.
type Handle struct {
	store *Store
	doc   *Document
}

// ID returns the handle's document id.
func (h *Handle) ID() ID { return h.doc.ID() }

// Content returns the document's current resolved content.
func (h *Handle) Content() (map[string]interface{}, bool) { return h.doc.Content() }

// Vector returns a copy of the document's current vector clock.
func (h *Handle) Vector() clock.VectorClock { return h.doc.Vector() }

// ChangesSince returns the changes a peer at vector `since` has not yet
// observed, for the sync protocol's Changes message.
func (h *Handle) ChangesSince(since clock.VectorClock) []resolver.Change {
	return h.doc.ChangesSince(since)
}

// Hashes returns the content hash of every change this document holds,
// for the sync protocol's Have message.
func (h *Handle) Hashes() []string { return h.doc.Hashes() }

// ChangesByHash returns the subset of the requested hashes this document
// holds, for answering a Request message.
func (h *Handle) ChangesByHash(hashes []string) []resolver.Change {
	return h.doc.ChangesByHash(hashes)
}

// IntegrateRemote folds a single remote change into this document and
// persists it if new, returning whether it had any effect.
func (h *Handle) IntegrateRemote(ctx context.Context, ch resolver.Change) (bool, error) {
	return h.store.IntegrateRemote(ctx, h.doc.ID(), ch)
}

// WithDocument runs fn with exclusive access to the document, persisting
// and broadcasting any mutation fn performs via the returned update. fn
// returns nil to make no change.
func (h *Handle) WithDocument(ctx context.Context, fn func(content map[string]interface{}) (map[string]interface{}, error)) error {
	current, _ := h.doc.Content()
	updated, err := fn(current)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	h.doc.mu.Lock()
	vec := clock.Increment(h.doc.vectorLocked(), h.store.peerID)
	h.doc.mu.Unlock()

	ch := resolver.Change{
		Op:        resolver.OpUpdate,
		Vector:    vec,
		Timestamp: time.Now().UnixMilli(),
		PeerID:    h.store.peerID,
		Data:      updated,
	}
	h.doc.integrate(ch)
	return h.store.persistChange(ctx, h.doc.ID(), ch)
}

// Delete tombstones the document.
func (h *Handle) Delete(ctx context.Context) error {
	h.doc.mu.Lock()
	vec := clock.Increment(h.doc.vectorLocked(), h.store.peerID)
	h.doc.mu.Unlock()

	ch := resolver.Change{
		Op:        resolver.OpDelete,
		Vector:    vec,
		Timestamp: time.Now().UnixMilli(),
		PeerID:    h.store.peerID,
	}
	h.doc.integrate(ch)
	return h.store.persistChange(ctx, h.doc.ID(), ch)
}

// Changes subscribes to every future update/delete event on the document.
// The caller must invoke cancel when done listening.
func (h *Handle) Changes(buffer int) (<-chan Event, func()) {
	return h.doc.Subscribe(buffer)
}
