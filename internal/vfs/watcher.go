package vfs

import "github.com/tonk-sync/tonk/internal/document"

// Watcher is bound to a document, not a path: moving the document
// elsewhere in the tree does not disrupt an open watch on it.
type Watcher struct {
	handle *document.Handle
	events <-chan document.Event
	cancel func()
}

// NewWatcher subscribes to h's future changes.
func NewWatcher(h *document.Handle) *Watcher {
	events, cancel := h.Changes(32)
	return &Watcher{handle: h, events: events, cancel: cancel}
}

// DocumentID returns the id of the watched document.
func (w *Watcher) DocumentID() document.ID { return w.handle.ID() }

// Next blocks for the next integrated change, local or remote. ok is
// false once the watcher has been closed and every buffered event
// drained.
func (w *Watcher) Next() (document.Event, bool) {
	ev, ok := <-w.events
	return ev, ok
}

// Close ends the watcher's event sequence.
func (w *Watcher) Close() {
	w.cancel()
}
