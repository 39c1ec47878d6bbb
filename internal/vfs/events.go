package vfs

import "sync"

// EventKind enumerates the structural changes the VFS broadcasts.
type EventKind int

const (
	EventCreated EventKind = iota
	EventModified
	EventRemoved
	EventMoved
)

// VfsEvent is published whenever a path's structure or a document's
// content changes. Late subscribers miss events published before they
// subscribed.
type VfsEvent struct {
	Kind EventKind
	Path Path
	ID   string

	// From is set only for EventMoved, carrying the path a node moved
	// from.
	From Path
}

// eventSub is a bounded subscriber channel. Structural events never drop
// silently: when the channel is full, its oldest queued event is
// discarded and a Lagged marker (Kind -1, ID "") is queued instead, so
// the caller knows it must resynchronize rather than trust its event
// stream. document.Document applies the same pattern to
// per-document content events via EventLagged.
type eventSub struct {
	ch chan VfsEvent
}

type eventBus struct {
	mu     sync.Mutex
	subs   map[int]*eventSub
	nextID int
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]*eventSub)}
}

func (b *eventBus) subscribe(buffer int) (<-chan VfsEvent, func()) {
	sub := &eventSub{ch: make(chan VfsEvent, buffer)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(sub.ch)
	}
	return sub.ch, cancel
}

func (b *eventBus) publish(ev VfsEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- Lagged():
			default:
				// Unbuffered channel with no receiver waiting.
			}
		}
	}
}

// Lagged is the sentinel event sent to a subscriber whose channel was
// full, signalling it missed one or more events and should treat its
// view of the tree as stale.
func Lagged() VfsEvent { return VfsEvent{Kind: -1} }

// IsLagged reports whether ev is the Lagged sentinel.
func (ev VfsEvent) IsLagged() bool { return ev.Kind == -1 }
