package document

import (
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/tonk-sync/tonk/internal/clock"
	"github.com/tonk-sync/tonk/internal/resolver"
)

// EventKind classifies a change notification delivered to a Changes
// subscriber.
type EventKind int

const (
	EventUpdated EventKind = iota
	EventDeleted
	// EventLagged is sent in place of a dropped update when a subscriber's
	// channel was full, so it knows to treat its view as stale rather than
	// silently miss a change. It carries no Content.
	EventLagged
)

// Event is broadcast to every subscriber of a document each time a local
// or remote change is integrated.
type Event struct {
	Kind    EventKind
	Content map[string]interface{}
}

// IsLagged reports whether ev is the EventLagged sentinel.
func (ev Event) IsLagged() bool { return ev.Kind == EventLagged }

// loggedChange pairs a change with the content hash it was persisted
// under, so the sync protocol can diff Have sets by hash without
// re-encoding every change on every handshake.
type loggedChange struct {
	hash   string
	change resolver.Change
}

// Document is one CRDT-backed document: its current resolved content plus
// the change log needed to replay it and to answer "what have I not seen
// yet" during sync.
type Document struct {
	mu sync.Mutex

	id      ID
	version *resolver.Versioned
	log     []loggedChange

	subsMu sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func newDocument(id ID) *Document {
	return &Document{
		id:   id,
		subs: make(map[int]chan Event),
	}
}

// ID returns the document's identifier.
func (d *Document) ID() ID { return d.id }

// Content returns a snapshot of the document's currently resolved
// content. Returns (nil, false) for a document that is empty or
// tombstoned.
func (d *Document) Content() (map[string]interface{}, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.version == nil || d.version.Deleted {
		return nil, false
	}
	out := make(map[string]interface{}, len(d.version.Content))
	for k, v := range d.version.Content {
		out[k] = v
	}
	return out, true
}

// Vector returns a copy of the document's current vector clock.
func (d *Document) Vector() clock.VectorClock {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vectorLocked()
}

// vectorLocked returns the document's current vector clock. Callers must
// already hold d.mu.
func (d *Document) vectorLocked() clock.VectorClock {
	if d.version == nil {
		return clock.NewVectorClock()
	}
	return clock.Clone(d.version.Vector)
}

// ChangesSince returns every logged change whose contribution to the
// document's vector clock is not yet reflected in since — the set a sync
// peer needs to catch up.
func (d *Document) ChangesSince(since clock.VectorClock) []resolver.Change {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []resolver.Change
	for _, lc := range d.log {
		remoteSeq, ok := since[lc.change.PeerID]
		if !ok {
			remoteSeq = 0
		}
		if lc.change.Vector[lc.change.PeerID] > remoteSeq {
			out = append(out, lc.change)
		}
	}
	return out
}

// Hashes returns the content hash of every change this document has
// durably integrated, for the sync protocol's Have message.
func (d *Document) Hashes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.log))
	for i, lc := range d.log {
		out[i] = lc.hash
	}
	return out
}

// ChangesByHash returns the subset of the requested hashes this document
// holds, for answering a Request message. Hashes it does not have are
// silently omitted.
func (d *Document) ChangesByHash(hashes []string) []resolver.Change {
	want := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		want[h] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var out []resolver.Change
	for _, lc := range d.log {
		if _, ok := want[lc.hash]; ok {
			out = append(out, lc.change)
		}
	}
	return out
}

// integrate folds ch into the document's resolved state, appends it to
// the replay log under its content hash, and broadcasts an Event if it
// had any effect. Returns whether the change was new (not already
// observed) and the hash it was logged under.
func (d *Document) integrate(ch resolver.Change) (applied bool, hash string) {
	encoded, err := cbor.Marshal(ch)
	if err != nil {
		return false, ""
	}
	hash = chunkHashOf(encoded)

	d.mu.Lock()
	var beforeVector clock.VectorClock
	if d.version != nil {
		beforeVector = d.version.Vector
	}
	d.version = resolver.Apply(d.version, ch)
	applied = d.version != nil && clock.Compare(beforeVector, d.version.Vector) != clock.Equal
	if applied {
		d.log = append(d.log, loggedChange{hash: hash, change: ch})
	}
	v := d.version
	d.mu.Unlock()

	if !applied {
		return false, hash
	}
	if v == nil {
		return true, hash
	}
	if v.Deleted {
		d.broadcast(Event{Kind: EventDeleted})
	} else {
		content := make(map[string]interface{}, len(v.Content))
		for k, val := range v.Content {
			content[k] = val
		}
		d.broadcast(Event{Kind: EventUpdated, Content: content})
	}
	return true, hash
}

// broadcast never blocks integration on a slow subscriber: when a
// subscriber's channel is full, its oldest queued event is discarded and
// an EventLagged marker is queued instead of ev, so the subscriber is
// told it missed an update rather than left to assume it saw everything.
func (d *Document) broadcast(ev Event) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- Event{Kind: EventLagged}:
			default:
				// Unbuffered channel with no receiver waiting.
			}
		}
	}
}

// Subscribe registers a channel that receives every future Event. The
// returned cancel function must be called to stop receiving and release
// the channel.
func (d *Document) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	d.subsMu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = ch
	d.subsMu.Unlock()

	cancel := func() {
		d.subsMu.Lock()
		delete(d.subs, id)
		d.subsMu.Unlock()
		close(ch)
	}
	return ch, cancel
}
