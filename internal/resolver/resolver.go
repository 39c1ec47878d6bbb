// Package resolver implements the CRDT merge rule shared by every document
// in the store: last-writer-wins per field, with vector-clock causality
// deciding who the "last writer" is and a deterministic tie-break for
// truly concurrent changes.
package resolver

import (
	"github.com/tonk-sync/tonk/internal/clock"
)

// ChangeOp enumerates the operations a Change can carry.
type ChangeOp int

const (
	OpInsert ChangeOp = iota
	OpUpdate
	OpDelete
)

// Change is one causal unit of work applied to a document's content.
type Change struct {
	Op        ChangeOp
	Vector    clock.VectorClock
	Timestamp int64
	PeerID    string
	Data      map[string]interface{} // nil for OpDelete
}

// Versioned is the merge-relevant projection of a document: its content
// plus the CRDT metadata needed to order it against another version.
type Versioned struct {
	Content   map[string]interface{}
	Vector    clock.VectorClock
	Timestamp int64
	PeerID    string
	Deleted   bool
}

// Apply folds a single incoming Change into doc (nil if the document does
// not yet exist locally), returning the resulting version. A Change whose
// vector clock is already dominated by doc's (i.e. already observed) is a
// no-op, making integration idempotent under duplicate delivery.
func Apply(doc *Versioned, ch Change) *Versioned {
	switch ch.Op {
	case OpInsert, OpUpdate:
		if doc == nil {
			if ch.Data == nil {
				return nil
			}
			content := make(map[string]interface{}, len(ch.Data))
			for k, v := range ch.Data {
				content[k] = v
			}
			return &Versioned{
				Content:   content,
				Vector:    clock.Clone(ch.Vector),
				Timestamp: ch.Timestamp,
				PeerID:    ch.PeerID,
			}
		}

		if !clock.HappensBefore(ch.Vector, doc.Vector) {
			if doc.Content == nil {
				doc.Content = make(map[string]interface{})
			}
			for k, v := range ch.Data {
				doc.Content[k] = v
			}
			doc.Vector = clock.Merge(doc.Vector, ch.Vector)
			if ch.Timestamp > doc.Timestamp {
				doc.Timestamp = ch.Timestamp
			}
		}
		return doc

	case OpDelete:
		if doc == nil {
			return nil
		}
		if !clock.HappensBefore(ch.Vector, doc.Vector) {
			doc.Deleted = true
			doc.Vector = clock.Merge(doc.Vector, ch.Vector)
			if ch.Timestamp > doc.Timestamp {
				doc.Timestamp = ch.Timestamp
			}
		}
		return doc

	default:
		return doc
	}
}
