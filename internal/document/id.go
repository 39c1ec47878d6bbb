// Package document implements the DocumentStore: the component that owns
// CRDT documents, persists their change history to a storage.Backend, and
// hands out exclusive, closure-scoped access to callers (the VFS and the
// sync protocol) through a Handle.
package document

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
)

// ID is a document identifier: the hex-encoded SHA-256 of the CBOR-encoded
// genesis tuple (creating peer id, creation time in nanoseconds, and that
// store's creation counter). The document's content is not hashed, so two
// independently created documents never share an ID, even with identical
// content; concurrent creates at the same VFS path leave two entries that
// the VFS tells apart by ID.
type ID string

// ShortID returns the first 8 hex characters of the id, used to
// disambiguate the loser of a concurrent-create tie-break (e.g. renaming
// "notes" to "notes~a1b2c3d4").
func (id ID) ShortID() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}

func (id ID) String() string { return string(id) }

type genesis struct {
	PeerID    string `cbor:"peer_id"`
	Timestamp int64  `cbor:"timestamp"`
	Nonce     uint64 `cbor:"nonce"`
}

// deriveID hashes the genesis tuple that created a document. The nonce
// lets the same peer create two documents in the same nanosecond
// without colliding.
func deriveID(peerID string, timestamp int64, nonce uint64) (ID, error) {
	enc, err := cbor.Marshal(genesis{PeerID: peerID, Timestamp: timestamp, Nonce: nonce})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(enc)
	return ID(hex.EncodeToString(sum[:])), nil
}

// chunkHashOf derives the storage key component for one encoded change,
// making a document's chunk set naturally deduplicate identical retries.
func chunkHashOf(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
