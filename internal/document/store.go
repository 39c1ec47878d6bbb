package document

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/tonk-sync/tonk/internal/clock"
	"github.com/tonk-sync/tonk/internal/resolver"
	"github.com/tonk-sync/tonk/internal/storage"
)

// Store owns every document a peer holds, persisting each change to a
// storage.Backend under the key [docID, chunkHash] and reconstructing a
// document's state by replaying its chunks on first access.
type Store struct {
	backend storage.Backend
	peerID  string

	mu    sync.Mutex
	docs  map[ID]*Document
	nonce uint64
}

// NewStore returns a Store backed by backend. peerID identifies this
// store's owner in every change it originates, and is the key vector
// clocks are incremented under.
func NewStore(backend storage.Backend, peerID string) *Store {
	return &Store{
		backend: backend,
		peerID:  peerID,
		docs:    make(map[ID]*Document),
	}
}

// Create creates a new document seeded with the given content, persists
// its genesis change, and returns a Handle for it.
func (s *Store) Create(ctx context.Context, content map[string]interface{}) (*Handle, error) {
	s.mu.Lock()
	nonce := s.nonce
	s.nonce++
	s.mu.Unlock()

	now := time.Now()
	id, err := deriveID(s.peerID, now.UnixNano(), nonce)
	if err != nil {
		return nil, fmt.Errorf("document: derive id: %w", err)
	}

	doc := newDocument(id)
	ch := resolver.Change{
		Op:        resolver.OpInsert,
		Vector:    clock.Increment(clock.NewVectorClock(), s.peerID),
		Timestamp: now.UnixMilli(),
		PeerID:    s.peerID,
		Data:      content,
	}
	doc.integrate(ch)

	if err := s.persistChange(ctx, id, ch); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.docs[id] = doc
	s.mu.Unlock()

	return &Handle{store: s, doc: doc}, nil
}

// Find returns a Handle for an already-known document, loading and
// replaying it from the backend if it is not yet resident in memory.
func (s *Store) Find(ctx context.Context, id ID) (*Handle, bool, error) {
	s.mu.Lock()
	doc, ok := s.docs[id]
	s.mu.Unlock()
	if ok {
		return &Handle{store: s, doc: doc}, true, nil
	}

	entries, err := s.backend.ListPrefix(ctx, storage.Key{string(id)})
	if err != nil {
		return nil, false, fmt.Errorf("document: load %s: %w", id, err)
	}
	if len(entries) == 0 {
		return nil, false, nil
	}

	doc = newDocument(id)
	for _, e := range entries {
		var ch resolver.Change
		if err := cbor.Unmarshal(e.Value, &ch); err != nil {
			return nil, false, fmt.Errorf("document: decode chunk %s: %w", e.Key, err)
		}
		doc.integrate(ch)
	}

	s.mu.Lock()
	if existing, ok := s.docs[id]; ok {
		doc = existing
	} else {
		s.docs[id] = doc
	}
	s.mu.Unlock()

	return &Handle{store: s, doc: doc}, true, nil
}

// IntegrateRemote folds a change received from a sync peer into the named
// document, creating it locally if this is the first we've heard of it.
// Integration is idempotent: re-delivering an already-observed change is
// a no-op. Returns whether the change had any effect.
func (s *Store) IntegrateRemote(ctx context.Context, id ID, ch resolver.Change) (bool, error) {
	s.mu.Lock()
	doc, ok := s.docs[id]
	if !ok {
		doc = newDocument(id)
		s.docs[id] = doc
	}
	s.mu.Unlock()

	applied, _ := doc.integrate(ch)
	if !applied {
		return false, nil
	}
	if err := s.persistChange(ctx, id, ch); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) persistChange(ctx context.Context, id ID, ch resolver.Change) error {
	enc, err := cbor.Marshal(ch)
	if err != nil {
		return fmt.Errorf("document: encode change: %w", err)
	}
	chunkHash := chunkHashOf(enc)
	key := storage.Key{string(id), chunkHash}
	if err := s.backend.Put(ctx, key, enc); err != nil {
		return fmt.Errorf("document: persist chunk: %w", err)
	}
	return nil
}

// PeerID returns the identity this store attributes to locally-originated
// changes.
func (s *Store) PeerID() string { return s.peerID }

// KnownIDs returns the ids of every document currently resident in
// memory, for peers that want to sync everything rather than a declared
// Interest set.
func (s *Store) KnownIDs() []ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ID, 0, len(s.docs))
	for id := range s.docs {
		out = append(out, id)
	}
	return out
}
