package storage

import (
	"context"
	"fmt"

	"github.com/tonk-sync/tonk/internal/crypto/pqc"
)

// EncryptedBackend wraps another Backend, routing every value through a
// pqc.EncryptionManager before it reaches the inner backend: each Put
// produces a Kyber768-encrypted, Dilithium-signed envelope under the
// manager's master key, and each Get verifies that signature before
// decrypting. Keys (and thus prefix structure) are untouched, so
// ListPrefix and Delete still address the same entries; only the bytes
// at rest differ.
type EncryptedBackend struct {
	inner Backend
	mgr   *pqc.EncryptionManager
	keyID string
}

// NewEncryptedBackend wraps inner so every Put/Get round-trips its value
// through keyPair via an EncryptionManager holding it as the master key.
// keyPair must carry both a public and a private Kyber key, plus a
// Dilithium key pair for the manager's per-value integrity signature.
func NewEncryptedBackend(inner Backend, keyPair *pqc.PQCKeyPair) *EncryptedBackend {
	mgr := pqc.NewEncryptionManager()
	mgr.SetMasterKey(keyPair)
	return &EncryptedBackend{inner: inner, mgr: mgr, keyID: keyPair.ID}
}

func (e *EncryptedBackend) Put(ctx context.Context, key Key, value []byte) error {
	envelope, err := e.mgr.EncryptData(value, e.keyID)
	if err != nil {
		return wrapErr("put", key, fmt.Errorf("pqc encrypt: %w", err))
	}
	return e.inner.Put(ctx, key, []byte(envelope))
}

func (e *EncryptedBackend) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	raw, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	plaintext, err := e.mgr.DecryptData(string(raw))
	if err != nil {
		return nil, false, wrapErr("get", key, fmt.Errorf("pqc decrypt: %w", err))
	}
	return plaintext, true, nil
}

func (e *EncryptedBackend) ListPrefix(ctx context.Context, prefix Key) ([]Entry, error) {
	entries, err := e.inner.ListPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		plaintext, err := e.mgr.DecryptData(string(entry.Value))
		if err != nil {
			return nil, wrapErr("list", entry.Key, fmt.Errorf("pqc decrypt: %w", err))
		}
		out[i] = Entry{Key: entry.Key, Value: plaintext}
	}
	return out, nil
}

func (e *EncryptedBackend) Delete(ctx context.Context, key Key) error {
	return e.inner.Delete(ctx, key)
}
