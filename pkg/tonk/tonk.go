// Package tonk is the public facade over the internal document store,
// virtual file system, sync protocol and bundle codec: the single entry
// point an application embeds instead of wiring the internal/ packages
// together itself.
package tonk

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/tonk-sync/tonk/internal/bundle"
	"github.com/tonk-sync/tonk/internal/crypto/pqc"
	"github.com/tonk-sync/tonk/internal/document"
	"github.com/tonk-sync/tonk/internal/storage"
	"github.com/tonk-sync/tonk/internal/sync"
	"github.com/tonk-sync/tonk/internal/transport"
	"github.com/tonk-sync/tonk/internal/vfs"
)

// Options configures a Tonk instance.
type Options struct {
	// DataDir, if set, backs the store with a FileBackend rooted there.
	// Leave empty for an ephemeral in-memory store.
	DataDir string
	// PeerID identifies this instance to peers it syncs with. A random
	// id is generated if left empty.
	PeerID string
	// EncryptionKeyPair, if set, wraps the backend in a
	// storage.EncryptedBackend so every persisted chunk is encrypted at
	// rest under its Kyber768 public key.
	EncryptionKeyPair *pqc.PQCKeyPair
}

// Tonk is the public wrapper around a DocumentStore and the VirtualFileSystem
// rooted at its default document tree.
type Tonk struct {
	store   *document.Store
	backend storage.Backend
	tree    *vfs.VirtualFileSystem
}

// New opens or creates a fresh store per Options and roots a new VFS at it.
func New(ctx context.Context, opts Options) (*Tonk, error) {
	backend, err := backendFor(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("tonk: open backend: %w", err)
	}
	if opts.EncryptionKeyPair != nil {
		backend = storage.NewEncryptedBackend(backend, opts.EncryptionKeyPair)
	}

	peerID := opts.PeerID
	if peerID == "" {
		peerID = uuid.NewString()
	}
	store := document.NewStore(backend, peerID)

	tree, err := vfs.NewVirtualFileSystem(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("tonk: create vfs: %w", err)
	}
	return &Tonk{store: store, backend: backend, tree: tree}, nil
}

// Open wraps an already-restored bundle (e.g. from Unpack) as a Tonk.
func Open(archive *bundle.Unpacked, backend storage.Backend) *Tonk {
	return &Tonk{store: archive.Store, backend: backend, tree: archive.VFS}
}

// Unpack restores a bundle read from r into a fresh in-memory store and
// wraps it as a Tonk. passphrase is required only if the bundle was
// packed with PackOptions.Passphrase set. verifier, if non-nil, must hold
// the Dilithium public key the bundle was signed with (PackOptions.Signer);
// Unpack fails if the signature doesn't verify.
func Unpack(ctx context.Context, r io.ReaderAt, size int64, passphrase string, verifier *pqc.PQCKeyPair) (*Tonk, error) {
	backend := storage.NewMemoryBackend()
	archive, err := bundle.Unpack(ctx, r, size, backend, passphrase, verifier)
	if err != nil {
		return nil, fmt.Errorf("tonk: unpack bundle: %w", err)
	}
	return Open(archive, backend), nil
}

func backendFor(dataDir string) (storage.Backend, error) {
	if dataDir == "" {
		return storage.NewMemoryBackend(), nil
	}
	return storage.NewFileBackend(dataDir)
}

// PeerID returns this instance's sync identity.
func (t *Tonk) PeerID() string { return t.store.PeerID() }

// RootID returns the document id of the VFS root directory.
func (t *Tonk) RootID() document.ID { return t.tree.RootID() }

// CreateDocument creates a leaf document at path, auto-creating any
// missing parent directories.
func (t *Tonk) CreateDocument(ctx context.Context, path string, content interface{}) (*document.Handle, error) {
	p, err := vfs.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return t.tree.CreateDocument(ctx, p, content)
}

// CreateDirectory creates a directory at path, including any missing
// ancestors.
func (t *Tonk) CreateDirectory(ctx context.Context, path string) error {
	p, err := vfs.ParsePath(path)
	if err != nil {
		return err
	}
	_, err = t.tree.CreateDirectory(ctx, p)
	return err
}

// ReadDocument returns the content stored at path.
func (t *Tonk) ReadDocument(ctx context.Context, path string) (interface{}, bool, error) {
	p, err := vfs.ParsePath(path)
	if err != nil {
		return nil, false, err
	}
	h, ok, err := t.tree.FindDocument(ctx, p)
	if err != nil || !ok {
		return nil, ok, err
	}
	value, _ := vfs.DocumentValue(h)
	return value, true, nil
}

// WriteDocument replaces the content stored at path, creating it (and any
// missing parent directories) if it doesn't already exist.
func (t *Tonk) WriteDocument(ctx context.Context, path string, content interface{}) error {
	p, err := vfs.ParsePath(path)
	if err != nil {
		return err
	}
	h, ok, err := t.tree.FindDocument(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		_, err := t.tree.CreateDocument(ctx, p, content)
		return err
	}
	return vfs.UpdateDocument(ctx, h, content)
}

// List returns the names of a directory's live children.
func (t *Tonk) List(ctx context.Context, path string) ([]string, error) {
	p, err := vfs.ParsePath(path)
	if err != nil {
		return nil, err
	}
	refs, err := t.tree.ListDirectory(ctx, p)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return names, nil
}

// Remove deletes the node at path, recursively for directories.
func (t *Tonk) Remove(ctx context.Context, path string) (bool, error) {
	p, err := vfs.ParsePath(path)
	if err != nil {
		return false, err
	}
	return t.tree.Remove(ctx, p)
}

// Move relocates the node at from to to.
func (t *Tonk) Move(ctx context.Context, from, to string) error {
	fp, err := vfs.ParsePath(from)
	if err != nil {
		return err
	}
	tp, err := vfs.ParsePath(to)
	if err != nil {
		return err
	}
	return t.tree.Move(ctx, fp, tp)
}

// Watch subscribes to every VfsEvent raised across the whole tree.
func (t *Tonk) Watch(buffer int) (<-chan vfs.VfsEvent, func()) {
	return t.tree.Subscribe(buffer)
}

// Pack writes the entire store plus the VFS root into a portable bundle.
func (t *Tonk) Pack(ctx context.Context, w io.Writer, opts bundle.PackOptions) error {
	return bundle.Pack(ctx, w, t.backend, t.tree.RootID(), opts)
}

// Sync opens an outgoing sync connection to a relay or peer at url and
// runs the protocol until ctx is canceled or the connection drops.
func (t *Tonk) Sync(ctx context.Context, url string) error {
	conn, err := transport.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("tonk: dial %s: %w", url, err)
	}
	session := sync.NewSession(conn, t.store, sync.DirectionOutgoing)
	return session.Run(ctx)
}
