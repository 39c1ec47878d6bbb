package bundle

import (
	"archive/zip"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/tonk-sync/tonk/internal/crypto/pqc"
	"github.com/tonk-sync/tonk/internal/document"
	"github.com/tonk-sync/tonk/internal/security"
	"github.com/tonk-sync/tonk/internal/storage"
	"github.com/tonk-sync/tonk/internal/vfs"
)

// Unpacked is the result of restoring a bundle: a ready store and the
// VFS rooted at its manifest's declared root document.
type Unpacked struct {
	Manifest Manifest
	Store    *document.Store
	VFS      *vfs.VirtualFileSystem
	PeerID   string
}

// Unpack reads a bundle from r (its total size required by archive/zip's
// random-access reader) into backend, which must be empty, and
// reconstructs a DocumentStore and VFS from it. A new peer id is
// generated for the restored store; a bundle never carries over the
// identity of whichever peer packed it. passphrase must match whatever
// Pack was given when PackOptions.Passphrase was set; it is ignored for
// an unencrypted bundle. verifier, if non-nil, must hold the Dilithium
// public key matching whatever PackOptions.Signer packed the bundle;
// Unpack fails if the manifest's signature doesn't verify against it,
// and also fails if verifier is non-nil and the bundle is unsigned.
func Unpack(ctx context.Context, r io.ReaderAt, size int64, backend storage.Backend, passphrase string, verifier *pqc.PQCKeyPair) (*Unpacked, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("bundle: open archive: %w", err)
	}

	var manifest Manifest
	var manifestFound bool
	type rawEntry struct {
		components []string
		data       []byte
	}
	var rawEntries []rawEntry

	for _, f := range zr.File {
		if f.Name == "manifest.json" {
			raw, err := readZipFile(f)
			if err != nil {
				return nil, fmt.Errorf("bundle: read manifest: %w", err)
			}
			manifest, err = decodeManifest(raw)
			if err != nil {
				return nil, fmt.Errorf("bundle: decode manifest: %w", err)
			}
			manifestFound = true
			continue
		}

		if !strings.HasPrefix(f.Name, storePrefix) {
			continue
		}
		keyPath := strings.TrimPrefix(f.Name, storePrefix)
		if keyPath == "" {
			continue
		}

		raw, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("bundle: read entry %s: %w", f.Name, err)
		}
		rawEntries = append(rawEntries, rawEntry{components: strings.Split(keyPath, "/"), data: raw})
	}

	if !manifestFound {
		return nil, fmt.Errorf("bundle: archive has no manifest.json")
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("bundle: unsupported manifest version %q", manifest.Version)
	}

	if verifier != nil {
		if manifest.Signature == "" {
			return nil, fmt.Errorf("bundle: archive is unsigned, verification requested")
		}
		sig, err := base64.StdEncoding.DecodeString(manifest.Signature)
		if err != nil {
			return nil, fmt.Errorf("bundle: decode signature: %w", err)
		}
		unsigned := manifest
		unsigned.Signature = ""
		unsignedBytes, err := unsigned.encode()
		if err != nil {
			return nil, fmt.Errorf("bundle: encode manifest for verification: %w", err)
		}
		if !verifier.Verify(unsignedBytes, sig) {
			return nil, fmt.Errorf("bundle: manifest signature verification failed")
		}
	}

	var enc *security.ChunkEncryption
	var key []byte
	if manifest.Encrypted {
		if passphrase == "" {
			return nil, fmt.Errorf("bundle: archive is encrypted, passphrase required")
		}
		enc = security.NewChunkEncryption()
		salt, err := enc.DecodeKey(manifest.Salt)
		if err != nil {
			return nil, fmt.Errorf("bundle: decode salt: %w", err)
		}
		key = enc.DeriveKey(passphrase, salt)
	}

	for _, re := range rawEntries {
		value := re.data
		if enc != nil {
			value, err = enc.DecryptChunk(value, key, strings.Join(re.components, "/"))
			if err != nil {
				return nil, fmt.Errorf("bundle: decrypt entry %s: %w", strings.Join(re.components, "/"), err)
			}
		}
		if err := backend.Put(ctx, storage.Key(re.components), value); err != nil {
			return nil, fmt.Errorf("bundle: restore entry %s: %w", strings.Join(re.components, "/"), err)
		}
	}

	peerID := uuid.NewString()
	store := document.NewStore(backend, peerID)

	rootID := document.ID(manifest.RootDocID)
	if _, ok, err := store.Find(ctx, rootID); err != nil {
		return nil, fmt.Errorf("bundle: locate root document: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("bundle: root document %s not present in archive", rootID)
	}

	tree, err := vfs.OpenVirtualFileSystem(ctx, store, rootID)
	if err != nil {
		return nil, fmt.Errorf("bundle: open vfs: %w", err)
	}

	return &Unpacked{Manifest: manifest, Store: store, VFS: tree, PeerID: peerID}, nil
}

// FindAsset locates a user-supplied asset entry by exact name within an
// already-opened archive.
func FindAsset(zr *zip.Reader, name string) ([]byte, bool, error) {
	for _, f := range zr.File {
		if f.Name == name {
			raw, err := readZipFile(f)
			if err != nil {
				return nil, false, err
			}
			return raw, true, nil
		}
	}
	return nil, false, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
