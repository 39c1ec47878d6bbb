package bundle

import (
	"archive/zip"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/tonk-sync/tonk/internal/crypto/pqc"
	"github.com/tonk-sync/tonk/internal/document"
	"github.com/tonk-sync/tonk/internal/security"
	"github.com/tonk-sync/tonk/internal/storage"
)

// storePrefix is the directory every persisted chunk is written under
// inside the archive.
const storePrefix = "store/"

// epochTime is the timestamp every zip entry is stamped with, so two
// packings of the same (key, bytes) set produce byte-identical archives
// regardless of wall-clock time.
var epochTime = time.Unix(0, 0).UTC()

func init() {
	// klauspost/compress's flate implementation is faster than the
	// standard library's and is what we register for every DEFLATE
	// entry; archive/zip accepts any registered compressor by method id.
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
}

// Asset is a user-supplied file appended to a bundle outside the
// store/ tree, e.g. a README or a thumbnail.
type Asset struct {
	Name string
	Data []byte
}

// PackOptions configures Pack beyond the mandatory store contents.
type PackOptions struct {
	NetworkURIs []string
	Vendor      map[string]interface{}
	Assets      []Asset

	// Passphrase, when non-empty, encrypts every store/ entry with an
	// AES-GCM key derived from it (internal/security.ChunkEncryption).
	// The manifest and any Asset are always written in the clear.
	Passphrase string

	// Signer, when set, signs the manifest with its Dilithium private
	// key so a recipient holding the matching public key can confirm the
	// bundle was produced by this key pair's owner (see Unpack's
	// verifier parameter).
	Signer *pqc.PQCKeyPair
}

// Pack streams backend's entire contents plus manifest.json into w as a
// ZIP archive. Entries are written in sorted key order with a fixed
// modification time, so packing the same backend twice yields
// byte-identical output (unless Passphrase is set, which draws a fresh
// random salt on every call).
func Pack(ctx context.Context, w io.Writer, backend storage.Backend, rootDocID document.ID, opts PackOptions) error {
	entries, err := backend.ListPrefix(ctx, storage.Key{})
	if err != nil {
		return fmt.Errorf("bundle: list store contents: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.String() < entries[j].Key.String()
	})

	var enc *security.ChunkEncryption
	var key, salt []byte
	if opts.Passphrase != "" {
		enc = security.NewChunkEncryption()
		salt, err = enc.GenerateSalt()
		if err != nil {
			return fmt.Errorf("bundle: generate salt: %w", err)
		}
		key = enc.DeriveKey(opts.Passphrase, salt)
	}

	zw := zip.NewWriter(w)

	for _, e := range entries {
		value := e.Value
		if enc != nil {
			value, err = enc.EncryptChunk(value, key, e.Key.String())
			if err != nil {
				return fmt.Errorf("bundle: encrypt entry %s: %w", e.Key, err)
			}
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     storePrefix + e.Key.String(),
			Method:   zip.Deflate,
			Modified: epochTime,
		})
		if err != nil {
			return fmt.Errorf("bundle: write entry %s: %w", e.Key, err)
		}
		if _, err := fw.Write(value); err != nil {
			return fmt.Errorf("bundle: write entry %s: %w", e.Key, err)
		}
	}

	manifest := Manifest{
		Version:     ManifestVersion,
		RootDocID:   string(rootDocID),
		NetworkURIs: opts.NetworkURIs,
		Vendor:      opts.Vendor,
	}
	if enc != nil {
		manifest.Encrypted = true
		manifest.Salt = enc.EncodeKey(salt)
	}
	if opts.Signer != nil {
		unsigned, err := manifest.encode()
		if err != nil {
			return fmt.Errorf("bundle: encode manifest for signing: %w", err)
		}
		sig, err := opts.Signer.Sign(unsigned)
		if err != nil {
			return fmt.Errorf("bundle: sign manifest: %w", err)
		}
		manifest.Signature = base64.StdEncoding.EncodeToString(sig)
	}
	manifestBytes, err := manifest.encode()
	if err != nil {
		return fmt.Errorf("bundle: encode manifest: %w", err)
	}
	mw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     "manifest.json",
		Method:   zip.Deflate,
		Modified: epochTime,
	})
	if err != nil {
		return fmt.Errorf("bundle: write manifest: %w", err)
	}
	if _, err := mw.Write(manifestBytes); err != nil {
		return fmt.Errorf("bundle: write manifest: %w", err)
	}

	sortedAssets := make([]Asset, len(opts.Assets))
	copy(sortedAssets, opts.Assets)
	sort.Slice(sortedAssets, func(i, j int) bool { return sortedAssets[i].Name < sortedAssets[j].Name })
	for _, a := range sortedAssets {
		aw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     a.Name,
			Method:   zip.Deflate,
			Modified: epochTime,
		})
		if err != nil {
			return fmt.Errorf("bundle: write asset %s: %w", a.Name, err)
		}
		if _, err := aw.Write(a.Data); err != nil {
			return fmt.Errorf("bundle: write asset %s: %w", a.Name, err)
		}
	}

	return zw.Close()
}
