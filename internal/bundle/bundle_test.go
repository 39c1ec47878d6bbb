package bundle

import (
	"bytes"
	"context"
	"testing"

	"github.com/tonk-sync/tonk/internal/crypto/pqc"
	"github.com/tonk-sync/tonk/internal/document"
	"github.com/tonk-sync/tonk/internal/storage"
	"github.com/tonk-sync/tonk/internal/vfs"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	store := document.NewStore(backend, "peer-origin")

	tree, err := vfs.NewVirtualFileSystem(ctx, store)
	if err != nil {
		t.Fatalf("new vfs: %v", err)
	}
	if _, err := tree.CreateDocument(ctx, vfs.MustParsePath("/notes/todo.txt"), "buy milk"); err != nil {
		t.Fatalf("create document: %v", err)
	}

	var buf bytes.Buffer
	opts := PackOptions{
		NetworkURIs: []string{"wss://relay.example/sync"},
		Vendor:      map[string]interface{}{"app": "tonk"},
	}
	if err := Pack(ctx, &buf, backend, tree.RootID(), opts); err != nil {
		t.Fatalf("pack: %v", err)
	}

	restoredBackend := storage.NewMemoryBackend()
	unpacked, err := Unpack(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), restoredBackend, "", nil)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}

	if unpacked.Manifest.RootDocID != string(tree.RootID()) {
		t.Errorf("manifest root mismatch: got %s want %s", unpacked.Manifest.RootDocID, tree.RootID())
	}
	if len(unpacked.Manifest.NetworkURIs) != 1 || unpacked.Manifest.NetworkURIs[0] != "wss://relay.example/sync" {
		t.Errorf("network uris not preserved: %+v", unpacked.Manifest.NetworkURIs)
	}
	if unpacked.PeerID == "peer-origin" {
		t.Errorf("expected a freshly generated peer id, got the original")
	}

	h, ok, err := unpacked.VFS.FindDocument(ctx, vfs.MustParsePath("/notes/todo.txt"))
	if err != nil || !ok {
		t.Fatalf("restored document not found: ok=%v err=%v", ok, err)
	}
	value, _ := vfs.DocumentValue(h)
	if value != "buy milk" {
		t.Errorf("expected restored value 'buy milk', got %v", value)
	}
}

func TestPackIsDeterministic(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	store := document.NewStore(backend, "peer-a")
	tree, err := vfs.NewVirtualFileSystem(ctx, store)
	if err != nil {
		t.Fatalf("new vfs: %v", err)
	}
	if _, err := tree.CreateDocument(ctx, vfs.MustParsePath("/a"), 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tree.CreateDocument(ctx, vfs.MustParsePath("/b"), 2); err != nil {
		t.Fatalf("create: %v", err)
	}

	var first, second bytes.Buffer
	if err := Pack(ctx, &first, backend, tree.RootID(), PackOptions{}); err != nil {
		t.Fatalf("pack 1: %v", err)
	}
	if err := Pack(ctx, &second, backend, tree.RootID(), PackOptions{}); err != nil {
		t.Fatalf("pack 2: %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Errorf("expected two packings of the same store to be byte-identical")
	}
}

func TestPackUnpackWithPassphrase(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	store := document.NewStore(backend, "peer-origin")
	tree, err := vfs.NewVirtualFileSystem(ctx, store)
	if err != nil {
		t.Fatalf("new vfs: %v", err)
	}
	if _, err := tree.CreateDocument(ctx, vfs.MustParsePath("/secret.txt"), "top secret"); err != nil {
		t.Fatalf("create document: %v", err)
	}

	var buf bytes.Buffer
	if err := Pack(ctx, &buf, backend, tree.RootID(), PackOptions{Passphrase: "hunter2"}); err != nil {
		t.Fatalf("pack: %v", err)
	}

	if _, err := Unpack(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.NewMemoryBackend(), "", nil); err == nil {
		t.Fatal("expected unpack without a passphrase to fail")
	}
	if _, err := Unpack(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.NewMemoryBackend(), "wrong", nil); err == nil {
		t.Fatal("expected unpack with the wrong passphrase to fail")
	}

	restoredBackend := storage.NewMemoryBackend()
	unpacked, err := Unpack(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), restoredBackend, "hunter2", nil)
	if err != nil {
		t.Fatalf("unpack with correct passphrase: %v", err)
	}

	h, ok, err := unpacked.VFS.FindDocument(ctx, vfs.MustParsePath("/secret.txt"))
	if err != nil || !ok {
		t.Fatalf("restored document not found: ok=%v err=%v", ok, err)
	}
	value, _ := vfs.DocumentValue(h)
	if value != "top secret" {
		t.Errorf("expected restored value 'top secret', got %v", value)
	}
}

func TestPackUnpackSignatureVerification(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	store := document.NewStore(backend, "peer-origin")
	tree, err := vfs.NewVirtualFileSystem(ctx, store)
	if err != nil {
		t.Fatalf("new vfs: %v", err)
	}
	if _, err := tree.CreateDocument(ctx, vfs.MustParsePath("/a"), 1); err != nil {
		t.Fatalf("create: %v", err)
	}

	signer, err := pqc.GeneratePQCKeyPair("bundle-signer", "signature")
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}

	var buf bytes.Buffer
	if err := Pack(ctx, &buf, backend, tree.RootID(), PackOptions{Signer: signer}); err != nil {
		t.Fatalf("pack: %v", err)
	}

	if _, err := Unpack(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.NewMemoryBackend(), "", signer); err != nil {
		t.Fatalf("unpack with matching verifier: %v", err)
	}

	impostor, err := pqc.GeneratePQCKeyPair("impostor", "signature")
	if err != nil {
		t.Fatalf("generate impostor: %v", err)
	}
	if _, err := Unpack(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.NewMemoryBackend(), "", impostor); err == nil {
		t.Fatal("expected unpack with a mismatched verifier to fail")
	}
}
