package tonk

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tonk-sync/tonk/internal/bundle"
	"github.com/tonk-sync/tonk/internal/crypto/pqc"
)

func TestNewCreatesEphemeralStore(t *testing.T) {
	ctx := context.Background()
	tk, err := New(ctx, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if tk.PeerID() == "" {
		t.Fatal("expected a generated peer id")
	}
}

func TestNewUsesFileBackendWhenDataDirSet(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()
	tk, err := New(ctx, Options{DataDir: tmpDir, PeerID: "peer-1"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if tk.PeerID() != "peer-1" {
		t.Errorf("expected configured peer id, got %s", tk.PeerID())
	}
}

func TestCreateReadWriteDocument(t *testing.T) {
	ctx := context.Background()
	tk, err := New(ctx, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := tk.CreateDocument(ctx, "/notes/todo.txt", "buy milk"); err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}

	value, ok, err := tk.ReadDocument(ctx, "/notes/todo.txt")
	if err != nil || !ok {
		t.Fatalf("ReadDocument() failed: ok=%v err=%v", ok, err)
	}
	if value != "buy milk" {
		t.Errorf("expected 'buy milk', got %v", value)
	}

	if err := tk.WriteDocument(ctx, "/notes/todo.txt", "buy oat milk"); err != nil {
		t.Fatalf("WriteDocument() failed: %v", err)
	}
	value, _, _ = tk.ReadDocument(ctx, "/notes/todo.txt")
	if value != "buy oat milk" {
		t.Errorf("expected updated value, got %v", value)
	}
}

func TestListAndRemove(t *testing.T) {
	ctx := context.Background()
	tk, err := New(ctx, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := tk.CreateDocument(ctx, "/a", 1); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := tk.CreateDocument(ctx, "/b", 2); err != nil {
		t.Fatalf("create b: %v", err)
	}

	names, err := tk.List(ctx, "/")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 entries, got %d (%v)", len(names), names)
	}

	removed, err := tk.Remove(ctx, "/a")
	if err != nil || !removed {
		t.Fatalf("Remove() failed: removed=%v err=%v", removed, err)
	}

	names, _ = tk.List(ctx, "/")
	if len(names) != 1 || names[0] != "b" {
		t.Errorf("expected only 'b' to remain, got %v", names)
	}
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	tk, err := New(ctx, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := tk.CreateDocument(ctx, "/src/file.txt", "hello"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tk.Move(ctx, "/src/file.txt", "/dst/file.txt"); err != nil {
		t.Fatalf("Move() failed: %v", err)
	}

	if _, ok, _ := tk.ReadDocument(ctx, "/src/file.txt"); ok {
		t.Error("expected source path to no longer exist")
	}
	value, ok, err := tk.ReadDocument(ctx, "/dst/file.txt")
	if err != nil || !ok || value != "hello" {
		t.Errorf("expected moved document at destination, got value=%v ok=%v err=%v", value, ok, err)
	}
}

func TestPackAndOpen(t *testing.T) {
	ctx := context.Background()
	tk, err := New(ctx, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := tk.CreateDocument(ctx, "/notes/todo.txt", "buy milk"); err != nil {
		t.Fatalf("create: %v", err)
	}

	var buf bytes.Buffer
	if err := tk.Pack(ctx, &buf, bundle.PackOptions{}); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}

	restored, err := Unpack(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "", nil)
	if err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}

	value, ok, err := restored.ReadDocument(ctx, "/notes/todo.txt")
	if err != nil || !ok || value != "buy milk" {
		t.Errorf("expected restored document content, got value=%v ok=%v err=%v", value, ok, err)
	}
}

func TestEncryptionKeyPairEncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	kp, err := pqc.GeneratePQCKeyPair("tonk-data-key", "encryption")
	if err != nil {
		t.Fatalf("GeneratePQCKeyPair() failed: %v", err)
	}

	tmpDir := t.TempDir()
	tk, err := New(ctx, Options{DataDir: tmpDir, EncryptionKeyPair: kp})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := tk.CreateDocument(ctx, "/notes/todo.txt", "buy milk"); err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}

	value, ok, err := tk.ReadDocument(ctx, "/notes/todo.txt")
	if err != nil || !ok || value != "buy milk" {
		t.Fatalf("expected round-tripped value through the encrypted backend, got value=%v ok=%v err=%v", value, ok, err)
	}

	err = filepath.Walk(tmpDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if bytes.Contains(raw, []byte("buy milk")) {
			t.Errorf("plaintext content found at rest in %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk data dir: %v", err)
	}
}

func TestPackAndUnpackWithPassphrase(t *testing.T) {
	ctx := context.Background()
	tk, err := New(ctx, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := tk.CreateDocument(ctx, "/notes/todo.txt", "buy milk"); err != nil {
		t.Fatalf("create: %v", err)
	}

	var buf bytes.Buffer
	if err := tk.Pack(ctx, &buf, bundle.PackOptions{Passphrase: "correct horse battery staple"}); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}

	if _, err := Unpack(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "", nil); err == nil {
		t.Fatal("expected Unpack() without a passphrase to fail")
	}

	restored, err := Unpack(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "correct horse battery staple", nil)
	if err != nil {
		t.Fatalf("Unpack() with correct passphrase failed: %v", err)
	}
	value, ok, err := restored.ReadDocument(ctx, "/notes/todo.txt")
	if err != nil || !ok || value != "buy milk" {
		t.Errorf("expected restored document content, got value=%v ok=%v err=%v", value, ok, err)
	}
}
