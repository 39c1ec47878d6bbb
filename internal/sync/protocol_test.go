package sync

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/tonk-sync/tonk/internal/document"
	"github.com/tonk-sync/tonk/internal/storage"
	"github.com/tonk-sync/tonk/internal/transport"
)

type pipeRWC struct {
	*io.PipeReader
	*io.PipeWriter
}

func (p pipeRWC) Close() error {
	_ = p.PipeReader.Close()
	return p.PipeWriter.Close()
}

func newTransportPair() (transport.Transport, transport.Transport) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := transport.NewStreamTransport(pipeRWC{PipeReader: ar, PipeWriter: aw})
	b := transport.NewStreamTransport(pipeRWC{PipeReader: br, PipeWriter: bw})
	return a, b
}

func waitForContent(t *testing.T, h *document.Handle, key string, want interface{}) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if content, ok := h.Content(); ok {
			if content[key] == want {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s=%v", key, want)
}

func TestSessionHandshakeAndInitialSync(t *testing.T) {
	at, bt := newTransportPair()

	storeA := document.NewStore(storage.NewMemoryBackend(), "peer-a")
	storeB := document.NewStore(storage.NewMemoryBackend(), "peer-b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handleA, err := storeA.Create(ctx, map[string]interface{}{"title": "shared doc"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sessA := NewSession(at, storeA, DirectionOutgoing)
	sessB := NewSession(bt, storeB, DirectionIncoming)

	errs := make(chan error, 2)
	go func() { errs <- sessA.Run(ctx) }()
	go func() { errs <- sessB.Run(ctx) }()

	handleB, ok, err := waitForDocument(t, storeB, handleA.ID())
	if err != nil {
		t.Fatalf("find on b: %v", err)
	}
	if !ok {
		t.Fatalf("document %s never synced to peer b", handleA.ID())
	}

	waitForContent(t, handleB, "title", "shared doc")

	cancel()
	<-errs
	<-errs
}

func waitForDocument(t *testing.T, store *document.Store, id document.ID) (*document.Handle, bool, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		h, ok, err := store.Find(context.Background(), id)
		if err != nil {
			lastErr = err
		}
		if ok {
			return h, true, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil, false, lastErr
}

func TestSessionPropagatesLiveUpdates(t *testing.T) {
	at, bt := newTransportPair()

	storeA := document.NewStore(storage.NewMemoryBackend(), "peer-a")
	storeB := document.NewStore(storage.NewMemoryBackend(), "peer-b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handleA, err := storeA.Create(ctx, map[string]interface{}{"count": float64(1)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sessA := NewSession(at, storeA, DirectionOutgoing)
	sessB := NewSession(bt, storeB, DirectionIncoming)

	errs := make(chan error, 2)
	go func() { errs <- sessA.Run(ctx) }()
	go func() { errs <- sessB.Run(ctx) }()

	handleB, ok, err := waitForDocument(t, storeB, handleA.ID())
	if err != nil || !ok {
		t.Fatalf("initial sync failed: ok=%v err=%v", ok, err)
	}
	waitForContent(t, handleB, "count", float64(1))

	if err := handleA.WithDocument(ctx, func(content map[string]interface{}) (map[string]interface{}, error) {
		updated := make(map[string]interface{}, len(content))
		for k, v := range content {
			updated[k] = v
		}
		updated["count"] = float64(2)
		return updated, nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	waitForContent(t, handleB, "count", float64(2))

	cancel()
	<-errs
	<-errs
}

func TestHandshakeRejectsUnsupportedVersion(t *testing.T) {
	at, bt := newTransportPair()
	storeA := document.NewStore(storage.NewMemoryBackend(), "peer-a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessA := NewSession(at, storeA, DirectionOutgoing)
	errs := make(chan error, 1)
	go func() { errs <- sessA.Run(ctx) }()

	// Simulate a peer speaking only an incompatible protocol version.
	frame, err := bt.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	_ = frame

	badHello := Message{Kind: KindHello, Hello: &HelloPayload{PeerID: "bad-peer", SupportedVersions: []int{99}}}
	enc, err := cbor.Marshal(badHello)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := bt.WriteFrame(ctx, enc); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected handshake error for unsupported version")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for handshake failure")
	}
}
