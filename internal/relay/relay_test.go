package relay

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tonk-sync/tonk/internal/auth"
	"github.com/tonk-sync/tonk/internal/document"
	"github.com/tonk-sync/tonk/internal/storage"
	"github.com/tonk-sync/tonk/internal/sync"
	"github.com/tonk-sync/tonk/internal/transport"
)

// newTestRelay leaves Metrics nil: Relay treats a nil *monitoring.Metrics
// as "don't record", and promauto's global registry would otherwise
// reject the same metric names being registered once per test.
func newTestRelay(t *testing.T) (*Relay, *auth.TokenManager) {
	t.Helper()
	tm := auth.NewTokenManager("test-secret")
	r := New(Config{
		Store:   document.NewStore(storage.NewMemoryBackend(), "relay-peer"),
		Bundles: storage.NewMemoryBackend(),
		Auth:    auth.NewAuthMiddleware(tm),
	})
	return r, tm
}

func TestHealthReportsOK(t *testing.T) {
	r, _ := newTestRelay(t)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestWasmServesEmbeddedArtifact(t *testing.T) {
	r, _ := newTestRelay(t)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/wasm")
	if err != nil {
		t.Fatalf("get wasm: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte{0x00, 0x61, 0x73, 0x6d}) {
		t.Errorf("expected wasm magic bytes, got %x", body)
	}
}

func TestPutBundleRequiresAuthorization(t *testing.T) {
	r, _ := newTestRelay(t)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/bundle/abc", strings.NewReader("payload"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put bundle: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}
}

func TestPutThenGetBundleRoundTrip(t *testing.T) {
	r, tm := newTestRelay(t)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	token, err := tm.GenerateToken("peer-a", []auth.Permission{auth.PermissionReadWrite})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	body := []byte("fake-bundle-bytes")
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/bundle/abc", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put bundle: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/bundle/abc")
	if err != nil {
		t.Fatalf("get bundle: %v", err)
	}
	defer getResp.Body.Close()
	got, _ := io.ReadAll(getResp.Body)
	if !bytes.Equal(got, body) {
		t.Errorf("roundtrip mismatch: got %q want %q", got, body)
	}
}

func TestGetBundleMissingReturns404(t *testing.T) {
	r, _ := newTestRelay(t)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/bundle/does-not-exist")
	if err != nil {
		t.Fatalf("get bundle: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSyncEndpointAcceptsAndCountsConnection(t *testing.T) {
	r, _ := newTestRelay(t)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sync"

	clientStore := document.NewStore(storage.NewMemoryBackend(), "client-peer")
	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientTransport, err := transport.Dial(dialCtx, wsURL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	session := sync.NewSession(clientTransport, clientStore, sync.DirectionOutgoing)

	runCtx, runCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer runCancel()

	errCh := make(chan error, 1)
	go func() { errCh <- session.Run(runCtx) }()

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if r.ActiveConnections() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if r.ActiveConnections() == 0 {
		t.Errorf("expected relay to count the open connection")
	}

	runCancel()
	<-errCh
}
