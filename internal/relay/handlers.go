package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/tonk-sync/tonk/internal/storage"
	"github.com/tonk-sync/tonk/internal/sync"
	"github.com/tonk-sync/tonk/internal/transport"
)

// handleSync upgrades the HTTP request to a WebSocket and runs the sync
// protocol against the shared store as the Incoming side, mirroring one
// connection slot per browser or native peer.
func (r *Relay) handleSync(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	t, err := transport.Accept(w, req)
	if err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Warn("relay: websocket upgrade failed")
		}
		return
	}

	connID := uuid.NewString()
	r.connectionOpened()
	defer r.connectionClosed()

	session := sync.NewSession(t, r.store, sync.DirectionIncoming)

	if r.logger != nil {
		r.logger.Info("relay: connection opened", zap.String("conn_id", connID))
	}

	if err := session.Run(req.Context()); err != nil && !errors.Is(err, context.Canceled) {
		if r.logger != nil {
			r.logger.WithError(err).Info("relay: session ended")
		}
	}
}

// handleGetBundle streams a previously uploaded bundle blob from object
// storage.
func (r *Relay) handleGetBundle(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		http.Error(w, "missing bundle id", http.StatusBadRequest)
		return
	}

	data, ok, err := r.bundles.Get(req.Context(), bundleKey(id))
	if err != nil {
		r.countError()
		http.Error(w, fmt.Sprintf("relay: read bundle: %v", err), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "bundle not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	_, _ = w.Write(data)
}

// handlePutBundle stores an uploaded bundle blob verbatim; the caller has
// already been authorized by AuthMiddleware.RequirePermission.
func (r *Relay) handlePutBundle(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		http.Error(w, "missing bundle id", http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, req.Body); err != nil {
		http.Error(w, fmt.Sprintf("relay: read body: %v", err), http.StatusBadRequest)
		return
	}

	if err := r.bundles.Put(req.Context(), bundleKey(id), buf.Bytes()); err != nil {
		r.countError()
		http.Error(w, fmt.Sprintf("relay: store bundle: %v", err), http.StatusInternalServerError)
		return
	}

	if r.metrics != nil {
		r.metrics.RelayStoreSize.Add(float64(buf.Len()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports readiness: the relay is healthy once its bundle
// storage backend answers a listing within a short deadline.
func (r *Relay) handleHealth(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	if _, err := r.bundles.ListPrefix(ctx, bundlesPrefix); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleWasm serves the embedded browser-peer WASM artifact.
func (r *Relay) handleWasm(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/wasm")
	_, _ = w.Write(wasmArtifact)
}

func (r *Relay) countError() {
	if r.metrics != nil {
		r.metrics.ErrorCount.Inc()
	}
}

func bundleKey(id string) storage.Key {
	return storage.Key{"bundles", id + ".tonk"}
}
