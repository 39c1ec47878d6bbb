// Package relay implements the long-running server that accepts many
// WebSocket sync peers against a shared DocumentStore and serves the
// bundle storage and WASM asset endpoints browser peers need to join
// without a native client.
package relay

import (
	"net/http"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"

	"github.com/tonk-sync/tonk/internal/auth"
	"github.com/tonk-sync/tonk/internal/document"
	"github.com/tonk-sync/tonk/internal/logging"
	"github.com/tonk-sync/tonk/internal/monitoring"
	"github.com/tonk-sync/tonk/internal/storage"
)

// bundlesPrefix namespaces packed bundle blobs within the shared backend,
// separate from the document store's own chunk keys.
var bundlesPrefix = storage.Key{"bundles"}

// Relay owns a single shared DocumentStore that every connected peer
// syncs against, plus the object storage backing bundle upload/download.
type Relay struct {
	store   *document.Store
	bundles storage.Backend
	auth    *auth.AuthMiddleware
	metrics *monitoring.Metrics
	logger  *logging.Logger

	connections int64 // atomic, mirrors metrics.ActiveConnections for tests
}

// Config bundles the dependencies a Relay is constructed from.
type Config struct {
	Store   *document.Store
	Bundles storage.Backend
	Auth    *auth.AuthMiddleware
	Metrics *monitoring.Metrics
	Logger  *logging.Logger
}

func New(cfg Config) *Relay {
	return &Relay{
		store:   cfg.Store,
		bundles: cfg.Bundles,
		auth:    cfg.Auth,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Handler builds the complete HTTP routing tree: the sync WebSocket
// upgrade endpoint plus the bundle, health and wasm asset endpoints.
func (r *Relay) Handler() http.Handler {
	router := httprouter.New()

	router.GET("/sync", r.handleSync)
	router.GET("/bundle/:id", r.handleGetBundle)
	router.Handler(http.MethodPut, "/bundle/:id", r.auth.RequirePermission(
		auth.PermissionReadWrite,
		httpHandlerFunc(r.handlePutBundle),
	))
	router.GET("/health", r.handleHealth)
	router.GET("/wasm", r.handleWasm)

	return router
}

// ActiveConnections reports the number of sync sessions currently open,
// tracked independently of the Prometheus gauge so tests can assert on
// it without scraping the registry.
func (r *Relay) ActiveConnections() int64 {
	return atomic.LoadInt64(&r.connections)
}

func (r *Relay) connectionOpened() {
	atomic.AddInt64(&r.connections, 1)
	if r.metrics != nil {
		r.metrics.ActiveConnections.Inc()
	}
}

func (r *Relay) connectionClosed() {
	atomic.AddInt64(&r.connections, -1)
	if r.metrics != nil {
		r.metrics.ActiveConnections.Dec()
	}
}

// httpHandlerFunc adapts an httprouter-style handle into a plain
// http.HandlerFunc so it can be wrapped by auth.AuthMiddleware, recovering the httprouter param from request
// context (httprouter.Handler stashes it there via router.Handler).
func httpHandlerFunc(fn func(http.ResponseWriter, *http.Request, httprouter.Params)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		params := httprouter.ParamsFromContext(req.Context())
		fn(w, req, params)
	}
}
