// Package monitoring exposes the Prometheus metrics collected across the
// document store, sync protocol, bundle codec and relay.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DocumentsCreated    prometheus.Counter
	DocumentWriteOps    prometheus.Counter
	DocumentReadOps     prometheus.Counter
	ChangesApplied      prometheus.Counter
	ChangesRejected     prometheus.Counter
	SyncMessagesSent    prometheus.Counter
	SyncMessagesRecv    prometheus.Counter
	ActiveConnections   prometheus.Gauge
	BundlePackDuration  prometheus.Histogram
	BundleUnpackLatency prometheus.Histogram
	StorageOpDuration   prometheus.Histogram
	ErrorCount          prometheus.Counter
	RelayStoreSize      prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		DocumentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tonk_documents_created_total",
			Help: "Total number of documents created in the store",
		}),
		DocumentWriteOps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tonk_document_write_ops_total",
			Help: "Total number of document write operations",
		}),
		DocumentReadOps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tonk_document_read_ops_total",
			Help: "Total number of document read operations",
		}),
		ChangesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tonk_changes_applied_total",
			Help: "Total number of CRDT changes successfully integrated",
		}),
		ChangesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tonk_changes_rejected_total",
			Help: "Total number of CRDT changes dropped as already-observed",
		}),
		SyncMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tonk_sync_messages_sent_total",
			Help: "Total number of sync protocol messages sent",
		}),
		SyncMessagesRecv: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tonk_sync_messages_received_total",
			Help: "Total number of sync protocol messages received",
		}),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tonk_active_connections",
			Help: "Number of currently open sync connections",
		}),
		BundlePackDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tonk_bundle_pack_duration_seconds",
			Help:    "Time taken to pack a bundle",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		BundleUnpackLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tonk_bundle_unpack_duration_seconds",
			Help:    "Time taken to unpack a bundle",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		StorageOpDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tonk_storage_op_duration_seconds",
			Help:    "Latency distribution of storage backend operations",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		ErrorCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tonk_errors_total",
			Help: "Total number of errors observed across the relay",
		}),
		RelayStoreSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tonk_relay_store_bytes",
			Help: "Approximate size in bytes of the relay's backing store",
		}),
	}
}
