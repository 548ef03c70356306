// Package metrics provides Prometheus metrics for the feedsync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Write path
	writesTotal       *prometheus.CounterVec
	writeErrors       *prometheus.CounterVec
	writeLatency      prometheus.Histogram
	likeIncrements    prometheus.Counter

	// Subscription path
	subscriptionsOpen   prometheus.Gauge
	liveQueries         prometheus.Gauge
	subscriptionReopens prometheus.Counter
	snapshotsDelivered  prometheus.Counter
	snapshotsDropped    prometheus.Counter
	snapshotFanoutSize  prometheus.Histogram

	// Reconciliation path
	pendingWrites      prometheus.Gauge
	pendingConfirmed   prometheus.Counter
	pendingRolledBack  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "feedsync",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.writesTotal = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "writes_total",
			Help:      "Total number of accepted writes by entity kind",
		},
		[]string{"kind"},
	)

	m.writeErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "write_errors_total",
			Help:      "Total number of failed writes by entity kind and error class",
		},
		[]string{"kind", "class"},
	)

	m.writeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "write_latency_milliseconds",
		Help:      "Store write acknowledgment latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.likeIncrements = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "like_increments_total",
		Help:      "Total number of applied like increments",
	})

	m.subscriptionsOpen = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscriptions_open",
		Help:      "Current number of open consumer subscriptions",
	})

	m.liveQueries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "live_queries",
		Help:      "Current number of live store registrations (deduplicated by selector)",
	})

	m.subscriptionReopens = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscription_reopens_total",
		Help:      "Total number of automatic subscription reopen attempts",
	})

	m.snapshotsDelivered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshots_delivered_total",
		Help:      "Total number of feed snapshots delivered to consumers",
	})

	m.snapshotsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshots_dropped_total",
		Help:      "Total number of snapshots coalesced away by slow consumers",
	})

	m.snapshotFanoutSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_fanout_size",
		Help:      "Number of consumers reached per delivered snapshot",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
	})

	m.pendingWrites = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_writes",
		Help:      "Current number of unresolved optimistic writes",
	})

	m.pendingConfirmed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_confirmed_total",
		Help:      "Total number of optimistic writes confirmed by the authoritative stream",
	})

	m.pendingRolledBack = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_rolled_back_total",
		Help:      "Total number of optimistic writes rolled back after a failed write",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// Package-level helpers against the global manager.

// RecordWrite counts an accepted write of the given entity kind.
func RecordWrite(kind string) {
	globalManager.writesTotal.WithLabelValues(kind).Inc()
}

// RecordWriteError counts a failed write by kind and error class.
func RecordWriteError(kind, class string) {
	globalManager.writeErrors.WithLabelValues(kind, class).Inc()
}

// RecordWriteLatency observes a store acknowledgment latency.
func RecordWriteLatency(latencyMs float64) {
	globalManager.writeLatency.Observe(latencyMs)
}

// RecordLikeIncrement counts an applied like increment.
func RecordLikeIncrement() {
	globalManager.likeIncrements.Inc()
}

// UpdateSubscriptionsOpen sets the open consumer subscription gauge.
func UpdateSubscriptionsOpen(n int) {
	globalManager.subscriptionsOpen.Set(float64(n))
}

// UpdateLiveQueries sets the live store registration gauge.
func UpdateLiveQueries(n int) {
	globalManager.liveQueries.Set(float64(n))
}

// RecordSubscriptionReopen counts a reopen attempt.
func RecordSubscriptionReopen() {
	globalManager.subscriptionReopens.Inc()
}

// RecordSnapshotDelivered counts one delivered snapshot.
func RecordSnapshotDelivered() {
	globalManager.snapshotsDelivered.Inc()
}

// RecordSnapshotDropped counts one coalesced snapshot.
func RecordSnapshotDropped() {
	globalManager.snapshotsDropped.Inc()
}

// RecordSnapshotFanout observes the consumer count reached by a snapshot.
func RecordSnapshotFanout(consumers int) {
	globalManager.snapshotFanoutSize.Observe(float64(consumers))
}

// UpdatePendingWrites sets the unresolved optimistic write gauge.
func UpdatePendingWrites(n int) {
	globalManager.pendingWrites.Set(float64(n))
}

// RecordPendingConfirmed counts a confirmed optimistic write.
func RecordPendingConfirmed() {
	globalManager.pendingConfirmed.Inc()
}

// RecordPendingRolledBack counts a rolled-back optimistic write.
func RecordPendingRolledBack() {
	globalManager.pendingRolledBack.Inc()
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
