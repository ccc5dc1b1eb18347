// Package metrics provides Prometheus metrics for the podium ranking service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Transfer protocol
	transfers          *prometheus.CounterVec
	transferRejections *prometheus.CounterVec
	transferLatency    *prometheus.HistogramVec
	rollbacks          *prometheus.CounterVec
	lockContention     prometheus.Counter
	locksHeld          prometheus.Gauge

	// Position table
	positionNotifications prometheus.Counter
	occupiedPositions     prometheus.Gauge
	activeSessions        prometheus.Gauge

	// Magnetic scoring
	suggestionLatency    prometheus.Histogram
	suggestionCandidates prometheus.Histogram

	// Snapshot sync pipeline
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerActive       prometheus.Gauge
	snapshotSaves      *prometheus.CounterVec
	snapshotSaveErrors prometheus.Counter
	snapshotLatency    prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "podium",
		subsystem:        "ranking",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval reports how often background gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

// Enabled reports whether the package-level helpers record anything.
func (m *Manager) Enabled() bool {
	return m.enabled
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.transfers = m.counterVec("transfers_total",
		"Transfer operations by kind and outcome (succeeded, rejected, failed)", "kind", "outcome")
	m.transferRejections = m.counterVec("transfer_rejections_total",
		"Rejected transfers by kind and error code", "kind", "code")
	m.transferLatency = m.histogramVec("transfer_latency_milliseconds",
		"Validate+execute latency per transfer kind", "kind")
	m.rollbacks = m.counterVec("rollbacks_total",
		"Rollback attempts by kind and outcome (reverted, noop, conflict)", "kind", "outcome")
	m.lockContention = m.counter("lock_contention_total",
		"Transfers blocked because another operation held the item lock")
	m.locksHeld = m.gauge("locks_held",
		"Item locks currently held by in-flight operations")

	m.positionNotifications = m.counter("position_notifications_total",
		"Listener notifications delivered for effective position changes")
	m.occupiedPositions = m.gauge("occupied_positions",
		"Occupied positions across all active sessions")
	m.activeSessions = m.gauge("active_sessions",
		"Ranking sessions currently held in memory")

	m.suggestionLatency = m.histogram("suggestion_latency_milliseconds",
		"Magnetic drop-zone scoring latency", m.histogramBuckets)
	m.suggestionCandidates = m.histogram("suggestion_candidates",
		"Candidate slots returned per scoring call", []float64{0, 1, 2, 3, 5, 8, 13})

	m.queueSize = m.gauge("sync_queue_size", "Snapshot sync events waiting in the queue")
	m.queueCapacity = m.gauge("sync_queue_capacity", "Maximum snapshot sync queue capacity")
	m.queueEnqueued = m.counter("sync_queue_enqueue_total", "Snapshot sync events enqueued")
	m.queueDequeued = m.counter("sync_queue_dequeue_total", "Snapshot sync events dequeued")
	m.queueEnqueueErrors = m.counter("sync_queue_enqueue_errors_total", "Snapshot sync events dropped on enqueue")
	m.workerActive = m.gauge("sync_workers_active", "Snapshot sync workers running")
	m.snapshotSaves = m.counterVec("snapshot_saves_total",
		"Snapshot save attempts by outcome (stored, stale)", "outcome")
	m.snapshotSaveErrors = m.counter("snapshot_save_errors_total", "Snapshot saves that returned an error")
	m.snapshotLatency = m.histogram("snapshot_save_latency_milliseconds",
		"Snapshot store write latency", m.histogramBuckets)

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors grouped by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// Transfer metrics.

// RecordTransfer counts a transfer outcome.
func RecordTransfer(kind, outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.transfers.WithLabelValues(kind, outcome).Inc()
}

// RecordTransferRejection counts a rejected transfer by code.
func RecordTransferRejection(kind, code string) {
	if !globalManager.enabled {
		return
	}
	globalManager.transferRejections.WithLabelValues(kind, code).Inc()
}

// RecordTransferLatency observes validate+execute latency.
func RecordTransferLatency(kind string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.transferLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordRollback counts a rollback attempt.
func RecordRollback(kind, outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.rollbacks.WithLabelValues(kind, outcome).Inc()
}

// RecordLockContention counts a lock acquisition refused to a second operation.
func RecordLockContention() {
	if !globalManager.enabled {
		return
	}
	globalManager.lockContention.Inc()
}

// UpdateLocksHeld sets the number of held item locks.
func UpdateLocksHeld(count int) {
	globalManager.locksHeld.Set(float64(count))
}

// Table metrics.

// RecordPositionNotifications adds delivered listener notifications.
func RecordPositionNotifications(count int) {
	if !globalManager.enabled || count <= 0 {
		return
	}
	globalManager.positionNotifications.Add(float64(count))
}

// UpdateOccupiedPositions sets the occupied position gauge.
func UpdateOccupiedPositions(count int) {
	globalManager.occupiedPositions.Set(float64(count))
}

// UpdateActiveSessions sets the active session gauge.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// Scoring metrics.

// RecordSuggestion observes a drop-zone scoring call.
func RecordSuggestion(candidates int, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.suggestionCandidates.Observe(float64(candidates))
	globalManager.suggestionLatency.Observe(latencyMs)
}

// Sync pipeline metrics.

// UpdateQueueSize sets the sync queue backlog.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the sync queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of running sync workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordSnapshotSave counts a store write by outcome.
func RecordSnapshotSave(outcome string, latencyMs float64) {
	globalManager.snapshotSaves.WithLabelValues(outcome).Inc()
	globalManager.snapshotLatency.Observe(latencyMs)
}

// RecordSnapshotSaveError counts a failed store write.
func RecordSnapshotSaveError() {
	globalManager.snapshotSaveErrors.Inc()
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// Default returns the manager behind the package-level helpers.
func Default() *Manager {
	return globalManager
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
