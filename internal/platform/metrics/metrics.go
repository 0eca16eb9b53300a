package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics holds the registry's Prometheus collectors. Every helper is safe to call
// on a nil *Metrics so components can run without instrumentation.
type Metrics struct {
	StoreOps             *prometheus.CounterVec
	StoreDuration        *prometheus.HistogramVec
	StoreRetries         *prometheus.CounterVec
	CircuitOpen          *prometheus.GaugeVec
	ConflictRetries      *prometheus.CounterVec
	Conflicts            *prometheus.CounterVec
	IndexFailures        prometheus.Counter
	SecondaryWriteErrors *prometheus.CounterVec
	ReconcileRuns        *prometheus.CounterVec
	HTTPRequests         *prometheus.HistogramVec
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StoreOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trailhead_store_operations_total",
			Help: "Store operations by backend, operation and outcome",
		}, []string{"backend", "op", "outcome"}),
		StoreDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trailhead_store_operation_duration_seconds",
			Help:    "Duration of store operations including retries",
			Buckets: storeBuckets,
		}, []string{"backend", "op"}),
		StoreRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trailhead_store_retries_total",
			Help: "Retries of store operations after a transient backend failure",
		}, []string{"backend", "op"}),
		CircuitOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trailhead_store_circuit_open",
			Help: "1 while the backend circuit breaker is open",
		}, []string{"backend"}),
		ConflictRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trailhead_conflict_retries_total",
			Help: "Read-modify-write cycles repeated after an ETag conflict",
		}, []string{"op"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trailhead_conflicts_surfaced_total",
			Help: "ETag conflicts returned to callers after retries ran out",
		}, []string{"op"}),
		IndexFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "trailhead_index_update_failures_total",
			Help: "App document updates that failed after a successful org write",
		}),
		SecondaryWriteErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trailhead_dualwrite_secondary_failures_total",
			Help: "Mirror writes that failed during a staged store migration",
		}, []string{"store"}),
		ReconcileRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trailhead_reconcile_runs_total",
			Help: "Date index rebuilds by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		HTTPRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trailhead_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// ObserveStoreOp records one store call. Call with time.Now() at the start of the
// operation.
func (m *Metrics) ObserveStoreOp(backend, op, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreOps.WithLabelValues(backend, op, outcome).Inc()
	m.StoreDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementStoreRetry(backend, op string) {
	if m == nil {
		return
	}
	m.StoreRetries.WithLabelValues(backend, op).Inc()
}

func (m *Metrics) SetCircuitOpen(backend string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitOpen.WithLabelValues(backend).Set(v)
}

func (m *Metrics) IncrementConflictRetry(op string) {
	if m == nil {
		return
	}
	m.ConflictRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementConflict(op string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementIndexFailure() {
	if m == nil {
		return
	}
	m.IndexFailures.Inc()
}

func (m *Metrics) IncrementSecondaryWriteError(store string) {
	if m == nil {
		return
	}
	m.SecondaryWriteErrors.WithLabelValues(store).Inc()
}

func (m *Metrics) IncrementReconcile(trigger, outcome string) {
	if m == nil {
		return
	}
	m.ReconcileRuns.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) ObserveHTTPRequest(route, method string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}
