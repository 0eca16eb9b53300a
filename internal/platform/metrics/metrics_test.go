package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStoreOp("memory", "GetApp", "ok", time.Now())
		m.IncrementStoreRetry("memory", "GetApp")
		m.SetCircuitOpen("memory", true)
		m.IncrementConflictRetry("CreateHunt")
		m.IncrementConflict("CreateHunt")
		m.IncrementIndexFailure()
		m.IncrementSecondaryWriteError("table")
		m.IncrementReconcile("kafka", "ok")
		m.ObserveHTTPRequest("/v1/app", "GET", 200, time.Now())
	})
}

func TestCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveStoreOp("blob", "UpsertOrg", "conflict", time.Now())
	m.ObserveStoreOp("blob", "UpsertOrg", "conflict", time.Now())
	m.SetCircuitOpen("blob", true)
	m.IncrementIndexFailure()
	m.ObserveHTTPRequest("/v1/orgs/{slug}", "GET", 404, time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoreOps.WithLabelValues("blob", "UpsertOrg", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitOpen.WithLabelValues("blob")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequests))

	m.SetCircuitOpen("blob", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitOpen.WithLabelValues("blob")))
}
