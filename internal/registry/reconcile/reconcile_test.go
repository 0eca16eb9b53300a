package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"trailhead/internal/platform/metrics"
)

func TestInlineRunsRebuild(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	calls := 0
	inline, err := NewInline(func(context.Context) error {
		calls++
		return nil
	}, WithMetrics(m))
	require.NoError(t, err)

	require.NoError(t, inline.Schedule(context.Background(), Request{Trigger: TriggerIndexFailure, OrgSlug: "acme"}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRuns.WithLabelValues(TriggerIndexFailure, "ok")))
}

func TestInlineSurfacesRebuildError(t *testing.T) {
	boom := errors.New("boom")
	inline, err := NewInline(func(context.Context) error { return boom })
	require.NoError(t, err)

	err = inline.Schedule(context.Background(), Request{Trigger: TriggerAdmin})
	assert.ErrorIs(t, err, boom)
}

func TestNewRequiresRebuild(t *testing.T) {
	_, err := NewInline(nil)
	assert.ErrorIs(t, err, ErrNoRebuild)
	_, err = NewConsumer(nil, nil)
	assert.ErrorIs(t, err, ErrNoRebuild)
}

func TestConsumerDecodeSkipsCoveredAndMalformed(t *testing.T) {
	c, err := NewConsumer(nil, func(context.Context) error { return nil })
	require.NoError(t, err)

	covered := time.Date(2025, 8, 8, 12, 0, 0, 0, time.UTC)
	record := func(req Request) *kgo.Record {
		body, err := json.Marshal(req)
		require.NoError(t, err)
		return &kgo.Record{Value: body}
	}
	records := []*kgo.Record{
		record(Request{Trigger: TriggerIndexFailure, OrgSlug: "old", RequestedAt: covered.Add(-time.Minute)}),
		{Value: []byte("not json")},
		record(Request{Trigger: TriggerIndexFailure, OrgSlug: "new", RequestedAt: covered.Add(time.Minute)}),
	}

	got := c.decode(context.Background(), records, covered)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].OrgSlug)

	assert.Len(t, c.decode(context.Background(), records, time.Time{}), 2, "nothing is covered before the first rebuild")
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.True(t, sleep(context.Background(), 0))
}
