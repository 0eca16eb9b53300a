// Package reconcile schedules repairs of the App document's date index and
// organization summaries.
//
// The index is written after the OrgDocument it is derived from, in a separate
// conditional write. When that second write fails the service asks a Scheduler for a
// rebuild instead of failing the request.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trailhead/internal/platform/metrics"
)

const (
	TriggerIndexFailure = "index_failure"
	TriggerAdmin        = "admin"
	TriggerKafka        = "kafka"
)

// Request asks for a rebuild. OrgSlug names the org whose write left the index
// stale; a rebuild always covers every org.
type Request struct {
	Trigger     string    `json:"trigger"`
	OrgSlug     string    `json:"orgSlug,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RequestID   string    `json:"requestId,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

type Scheduler interface {
	Schedule(ctx context.Context, req Request) error
}

// RebuildFunc rewrites the date index from the stored OrgDocuments.
type RebuildFunc func(ctx context.Context) error

var ErrNoRebuild = errors.New("reconcile: rebuild func is required")

type options struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	debounce time.Duration
	now      func() time.Time
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDebounce sets how long the consumer waits after the first request of a burst
// before rebuilding.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.debounce = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   slog.Default(),
		debounce: 2 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Inline rebuilds synchronously inside Schedule. It suits single-process
// deployments and tests.
type Inline struct {
	rebuild RebuildFunc
	options
}

func NewInline(rebuild RebuildFunc, opts ...Option) (*Inline, error) {
	if rebuild == nil {
		return nil, ErrNoRebuild
	}
	return &Inline{rebuild: rebuild, options: newOptions(opts)}, nil
}

func (i *Inline) Schedule(ctx context.Context, req Request) error {
	start := i.now()
	err := i.rebuild(ctx)
	i.metrics.IncrementReconcile(req.Trigger, outcome(err))
	if err != nil {
		i.logger.ErrorContext(ctx, "date index rebuild failed",
			"trigger", req.Trigger,
			"org_slug", req.OrgSlug,
			"error", err,
		)
		return err
	}
	i.logger.InfoContext(ctx, "date index rebuilt",
		"trigger", req.Trigger,
		"org_slug", req.OrgSlug,
		"duration_ms", i.now().Sub(start).Milliseconds(),
	)
	return nil
}
