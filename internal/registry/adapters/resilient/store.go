// Package resilient decorates a store with bounded retries of transient backend
// failures and a circuit breaker.
//
// Only *ports.BackendUnavailableError without OutcomeUnknown is retried. Validation,
// integrity, not-found and conflict errors pass through on the first attempt, and a
// write whose outcome is unknown is surfaced so the caller re-reads first.
package resilient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"trailhead/internal/platform/metrics"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/pkg/platform/circuit"
)

// ErrCircuitOpen is wrapped in the BackendUnavailableError returned while the
// breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

// Policy bounds the retry loop.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy keeps worst-case added latency well under a second.
var DefaultPolicy = Policy{
	MaxRetries:      2,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     400 * time.Millisecond,
}

type Store struct {
	next    ports.Store
	backend string
	policy  Policy
	breaker *circuit.Breaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var (
	_ ports.Store     = (*Store)(nil)
	_ ports.OrgLister = (*Store)(nil)
	_ ports.Unwrapper = (*Store)(nil)
)

type Option func(*Store)

func WithPolicy(p Policy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

// WithBreaker guards the backend with b. Without one every call reaches the backend.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		s.breaker = b
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps next. backend labels metrics and errors.
func New(next ports.Store, backend string, opts ...Option) *Store {
	s := &Store{
		next:    next,
		backend: backend,
		policy:  DefaultPolicy,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Unwrap() ports.Store {
	return s.next
}

func (s *Store) GetApp(ctx context.Context) (*models.AppDocument, models.ETag, error) {
	var (
		doc  *models.AppDocument
		etag models.ETag
	)
	err := s.do(ctx, "GetApp", func() (err error) {
		doc, etag, err = s.next.GetApp(ctx)
		return err
	})
	return doc, etag, err
}

func (s *Store) GetOrg(ctx context.Context, orgSlug string) (*models.OrgDocument, models.ETag, error) {
	var (
		doc  *models.OrgDocument
		etag models.ETag
	)
	err := s.do(ctx, "GetOrg", func() (err error) {
		doc, etag, err = s.next.GetOrg(ctx, orgSlug)
		return err
	})
	return doc, etag, err
}

func (s *Store) ListOrgs(ctx context.Context, filter models.OrgFilter) ([]models.OrganizationSummary, error) {
	var out []models.OrganizationSummary
	err := s.do(ctx, "ListOrgs", func() (err error) {
		out, err = s.next.ListOrgs(ctx, filter)
		return err
	})
	return out, err
}

func (s *Store) UpsertOrg(ctx context.Context, orgSlug string, doc *models.OrgDocument, expected models.ETag) (models.ETag, error) {
	var etag models.ETag
	err := s.do(ctx, "UpsertOrg", func() (err error) {
		etag, err = s.next.UpsertOrg(ctx, orgSlug, doc, expected)
		return err
	})
	return etag, err
}

func (s *Store) UpsertApp(ctx context.Context, doc *models.AppDocument, expected models.ETag) (models.ETag, error) {
	var etag models.ETag
	err := s.do(ctx, "UpsertApp", func() (err error) {
		etag, err = s.next.UpsertApp(ctx, doc, expected)
		return err
	})
	return etag, err
}

func (s *Store) ListToday(ctx context.Context, date string, filter models.OrgFilter) ([]models.EventSummary, error) {
	var out []models.EventSummary
	err := s.do(ctx, "ListToday", func() (err error) {
		out, err = s.next.ListToday(ctx, date, filter)
		return err
	})
	return out, err
}

func (s *Store) GetEvent(ctx context.Context, orgSlug, huntID string) (*models.Event, models.ETag, error) {
	var (
		ev   *models.Event
		etag models.ETag
	)
	err := s.do(ctx, "GetEvent", func() (err error) {
		ev, etag, err = s.next.GetEvent(ctx, orgSlug, huntID)
		return err
	})
	return ev, etag, err
}

func (s *Store) UpsertEvent(ctx context.Context, event *models.Event, expected models.ETag) (*models.Event, models.ETag, error) {
	var (
		ev   *models.Event
		etag models.ETag
	)
	err := s.do(ctx, "UpsertEvent", func() (err error) {
		ev, etag, err = s.next.UpsertEvent(ctx, event, expected)
		return err
	})
	return ev, etag, err
}

// OrgSlugs forwards to the wrapped store. It returns errors.ErrUnsupported when no
// store in the chain can enumerate orgs.
func (s *Store) OrgSlugs(ctx context.Context) ([]string, error) {
	lister, ok := ports.As[ports.OrgLister](s.next)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	var out []string
	err := s.do(ctx, "OrgSlugs", func() (err error) {
		out, err = lister.OrgSlugs(ctx)
		return err
	})
	return out, err
}

func (s *Store) Close() error {
	if c, ok := s.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) do(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	attempt := 0
	operation := func() error {
		if s.breaker != nil && !s.breaker.Allow() {
			return backoff.Permanent(ports.Unavailable(s.backend, op, false, ErrCircuitOpen))
		}
		attempt++
		err := fn()
		s.record(err)
		if err == nil || !ports.IsRetryable(err) {
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.metrics.IncrementStoreRetry(s.backend, op)
		s.logger.DebugContext(ctx, "retrying store operation",
			"backend", s.backend,
			"op", op,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(s.newBackOff(), ctx), notify)
	s.metrics.ObserveStoreOp(s.backend, op, outcome(err), start)
	return err
}

func (s *Store) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.policy.InitialInterval
	b.MaxInterval = s.policy.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, s.policy.MaxRetries)
}

// record feeds the breaker. Only backend unavailability counts as a failure; every
// other answer shows the backend is reachable.
func (s *Store) record(err error) {
	if s.breaker == nil {
		return
	}
	var bue *ports.BackendUnavailableError
	if errors.As(err, &bue) {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.metrics.SetCircuitOpen(s.backend, true)
			s.logger.Warn("store circuit opened", "backend", s.backend, "error", err)
		}
		return
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.metrics.SetCircuitOpen(s.backend, false)
		s.logger.Info("store circuit closed", "backend", s.backend)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case ports.IsConflict(err):
		return "conflict"
	case ports.IsNotFound(err):
		return "not_found"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	default:
		var bue *ports.BackendUnavailableError
		if errors.As(err, &bue) {
			return "unavailable"
		}
		return "error"
	}
}
