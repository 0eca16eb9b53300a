package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"trailhead/internal/platform/metrics"
	"trailhead/internal/registry/adapters/memory"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/ports/mocks"
	"trailhead/pkg/platform/circuit"
	"trailhead/pkg/platform/sentinel"
)

type mockStore struct {
	*mocks.MockOrgRepoPort
	*mocks.MockEventRepoPort
}

var fastPolicy = Policy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

type ResilientSuite struct {
	suite.Suite
	ctx     context.Context
	orgs    *mocks.MockOrgRepoPort
	events  *mocks.MockEventRepoPort
	metrics *metrics.Metrics
	store   *Store
}

func TestResilientSuite(t *testing.T) {
	suite.Run(t, new(ResilientSuite))
}

func (s *ResilientSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ctx = context.Background()
	s.orgs = mocks.NewMockOrgRepoPort(ctrl)
	s.events = mocks.NewMockEventRepoPort(ctrl)
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.store = New(mockStore{s.orgs, s.events}, "blob", WithPolicy(fastPolicy), WithMetrics(s.metrics))
}

func transient() error {
	return ports.Unavailable("blob", "get", false, errors.New("connection reset"))
}

func (s *ResilientSuite) TestRetriesTransientFailures() {
	doc := &models.OrgDocument{}
	gomock.InOrder(
		s.orgs.EXPECT().GetOrg(gomock.Any(), "acme").Return(nil, models.ETag(""), transient()),
		s.orgs.EXPECT().GetOrg(gomock.Any(), "acme").Return(doc, models.ETag("e1"), nil),
	)

	got, etag, err := s.store.GetOrg(s.ctx, "acme")
	s.Require().NoError(err)
	s.Same(doc, got)
	s.Equal(models.ETag("e1"), etag)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.StoreRetries.WithLabelValues("blob", "GetOrg")))
}

func (s *ResilientSuite) TestGivesUpAfterPolicy() {
	s.orgs.EXPECT().GetApp(gomock.Any()).Return(nil, models.ETag(""), transient()).Times(3)

	_, _, err := s.store.GetApp(s.ctx)
	s.ErrorIs(err, sentinel.ErrUnavailable)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.StoreOps.WithLabelValues("blob", "GetApp", "unavailable")))
}

func (s *ResilientSuite) TestDoesNotRetryDomainErrors() {
	tests := []struct {
		name string
		err  error
		is   error
	}{
		{"conflict", &ports.ConcurrencyError{Kind: ports.KindOrg, Key: "acme"}, sentinel.ErrConflict},
		{"not found", &ports.NotFoundError{Kind: ports.KindOrg, Key: "acme"}, sentinel.ErrNotFound},
		{"outcome unknown", ports.Unavailable("blob", "put", true, context.DeadlineExceeded), sentinel.ErrUnavailable},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.orgs.EXPECT().UpsertOrg(gomock.Any(), "acme", gomock.Any(), models.ETag("e1")).Return(models.ETag(""), tt.err).Times(1)

			_, err := s.store.UpsertOrg(s.ctx, "acme", &models.OrgDocument{}, "e1")
			s.ErrorIs(err, tt.is)
		})
	}
}

func (s *ResilientSuite) TestCircuitOpensAndRejects() {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	breaker := circuit.New("blob",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	store := New(mockStore{s.orgs, s.events}, "blob",
		WithPolicy(Policy{MaxRetries: 0}),
		WithBreaker(breaker),
		WithMetrics(s.metrics),
	)

	s.events.EXPECT().ListToday(gomock.Any(), "2025-08-08", gomock.Any()).Return(nil, transient()).Times(2)
	for range 2 {
		_, err := store.ListToday(s.ctx, "2025-08-08", models.OrgFilter{})
		s.ErrorIs(err, sentinel.ErrUnavailable)
	}
	s.True(breaker.IsOpen())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CircuitOpen.WithLabelValues("blob")))

	_, err := store.ListToday(s.ctx, "2025-08-08", models.OrgFilter{})
	s.ErrorIs(err, ErrCircuitOpen)

	now = now.Add(time.Minute)
	s.events.EXPECT().ListToday(gomock.Any(), "2025-08-08", gomock.Any()).Return([]models.EventSummary{}, nil)
	_, err = store.ListToday(s.ctx, "2025-08-08", models.OrgFilter{})
	s.Require().NoError(err)
	s.False(breaker.IsOpen())
}

func (s *ResilientSuite) TestCapabilities() {
	s.Run("unsupported lister", func() {
		_, err := s.store.OrgSlugs(s.ctx)
		s.ErrorIs(err, errors.ErrUnsupported)
	})

	s.Run("forwards to wrapped store", func() {
		inner := memory.New()
		inner.SeedOrg("acme", []byte(`{"schemaVersion":"1.2.0"}`))

		store := New(inner, "memory")
		slugs, err := store.OrgSlugs(s.ctx)
		s.Require().NoError(err)
		s.Equal([]string{"acme"}, slugs)

		loc, ok := ports.As[ports.Locator](store)
		s.Require().True(ok)
		s.Equal("memory", loc.Locate("acme").Backend)
	})
}
