package dualwrite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"trailhead/internal/registry/adapters/adaptertest"
	"trailhead/internal/registry/adapters/memory"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/pkg/platform/sentinel"
)

type failure struct {
	op, key string
	err     error
}

type DualWriteSuite struct {
	suite.Suite
	ctx       context.Context
	old, next *memory.Store
	store     *Store

	mu       sync.Mutex
	failures []failure
}

func TestDualWriteSuite(t *testing.T) {
	suite.Run(t, new(DualWriteSuite))
}

func TestDualWriteConformance(t *testing.T) {
	suite.Run(t, &adaptertest.Suite{
		New: func(t *testing.T) adaptertest.Harness {
			primary := memory.New()
			store, err := New(Named{"old", primary}, Named{"new", memory.New()},
				func(context.Context, string, string, error) {})
			if err != nil {
				t.Fatalf("new dualwrite: %v", err)
			}
			return adaptertest.Harness{
				Store: store,
				SeedOrg: func(_ context.Context, slug string, raw []byte) error {
					primary.SeedOrg(slug, raw)
					return nil
				},
			}
		},
	})
}

func (s *DualWriteSuite) SetupTest() {
	s.ctx = context.Background()
	s.old = memory.New()
	s.next = memory.New()
	s.failures = nil
	store, err := New(Named{"old", s.old}, Named{"new", s.next}, s.recordFailure)
	s.Require().NoError(err)
	s.store = store
}

func (s *DualWriteSuite) recordFailure(_ context.Context, op, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{op, key, err})
}

func (s *DualWriteSuite) TestRequiresFailureHandler() {
	_, err := New(Named{"old", s.old}, Named{"new", s.next}, nil)
	s.Error(err)
}

func (s *DualWriteSuite) TestWriteMirrors() {
	res, err := s.store.UpsertOrgDual(s.ctx, "acme", adaptertest.NewOrg("acme"), models.ETagAbsent)
	s.Require().NoError(err)
	s.True(res.Primary.OK())
	s.True(res.Secondary.OK())

	_, oldTag, err := s.old.GetOrg(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(res.Primary.ETag, oldTag)

	_, newTag, err := s.next.GetOrg(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(res.Secondary.ETag, newTag)
}

func (s *DualWriteSuite) TestPrimaryFailureSkipsMirror() {
	_, err := s.store.UpsertOrg(s.ctx, "acme", adaptertest.NewOrg("acme"), models.ETagAbsent)
	s.Require().NoError(err)

	res, err := s.store.UpsertOrgDual(s.ctx, "acme", adaptertest.NewOrg("acme"), models.ETagAbsent)
	s.ErrorIs(err, sentinel.ErrConflict)
	s.ErrorIs(res.Primary.Err, sentinel.ErrConflict)
	s.True(res.Secondary.Skipped)
	s.Empty(s.failures)
}

func (s *DualWriteSuite) TestMirrorFailureIsReportedNotReturned() {
	outage := ports.Unavailable("new", "put", false, errors.New("down"))
	s.next.SetFault(func(op, _ string) error {
		if op == memory.OpUpsertApp {
			return outage
		}
		return nil
	})

	res, err := s.store.UpsertAppDual(s.ctx, adaptertest.NewApp(), models.ETagAbsent)
	s.Require().NoError(err)
	s.True(res.Primary.OK())
	s.False(res.Secondary.OK())
	s.ErrorIs(res.Secondary.Err, sentinel.ErrUnavailable)

	s.Require().Len(s.failures, 1)
	s.Equal("UpsertApp", s.failures[0].op)
	s.Equal("app", s.failures[0].key)
	s.ErrorIs(s.failures[0].err, sentinel.ErrUnavailable)
}

func (s *DualWriteSuite) TestReadFallsBackToMirror() {
	_, err := s.next.UpsertOrg(s.ctx, "acme", adaptertest.NewOrg("acme"), models.ETagAny)
	s.Require().NoError(err)

	doc, etag, err := s.store.GetOrg(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal("acme", doc.Org.OrgSlug)
	s.Equal(models.ETagAbsent, etag, "mirror-only documents read as absent from the authoritative store")

	s.Run("next conditional write migrates it", func() {
		_, err := s.store.UpsertOrg(s.ctx, "acme", doc, etag)
		s.Require().NoError(err)
		_, oldTag, err := s.old.GetOrg(s.ctx, "acme")
		s.Require().NoError(err)
		s.NotEqual(models.ETagAbsent, oldTag)
	})

	s.Run("missing everywhere is not found", func() {
		_, _, err := s.store.GetOrg(s.ctx, "nobody")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *DualWriteSuite) TestAppFallsBackToMirror() {
	_, err := s.next.UpsertApp(s.ctx, adaptertest.NewApp(adaptertest.NewOrg("acme")), models.ETagAny)
	s.Require().NoError(err)

	app, etag, err := s.store.GetApp(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.ETagAbsent, etag)
	s.Len(app.Organizations, 1)
}

func (s *DualWriteSuite) TestOrgSlugsUnion() {
	_, err := s.old.UpsertOrg(s.ctx, "bravo", adaptertest.NewOrg("bravo"), models.ETagAny)
	s.Require().NoError(err)
	_, err = s.next.UpsertOrg(s.ctx, "acme", adaptertest.NewOrg("acme"), models.ETagAny)
	s.Require().NoError(err)
	_, err = s.next.UpsertOrg(s.ctx, "bravo", adaptertest.NewOrg("bravo"), models.ETagAny)
	s.Require().NoError(err)

	slugs, err := s.store.OrgSlugs(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"acme", "bravo"}, slugs)
}
