package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"trailhead/internal/registry/adapters/adaptertest"
	"trailhead/internal/registry/models"
)

func TestBadgerConformance(t *testing.T) {
	suite.Run(t, &adaptertest.Suite{
		New: func(t *testing.T) adaptertest.Harness {
			bucket, err := OpenBadger("", true, nil)
			if err != nil {
				t.Fatalf("open badger: %v", err)
			}
			store := New(bucket, WithBackendName("badger"))
			return adaptertest.Harness{
				Store:   store,
				SeedOrg: store.SeedOrg,
				Cleanup: func() { _ = store.Close() },
			}
		},
	})
}

type BadgerBucketSuite struct {
	suite.Suite
	ctx    context.Context
	bucket *BadgerBucket
}

func TestBadgerBucketSuite(t *testing.T) {
	suite.Run(t, new(BadgerBucketSuite))
}

func (s *BadgerBucketSuite) SetupTest() {
	s.ctx = context.Background()
	bucket, err := OpenBadger("", true, nil)
	s.Require().NoError(err)
	s.bucket = bucket
}

func (s *BadgerBucketSuite) TearDownTest() {
	s.Require().NoError(s.bucket.Close())
}

// TestConditionalPut verifies If-Match semantics on the bucket itself.
func (s *BadgerBucketSuite) TestConditionalPut() {
	_, err := s.bucket.Get(s.ctx, "k")
	s.ErrorIs(err, ErrObjectNotFound)

	e1, err := s.bucket.Put(s.ctx, "k", []byte("one"), models.ETagAbsent)
	s.Require().NoError(err)
	s.NotContains(string(e1), `"`, "etags are bare tokens; HTTP quoting is the handler's job")

	_, err = s.bucket.Put(s.ctx, "k", []byte("two"), models.ETagAbsent)
	s.ErrorIs(err, ErrPreconditionFailed)

	_, err = s.bucket.Put(s.ctx, "k", []byte("two"), models.ETag("stale"))
	s.ErrorIs(err, ErrPreconditionFailed)

	e2, err := s.bucket.Put(s.ctx, "k", []byte("two"), e1)
	s.Require().NoError(err)
	s.NotEqual(e1, e2)

	obj, err := s.bucket.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal("two", string(obj.Body))
	s.Equal(e2, obj.ETag)
}

// TestListAndDelete verifies prefix listing.
func (s *BadgerBucketSuite) TestListAndDelete() {
	for _, k := range []string{"registry/orgs/a.json", "registry/orgs/b.json", "registry/app.json"} {
		_, err := s.bucket.Put(s.ctx, k, []byte("{}"), models.ETagAny)
		s.Require().NoError(err)
	}
	keys, err := s.bucket.List(s.ctx, "registry/orgs/")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"registry/orgs/a.json", "registry/orgs/b.json"}, keys)

	s.Require().NoError(s.bucket.Delete(s.ctx, "registry/orgs/a.json"))
	keys, err = s.bucket.List(s.ctx, "registry/orgs/")
	s.Require().NoError(err)
	s.Equal([]string{"registry/orgs/b.json"}, keys)
}

// TestOrgSlugs verifies the store recovers slugs from object keys.
func (s *BadgerBucketSuite) TestOrgSlugs() {
	store := New(s.bucket)
	for _, slug := range []string{"acme", "bravo"} {
		_, err := store.UpsertOrg(s.ctx, slug, adaptertest.NewOrg(slug), models.ETagAny)
		s.Require().NoError(err)
	}
	slugs, err := store.OrgSlugs(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"acme", "bravo"}, slugs)
	s.Equal(models.StoragePointer{Backend: "blob", Key: "registry/orgs/acme.json"}, store.Locate("acme"))
}
