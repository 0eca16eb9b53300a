package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"trailhead/internal/platform/config"
	"trailhead/internal/registry/adapters/adaptertest"
	"trailhead/internal/registry/adapters/media"
	"trailhead/internal/registry/adapters/memory"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
)

type FactorySuite struct {
	suite.Suite
	ctx context.Context
}

func TestFactorySuite(t *testing.T) {
	suite.Run(t, new(FactorySuite))
}

func (s *FactorySuite) SetupTest() {
	s.ctx = context.Background()
}

func baseConfig() Config {
	return FromConfig(config.Default())
}

func (s *FactorySuite) TestSelection() {
	tests := []struct {
		name string
		cfg  func(*Config)
		want Selection
	}{
		{
			name: "single store",
			cfg:  func(c *Config) { c.PrimaryStore = StoreTable },
			want: Selection{Authoritative: StoreTable, Media: "mock"},
		},
		{
			name: "dual write reads old store first",
			cfg: func(c *Config) {
				c.PrimaryStore, c.SecondaryStore = StoreBlob, StoreTable
			},
			want: Selection{Authoritative: StoreBlob, Mirror: StoreTable, Media: "mock"},
		},
		{
			name: "dual write reads new store first",
			cfg: func(c *Config) {
				c.PrimaryStore, c.SecondaryStore, c.ReadNewStoreFirst = StoreBlob, StoreTable, true
			},
			want: Selection{Authoritative: StoreTable, Mirror: StoreBlob, Media: "mock"},
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			cfg := baseConfig()
			tt.cfg(&cfg)
			got, err := New(cfg).Selection()
			s.Require().NoError(err)
			s.Equal(tt.want, got)
			s.Equal(tt.want.Mirror != "", got.DualWrite())
		})
	}

	s.Run("unknown kind", func() {
		cfg := baseConfig()
		cfg.PrimaryStore = "dynamo"
		_, err := New(cfg).Selection()
		s.ErrorIs(err, ErrUnknownStore)
	})
}

func (s *FactorySuite) TestStoresAreCached() {
	f := New(baseConfig())
	defer f.Close()

	orgs, err := f.OrgRepo(s.ctx)
	s.Require().NoError(err)
	events, err := f.EventRepo(s.ctx)
	s.Require().NoError(err)
	s.Same(orgs.(ports.Store), events.(ports.Store))

	_, err = orgs.UpsertOrg(s.ctx, "acme", adaptertest.NewOrg("acme"), models.ETagAbsent)
	s.Require().NoError(err)
	again, err := f.OrgRepo(s.ctx)
	s.Require().NoError(err)
	_, _, err = again.GetOrg(s.ctx, "acme")
	s.NoError(err, "second lookup returns the same backing store")
}

func (s *FactorySuite) TestBadgerBlobWithBucketMedia() {
	cfg := baseConfig()
	cfg.PrimaryStore = StoreBlob
	cfg.Media.Provider = "bucket"
	f := New(cfg)
	defer f.Close()

	store, err := f.Store(s.ctx)
	s.Require().NoError(err)
	loc, ok := ports.As[ports.Locator](store)
	s.Require().True(ok)
	s.Equal("badger", loc.Locate("acme").Backend)

	mp, err := f.Media(s.ctx)
	s.Require().NoError(err)
	s.IsType(&media.BucketMedia{}, mp)
}

func (s *FactorySuite) TestDualWrite() {
	cfg := baseConfig()
	cfg.PrimaryStore, cfg.SecondaryStore = StoreMock, StoreBlob
	f := New(cfg)
	defer f.Close()

	store, err := f.Store(s.ctx)
	s.Require().NoError(err)
	dual, ok := ports.As[ports.DualWriter](store)
	s.Require().True(ok)

	res, err := dual.UpsertOrgDual(s.ctx, "acme", adaptertest.NewOrg("acme"), models.ETagAbsent)
	s.Require().NoError(err)
	s.Equal("mock", res.Primary.Store)
	s.Equal("blob", res.Secondary.Store)
	s.True(res.Secondary.OK())
}

func (s *FactorySuite) TestOverrideAndReset() {
	f := New(baseConfig())
	defer f.Close()

	fake := memory.New()
	f.Override(Overrides{Store: fake, Media: media.NewMemoryMedia("")})
	got, err := f.Store(s.ctx)
	s.Require().NoError(err)
	s.Same(fake, got.(*memory.Store))

	cfg := baseConfig()
	cfg.PrimaryStore = "dynamo"
	s.Require().NoError(f.Reset(cfg))
	_, err = f.Store(s.ctx)
	s.ErrorIs(err, ErrUnknownStore, "reset drops overrides and applies the new config")
}
