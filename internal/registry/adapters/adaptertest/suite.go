// Package adaptertest holds the behavior every registry store must share. Each
// adapter package runs Suite against its own backend.
package adaptertest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
	"trailhead/pkg/platform/sentinel"
)

// Harness is one freshly emptied store under test.
type Harness struct {
	Store ports.Store
	// SeedOrg writes raw bytes under slug, bypassing validation. Optional; legacy
	// migration cases are skipped without it.
	SeedOrg func(ctx context.Context, slug string, raw []byte) error
	Cleanup func()
}

// Suite is the conformance suite. Set New before running it.
type Suite struct {
	suite.Suite
	New func(t *testing.T) Harness

	ctx   context.Context
	h     Harness
	store ports.Store
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.New, "adaptertest.Suite.New must be set")
	s.ctx = context.Background()
	s.h = s.New(s.T())
	s.store = s.h.Store
}

func (s *Suite) TearDownTest() {
	if s.h.Cleanup != nil {
		s.h.Cleanup()
	}
}

// TestEmptyStoreScenario walks the bootstrap sequence on an empty store.
func (s *Suite) TestEmptyStoreScenario() {
	app, e0, err := s.store.GetApp(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.ETagAbsent, e0)
	s.Equal(schema.AppCurrentVersion, app.SchemaVersion)
	s.Empty(app.Organizations)

	e1, err := s.store.UpsertOrg(s.ctx, "acme", NewOrg("acme"), models.ETagAny)
	s.Require().NoError(err)
	s.NotEmpty(e1)
	s.NotEqual(models.ETagAbsent, e1)

	_, err = s.store.UpsertOrg(s.ctx, "acme", NewOrg("acme"), e0)
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrConflict)
	var ce *ports.ConcurrencyError
	s.Require().ErrorAs(err, &ce)
	s.Equal(ports.KindOrg, ce.Kind)
	s.Equal("acme", ce.Key)
}

// TestOrgRoundTrip verifies documents read back exactly as written.
func (s *Suite) TestOrgRoundTrip() {
	doc := NewOrg("acme", NewHunt("h1", "2025-08-08", "2025-08-09"), NewHunt("h2", "2025-09-01", "2025-09-01"))
	doc.Hunts[0].Stops[0].Media = &models.MediaPointer{
		MediaType: models.MediaTypeImage,
		PublicID:  "stops/fountain",
		URL:       "https://media.example.test/stops/fountain.jpg",
		Width:     640,
		Height:    480,
		CreatedAt: Stamp,
	}
	etag, err := s.store.UpsertOrg(s.ctx, "acme", doc, models.ETagAbsent)
	s.Require().NoError(err)

	got, gotTag, err := s.store.GetOrg(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(etag, gotTag)
	s.Equal(doc, got)
}

// TestETagLifecycle verifies tokens change on every successful write and never on a
// failed one.
func (s *Suite) TestETagLifecycle() {
	e1, err := s.store.UpsertOrg(s.ctx, "acme", NewOrg("acme"), models.ETagAbsent)
	s.Require().NoError(err)
	s.NotContains(string(e1), `"`, "etags are bare tokens")

	doc := NewOrg("acme", NewHunt("h1", "2025-08-08", "2025-08-08"))
	e2, err := s.store.UpsertOrg(s.ctx, "acme", doc, e1)
	s.Require().NoError(err)
	s.NotEqual(e1, e2)

	s.Run("same expected etag twice conflicts", func() {
		_, err := s.store.UpsertOrg(s.ctx, "acme", doc, e1)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("failed write leaves the stored etag alone", func() {
		_, current, err := s.store.GetOrg(s.ctx, "acme")
		s.Require().NoError(err)
		s.Equal(e2, current)
	})

	s.Run("create-only write conflicts once the org exists", func() {
		_, err := s.store.UpsertOrg(s.ctx, "acme", doc, models.ETagAbsent)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unconditional write always applies", func() {
		e3, err := s.store.UpsertOrg(s.ctx, "acme", doc, models.ETagAny)
		s.Require().NoError(err)
		s.NotEqual(e2, e3)
	})
}

// TestConcurrentWriters races writers that all read the same etag.
func (s *Suite) TestConcurrentWriters() {
	base, err := s.store.UpsertOrg(s.ctx, "acme", NewOrg("acme"), models.ETagAbsent)
	s.Require().NoError(err)

	const writers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hunt := NewHunt(string(rune('a'+i)), "2025-08-08", "2025-08-08")
			_, err := s.store.UpsertOrg(s.ctx, "acme", NewOrg("acme", hunt), base)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case ports.IsConflict(err):
				conflicts++
			}
		}()
	}
	wg.Wait()
	s.Equal(1, wins)
	s.Equal(writers-1, conflicts)
}

// TestAppDocument verifies App CAS follows the same rules as orgs.
func (s *Suite) TestAppDocument() {
	org := NewOrg("acme", NewHunt("h1", "2025-08-08", "2025-08-09"))
	app := NewApp(org)

	e1, err := s.store.UpsertApp(s.ctx, app, models.ETagAbsent)
	s.Require().NoError(err)

	_, err = s.store.UpsertApp(s.ctx, app, models.ETagAbsent)
	s.ErrorIs(err, sentinel.ErrConflict)

	got, gotTag, err := s.store.GetApp(s.ctx)
	s.Require().NoError(err)
	s.Equal(e1, gotTag)
	s.Equal(app.ByDate, got.ByDate)
	s.Equal(app.Organizations, got.Organizations)

	e2, err := s.store.UpsertApp(s.ctx, got, gotTag)
	s.Require().NoError(err)
	s.NotEqual(e1, e2)
}

// TestNotFoundAndValidation verifies the typed errors for missing and malformed data.
func (s *Suite) TestNotFoundAndValidation() {
	s.Run("missing org", func() {
		_, _, err := s.store.GetOrg(s.ctx, "ghost")
		s.ErrorIs(err, sentinel.ErrNotFound)
		var nf *ports.NotFoundError
		s.Require().ErrorAs(err, &nf)
		s.Equal("ghost", nf.Key)
	})

	s.Run("slug mismatch is rejected before writing", func() {
		_, err := s.store.UpsertOrg(s.ctx, "acme", NewOrg("other"), models.ETagAny)
		s.ErrorIs(err, sentinel.ErrInvalid)
		_, _, err = s.store.GetOrg(s.ctx, "acme")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate hunt ids are rejected", func() {
		doc := NewOrg("acme", NewHunt("h1", "2025-08-08", "2025-08-08"), NewHunt("h1", "2025-08-09", "2025-08-09"))
		_, err := s.store.UpsertOrg(s.ctx, "acme", doc, models.ETagAny)
		var ve *schema.ValidationError
		s.Require().ErrorAs(err, &ve)
		s.NotEmpty(ve.Fields)
	})

	s.Run("end before start is rejected", func() {
		doc := NewOrg("acme", NewHunt("h1", "2025-08-09", "2025-08-08"))
		_, err := s.store.UpsertOrg(s.ctx, "acme", doc, models.ETagAny)
		s.ErrorIs(err, sentinel.ErrInvalid)
	})
}

// TestEvents verifies the hunt projection.
func (s *Suite) TestEvents() {
	org := NewOrg("acme", NewHunt("h1", "2025-08-08", "2025-08-09"))
	other := NewOrg("bravo", NewHunt("b1", "2025-08-08", "2025-08-08"))
	orgTag, err := s.store.UpsertOrg(s.ctx, "acme", org, models.ETagAbsent)
	s.Require().NoError(err)
	_, err = s.store.UpsertOrg(s.ctx, "bravo", other, models.ETagAbsent)
	s.Require().NoError(err)
	_, err = s.store.UpsertApp(s.ctx, NewApp(org, other), models.ETagAbsent)
	s.Require().NoError(err)

	s.Run("lists hunts running on a date", func() {
		got, err := s.store.ListToday(s.ctx, "2025-08-08", models.OrgFilter{})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("acme", got[0].OrgSlug)
		s.Equal("h1", got[0].HuntID)
		s.Equal("bravo", got[1].OrgSlug)
	})

	s.Run("filters by org", func() {
		got, err := s.store.ListToday(s.ctx, "2025-08-08", models.OrgFilter{Slugs: []string{"bravo"}})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("b1", got[0].HuntID)
	})

	s.Run("empty date", func() {
		got, err := s.store.ListToday(s.ctx, "2030-01-01", models.OrgFilter{})
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("malformed date", func() {
		_, err := s.store.ListToday(s.ctx, "08/08/2025", models.OrgFilter{})
		s.ErrorIs(err, sentinel.ErrInvalid)
	})

	s.Run("get event carries the org etag", func() {
		ev, etag, err := s.store.GetEvent(s.ctx, "acme", "h1")
		s.Require().NoError(err)
		s.Equal(orgTag, etag)
		s.Equal("Org acme", ev.OrgName)
		s.Equal(org.Hunts[0], ev.Hunt)

		_, _, err = s.store.GetEvent(s.ctx, "acme", "nope")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("upsert event is conditional on the org etag", func() {
		ev, etag, err := s.store.GetEvent(s.ctx, "acme", "h1")
		s.Require().NoError(err)
		ev.Hunt.Name = "Renamed"

		updated, next, err := s.store.UpsertEvent(s.ctx, ev, etag)
		s.Require().NoError(err)
		s.NotEqual(etag, next)
		s.Equal("Renamed", updated.Hunt.Name)

		_, _, err = s.store.UpsertEvent(s.ctx, ev, etag)
		s.ErrorIs(err, sentinel.ErrConflict)

		doc, docTag, err := s.store.GetOrg(s.ctx, "acme")
		s.Require().NoError(err)
		s.Equal(next, docTag)
		s.Equal("Renamed", doc.Hunts[0].Name)
	})

	s.Run("list orgs", func() {
		got, err := s.store.ListOrgs(s.ctx, models.OrgFilter{NamePrefix: "org b"})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("bravo", got[0].OrgSlug)
	})
}

// TestLegacyOrgMigratesOnRead verifies stored 1.0.0 documents are upgraded on read.
func (s *Suite) TestLegacyOrgMigratesOnRead() {
	if s.h.SeedOrg == nil {
		s.T().Skip("store cannot seed raw documents")
	}
	s.Require().NoError(s.h.SeedOrg(s.ctx, "legacy", LegacyOrgV1("legacy")))

	doc, etag, err := s.store.GetOrg(s.ctx, "legacy")
	s.Require().NoError(err)
	s.NotEmpty(etag)
	s.Equal(schema.OrgCurrentVersion, doc.SchemaVersion)
	s.Equal([]string{"RED", "GREEN", "BLUE", "YELLOW", "ORANGE"}, doc.Org.Settings.DefaultTeams)
	s.Require().Len(doc.Hunts, 1)
	s.Equal(models.HuntStatusCompleted, doc.Hunts[0].Status)

	s.Run("migrated document writes back at the current version", func() {
		next, err := s.store.UpsertOrg(s.ctx, "legacy", doc, etag)
		s.Require().NoError(err)
		s.NotEqual(etag, next)
	})
}
