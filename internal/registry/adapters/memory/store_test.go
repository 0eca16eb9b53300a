package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"trailhead/internal/registry/adapters/adaptertest"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/pkg/platform/sentinel"
)

func TestConformance(t *testing.T) {
	suite.Run(t, &adaptertest.Suite{
		New: func(t *testing.T) adaptertest.Harness {
			store := New()
			return adaptertest.Harness{
				Store: store,
				SeedOrg: func(_ context.Context, slug string, raw []byte) error {
					store.SeedOrg(slug, raw)
					return nil
				},
			}
		},
	})
}

func TestFaultInjection(t *testing.T) {
	ctx := context.Background()
	boom := ports.Unavailable("memory", OpUpsertApp, true, errors.New("boom"))
	store := New(WithFault(func(op, _ string) error {
		if op == OpUpsertApp {
			return boom
		}
		return nil
	}))

	_, err := store.UpsertOrg(ctx, "acme", adaptertest.NewOrg("acme"), models.ETagAny)
	require.NoError(t, err)

	_, err = store.UpsertApp(ctx, adaptertest.NewApp(), models.ETagAny)
	require.ErrorIs(t, err, sentinel.ErrUnavailable)

	_, etag, err := store.GetApp(ctx)
	require.NoError(t, err)
	require.Equal(t, models.ETagAbsent, etag, "failed write must not create the document")

	store.SetFault(nil)
	_, err = store.UpsertApp(ctx, adaptertest.NewApp(), models.ETagAny)
	require.NoError(t, err)
}

func TestSeededAppWithUnknownVersion(t *testing.T) {
	store := New()
	seeded := store.SeedApp([]byte(`{"schemaVersion":"0.0.1","organizations":"garbage"}`))

	app, etag, err := store.GetApp(context.Background())
	require.NoError(t, err)
	require.Empty(t, app.Organizations)
	require.Equal(t, seeded, etag, "a stored but unusable app keeps its etag so the seed replaces it by CAS")
}
