package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"trailhead/internal/registry/adapters/adaptertest"
	"trailhead/internal/registry/adapters/blob"
	"trailhead/internal/registry/models"
	"trailhead/pkg/requestcontext"
)

// TestConcurrentHuntsOnBlobStore runs writers against one org on a real
// compare-and-swap backend and checks no hunt goes missing from the index.
func TestConcurrentHuntsOnBlobStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bucket, err := blob.OpenBadger("", true, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bucket.Close() })

	svc := New(blob.New(bucket, blob.WithLogger(logger)),
		WithLogger(logger),
		WithMaxRetries(64),
	)
	ctx := requestcontext.WithTime(context.Background(), adaptertest.Stamp)

	_, err = svc.CreateOrg(ctx, NewOrg{
		Slug:     "acme",
		Name:     "Acme",
		Contacts: []models.Contact{{Name: "Owner", Email: "owner@acme.test", Primary: true}},
		Settings: models.OrgSettings{Timezone: "UTC"},
	})
	require.NoError(t, err)

	const writers = 8
	g, gctx := errgroup.WithContext(ctx)
	for i := range writers {
		g.Go(func() error {
			id := fmt.Sprintf("h%d", i)
			_, err := svc.CreateHunt(gctx, "acme", adaptertest.NewHunt(id, "2025-08-08", "2025-08-08"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	events, err := svc.ListToday(ctx, "2025-08-08", models.OrgFilter{})
	require.NoError(t, err)
	assert.Len(t, events, writers)

	app, _, err := svc.GetApp(ctx)
	require.NoError(t, err)
	i := app.FindOrganization("acme")
	require.NotEqual(t, -1, i)
	assert.Equal(t, writers, app.Organizations[i].Summary.HuntsTotal)
}
