// Package eventview projects hunts held in OrgDocuments as events.
//
// It serves EventRepoPort for adapters that store whole documents and have no
// per-hunt structure of their own: date lookups go through the App byDate index and
// then load each referenced OrgDocument.
package eventview

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
)

const defaultFanOut = 8

// View implements ports.EventRepoPort on top of an OrgRepoPort.
type View struct {
	orgs   ports.OrgRepoPort
	logger *slog.Logger
	fanOut int
	now    func() time.Time
}

type Option func(*View)

func WithLogger(logger *slog.Logger) Option {
	return func(v *View) {
		v.logger = logger
	}
}

// WithFanOut bounds how many OrgDocuments ListToday loads concurrently.
func WithFanOut(n int) Option {
	return func(v *View) {
		if n > 0 {
			v.fanOut = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *View) {
		v.now = now
	}
}

func New(orgs ports.OrgRepoPort, opts ...Option) *View {
	v := &View{
		orgs:   orgs,
		logger: slog.Default(),
		fanOut: defaultFanOut,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ListToday returns the hunts indexed under date. Index entries whose org or hunt no
// longer exists are skipped: the index is only eventually consistent.
func (v *View) ListToday(ctx context.Context, date string, filter models.OrgFilter) ([]models.EventSummary, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, schema.InvalidField(schema.DocTypeApp, schema.AppKey, "date", date, "datetime")
	}
	app, _, err := v.orgs.GetApp(ctx)
	if err != nil {
		return nil, err
	}

	bySlug := make(map[string][]string)
	var slugs []string
	for _, entry := range app.ByDate[date] {
		summary := models.OrganizationSummary{OrgSlug: entry.OrgSlug}
		if i := app.FindOrganization(entry.OrgSlug); i >= 0 {
			summary = app.Organizations[i]
		}
		if !filter.Match(summary) {
			continue
		}
		if _, ok := bySlug[entry.OrgSlug]; !ok {
			slugs = append(slugs, entry.OrgSlug)
		}
		bySlug[entry.OrgSlug] = append(bySlug[entry.OrgSlug], entry.HuntID)
	}

	var (
		mu  sync.Mutex
		out []models.EventSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.fanOut)
	for _, slug := range slugs {
		g.Go(func() error {
			doc, _, err := v.orgs.GetOrg(gctx, slug)
			if ports.IsNotFound(err) {
				v.logger.WarnContext(gctx, "date index references missing org", "org_slug", slug, "date", date)
				return nil
			}
			if err != nil {
				return err
			}
			found := make([]models.EventSummary, 0, len(bySlug[slug]))
			for _, huntID := range bySlug[slug] {
				i := doc.FindHunt(huntID)
				if i < 0 {
					v.logger.WarnContext(gctx, "date index references missing hunt", "org_slug", slug, "hunt_id", huntID, "date", date)
					continue
				}
				found = append(found, models.SummarizeHunt(doc.Org, doc.Hunts[i]))
			}
			mu.Lock()
			out = append(out, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	SortSummaries(out)
	return out, nil
}

// SortSummaries orders summaries by org slug then hunt ID.
func SortSummaries(out []models.EventSummary) {
	slices.SortFunc(out, func(a, b models.EventSummary) int {
		if c := strings.Compare(a.OrgSlug, b.OrgSlug); c != 0 {
			return c
		}
		return strings.Compare(a.HuntID, b.HuntID)
	})
}

func (v *View) GetEvent(ctx context.Context, orgSlug, huntID string) (*models.Event, models.ETag, error) {
	doc, etag, err := v.orgs.GetOrg(ctx, orgSlug)
	if err != nil {
		return nil, "", err
	}
	i := doc.FindHunt(huntID)
	if i < 0 {
		return nil, "", &ports.NotFoundError{Kind: ports.KindEvent, Key: orgSlug + "/" + huntID}
	}
	return &models.Event{OrgSlug: doc.Org.OrgSlug, OrgName: doc.Org.OrgName, Hunt: doc.Hunts[i]}, etag, nil
}

// UpsertEvent replaces or appends the hunt in its OrgDocument. The org write is
// always conditional on the ETag just read, so with ETagAny a concurrent change still
// surfaces as a ConcurrencyError instead of being overwritten.
func (v *View) UpsertEvent(ctx context.Context, event *models.Event, expected models.ETag) (*models.Event, models.ETag, error) {
	if event == nil || event.OrgSlug == "" {
		return nil, "", schema.InvalidField(schema.DocTypeOrg, "", "orgSlug", "", "required")
	}
	if err := schema.ValidateHunt(&event.Hunt); err != nil {
		return nil, "", err
	}
	doc, etag, err := v.orgs.GetOrg(ctx, event.OrgSlug)
	if err != nil {
		return nil, "", err
	}
	if !expected.IsAny() && expected != etag {
		return nil, "", &ports.ConcurrencyError{Kind: ports.KindEvent, Key: event.OrgSlug + "/" + event.Hunt.ID, Expected: expected}
	}

	hunt := event.Hunt.Clone()
	if i := doc.FindHunt(hunt.ID); i >= 0 {
		doc.Hunts[i] = hunt
	} else {
		doc.Hunts = append(doc.Hunts, hunt)
	}
	doc.UpdatedAt = v.now().UTC()

	next, err := v.orgs.UpsertOrg(ctx, event.OrgSlug, doc, etag)
	if err != nil {
		return nil, "", err
	}
	return &models.Event{OrgSlug: doc.Org.OrgSlug, OrgName: doc.Org.OrgName, Hunt: hunt}, next, nil
}
