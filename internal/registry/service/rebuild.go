package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	pstrings "trailhead/pkg/platform/strings"
	"trailhead/pkg/requestcontext"
)

// RebuildReport summarizes a date index rebuild.
type RebuildReport struct {
	Orgs    int
	Hunts   int
	Dates   int
	Missing []string // listed orgs whose OrgDocument is gone
	Skipped []string // "<org>/<hunt>" left out because of unusable dates
	ETag    models.ETag
}

// RebuildDateIndex recomputes byDate and every organization summary from the stored
// OrgDocuments and writes them with a conditional App write.
//
// Orgs are found through the store's key listing when it has one, plus the App
// document's summaries. Summaries of orgs whose document is gone are kept so the org
// stays visible; their index entries are dropped. The org scan runs after the App
// read on every attempt, so a hunt written during the rebuild is never lost.
func (s *Service) RebuildDateIndex(ctx context.Context) (report RebuildReport, err error) {
	ctx, span := s.start(ctx, "RebuildDateIndex")
	defer func() { finish(span, err) }()

	now := requestcontext.Now(ctx).UTC()
	etag, err := s.mutateApp(ctx, "RebuildDateIndex", func(app *models.AppDocument, _ readState) error {
		loaded, scan, err := s.scanOrgs(ctx, app)
		if err != nil {
			return err
		}
		report = scan
		byDate := make(map[string][]models.HuntIndexEntry)
		for _, doc := range loaded {
			set, skipped := orgIndex(doc, s.maxHuntDays)
			for _, id := range skipped {
				report.Skipped = append(report.Skipped, doc.Org.OrgSlug+"/"+id)
			}
			for k := range set {
				byDate[k.date] = append(byDate[k.date], models.HuntIndexEntry{OrgSlug: doc.Org.OrgSlug, HuntID: k.huntID})
			}
			upsertSummary(app, doc, s.locate(doc.Org.OrgSlug), now)
		}
		for _, entries := range byDate {
			sortEntries(entries)
		}
		report.Dates = len(byDate)
		app.ByDate = byDate
		return nil
	})
	if err != nil {
		return RebuildReport{}, err
	}
	report.ETag = etag

	span.SetAttributes(
		attribute.Int("rebuild.orgs", report.Orgs),
		attribute.Int("rebuild.dates", report.Dates),
	)
	s.logger.InfoContext(ctx, "date index rebuilt",
		"orgs", report.Orgs,
		"hunts", report.Hunts,
		"dates", report.Dates,
		"missing", report.Missing,
		"skipped", report.Skipped,
	)
	return report, nil
}

// scanOrgs loads every OrgDocument the store or app knows about.
func (s *Service) scanOrgs(ctx context.Context, app *models.AppDocument) ([]*models.OrgDocument, RebuildReport, error) {
	var report RebuildReport
	slugs, err := s.orgSlugs(ctx, app)
	if err != nil {
		return nil, report, err
	}

	docs := make([]*models.OrgDocument, len(slugs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for i, slug := range slugs {
		g.Go(func() error {
			doc, _, err := s.store.GetOrg(gctx, slug)
			if ports.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}

	loaded := make([]*models.OrgDocument, 0, len(docs))
	for i, doc := range docs {
		if doc == nil {
			report.Missing = append(report.Missing, slugs[i])
			continue
		}
		loaded = append(loaded, doc)
		report.Hunts += len(doc.Hunts)
	}
	report.Orgs = len(loaded)
	return loaded, report, nil
}

func (s *Service) orgSlugs(ctx context.Context, app *models.AppDocument) ([]string, error) {
	fromApp := make([]string, 0, len(app.Organizations))
	for _, o := range app.Organizations {
		fromApp = append(fromApp, o.OrgSlug)
	}

	lister, ok := ports.As[ports.OrgLister](s.store)
	if !ok {
		return pstrings.Union(fromApp), nil
	}
	stored, err := lister.OrgSlugs(ctx)
	if errors.Is(err, errors.ErrUnsupported) {
		return pstrings.Union(fromApp), nil
	}
	if err != nil {
		return nil, err
	}
	return pstrings.Union(fromApp, stored), nil
}
