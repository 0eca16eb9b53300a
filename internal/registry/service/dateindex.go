package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/reconcile"
	"trailhead/internal/registry/schema"
	"trailhead/pkg/requestcontext"
)

// indexEntriesFor returns every calendar day from the hunt's StartDate to its EndDate,
// both included, as YYYY-MM-DD.
func indexEntriesFor(h models.Hunt, maxDays int) ([]string, error) {
	start, err := time.Parse(time.DateOnly, h.StartDate)
	if err != nil {
		return nil, schema.InvalidField(schema.DocTypeOrg, "", huntField(h.ID, "startDate"), h.StartDate, "datetime")
	}
	end, err := time.Parse(time.DateOnly, h.EndDate)
	if err != nil {
		return nil, schema.InvalidField(schema.DocTypeOrg, "", huntField(h.ID, "endDate"), h.EndDate, "datetime")
	}
	if end.Before(start) {
		return nil, schema.InvalidField(schema.DocTypeOrg, "", huntField(h.ID, "endDate"), h.EndDate, "gtefield")
	}
	days := int(end.Sub(start)/(24*time.Hour)) + 1
	if maxDays > 0 && days > maxDays {
		return nil, &schema.ValidationError{
			DocType: schema.DocTypeOrg,
			Fields: []schema.FieldError{{
				Field: huntField(h.ID, "endDate"),
				Value: h.EndDate,
				Rule:  "max_days",
				Param: fmt.Sprint(maxDays),
			}},
		}
	}
	out := make([]string, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(time.DateOnly))
	}
	return out, nil
}

func huntField(id, field string) string {
	if id == "" {
		return field
	}
	return "hunts[" + id + "]." + field
}

type indexKey struct {
	date   string
	huntID string
}

type indexSet map[indexKey]struct{}

// orgIndex collects the entries doc's hunts should have. Hunts whose dates cannot be
// indexed are left out and returned.
func orgIndex(doc *models.OrgDocument, maxDays int) (indexSet, []string) {
	set := make(indexSet)
	var skipped []string
	for _, h := range doc.Hunts {
		days, err := indexEntriesFor(h, maxDays)
		if err != nil {
			skipped = append(skipped, h.ID)
			continue
		}
		for _, day := range days {
			set[indexKey{date: day, huntID: h.ID}] = struct{}{}
		}
	}
	return set, skipped
}

// currentIndex collects the entries app holds for slug.
func currentIndex(app *models.AppDocument, slug string) indexSet {
	set := make(indexSet)
	for date, entries := range app.ByDate {
		for _, e := range entries {
			if e.OrgSlug == slug {
				set[indexKey{date: date, huntID: e.HuntID}] = struct{}{}
			}
		}
	}
	return set
}

// applyIndexDiff removes slug's entries that are in old but not in next, adds the
// ones missing from next and drops dates left empty. Touched dates end up sorted and
// free of duplicates. It reports whether app changed.
func applyIndexDiff(app *models.AppDocument, slug string, old, next indexSet) bool {
	if app.ByDate == nil {
		app.ByDate = make(map[string][]models.HuntIndexEntry)
	}
	touched := make(map[string]struct{})
	for k := range old {
		if _, keep := next[k]; keep {
			continue
		}
		app.ByDate[k.date] = slices.DeleteFunc(app.ByDate[k.date], func(e models.HuntIndexEntry) bool {
			return e.OrgSlug == slug && e.HuntID == k.huntID
		})
		touched[k.date] = struct{}{}
	}
	for k := range next {
		if _, had := old[k]; had {
			continue
		}
		app.ByDate[k.date] = append(app.ByDate[k.date], models.HuntIndexEntry{OrgSlug: slug, HuntID: k.huntID})
		touched[k.date] = struct{}{}
	}
	for date := range touched {
		entries := app.ByDate[date]
		if len(entries) == 0 {
			delete(app.ByDate, date)
			continue
		}
		sortEntries(entries)
		app.ByDate[date] = slices.Compact(entries)
	}
	return len(touched) > 0
}

func sortEntries(entries []models.HuntIndexEntry) {
	slices.SortFunc(entries, func(a, b models.HuntIndexEntry) int {
		return cmp.Or(cmp.Compare(a.OrgSlug, b.OrgSlug), cmp.Compare(a.HuntID, b.HuntID))
	})
}

// upsertSummary refreshes slug's organization summary from doc, keeping CreatedAt.
// It reports whether app changed.
func upsertSummary(app *models.AppDocument, doc *models.OrgDocument, storage models.StoragePointer, now time.Time) bool {
	summary := models.OrganizationSummary{
		OrgSlug:             doc.Org.OrgSlug,
		OrgName:             doc.Org.OrgName,
		PrimaryContactEmail: doc.Org.PrimaryContactEmail(),
		CreatedAt:           now,
		Storage:             storage,
		Summary:             doc.Rollup(),
	}
	if i := app.FindOrganization(summary.OrgSlug); i >= 0 {
		summary.CreatedAt = app.Organizations[i].CreatedAt
		if app.Organizations[i] == summary {
			return false
		}
		app.Organizations[i] = summary
		return true
	}
	app.Organizations = append(app.Organizations, summary)
	slices.SortFunc(app.Organizations, func(a, b models.OrganizationSummary) int {
		return cmp.Compare(a.OrgSlug, b.OrgSlug)
	})
	return true
}

// syncApp brings the App document in line with the stored OrgDocument after doc was
// written. Failure is reported, not returned: the org write already succeeded.
//
// The org is re-read after the App on every attempt, so an App write always carries
// the index of an org version no older than the App it replaces. Computing the diff
// from doc alone would let a slow writer drop entries added by a faster one.
func (s *Service) syncApp(ctx context.Context, doc *models.OrgDocument) IndexOutcome {
	slug := doc.Org.OrgSlug
	storage := s.locate(slug)
	now := requestcontext.Now(ctx).UTC()

	var skipped []string
	etag, err := s.mutateApp(ctx, "SyncIndex", func(app *models.AppDocument, _ readState) error {
		current, _, err := s.store.GetOrg(ctx, slug)
		if err != nil {
			return err
		}
		var next indexSet
		next, skipped = orgIndex(current, s.maxHuntDays)
		changed := upsertSummary(app, current, storage, now)
		if applyIndexDiff(app, slug, currentIndex(app, slug), next) {
			changed = true
		}
		if !changed {
			return errNoChange
		}
		return nil
	})
	if len(skipped) > 0 {
		s.logger.WarnContext(ctx, "hunts left out of date index", "org_slug", slug, "hunt_ids", skipped)
	}
	if err != nil {
		s.metrics.IncrementIndexFailure()
		s.logger.ErrorContext(ctx, "app document update failed after org write",
			"org_slug", slug,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		s.scheduleRepair(ctx, slug, err)
		return IndexOutcome{Err: err}
	}
	return IndexOutcome{Applied: true, ETag: etag}
}

func (s *Service) scheduleRepair(ctx context.Context, slug string, cause error) {
	if s.scheduler == nil {
		return
	}
	// The request may be cancelled already; the repair must still be recorded.
	ctx = context.WithoutCancel(ctx)
	req := reconcile.Request{
		Trigger:     reconcile.TriggerIndexFailure,
		OrgSlug:     slug,
		Reason:      cause.Error(),
		RequestID:   requestcontext.RequestID(ctx),
		RequestedAt: requestcontext.Now(ctx).UTC(),
	}
	if err := s.scheduler.Schedule(ctx, req); err != nil {
		s.logger.ErrorContext(ctx, "scheduling date index repair failed", "org_slug", slug, "error", err)
	}
}
