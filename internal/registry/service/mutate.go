package service

import (
	"context"
	"errors"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/pkg/requestcontext"
)

// errNoChange is returned by a mutation that finds the document already in the
// requested state. The cycle then ends without a write.
var errNoChange = errors.New("no change")

// readState describes the read a mutation is applied to.
type readState struct {
	ETag    models.ETag
	Attempt int // 0 on the first read, n on the nth retry
}

// orgMutation applies one change to doc and returns the document to write. doc is nil
// only for creating mutations when nothing is stored under the key.
type orgMutation func(doc *models.OrgDocument, read readState) (*models.OrgDocument, error)

type orgWrite struct {
	doc     *models.OrgDocument
	etag    models.ETag
	mirror  *ports.WriteOutcome
	changed bool
}

// mutateOrg runs the conditional write cycle for one OrgDocument. With create set a
// missing document is passed to fn as nil and written with ETagAbsent, so two
// concurrent creations cannot both succeed.
func (s *Service) mutateOrg(ctx context.Context, op, slug string, create bool, fn orgMutation) (orgWrite, error) {
	for attempt := 0; ; attempt++ {
		current, etag, err := s.store.GetOrg(ctx, slug)
		switch {
		case err == nil:
		case create && ports.IsNotFound(err):
			current, etag = nil, models.ETagAbsent
		default:
			return orgWrite{}, err
		}

		next, err := fn(current, readState{ETag: etag, Attempt: attempt})
		if errors.Is(err, errNoChange) {
			return orgWrite{doc: current, etag: etag}, nil
		}
		if err != nil {
			return orgWrite{}, err
		}
		next.UpdatedAt = requestcontext.Now(ctx).UTC()

		written, mirror, err := s.writeOrg(ctx, slug, next, etag)
		if err == nil {
			return orgWrite{doc: next, etag: written, mirror: mirror, changed: true}, nil
		}
		if !ports.IsConflict(err) {
			return orgWrite{}, err
		}
		if attempt >= s.maxRetries {
			s.metrics.IncrementConflict(op)
			return orgWrite{}, err
		}
		s.metrics.IncrementConflictRetry(op)
		s.logger.InfoContext(ctx, "etag conflict, re-applying",
			"op", op,
			"org_slug", slug,
			"attempt", attempt+1,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// mutateApp is mutateOrg for the App document. A missing App document is read as the
// seeded default with ETagAbsent, so the first write creates it.
func (s *Service) mutateApp(ctx context.Context, op string, fn func(app *models.AppDocument, read readState) error) (models.ETag, error) {
	for attempt := 0; ; attempt++ {
		app, etag, err := s.store.GetApp(ctx)
		if err != nil {
			return "", err
		}
		err = fn(app, readState{ETag: etag, Attempt: attempt})
		if errors.Is(err, errNoChange) {
			return etag, nil
		}
		if err != nil {
			return "", err
		}
		app.UpdatedAt = requestcontext.Now(ctx).UTC()

		written, _, err := s.writeApp(ctx, app, etag)
		if err == nil {
			return written, nil
		}
		if !ports.IsConflict(err) {
			return "", err
		}
		if attempt >= s.maxRetries {
			s.metrics.IncrementConflict(op)
			return "", err
		}
		s.metrics.IncrementConflictRetry(op)
	}
}

// writeOrg prefers the two-outcome write when the store mirrors into a second
// backend.
func (s *Service) writeOrg(ctx context.Context, slug string, doc *models.OrgDocument, expected models.ETag) (models.ETag, *ports.WriteOutcome, error) {
	if dual, ok := ports.As[ports.DualWriter](s.store); ok {
		res, err := dual.UpsertOrgDual(ctx, slug, doc, expected)
		if err != nil {
			return "", nil, err
		}
		return res.Primary.ETag, &res.Secondary, nil
	}
	etag, err := s.store.UpsertOrg(ctx, slug, doc, expected)
	return etag, nil, err
}

func (s *Service) writeApp(ctx context.Context, app *models.AppDocument, expected models.ETag) (models.ETag, *ports.WriteOutcome, error) {
	if dual, ok := ports.As[ports.DualWriter](s.store); ok {
		res, err := dual.UpsertAppDual(ctx, app, expected)
		if err != nil {
			return "", nil, err
		}
		return res.Primary.ETag, &res.Secondary, nil
	}
	etag, err := s.store.UpsertApp(ctx, app, expected)
	return etag, nil, err
}
