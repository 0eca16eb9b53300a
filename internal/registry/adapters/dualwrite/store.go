// Package dualwrite runs a staged migration between two stores.
//
// One store is authoritative: conditional writes and their ETags come from it, and
// reads go to it first. Every successful authoritative write is mirrored into the
// other store unconditionally. A mirror failure never fails the call; it is reported
// through the DualWriteResult and to the SecondaryFailureFunc.
//
// A document that only exists in the mirror is returned with models.ETagAbsent, so
// the caller's next conditional write creates it in the authoritative store.
package dualwrite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"trailhead/internal/platform/metrics"
	"trailhead/internal/registry/adapters/eventview"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
	pstrings "trailhead/pkg/platform/strings"
)

// SecondaryFailureFunc receives every failed mirror write.
type SecondaryFailureFunc func(ctx context.Context, op, key string, err error)

// Named pairs a store with the label used in results, logs and metrics.
type Named struct {
	Name  string
	Store ports.Store
}

type Store struct {
	*eventview.View

	primary   Named
	secondary Named
	onFailure SecondaryFailureFunc
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

var (
	_ ports.Store      = (*Store)(nil)
	_ ports.DualWriter = (*Store)(nil)
	_ ports.OrgLister  = (*Store)(nil)
	_ ports.Unwrapper  = (*Store)(nil)
)

type Option func(*Store)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a dual-writing store. onFailure is required.
func New(primary, secondary Named, onFailure SecondaryFailureFunc, opts ...Option) (*Store, error) {
	if primary.Store == nil || secondary.Store == nil {
		return nil, errors.New("dualwrite: both stores are required")
	}
	if onFailure == nil {
		return nil, errors.New("dualwrite: secondary failure handler is required")
	}
	s := &Store{
		primary:   primary,
		secondary: secondary,
		onFailure: onFailure,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.View = eventview.New(s, eventview.WithLogger(s.logger))
	return s, nil
}

// Unwrap returns the authoritative store.
func (s *Store) Unwrap() ports.Store {
	return s.primary.Store
}

func (s *Store) GetApp(ctx context.Context) (*models.AppDocument, models.ETag, error) {
	doc, etag, err := s.primary.Store.GetApp(ctx)
	if err != nil || etag != models.ETagAbsent {
		return doc, etag, err
	}
	mirror, mirrorTag, err := s.secondary.Store.GetApp(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "mirror app read failed", "store", s.secondary.Name, "error", err)
		return doc, etag, nil
	}
	if mirrorTag == models.ETagAbsent {
		return doc, etag, nil
	}
	return mirror, models.ETagAbsent, nil
}

func (s *Store) GetOrg(ctx context.Context, orgSlug string) (*models.OrgDocument, models.ETag, error) {
	doc, etag, err := s.primary.Store.GetOrg(ctx, orgSlug)
	if !ports.IsNotFound(err) {
		return doc, etag, err
	}
	mirror, _, mirrorErr := s.secondary.Store.GetOrg(ctx, orgSlug)
	if mirrorErr != nil {
		if !ports.IsNotFound(mirrorErr) {
			s.logger.WarnContext(ctx, "mirror org read failed", "store", s.secondary.Name, "org_slug", orgSlug, "error", mirrorErr)
		}
		return nil, "", err
	}
	return mirror, models.ETagAbsent, nil
}

func (s *Store) ListOrgs(ctx context.Context, filter models.OrgFilter) ([]models.OrganizationSummary, error) {
	return s.primary.Store.ListOrgs(ctx, filter)
}

// ListToday uses the authoritative store's own date lookup.
func (s *Store) ListToday(ctx context.Context, date string, filter models.OrgFilter) ([]models.EventSummary, error) {
	return s.primary.Store.ListToday(ctx, date, filter)
}

func (s *Store) UpsertOrg(ctx context.Context, orgSlug string, doc *models.OrgDocument, expected models.ETag) (models.ETag, error) {
	res, err := s.UpsertOrgDual(ctx, orgSlug, doc, expected)
	return res.Primary.ETag, err
}

func (s *Store) UpsertApp(ctx context.Context, doc *models.AppDocument, expected models.ETag) (models.ETag, error) {
	res, err := s.UpsertAppDual(ctx, doc, expected)
	return res.Primary.ETag, err
}

func (s *Store) UpsertOrgDual(ctx context.Context, orgSlug string, doc *models.OrgDocument, expected models.ETag) (ports.DualWriteResult, error) {
	return s.write(ctx, "UpsertOrg", orgSlug, func(st ports.Store, tag models.ETag) (models.ETag, error) {
		return st.UpsertOrg(ctx, orgSlug, doc, tag)
	}, expected)
}

func (s *Store) UpsertAppDual(ctx context.Context, doc *models.AppDocument, expected models.ETag) (ports.DualWriteResult, error) {
	return s.write(ctx, "UpsertApp", schema.AppKey, func(st ports.Store, tag models.ETag) (models.ETag, error) {
		return st.UpsertApp(ctx, doc, tag)
	}, expected)
}

func (s *Store) write(ctx context.Context, op, key string, put func(ports.Store, models.ETag) (models.ETag, error), expected models.ETag) (ports.DualWriteResult, error) {
	res := ports.DualWriteResult{
		Primary:   ports.WriteOutcome{Store: s.primary.Name},
		Secondary: ports.WriteOutcome{Store: s.secondary.Name, Skipped: true},
	}
	etag, err := put(s.primary.Store, expected)
	if err != nil {
		res.Primary.Err = err
		return res, err
	}
	res.Primary.ETag = etag

	res.Secondary.Skipped = false
	mirrorTag, err := put(s.secondary.Store, models.ETagAny)
	if err != nil {
		res.Secondary.Err = err
		s.metrics.IncrementSecondaryWriteError(s.secondary.Name)
		s.logger.WarnContext(ctx, "mirror write failed",
			"op", op,
			"key", key,
			"store", s.secondary.Name,
			"error", err,
		)
		s.onFailure(ctx, op, key, fmt.Errorf("mirror %s to %s: %w", op, s.secondary.Name, err))
		return res, nil
	}
	res.Secondary.ETag = mirrorTag
	return res, nil
}

// OrgSlugs lists orgs held by either store, so rebuilds see documents that have
// not been migrated yet.
func (s *Store) OrgSlugs(ctx context.Context) ([]string, error) {
	var lists [][]string
	for _, n := range []Named{s.primary, s.secondary} {
		lister, ok := ports.As[ports.OrgLister](n.Store)
		if !ok {
			continue
		}
		slugs, err := lister.OrgSlugs(ctx)
		if errors.Is(err, errors.ErrUnsupported) {
			continue
		}
		if err != nil {
			return nil, err
		}
		lists = append(lists, slugs)
	}
	if lists == nil {
		return nil, errors.ErrUnsupported
	}
	return pstrings.Union(lists...), nil
}

func (s *Store) Close() error {
	var errs []error
	for _, n := range []Named{s.primary, s.secondary} {
		if c, ok := n.Store.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
