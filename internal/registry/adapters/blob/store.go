// Package blob stores registry documents as JSON objects in a Bucket.
//
// Layout:
//
//	registry/app.json          the App document
//	registry/orgs/<slug>.json  one object per OrgDocument
//
// Every document is one object, so each write is atomic on its own and the App and
// Org objects are never written together.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trailhead/internal/registry/adapters/eventview"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
)

const (
	AppObjectKey = "registry/app.json"
	orgPrefix    = "registry/orgs/"
	orgSuffix    = ".json"
)

// OrgObjectKey returns the object key of an OrgDocument.
func OrgObjectKey(slug string) string {
	return orgPrefix + slug + orgSuffix
}

// Store implements ports.OrgRepoPort and ports.EventRepoPort over a Bucket.
type Store struct {
	*eventview.View

	bucket   Bucket
	backend  string
	registry *schema.Registry
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Store)

func WithRegistry(registry *schema.Registry) Option {
	return func(s *Store) {
		s.registry = registry
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithBackendName sets the name reported in errors and storage pointers.
func WithBackendName(name string) Option {
	return func(s *Store) {
		s.backend = name
	}
}

func New(bucket Bucket, opts ...Option) *Store {
	s := &Store{
		bucket:  bucket,
		backend: "blob",
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = schema.NewRegistry(schema.WithClock(s.now))
	}
	s.View = eventview.New(s, eventview.WithLogger(s.logger), eventview.WithClock(s.now))
	return s
}

func (s *Store) GetApp(ctx context.Context) (*models.AppDocument, models.ETag, error) {
	obj, err := s.bucket.Get(ctx, AppObjectKey)
	if errors.Is(err, ErrObjectNotFound) {
		return schema.SeedApp(s.now()), models.ETagAbsent, nil
	}
	if err != nil {
		return nil, "", ports.Unavailable(s.backend, "get app", false, err)
	}
	doc, report, err := s.registry.MigrateApp(obj.Body)
	if err != nil {
		return nil, "", err
	}
	s.logMigration(ctx, AppObjectKey, report)
	return doc, obj.ETag, nil
}

func (s *Store) GetOrg(ctx context.Context, orgSlug string) (*models.OrgDocument, models.ETag, error) {
	key := OrgObjectKey(orgSlug)
	obj, err := s.bucket.Get(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, "", &ports.NotFoundError{Kind: ports.KindOrg, Key: orgSlug}
	}
	if err != nil {
		return nil, "", ports.Unavailable(s.backend, "get org", false, err)
	}
	doc, report, err := s.registry.MigrateOrg(orgSlug, obj.Body)
	if err != nil {
		return nil, "", err
	}
	s.logMigration(ctx, key, report)
	return doc, obj.ETag, nil
}

// ListOrgs reads the summaries embedded in the App document.
func (s *Store) ListOrgs(ctx context.Context, filter models.OrgFilter) ([]models.OrganizationSummary, error) {
	app, _, err := s.GetApp(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.OrganizationSummary, 0, len(app.Organizations))
	for _, o := range app.Organizations {
		if filter.Match(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) UpsertOrg(ctx context.Context, orgSlug string, doc *models.OrgDocument, expected models.ETag) (models.ETag, error) {
	if err := schema.ValidateOrg(orgSlug, doc); err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode org %s: %w", orgSlug, err)
	}
	etag, err := s.bucket.Put(ctx, OrgObjectKey(orgSlug), raw, expected)
	if errors.Is(err, ErrPreconditionFailed) {
		return "", &ports.ConcurrencyError{Kind: ports.KindOrg, Key: orgSlug, Expected: expected}
	}
	if err != nil {
		return "", ports.Unavailable(s.backend, "put org", true, err)
	}
	return etag, nil
}

func (s *Store) UpsertApp(ctx context.Context, doc *models.AppDocument, expected models.ETag) (models.ETag, error) {
	if err := schema.ValidateApp(doc); err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode app: %w", err)
	}
	etag, err := s.bucket.Put(ctx, AppObjectKey, raw, expected)
	if errors.Is(err, ErrPreconditionFailed) {
		return "", &ports.ConcurrencyError{Kind: ports.KindApp, Key: schema.AppKey, Expected: expected}
	}
	if err != nil {
		return "", ports.Unavailable(s.backend, "put app", true, err)
	}
	return etag, nil
}

// OrgSlugs lists every stored OrgDocument by scanning the org prefix.
func (s *Store) OrgSlugs(ctx context.Context) ([]string, error) {
	keys, err := s.bucket.List(ctx, orgPrefix)
	if err != nil {
		return nil, ports.Unavailable(s.backend, "list orgs", false, err)
	}
	slugs := make([]string, 0, len(keys))
	for _, k := range keys {
		slug := strings.TrimSuffix(strings.TrimPrefix(k, orgPrefix), orgSuffix)
		if slug != "" && !strings.Contains(slug, "/") {
			slugs = append(slugs, slug)
		}
	}
	return slugs, nil
}

// Locate reports where an OrgDocument lives, for App storage pointers.
func (s *Store) Locate(orgSlug string) models.StoragePointer {
	return models.StoragePointer{Backend: s.backend, Key: OrgObjectKey(orgSlug)}
}

// SeedOrg writes raw bytes under slug without validation, for loading fixtures and
// legacy documents.
func (s *Store) SeedOrg(ctx context.Context, slug string, raw []byte) error {
	_, err := s.bucket.Put(ctx, OrgObjectKey(slug), raw, models.ETagAny)
	return err
}

func (s *Store) Close() error {
	return s.bucket.Close()
}

func (s *Store) logMigration(ctx context.Context, key string, report schema.Report) {
	schema.LogReport(ctx, s.logger, key, report)
}
