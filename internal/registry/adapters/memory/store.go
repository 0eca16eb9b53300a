// Package memory is the in-process registry store used by tests and the mock
// backend. Documents are kept serialized so reads go through the same migration path
// as real backends.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trailhead/internal/registry/adapters/eventview"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
)

// Operation names passed to a FaultFunc.
const (
	OpGetApp    = "GetApp"
	OpGetOrg    = "GetOrg"
	OpUpsertApp = "UpsertApp"
	OpUpsertOrg = "UpsertOrg"
)

// FaultFunc lets tests fail individual calls. A non-nil return is returned from the
// operation before it touches state.
type FaultFunc func(op, key string) error

type entry struct {
	raw  []byte
	etag models.ETag
}

// Store implements ports.OrgRepoPort and ports.EventRepoPort in memory.
type Store struct {
	*eventview.View

	mu       sync.RWMutex
	app      *entry
	orgs     map[string]entry
	seq      uint64
	registry *schema.Registry
	logger   *slog.Logger
	now      func() time.Time
	fault    FaultFunc
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

func WithFault(fn FaultFunc) Option {
	return func(s *Store) {
		s.fault = fn
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		orgs:   make(map[string]entry),
		logger: slog.Default(),
		now:    time.Now,
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

// SetFault replaces the fault hook; nil clears it.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// SeedApp stores raw bytes as the App document without validation, for loading
// legacy fixtures.
func (s *Store) SeedApp(raw []byte) models.ETag {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app = &entry{raw: raw, etag: s.nextETag()}
	return s.app.etag
}

// SeedOrg stores raw bytes under slug without validation.
func (s *Store) SeedOrg(slug string, raw []byte) models.ETag {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{raw: raw, etag: s.nextETag()}
	s.orgs[slug] = e
	return e.etag
}

func (s *Store) GetApp(ctx context.Context) (*models.AppDocument, models.ETag, error) {
	s.mu.RLock()
	app, err := s.app, s.injected(OpGetApp, schema.AppKey)
	s.mu.RUnlock()
	if err != nil {
		return nil, "", err
	}
	if app == nil {
		return schema.SeedApp(s.now()), models.ETagAbsent, nil
	}
	doc, report, err := s.registry.MigrateApp(app.raw)
	if err != nil {
		return nil, "", err
	}
	s.logMigration(ctx, schema.AppKey, report)
	return doc, app.etag, nil
}

func (s *Store) GetOrg(ctx context.Context, orgSlug string) (*models.OrgDocument, models.ETag, error) {
	s.mu.RLock()
	e, ok := s.orgs[orgSlug]
	err := s.injected(OpGetOrg, orgSlug)
	s.mu.RUnlock()
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", &ports.NotFoundError{Kind: ports.KindOrg, Key: orgSlug}
	}
	doc, report, err := s.registry.MigrateOrg(orgSlug, e.raw)
	if err != nil {
		return nil, "", err
	}
	s.logMigration(ctx, orgSlug, report)
	return doc, e.etag, nil
}

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

func (s *Store) UpsertOrg(_ context.Context, orgSlug string, doc *models.OrgDocument, expected models.ETag) (models.ETag, error) {
	if err := schema.ValidateOrg(orgSlug, doc); err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode org %s: %w", orgSlug, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpUpsertOrg, orgSlug); err != nil {
		return "", err
	}
	current, exists := s.orgs[orgSlug]
	if !ports.PreconditionHolds(expected, current.etag, exists) {
		return "", &ports.ConcurrencyError{Kind: ports.KindOrg, Key: orgSlug, Expected: expected}
	}
	e := entry{raw: raw, etag: s.nextETag()}
	s.orgs[orgSlug] = e
	return e.etag, nil
}

func (s *Store) UpsertApp(_ context.Context, doc *models.AppDocument, expected models.ETag) (models.ETag, error) {
	if err := schema.ValidateApp(doc); err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode app: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpUpsertApp, schema.AppKey); err != nil {
		return "", err
	}
	var stored models.ETag
	if s.app != nil {
		stored = s.app.etag
	}
	if !ports.PreconditionHolds(expected, stored, s.app != nil) {
		return "", &ports.ConcurrencyError{Kind: ports.KindApp, Key: schema.AppKey, Expected: expected}
	}
	s.app = &entry{raw: raw, etag: s.nextETag()}
	return s.app.etag, nil
}

// OrgSlugs lists every stored org key, used by date index rebuilds.
func (s *Store) OrgSlugs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.orgs))
	for slug := range s.orgs {
		out = append(out, slug)
	}
	return out, nil
}

func (s *Store) Locate(orgSlug string) models.StoragePointer {
	return models.StoragePointer{Backend: "memory", Key: orgSlug}
}

func (s *Store) Close() error {
	return nil
}

// nextETag must be called with mu held.
func (s *Store) nextETag() models.ETag {
	s.seq++
	return models.ETag(fmt.Sprintf("m%d", s.seq))
}

// injected must be called with mu held.
func (s *Store) injected(op, key string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op, key)
}

func (s *Store) logMigration(ctx context.Context, key string, report schema.Report) {
	schema.LogReport(ctx, s.logger, key, report)
}
