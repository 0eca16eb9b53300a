// Package service implements the registry operations on top of the storage ports.
//
// Every change to a stored document is a READ → MUTATE → WRITE cycle whose write is
// conditional on the ETag from the read. A ConcurrencyError re-runs the cycle against
// the fresh document up to MaxRetries times, then is returned to the caller.
//
// The App document (organization summaries and the byDate index) is derived from the
// OrgDocuments and written after them in a second, independent conditional write. When
// that write fails the org change still stands: the result carries the failure in
// IndexOutcome and a rebuild is handed to the reconcile scheduler.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trailhead/internal/platform/metrics"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/reconcile"
	"trailhead/internal/registry/schema"
	"trailhead/pkg/requestcontext"
)

const (
	DefaultMaxRetries  = 1
	DefaultMaxHuntDays = 366
	defaultFanOut      = 8

	tracerName = "trailhead/internal/registry/service"
)

var ErrNoMedia = errors.New("service: media port not configured")

// IndexOutcome reports the App document write that follows an org write.
type IndexOutcome struct {
	Applied bool
	ETag    models.ETag
	Err     error
}

// OrgResult is returned by operations that write an OrgDocument. Mirror is set
// while writes are mirrored to a second store.
type OrgResult struct {
	Org    *models.OrgDocument
	ETag   models.ETag
	Index  IndexOutcome
	Mirror *ports.WriteOutcome
}

// EventResult is returned by operations that change one hunt. ETag is the ETag of
// the owning OrgDocument.
type EventResult struct {
	Event  *models.Event
	ETag   models.ETag
	Index  IndexOutcome
	Mirror *ports.WriteOutcome
}

type Service struct {
	store       ports.Store
	media       ports.MediaPort
	scheduler   reconcile.Scheduler
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	maxRetries  int
	maxHuntDays int
	fanOut      int
	environment string
	newID       func() string
}

type Option func(*Service)

func WithMedia(media ports.MediaPort) Option {
	return func(s *Service) {
		s.media = media
	}
}

// WithReconcileScheduler receives rebuild requests after failed index writes.
func WithReconcileScheduler(scheduler reconcile.Scheduler) Option {
	return func(s *Service) {
		s.scheduler = scheduler
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// WithMaxRetries bounds how often a conflicting write is re-read and re-applied.
// Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithMaxHuntDays bounds the number of byDate entries one hunt may produce.
func WithMaxHuntDays(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxHuntDays = n
		}
	}
}

// WithFanOut bounds concurrent OrgDocument reads during a rebuild.
func WithFanOut(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fanOut = n
		}
	}
}

// WithEnvironment is recorded in the App metadata at bootstrap.
func WithEnvironment(env string) Option {
	return func(s *Service) {
		s.environment = env
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func New(store ports.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		maxRetries:  DefaultMaxRetries,
		maxHuntDays: DefaultMaxHuntDays,
		fanOut:      defaultFanOut,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Bootstrap creates the App document if nothing is stored yet and returns it.
func (s *Service) Bootstrap(ctx context.Context) (app *models.AppDocument, etag models.ETag, err error) {
	ctx, span := s.start(ctx, "Bootstrap")
	defer func() { finish(span, err) }()

	for attempt := 0; ; attempt++ {
		app, etag, err = s.store.GetApp(ctx)
		if err != nil || etag != models.ETagAbsent {
			return app, etag, err
		}
		app.UpdatedAt = requestcontext.Now(ctx).UTC()
		if app.Metadata.Environment == "" {
			app.Metadata.Environment = s.environment
		}
		etag, _, err = s.writeApp(ctx, app, models.ETagAbsent)
		if err == nil {
			s.logger.InfoContext(ctx, "app document bootstrapped", "schema_version", app.SchemaVersion)
			return app, etag, nil
		}
		// Another process bootstrapped first; read what it wrote.
		if !ports.IsConflict(err) || attempt >= s.maxRetries {
			return nil, "", err
		}
	}
}

func (s *Service) GetApp(ctx context.Context) (app *models.AppDocument, etag models.ETag, err error) {
	ctx, span := s.start(ctx, "GetApp")
	defer func() { finish(span, err) }()
	return s.store.GetApp(ctx)
}

// UpsertApp writes a caller-built App document. The caller owns the merge, so a
// conflict is returned without retry.
func (s *Service) UpsertApp(ctx context.Context, doc *models.AppDocument, expected models.ETag) (etag models.ETag, err error) {
	ctx, span := s.start(ctx, "UpsertApp")
	defer func() { finish(span, err) }()

	if doc == nil {
		return "", schema.ValidateApp(nil)
	}
	next := doc.Clone()
	next.UpdatedAt = requestcontext.Now(ctx).UTC()
	etag, _, err = s.writeApp(ctx, next, expected)
	if ports.IsConflict(err) {
		s.metrics.IncrementConflict("UpsertApp")
	}
	return etag, err
}

func (s *Service) GetOrg(ctx context.Context, slug string) (doc *models.OrgDocument, etag models.ETag, err error) {
	ctx, span := s.start(ctx, "GetOrg", attribute.String("org.slug", slug))
	defer func() { finish(span, err) }()
	return s.store.GetOrg(ctx, slug)
}

func (s *Service) ListOrgs(ctx context.Context, filter models.OrgFilter) (out []models.OrganizationSummary, err error) {
	ctx, span := s.start(ctx, "ListOrgs")
	defer func() { finish(span, err) }()
	return s.store.ListOrgs(ctx, filter)
}

// UpsertOrg writes a caller-built OrgDocument without retry, then refreshes the App
// document. Hunts may not be removed and their statuses may only move forward.
func (s *Service) UpsertOrg(ctx context.Context, slug string, doc *models.OrgDocument, expected models.ETag) (res OrgResult, err error) {
	ctx, span := s.start(ctx, "UpsertOrg", attribute.String("org.slug", slug))
	defer func() { finish(span, err) }()

	if doc == nil {
		return OrgResult{}, schema.ValidateOrg(slug, nil)
	}
	next := doc.Clone()
	if next.SchemaVersion == "" {
		next.SchemaVersion = schema.OrgCurrentVersion
	}
	if err := schema.ValidateOrg(slug, next); err != nil {
		return OrgResult{}, err
	}
	if err := s.checkHuntDates(slug, next); err != nil {
		return OrgResult{}, err
	}
	current, _, err := s.store.GetOrg(ctx, slug)
	switch {
	case err == nil:
		if err := checkRetained(slug, current, next); err != nil {
			return OrgResult{}, err
		}
	case !ports.IsNotFound(err):
		return OrgResult{}, err
	}

	next.UpdatedAt = requestcontext.Now(ctx).UTC()
	etag, mirror, err := s.writeOrg(ctx, slug, next, expected)
	if err != nil {
		if ports.IsConflict(err) {
			s.metrics.IncrementConflict("UpsertOrg")
		}
		return OrgResult{}, err
	}
	return OrgResult{
		Org:    next,
		ETag:   etag,
		Index:  s.syncApp(ctx, next),
		Mirror: mirror,
	}, nil
}

// checkRetained rejects a replacement document that drops a hunt or moves a hunt's
// status backward.
func checkRetained(slug string, current, next *models.OrgDocument) error {
	var fields []schema.FieldError
	for _, h := range current.Hunts {
		i := next.FindHunt(h.ID)
		if i < 0 {
			fields = append(fields, schema.FieldError{Field: "hunts[" + h.ID + "]", Value: h.ID, Rule: "retained"})
			continue
		}
		if to := next.Hunts[i].Status; to != h.Status && !h.Status.CanTransitionTo(to) {
			fields = append(fields, transitionField(h.ID, h.Status, to))
		}
	}
	if len(fields) > 0 {
		return &schema.ValidationError{DocType: schema.DocTypeOrg, Key: slug, Fields: fields}
	}
	return nil
}

func transitionField(huntID string, from, to models.HuntStatus) schema.FieldError {
	return schema.FieldError{
		Field: "hunts[" + huntID + "].status",
		Value: string(to),
		Rule:  "transition",
		Param: string(from),
	}
}

func (s *Service) checkHuntDates(slug string, doc *models.OrgDocument) error {
	for _, h := range doc.Hunts {
		if _, err := indexEntriesFor(h, s.maxHuntDays); err != nil {
			return withKey(err, slug)
		}
	}
	return nil
}

func (s *Service) ListToday(ctx context.Context, date string, filter models.OrgFilter) (out []models.EventSummary, err error) {
	ctx, span := s.start(ctx, "ListToday", attribute.String("date", date))
	defer func() { finish(span, err) }()
	return s.store.ListToday(ctx, date, filter)
}

func (s *Service) GetEvent(ctx context.Context, slug, huntID string) (event *models.Event, etag models.ETag, err error) {
	ctx, span := s.start(ctx, "GetEvent", attribute.String("org.slug", slug), attribute.String("hunt.id", huntID))
	defer func() { finish(span, err) }()
	return s.store.GetEvent(ctx, slug, huntID)
}

// locate returns where the store keeps slug's OrgDocument.
func (s *Service) locate(slug string) models.StoragePointer {
	if loc, ok := ports.As[ports.Locator](s.store); ok {
		return loc.Locate(slug)
	}
	return models.StoragePointer{Key: slug}
}
