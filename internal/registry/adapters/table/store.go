// Package table stores the registry in PostgreSQL, splitting each logical document
// over several tables so date lookups and org listings are plain queries.
//
// Atomicity:
//
//   - UpsertOrg writes registry_orgs, hunt_projections and org_summaries in one
//     transaction. Either all three reflect the new OrgDocument or none do.
//   - UpsertApp writes registry_app and date_index in one transaction.
//   - UpsertOrg never touches registry_app or date_index, and UpsertApp never touches
//     the org tables. A hunt written by UpsertOrg is therefore not visible to
//     ListToday until a later UpsertApp indexes it, and a failure between the two
//     leaves the index behind the org tables. The service layer owns that gap.
package table

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trailhead/internal/registry/adapters/eventview"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
	txcontext "trailhead/pkg/platform/tx"
)

//go:embed schema.sql
var schemaDDL string

const (
	backendName      = "postgres"
	appRowID         = "app"
	defaultTxTimeout = 5 * time.Second
)

// Store implements ports.OrgRepoPort and ports.EventRepoPort on PostgreSQL.
// Event reads other than ListToday go through the OrgDocument.
type Store struct {
	*eventview.View

	db        *sql.DB
	registry  *schema.Registry
	logger    *slog.Logger
	now       func() time.Time
	txTimeout time.Duration
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

// WithTxTimeout bounds transactions started without a caller deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.txTimeout = d
	}
}

// New wraps db. The pool's lifecycle stays with the caller.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		logger:    slog.Default(),
		now:       time.Now,
		txTimeout: defaultTxTimeout,
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

// EnsureSchema creates the registry tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure registry schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, s.txTimeout, fn)
}

func (s *Store) GetApp(ctx context.Context) (*models.AppDocument, models.ETag, error) {
	var (
		raw  []byte
		etag string
	)
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT doc, etag FROM registry_app WHERE id = $1`, appRowID,
	).Scan(&raw, &etag)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.SeedApp(s.now()), models.ETagAbsent, nil
	}
	if err != nil {
		return nil, "", ports.Unavailable(backendName, "get app", false, err)
	}
	doc, report, err := s.registry.MigrateApp(raw)
	if err != nil {
		return nil, "", err
	}
	s.logMigration(ctx, appRowID, report)
	return doc, models.ETag(etag), nil
}

func (s *Store) GetOrg(ctx context.Context, orgSlug string) (*models.OrgDocument, models.ETag, error) {
	var (
		raw  []byte
		etag string
	)
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT doc, etag FROM registry_orgs WHERE org_slug = $1`, orgSlug,
	).Scan(&raw, &etag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", &ports.NotFoundError{Kind: ports.KindOrg, Key: orgSlug}
	}
	if err != nil {
		return nil, "", ports.Unavailable(backendName, "get org", false, err)
	}
	doc, report, err := s.registry.MigrateOrg(orgSlug, raw)
	if err != nil {
		return nil, "", err
	}
	s.logMigration(ctx, orgSlug, report)
	return doc, models.ETag(etag), nil
}

// ListOrgs reads org_summaries, which UpsertOrg keeps in step with each OrgDocument.
func (s *Store) ListOrgs(ctx context.Context, filter models.OrgFilter) ([]models.OrganizationSummary, error) {
	query := `
		SELECT org_slug, org_name, primary_contact_email, hunts_total, hunts_active, last_hunt_date, created_at
		FROM org_summaries
		WHERE (cardinality($1::text[]) = 0 OR org_slug = ANY($1::text[]))
		  AND ($2 = '' OR starts_with(lower(org_name), lower($2)))
		ORDER BY org_slug
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(filter.Slugs), filter.NamePrefix)
	if err != nil {
		return nil, ports.Unavailable(backendName, "list orgs", false, err)
	}
	defer rows.Close()

	var out []models.OrganizationSummary
	for rows.Next() {
		var o models.OrganizationSummary
		if err := rows.Scan(&o.OrgSlug, &o.OrgName, &o.PrimaryContactEmail,
			&o.Summary.HuntsTotal, &o.Summary.HuntsActive, &o.Summary.LastHuntDate, &o.CreatedAt); err != nil {
			return nil, ports.Unavailable(backendName, "list orgs", false, err)
		}
		o.CreatedAt = o.CreatedAt.UTC()
		o.Storage = s.Locate(o.OrgSlug)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.Unavailable(backendName, "list orgs", false, err)
	}
	return out, nil
}

// ListToday answers date lookups from date_index joined with the hunt projections.
// Index rows whose hunt no longer exists drop out of the join.
func (s *Store) ListToday(ctx context.Context, date string, filter models.OrgFilter) ([]models.EventSummary, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, schema.InvalidField(schema.DocTypeApp, schema.AppKey, "date", date, "datetime")
	}
	query := `
		SELECT h.org_slug, s.org_name, h.hunt_id, h.hunt_slug, h.name,
		       to_char(h.start_date, 'YYYY-MM-DD'), to_char(h.end_date, 'YYYY-MM-DD'), h.status
		FROM date_index d
		JOIN hunt_projections h ON h.org_slug = d.org_slug AND h.hunt_id = d.hunt_id
		JOIN org_summaries s ON s.org_slug = d.org_slug
		WHERE d.day = $1::date
		  AND (cardinality($2::text[]) = 0 OR d.org_slug = ANY($2::text[]))
		  AND ($3 = '' OR starts_with(lower(s.org_name), lower($3)))
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, date, pq.Array(filter.Slugs), filter.NamePrefix)
	if err != nil {
		return nil, ports.Unavailable(backendName, "list today", false, err)
	}
	defer rows.Close()

	out := []models.EventSummary{}
	for rows.Next() {
		var e models.EventSummary
		if err := rows.Scan(&e.OrgSlug, &e.OrgName, &e.HuntID, &e.HuntSlug, &e.Name,
			&e.StartDate, &e.EndDate, &e.Status); err != nil {
			return nil, ports.Unavailable(backendName, "list today", false, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.Unavailable(backendName, "list today", false, err)
	}
	eventview.SortSummaries(out)
	return out, nil
}

var errPrecondition = errors.New("etag precondition failed")

func (s *Store) UpsertOrg(ctx context.Context, orgSlug string, doc *models.OrgDocument, expected models.ETag) (models.ETag, error) {
	if err := schema.ValidateOrg(orgSlug, doc); err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode org %s: %w", orgSlug, err)
	}
	next := uuid.New()

	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.writeDoc(ctx, "registry_orgs", "org_slug", orgSlug, doc.SchemaVersion, raw, next, expected); err != nil {
			return err
		}
		if err := s.writeHuntProjections(ctx, orgSlug, doc.Hunts); err != nil {
			return err
		}
		return s.writeSummary(ctx, doc)
	})
	if errors.Is(err, errPrecondition) {
		return "", &ports.ConcurrencyError{Kind: ports.KindOrg, Key: orgSlug, Expected: expected}
	}
	if err != nil {
		return "", classify(docError{
			kind: ports.KindOrg, docType: schema.DocTypeOrg, key: orgSlug,
			op: "upsert org", write: true, expected: expected,
		}, err)
	}
	return models.ETag(next.String()), nil
}

func (s *Store) UpsertApp(ctx context.Context, doc *models.AppDocument, expected models.ETag) (models.ETag, error) {
	if err := schema.ValidateApp(doc); err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode app: %w", err)
	}
	next := uuid.New()

	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.writeDoc(ctx, "registry_app", "id", appRowID, doc.SchemaVersion, raw, next, expected); err != nil {
			return err
		}
		return s.writeDateIndex(ctx, doc.ByDate)
	})
	if errors.Is(err, errPrecondition) {
		return "", &ports.ConcurrencyError{Kind: ports.KindApp, Key: schema.AppKey, Expected: expected}
	}
	if err != nil {
		return "", classify(docError{
			kind: ports.KindApp, docType: schema.DocTypeApp, key: schema.AppKey,
			op: "upsert app", write: true, expected: expected,
		}, err)
	}
	return models.ETag(next.String()), nil
}

// writeDoc performs the conditional write of one document row. Table and key column
// names are package constants, never caller input.
func (s *Store) writeDoc(ctx context.Context, table, keyCol, key, version string, raw []byte, next uuid.UUID, expected models.ETag) error {
	var query string
	args := []any{key, version, raw, next, s.now().UTC()}
	switch {
	case expected.IsAny():
		query = fmt.Sprintf(`
			INSERT INTO %[1]s (%[2]s, schema_version, doc, etag, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (%[2]s) DO UPDATE SET
				schema_version = EXCLUDED.schema_version,
				doc = EXCLUDED.doc,
				etag = EXCLUDED.etag,
				updated_at = EXCLUDED.updated_at
		`, table, keyCol)
	case expected == models.ETagAbsent:
		query = fmt.Sprintf(`
			INSERT INTO %[1]s (%[2]s, schema_version, doc, etag, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (%[2]s) DO NOTHING
		`, table, keyCol)
	default:
		want, err := uuid.Parse(string(expected))
		if err != nil {
			// A token minted by another backend can never match.
			return errPrecondition
		}
		query = fmt.Sprintf(`
			UPDATE %[1]s
			SET schema_version = $2, doc = $3, etag = $4, updated_at = $5
			WHERE %[2]s = $1 AND etag = $6
		`, table, keyCol)
		args = append(args, want)
	}
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errPrecondition
	}
	return nil
}

func (s *Store) writeHuntProjections(ctx context.Context, orgSlug string, hunts []models.Hunt) error {
	ids := make([]string, len(hunts))
	for i, h := range hunts {
		ids[i] = h.ID
	}
	if _, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM hunt_projections WHERE org_slug = $1 AND NOT (hunt_id = ANY($2::text[]))`,
		orgSlug, pq.Array(ids),
	); err != nil {
		return fmt.Errorf("prune hunt projections: %w", err)
	}
	query := `
		INSERT INTO hunt_projections (org_slug, hunt_id, hunt_slug, name, status, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7::date)
		ON CONFLICT (org_slug, hunt_id) DO UPDATE SET
			hunt_slug = EXCLUDED.hunt_slug,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date
	`
	for _, h := range hunts {
		if _, err := s.execer(ctx).ExecContext(ctx, query,
			orgSlug, h.ID, h.Slug, h.Name, string(h.Status), h.StartDate, h.EndDate,
		); err != nil {
			return fmt.Errorf("write hunt projection %s: %w", h.ID, err)
		}
	}
	return nil
}

func (s *Store) writeSummary(ctx context.Context, doc *models.OrgDocument) error {
	rollup := doc.Rollup()
	query := `
		INSERT INTO org_summaries (org_slug, org_name, primary_contact_email, hunts_total, hunts_active, last_hunt_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (org_slug) DO UPDATE SET
			org_name = EXCLUDED.org_name,
			primary_contact_email = EXCLUDED.primary_contact_email,
			hunts_total = EXCLUDED.hunts_total,
			hunts_active = EXCLUDED.hunts_active,
			last_hunt_date = EXCLUDED.last_hunt_date
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		doc.Org.OrgSlug, doc.Org.OrgName, doc.Org.PrimaryContactEmail(),
		rollup.HuntsTotal, rollup.HuntsActive, rollup.LastHuntDate, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("write org summary: %w", err)
	}
	return nil
}

// writeDateIndex replaces date_index with the rows of byDate.
func (s *Store) writeDateIndex(ctx context.Context, byDate map[string][]models.HuntIndexEntry) error {
	if _, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM date_index`); err != nil {
		return fmt.Errorf("clear date index: %w", err)
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var days, slugs, huntIDs []string
	for _, d := range dates {
		for _, e := range byDate[d] {
			days = append(days, d)
			slugs = append(slugs, e.OrgSlug)
			huntIDs = append(huntIDs, e.HuntID)
		}
	}
	if len(days) == 0 {
		return nil
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO date_index (day, org_slug, hunt_id)
		SELECT d::date, o, h FROM unnest($1::text[], $2::text[], $3::text[]) AS t(d, o, h)
		ON CONFLICT DO NOTHING
	`, pq.Array(days), pq.Array(slugs), pq.Array(huntIDs))
	if err != nil {
		return fmt.Errorf("write date index: %w", err)
	}
	return nil
}

// OrgSlugs lists every stored OrgDocument key.
func (s *Store) OrgSlugs(ctx context.Context) ([]string, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT org_slug FROM registry_orgs ORDER BY org_slug`)
	if err != nil {
		return nil, ports.Unavailable(backendName, "list org slugs", false, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, ports.Unavailable(backendName, "list org slugs", false, err)
		}
		out = append(out, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.Unavailable(backendName, "list org slugs", false, err)
	}
	return out, nil
}

func (s *Store) Locate(orgSlug string) models.StoragePointer {
	return models.StoragePointer{Backend: backendName, Key: orgSlug}
}

// SeedOrg stores raw bytes under slug without validation or projections, for
// loading legacy documents.
func (s *Store) SeedOrg(ctx context.Context, slug string, raw []byte) error {
	version, _ := schema.DetectVersion(raw)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registry_orgs (org_slug, schema_version, doc, etag, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (org_slug) DO UPDATE SET schema_version = EXCLUDED.schema_version, doc = EXCLUDED.doc, etag = EXCLUDED.etag
	`, slug, version, raw, uuid.New())
	return err
}

// Close is a no-op; the pool belongs to the caller.
func (s *Store) Close() error {
	return nil
}

func (s *Store) logMigration(ctx context.Context, key string, report schema.Report) {
	schema.LogReport(ctx, s.logger, key, report)
}
