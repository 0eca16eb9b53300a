package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trailhead/internal/registry/models"
)

// Storage keys shared by every adapter.
const (
	AppKey = "app"
)

// Registry owns the migration chains of both document families. Adapters call
// MigrateApp and MigrateOrg on every read.
type Registry struct {
	app *Chain[models.AppDocument]
	org *Chain[models.OrgDocument]
	now func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used to stamp seeded documents.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry returns a Registry with every known app and org version registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.app = NewChain(DocTypeApp,
		func(_ string, doc *models.AppDocument) error { return ValidateApp(doc) },
		func() *models.AppDocument { return SeedApp(r.now()) },
	)
	r.org = NewChain(DocTypeOrg, ValidateOrg, nil)
	for _, spec := range appVersions() {
		mustRegister(r.app.Register(spec))
	}
	for _, spec := range orgVersions() {
		mustRegister(r.org.Register(spec))
	}
	return r
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}

// RegisterAppVersion appends a newer app schema version to the chain.
func (r *Registry) RegisterAppVersion(spec VersionSpec[models.AppDocument]) error {
	return r.app.Register(spec)
}

// RegisterOrgVersion appends a newer org schema version to the chain.
func (r *Registry) RegisterOrgVersion(spec VersionSpec[models.OrgDocument]) error {
	return r.org.Register(spec)
}

// GetSchema looks up a registered version of a document family.
func (r *Registry) GetSchema(docType DocType, version string) (VersionInfo, bool) {
	switch docType {
	case DocTypeApp:
		return r.app.Schema(version)
	case DocTypeOrg:
		return r.org.Schema(version)
	default:
		return VersionInfo{}, false
	}
}

// Versions lists the registered versions of a document family, oldest first.
func (r *Registry) Versions(docType DocType) []VersionInfo {
	switch docType {
	case DocTypeApp:
		return r.app.Versions()
	case DocTypeOrg:
		return r.org.Versions()
	default:
		return nil
	}
}

// MigrateApp brings a stored AppDocument to the current schema. Unknown or missing
// versions yield a freshly seeded document rather than an error.
func (r *Registry) MigrateApp(raw []byte) (*models.AppDocument, Report, error) {
	return r.app.Migrate(AppKey, raw)
}

// MigrateOrg brings a stored OrgDocument to the current schema and checks that it
// belongs under key.
func (r *Registry) MigrateOrg(key string, raw []byte) (*models.OrgDocument, Report, error) {
	return r.org.Migrate(key, raw)
}

// SeedApp returns the empty AppDocument used when nothing usable is stored.
func SeedApp(now time.Time) *models.AppDocument {
	return &models.AppDocument{
		SchemaVersion: AppCurrentVersion,
		UpdatedAt:     now.UTC(),
		Metadata:      models.AppMetadata{Name: "trailhead"},
		Features:      models.Features{Flags: map[string]bool{}},
		Organizations: []models.OrganizationSummary{},
		ByDate:        map[string][]models.HuntIndexEntry{},
	}
}

// DetectVersion reads the schemaVersion field of a stored document without decoding
// the rest. It reports false when raw is not a JSON object or carries no version.
func DetectVersion(raw []byte) (string, bool) {
	var probe struct {
		SchemaVersion *string `json:"schemaVersion"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.SchemaVersion == nil {
		return "", false
	}
	v := normalizeVersion(*probe.SchemaVersion)
	return v, v != ""
}

// normalizeVersion accepts "v1.2", "1.2" and "1.2.0" as the same version.
func normalizeVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return ""
	}
	parts := strings.Split(v, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts, ".")
}

// decodeJSON is shared by the variant decoders.
func decodeJSON[V any](raw []byte, v *V) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
