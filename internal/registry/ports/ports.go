package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks OrgRepoPort,EventRepoPort,MediaPort,DualWriter

import (
	"context"
	"io"

	"trailhead/internal/registry/models"
)

// OrgRepoPort reads and conditionally writes the App and Org documents.
//
// Every read returns the document already migrated to the current schema together
// with the ETag it was read at. Writes with models.ETagAny are unconditional, writes
// with models.ETagAbsent only create, and any other token must equal the stored one.
// A failed precondition is a *ConcurrencyError.
type OrgRepoPort interface {
	GetApp(ctx context.Context) (*models.AppDocument, models.ETag, error)
	GetOrg(ctx context.Context, orgSlug string) (*models.OrgDocument, models.ETag, error)
	ListOrgs(ctx context.Context, filter models.OrgFilter) ([]models.OrganizationSummary, error)
	UpsertOrg(ctx context.Context, orgSlug string, doc *models.OrgDocument, expected models.ETag) (models.ETag, error)
	UpsertApp(ctx context.Context, doc *models.AppDocument, expected models.ETag) (models.ETag, error)
}

// EventRepoPort exposes hunts as events. An event's ETag is the ETag of the
// OrgDocument that holds it.
type EventRepoPort interface {
	ListToday(ctx context.Context, date string, filter models.OrgFilter) ([]models.EventSummary, error)
	GetEvent(ctx context.Context, orgSlug, huntID string) (*models.Event, models.ETag, error)
	UpsertEvent(ctx context.Context, event *models.Event, expected models.ETag) (*models.Event, models.ETag, error)
}

// Store is implemented by adapters that serve both document ports.
type Store interface {
	OrgRepoPort
	EventRepoPort
}

// UploadOptions describes a media upload.
type UploadOptions struct {
	Folder      string
	PublicID    string // generated when empty
	Filename    string
	ContentType string
	Duration    float64 // seconds, videos only
}

// MediaPort stores media bytes with an external provider and returns the pointer the
// registry persists. Bytes never reach the registry documents.
type MediaPort interface {
	UploadImage(ctx context.Context, r io.Reader, opts UploadOptions) (*models.MediaPointer, error)
	UploadVideo(ctx context.Context, r io.Reader, opts UploadOptions) (*models.MediaPointer, error)
	DeleteMedia(ctx context.Context, publicID string, resourceType models.MediaType) error
}

// WriteOutcome is the result of one write against one store.
type WriteOutcome struct {
	Store   string
	ETag    models.ETag
	Err     error
	Skipped bool
}

// OK reports whether the write was attempted and succeeded.
func (o WriteOutcome) OK() bool {
	return !o.Skipped && o.Err == nil
}

// DualWriteResult carries both outcomes of a staged-migration write. The call itself
// fails only when the authoritative write fails.
type DualWriteResult struct {
	Primary   WriteOutcome
	Secondary WriteOutcome
}

// DualWriter is implemented by stores that mirror writes into a second backend.
// Callers that need to see the mirror outcome type-assert an OrgRepoPort to it.
type DualWriter interface {
	UpsertOrgDual(ctx context.Context, orgSlug string, doc *models.OrgDocument, expected models.ETag) (DualWriteResult, error)
	UpsertAppDual(ctx context.Context, doc *models.AppDocument, expected models.ETag) (DualWriteResult, error)
}

// OrgLister is implemented by stores that can enumerate every stored OrgDocument key
// without going through the App document. Date index rebuilds prefer it.
type OrgLister interface {
	OrgSlugs(ctx context.Context) ([]string, error)
}

// Locator is implemented by stores that can say where an OrgDocument is kept. The
// result is recorded in the App document's organization summaries.
type Locator interface {
	Locate(orgSlug string) models.StoragePointer
}
