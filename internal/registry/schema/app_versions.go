package schema

import (
	"time"

	"trailhead/internal/registry/models"
)

const (
	AppVersion1_0     = "1.0.0"
	AppVersion1_1     = "1.1.0"
	AppCurrentVersion = AppVersion1_1
)

func appVersions() []VersionSpec[models.AppDocument] {
	return []VersionSpec[models.AppDocument]{
		{Version: AppVersion1_0, Deprecated: true, MigrationTarget: AppVersion1_1, Decode: decodeAppV1_0},
		{Version: AppVersion1_1, Decode: decodeAppV1_1},
	}
}

// appV1_0 is the original registry document: organizations only, with the org blob
// key flattened into each summary and no date index.
type appV1_0 struct {
	SchemaVersion string             `json:"schemaVersion"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	Metadata      models.AppMetadata `json:"metadata"`
	Organizations []orgSummaryV1_0   `json:"organizations"`
}

type orgSummaryV1_0 struct {
	OrgSlug             string    `json:"orgSlug"`
	OrgName             string    `json:"orgName"`
	PrimaryContactEmail string    `json:"primaryContactEmail"`
	CreatedAt           time.Time `json:"createdAt"`
	OrgBlobKey          string    `json:"orgBlobKey"`
	HuntsTotal          int       `json:"huntsTotal"`
}

func decodeAppV1_0(raw []byte) (Variant[models.AppDocument], error) {
	var v appV1_0
	if err := decodeJSON(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (v *appV1_0) version() string { return AppVersion1_0 }

func (v *appV1_0) current() (*models.AppDocument, bool) { return nil, false }

// upgrade adds feature flags, the byDate index and structured storage pointers.
// The index starts empty and is filled by a date-index rebuild.
func (v *appV1_0) upgrade() (Variant[models.AppDocument], error) {
	doc := &models.AppDocument{
		SchemaVersion: AppVersion1_1,
		UpdatedAt:     v.UpdatedAt,
		Metadata:      v.Metadata,
		Features:      models.Features{Flags: map[string]bool{}},
		Organizations: make([]models.OrganizationSummary, 0, len(v.Organizations)),
		ByDate:        map[string][]models.HuntIndexEntry{},
	}
	for _, o := range v.Organizations {
		doc.Organizations = append(doc.Organizations, models.OrganizationSummary{
			OrgSlug:             o.OrgSlug,
			OrgName:             o.OrgName,
			PrimaryContactEmail: o.PrimaryContactEmail,
			CreatedAt:           o.CreatedAt,
			Storage:             models.StoragePointer{Key: o.OrgBlobKey},
			Summary:             models.OrgRollup{HuntsTotal: o.HuntsTotal},
		})
	}
	return &appV1_1{doc: doc}, nil
}

type appV1_1 struct {
	doc *models.AppDocument
}

func decodeAppV1_1(raw []byte) (Variant[models.AppDocument], error) {
	var doc models.AppDocument
	if err := decodeJSON(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Features.Flags == nil {
		doc.Features.Flags = map[string]bool{}
	}
	if doc.Organizations == nil {
		doc.Organizations = []models.OrganizationSummary{}
	}
	if doc.ByDate == nil {
		doc.ByDate = map[string][]models.HuntIndexEntry{}
	}
	doc.SchemaVersion = AppVersion1_1
	return &appV1_1{doc: &doc}, nil
}

func (v *appV1_1) version() string { return AppVersion1_1 }

func (v *appV1_1) current() (*models.AppDocument, bool) { return v.doc, true }

func (v *appV1_1) upgrade() (Variant[models.AppDocument], error) { return nil, errNoUpgrade }
