package models

import (
	"slices"
	"time"
)

// AppDocument is the singleton global registry document.
//
// Invariants:
//   - Exactly one instance exists, stored under a well-known key
//   - Organizations are unique by OrgSlug
//   - Every ByDate entry references an OrgSlug+HuntID pair that exists in the
//     corresponding OrgDocument (maintained by the service, eventually consistent)
type AppDocument struct {
	SchemaVersion string                      `json:"schemaVersion" validate:"required"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
	Metadata      AppMetadata                 `json:"metadata"`
	Features      Features                    `json:"features"`
	Organizations []OrganizationSummary       `json:"organizations" validate:"unique=OrgSlug,dive"`
	ByDate        map[string][]HuntIndexEntry `json:"byDate" validate:"dive,keys,datetime=2006-01-02,endkeys,dive"`
}

type AppMetadata struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
}

type Features struct {
	Flags map[string]bool `json:"flags"`
}

// OrganizationSummary is the denormalized projection of an OrgDocument embedded in
// the AppDocument.
type OrganizationSummary struct {
	OrgSlug             string         `json:"orgSlug" validate:"required,slug"`
	OrgName             string         `json:"orgName" validate:"required,max=128"`
	PrimaryContactEmail string         `json:"primaryContactEmail" validate:"omitempty,email"`
	CreatedAt           time.Time      `json:"createdAt"`
	Storage             StoragePointer `json:"storage"`
	Summary             OrgRollup      `json:"summary"`
}

// StoragePointer locates an OrgDocument in the backend that holds it.
type StoragePointer struct {
	Backend string `json:"backend,omitempty"`
	Key     string `json:"key"`
}

// OrgRollup carries counters derived from the OrgDocument.
type OrgRollup struct {
	HuntsTotal   int    `json:"huntsTotal" validate:"gte=0"`
	HuntsActive  int    `json:"huntsActive" validate:"gte=0"`
	LastHuntDate string `json:"lastHuntDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// HuntIndexEntry is one row of the byDate secondary index.
type HuntIndexEntry struct {
	OrgSlug string `json:"orgSlug" validate:"required"`
	HuntID  string `json:"huntId" validate:"required"`
}

// FindOrganization returns the index of the summary for slug, or -1.
func (a *AppDocument) FindOrganization(slug string) int {
	return slices.IndexFunc(a.Organizations, func(o OrganizationSummary) bool {
		return o.OrgSlug == slug
	})
}

// Clone returns a deep copy so callers can mutate without aliasing a cached read.
func (a *AppDocument) Clone() *AppDocument {
	if a == nil {
		return nil
	}
	out := *a
	out.Organizations = slices.Clone(a.Organizations)
	if a.Features.Flags != nil {
		out.Features.Flags = make(map[string]bool, len(a.Features.Flags))
		for k, v := range a.Features.Flags {
			out.Features.Flags[k] = v
		}
	}
	if a.ByDate != nil {
		out.ByDate = make(map[string][]HuntIndexEntry, len(a.ByDate))
		for k, v := range a.ByDate {
			out.ByDate[k] = slices.Clone(v)
		}
	}
	return &out
}
