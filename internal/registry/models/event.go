package models

import (
	"slices"
	"strings"
)

// Event is a single hunt viewed together with the organization that owns it.
// Its version token is the ETag of the owning OrgDocument.
type Event struct {
	OrgSlug string `json:"orgSlug"`
	OrgName string `json:"orgName"`
	Hunt    Hunt   `json:"hunt"`
}

// EventSummary is the listing projection returned by date lookups.
type EventSummary struct {
	OrgSlug   string     `json:"orgSlug"`
	OrgName   string     `json:"orgName"`
	HuntID    string     `json:"huntId"`
	HuntSlug  string     `json:"huntSlug"`
	Name      string     `json:"name"`
	StartDate string     `json:"startDate"`
	EndDate   string     `json:"endDate"`
	Status    HuntStatus `json:"status"`
}

// SummarizeHunt builds the listing projection for one hunt of org.
func SummarizeHunt(org Org, h Hunt) EventSummary {
	return EventSummary{
		OrgSlug:   org.OrgSlug,
		OrgName:   org.OrgName,
		HuntID:    h.ID,
		HuntSlug:  h.Slug,
		Name:      h.Name,
		StartDate: h.StartDate,
		EndDate:   h.EndDate,
		Status:    h.Status,
	}
}

// OrgFilter narrows ListOrgs results. The zero value matches every organization.
type OrgFilter struct {
	Slugs      []string
	NamePrefix string
}

// Match reports whether summary passes the filter.
func (f OrgFilter) Match(summary OrganizationSummary) bool {
	if len(f.Slugs) > 0 && !slices.Contains(f.Slugs, summary.OrgSlug) {
		return false
	}
	if f.NamePrefix != "" && !strings.HasPrefix(strings.ToLower(summary.OrgName), strings.ToLower(f.NamePrefix)) {
		return false
	}
	return true
}
