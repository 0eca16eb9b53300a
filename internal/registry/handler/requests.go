package handler

import (
	"net/http"
	"strings"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/service"
	"trailhead/pkg/platform/httputil"
	pstrings "trailhead/pkg/platform/strings"
)

// CreateOrgRequest is the body of POST /v1/orgs.
type CreateOrgRequest struct {
	Slug     string             `json:"orgSlug"`
	Name     string             `json:"orgName"`
	Contacts []models.Contact   `json:"contacts"`
	Settings models.OrgSettings `json:"settings"`
}

func (r *CreateOrgRequest) toNewOrg() (service.NewOrg, error) {
	if strings.TrimSpace(r.Slug) == "" {
		return service.NewOrg{}, httputil.BadRequest("orgSlug is required")
	}
	return service.NewOrg{Slug: r.Slug, Name: r.Name, Contacts: r.Contacts, Settings: r.Settings}, nil
}

// StatusRequest is the body of POST .../hunts/{huntID}/status.
type StatusRequest struct {
	Status models.HuntStatus `json:"status"`
}

// ScheduleRequest is the body of POST .../hunts/{huntID}/schedule.
type ScheduleRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func (r *ScheduleRequest) validate() error {
	if r.StartDate == "" || r.EndDate == "" {
		return httputil.BadRequest("startDate and endDate are required")
	}
	return nil
}

// ReconcileRequest is the optional body of POST /admin/reconcile.
type ReconcileRequest struct {
	OrgSlug string `json:"orgSlug,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// expectedETag reads the write precondition. If-None-Match: * asks for create-only;
// If-Match: * or no header writes unconditionally.
func expectedETag(r *http.Request) models.ETag {
	if strings.TrimSpace(r.Header.Get("If-None-Match")) == "*" {
		return models.ETagAbsent
	}
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	if v == "" || v == "*" {
		return models.ETagAny
	}
	return models.ETag(unquoteETag(v))
}

// unquoteETag removes the one layer of quoting setETag adds, plus a weak prefix.
func unquoteETag(v string) string {
	v = strings.TrimPrefix(v, "W/")
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

func setETag(w http.ResponseWriter, etag models.ETag) {
	if etag != "" && etag != models.ETagAbsent {
		w.Header().Set("ETag", `"`+string(etag)+`"`)
	}
}

// orgFilter reads ?orgs=a,b and ?prefix= into an OrgFilter.
func orgFilter(r *http.Request) models.OrgFilter {
	q := r.URL.Query()
	return models.OrgFilter{
		Slugs:      pstrings.DedupeAndTrimLower(pstrings.SplitList(q.Get("orgs"))),
		NamePrefix: strings.TrimSpace(q.Get("prefix")),
	}
}

// mediaUpload builds the upload from a raw request body. The media type comes from
// ?type= or, failing that, the Content-Type family.
func mediaUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) service.MediaUpload {
	kind := models.MediaType(strings.ToLower(r.URL.Query().Get("type")))
	contentType := r.Header.Get("Content-Type")
	if kind == "" {
		family, _, _ := strings.Cut(contentType, "/")
		kind = models.MediaType(family)
	}
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	return service.MediaUpload{
		Type: kind,
		Body: body,
		Options: ports.UploadOptions{
			PublicID:    r.URL.Query().Get("publicId"),
			Filename:    r.URL.Query().Get("filename"),
			ContentType: contentType,
		},
	}
}
