package handler

import (
	"errors"
	"fmt"
	"net/http"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
	"trailhead/internal/registry/service"
	"trailhead/pkg/platform/httputil"
)

// IndexResponse reports whether the App document followed the write.
type IndexResponse struct {
	Applied bool   `json:"applied"`
	ETag    string `json:"etag,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MirrorResponse reports the secondary write during a staged store migration.
type MirrorResponse struct {
	Store string `json:"store"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type OrgResponse struct {
	Org    *models.OrgDocument `json:"org"`
	ETag   string              `json:"etag"`
	Index  IndexResponse       `json:"index"`
	Mirror *MirrorResponse     `json:"mirror,omitempty"`
}

type EventResponse struct {
	Event  *models.Event   `json:"event"`
	ETag   string          `json:"etag"`
	Index  IndexResponse   `json:"index"`
	Mirror *MirrorResponse `json:"mirror,omitempty"`
}

type ListOrgsResponse struct {
	Organizations []models.OrganizationSummary `json:"organizations"`
}

type ListEventsResponse struct {
	Date   string                `json:"date"`
	Events []models.EventSummary `json:"events"`
}

type AppWriteResponse struct {
	ETag string `json:"etag"`
}

// FieldResponse is one entry of a validation failure.
type FieldResponse struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
	Value string `json:"value,omitempty"`
}

type ValidationResponse struct {
	httputil.ErrorResponse
	DocType string          `json:"doc_type"`
	Key     string          `json:"key,omitempty"`
	Fields  []FieldResponse `json:"fields"`
}

// ConflictResponse echoes the precondition that failed.
type ConflictResponse struct {
	httputil.ErrorResponse
	Expected string `json:"expected_etag,omitempty"`
}

func fromIndex(o service.IndexOutcome) IndexResponse {
	r := IndexResponse{Applied: o.Applied, ETag: string(o.ETag)}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	return r
}

func fromMirror(o *ports.WriteOutcome) *MirrorResponse {
	if o == nil {
		return nil
	}
	r := &MirrorResponse{Store: o.Store, OK: o.OK()}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	return r
}

func fromOrgResult(res service.OrgResult) OrgResponse {
	return OrgResponse{
		Org:    res.Org,
		ETag:   string(res.ETag),
		Index:  fromIndex(res.Index),
		Mirror: fromMirror(res.Mirror),
	}
}

func fromEventResult(res service.EventResult) EventResponse {
	return EventResponse{
		Event:  res.Event,
		ETag:   string(res.ETag),
		Index:  fromIndex(res.Index),
		Mirror: fromMirror(res.Mirror),
	}
}

// writeError adds field detail to validation failures and the failed precondition
// to conflicts; everything else goes through httputil.
func writeError(w http.ResponseWriter, err error) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		resp := ValidationResponse{
			ErrorResponse: httputil.ErrorResponse{Error: httputil.CodeValidationFailed, Description: err.Error()},
			DocType:       string(verr.DocType),
			Key:           verr.Key,
			Fields:        make([]FieldResponse, 0, len(verr.Fields)),
		}
		for _, f := range verr.Fields {
			fr := FieldResponse{Field: f.Field, Rule: f.Rule, Param: f.Param}
			if f.Value != nil {
				fr.Value = fmt.Sprint(f.Value)
			}
			resp.Fields = append(resp.Fields, fr)
		}
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	var cerr *ports.ConcurrencyError
	if errors.As(err, &cerr) {
		httputil.WriteJSON(w, http.StatusPreconditionFailed, ConflictResponse{
			ErrorResponse: httputil.ErrorResponse{Error: httputil.CodePreconditionFailed, Description: err.Error()},
			Expected:      string(cerr.Expected),
		})
		return
	}
	httputil.WriteError(w, err)
}
