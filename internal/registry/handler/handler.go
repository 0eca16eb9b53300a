// Package handler exposes the registry service over HTTP.
//
// Document writes honour If-Match (and If-None-Match: * for create-only) and return
// the new version in the ETag header. Index failures after a successful write are
// reported in the body, not as an error status.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/reconcile"
	"trailhead/internal/registry/service"
	"trailhead/pkg/platform/httputil"
	"trailhead/pkg/platform/middleware/admin"
	"trailhead/pkg/requestcontext"
)

// Service defines the registry operations the handler calls.
type Service interface {
	GetApp(ctx context.Context) (*models.AppDocument, models.ETag, error)
	UpsertApp(ctx context.Context, doc *models.AppDocument, expected models.ETag) (models.ETag, error)
	ListOrgs(ctx context.Context, filter models.OrgFilter) ([]models.OrganizationSummary, error)
	CreateOrg(ctx context.Context, in service.NewOrg) (service.OrgResult, error)
	GetOrg(ctx context.Context, slug string) (*models.OrgDocument, models.ETag, error)
	UpsertOrg(ctx context.Context, slug string, doc *models.OrgDocument, expected models.ETag) (service.OrgResult, error)
	CreateHunt(ctx context.Context, slug string, hunt models.Hunt) (service.EventResult, error)
	GetEvent(ctx context.Context, slug, huntID string) (*models.Event, models.ETag, error)
	UpsertEvent(ctx context.Context, event *models.Event, expected models.ETag) (service.EventResult, error)
	UpdateHuntStatus(ctx context.Context, slug, huntID string, status models.HuntStatus) (service.EventResult, error)
	RescheduleHunt(ctx context.Context, slug, huntID, startDate, endDate string) (service.EventResult, error)
	AttachStopMedia(ctx context.Context, slug, huntID, stopID string, upload service.MediaUpload) (service.EventResult, error)
	ListToday(ctx context.Context, date string, filter models.OrgFilter) ([]models.EventSummary, error)
}

type Handler struct {
	service       Service
	scheduler     reconcile.Scheduler
	logger        *slog.Logger
	adminToken    string
	maxMediaBytes int64
}

type Option func(*Handler)

// WithReconcileScheduler enables POST /admin/reconcile.
func WithReconcileScheduler(s reconcile.Scheduler) Option {
	return func(h *Handler) {
		h.scheduler = s
	}
}

func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

func WithMaxMediaBytes(n int64) Option {
	return func(h *Handler) {
		h.maxMediaBytes = n
	}
}

func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the registry routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/app", h.handleGetApp)
		v1.Put("/app", h.handlePutApp)
		v1.Get("/events", h.handleListToday)

		v1.Get("/orgs", h.handleListOrgs)
		v1.Post("/orgs", h.handleCreateOrg)
		v1.Route("/orgs/{slug}", func(org chi.Router) {
			org.Get("/", h.handleGetOrg)
			org.Put("/", h.handlePutOrg)
			org.Post("/hunts", h.handleCreateHunt)
			org.Route("/hunts/{huntID}", func(hunt chi.Router) {
				hunt.Get("/", h.handleGetEvent)
				hunt.Put("/", h.handlePutEvent)
				hunt.Post("/status", h.handleUpdateStatus)
				hunt.Post("/schedule", h.handleReschedule)
				hunt.Put("/stops/{stopID}/media", h.handleAttachMedia)
			})
		})
	})

	r.Group(func(adm chi.Router) {
		adm.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		adm.Post("/admin/reconcile", h.handleReconcile)
	})
}

func (h *Handler) handleGetApp(w http.ResponseWriter, r *http.Request) {
	app, etag, err := h.service.GetApp(r.Context())
	if err != nil {
		h.fail(w, r, "get app", err)
		return
	}
	setETag(w, etag)
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) handlePutApp(w http.ResponseWriter, r *http.Request) {
	doc, err := httputil.DecodeJSON[models.AppDocument](w, r, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	etag, err := h.service.UpsertApp(r.Context(), doc, expectedETag(r))
	if err != nil {
		h.fail(w, r, "upsert app", err)
		return
	}
	setETag(w, etag)
	httputil.WriteJSON(w, http.StatusOK, AppWriteResponse{ETag: string(etag)})
}

func (h *Handler) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.service.ListOrgs(r.Context(), orgFilter(r))
	if err != nil {
		h.fail(w, r, "list orgs", err)
		return
	}
	if orgs == nil {
		orgs = []models.OrganizationSummary{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListOrgsResponse{Organizations: orgs})
}

func (h *Handler) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[CreateOrgRequest](w, r, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	in, err := req.toNewOrg()
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.CreateOrg(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create org", err)
		return
	}
	setETag(w, res.ETag)
	httputil.WriteJSON(w, http.StatusCreated, fromOrgResult(res))
}

func (h *Handler) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	doc, etag, err := h.service.GetOrg(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, "get org", err)
		return
	}
	setETag(w, etag)
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handlePutOrg(w http.ResponseWriter, r *http.Request) {
	doc, err := httputil.DecodeJSON[models.OrgDocument](w, r, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.UpsertOrg(r.Context(), chi.URLParam(r, "slug"), doc, expectedETag(r))
	if err != nil {
		h.fail(w, r, "upsert org", err)
		return
	}
	setETag(w, res.ETag)
	httputil.WriteJSON(w, http.StatusOK, fromOrgResult(res))
}

func (h *Handler) handleCreateHunt(w http.ResponseWriter, r *http.Request) {
	hunt, err := httputil.DecodeJSON[models.Hunt](w, r, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.CreateHunt(r.Context(), chi.URLParam(r, "slug"), *hunt)
	if err != nil {
		h.fail(w, r, "create hunt", err)
		return
	}
	h.writeEvent(w, http.StatusCreated, res)
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, etag, err := h.service.GetEvent(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "huntID"))
	if err != nil {
		h.fail(w, r, "get event", err)
		return
	}
	setETag(w, etag)
	httputil.WriteJSON(w, http.StatusOK, event)
}

func (h *Handler) handlePutEvent(w http.ResponseWriter, r *http.Request) {
	hunt, err := httputil.DecodeJSON[models.Hunt](w, r, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	huntID := chi.URLParam(r, "huntID")
	if hunt.ID != "" && hunt.ID != huntID {
		writeError(w, httputil.BadRequest("hunt id does not match the path"))
		return
	}
	hunt.ID = huntID
	event := &models.Event{OrgSlug: chi.URLParam(r, "slug"), Hunt: *hunt}
	res, err := h.service.UpsertEvent(r.Context(), event, expectedETag(r))
	if err != nil {
		h.fail(w, r, "upsert event", err)
		return
	}
	h.writeEvent(w, http.StatusOK, res)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[StatusRequest](w, r, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.UpdateHuntStatus(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "huntID"), req.Status)
	if err != nil {
		h.fail(w, r, "update hunt status", err)
		return
	}
	h.writeEvent(w, http.StatusOK, res)
}

func (h *Handler) handleReschedule(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[ScheduleRequest](w, r, 0)
	if err == nil {
		err = req.validate()
	}
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.RescheduleHunt(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "huntID"), req.StartDate, req.EndDate)
	if err != nil {
		h.fail(w, r, "reschedule hunt", err)
		return
	}
	h.writeEvent(w, http.StatusOK, res)
}

func (h *Handler) handleAttachMedia(w http.ResponseWriter, r *http.Request) {
	upload := mediaUpload(w, r, h.maxMediaBytes)
	res, err := h.service.AttachStopMedia(r.Context(),
		chi.URLParam(r, "slug"),
		chi.URLParam(r, "huntID"),
		chi.URLParam(r, "stopID"),
		upload,
	)
	if err != nil {
		h.fail(w, r, "attach stop media", err)
		return
	}
	h.writeEvent(w, http.StatusOK, res)
}

func (h *Handler) handleListToday(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = requestcontext.Now(r.Context()).UTC().Format("2006-01-02")
	}
	events, err := h.service.ListToday(r.Context(), date, orgFilter(r))
	if err != nil {
		h.fail(w, r, "list today", err)
		return
	}
	if events == nil {
		events = []models.EventSummary{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListEventsResponse{Date: date, Events: events})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		httputil.WriteError(w, &httputil.RequestError{
			Code:    httputil.CodeUnavailable,
			Status:  http.StatusServiceUnavailable,
			Message: "reconciliation is disabled",
		})
		return
	}
	var req ReconcileRequest
	if r.ContentLength != 0 {
		decoded, err := httputil.DecodeJSON[ReconcileRequest](w, r, 0)
		if err != nil {
			writeError(w, err)
			return
		}
		req = *decoded
	}
	ctx := r.Context()
	err := h.scheduler.Schedule(ctx, reconcile.Request{
		Trigger:     reconcile.TriggerAdmin,
		OrgSlug:     req.OrgSlug,
		Reason:      req.Reason,
		RequestID:   requestcontext.RequestID(ctx),
		RequestedAt: requestcontext.Now(ctx).UTC(),
	})
	if err != nil {
		h.fail(w, r, "schedule reconcile", err)
		return
	}
	h.logger.InfoContext(ctx, "reconcile requested",
		"actor", requestcontext.Actor(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeEvent(w http.ResponseWriter, status int, res service.EventResult) {
	setETag(w, res.ETag)
	httputil.WriteJSON(w, status, fromEventResult(res))
}

// fail logs server-side failures at error level and client mistakes at warn.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	status, _ := httputil.Classify(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, op+" failed",
		"status", status,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	writeError(w, err)
}
