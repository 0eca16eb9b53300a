package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
	"trailhead/pkg/requestcontext"
)

// NewOrg describes an organization to onboard.
type NewOrg struct {
	Slug     string
	Name     string
	Contacts []models.Contact
	Settings models.OrgSettings
}

// CreateOrg stores a new OrgDocument and lists it in the App document. An existing
// org under the same slug is a ConcurrencyError.
func (s *Service) CreateOrg(ctx context.Context, in NewOrg) (res OrgResult, err error) {
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	ctx, span := s.start(ctx, "CreateOrg", attribute.String("org.slug", slug))
	defer func() { finish(span, err) }()

	doc := &models.OrgDocument{
		SchemaVersion: schema.OrgCurrentVersion,
		Org: models.Org{
			OrgSlug:  slug,
			OrgName:  strings.TrimSpace(in.Name),
			Contacts: slices.Clone(in.Contacts),
			Settings: in.Settings,
		},
		Hunts: []models.Hunt{},
	}
	if doc.Org.Contacts == nil {
		doc.Org.Contacts = []models.Contact{}
	}
	if len(doc.Org.Settings.DefaultTeams) == 0 {
		doc.Org.Settings.DefaultTeams = slices.Clone(models.DefaultTeamColors)
	}
	if err := schema.ValidateOrg(slug, doc); err != nil {
		return OrgResult{}, err
	}

	w, err := s.mutateOrg(ctx, "CreateOrg", slug, true, func(current *models.OrgDocument, read readState) (*models.OrgDocument, error) {
		if current != nil {
			return nil, &ports.ConcurrencyError{Kind: ports.KindOrg, Key: slug, Expected: models.ETagAbsent}
		}
		return doc.Clone(), nil
	})
	if err != nil {
		return OrgResult{}, err
	}
	s.logger.InfoContext(ctx, "org created",
		"org_slug", slug,
		"actor", requestcontext.Actor(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return OrgResult{Org: w.doc, ETag: w.etag, Index: s.syncApp(ctx, w.doc), Mirror: w.mirror}, nil
}

// CreateHunt appends a hunt to the org and indexes it under every day it spans.
//
// Missing IDs are generated; a caller-supplied ID makes the call idempotent: a hunt
// already stored under that ID with the same slug is returned unchanged.
func (s *Service) CreateHunt(ctx context.Context, slug string, hunt models.Hunt) (res EventResult, err error) {
	ctx, span := s.start(ctx, "CreateHunt", attribute.String("org.slug", slug))
	defer func() { finish(span, err) }()

	h := s.prepareHunt(ctx, hunt)
	span.SetAttributes(attribute.String("hunt.id", h.ID))
	if _, err := indexEntriesFor(h, s.maxHuntDays); err != nil {
		return EventResult{}, withKey(err, slug)
	}
	// Default teams come from the org document, so those hunts are validated inside
	// the write cycle.
	if h.TeamMode != models.TeamModeTeams || len(h.Teams) > 0 {
		if err := schema.ValidateHunt(&h); err != nil {
			return EventResult{}, withKey(err, slug)
		}
	}

	w, err := s.mutateOrg(ctx, "CreateHunt", slug, false, func(doc *models.OrgDocument, _ readState) (*models.OrgDocument, error) {
		if i := doc.FindHunt(h.ID); i >= 0 {
			if doc.Hunts[i].Slug == h.Slug {
				return nil, errNoChange
			}
			return nil, schema.InvalidField(schema.DocTypeOrg, slug, "hunts.id", h.ID, "unique")
		}
		if slices.ContainsFunc(doc.Hunts, func(x models.Hunt) bool { return x.Slug == h.Slug }) {
			return nil, schema.InvalidField(schema.DocTypeOrg, slug, "hunts.slug", h.Slug, "unique")
		}
		next := h.Clone()
		if next.TeamMode == models.TeamModeTeams && len(next.Teams) == 0 {
			next.Teams = defaultTeams(doc.Org.Settings.DefaultTeams)
			if len(next.Teams) == 0 {
				next.TeamMode = models.TeamModeSingle
				next.SingleTeamName = next.Name
			}
		}
		if err := schema.ValidateHunt(&next); err != nil {
			return nil, withKey(err, slug)
		}
		doc.Hunts = append(doc.Hunts, next)
		return doc, nil
	})
	if err != nil {
		return EventResult{}, err
	}
	return s.eventResult(ctx, w, h.ID, true)
}

// prepareHunt fills generated IDs, defaults and the audit stamp.
func (s *Service) prepareHunt(ctx context.Context, hunt models.Hunt) models.Hunt {
	h := hunt.Clone()
	if h.ID == "" {
		h.ID = s.newID()
	}
	if h.Status == "" {
		h.Status = models.HuntStatusScheduled
	}
	if h.TeamMode == "" {
		h.TeamMode = models.TeamModeTeams
	}
	if h.Access.Mode == "" {
		h.Access.Mode = "public"
	}
	if h.Scoring.Mode == "" {
		h.Scoring.Mode = "points"
	}
	if h.Stops == nil {
		h.Stops = []models.Stop{}
	}
	for i := range h.Stops {
		if h.Stops[i].ID == "" {
			h.Stops[i].ID = s.newID()
		}
	}
	for i := range h.Teams {
		if h.Teams[i].ID == "" {
			h.Teams[i].ID = s.newID()
		}
	}
	actor, now := requestcontext.Actor(ctx), requestcontext.Now(ctx).UTC()
	h.Audit = models.Audit{CreatedAt: now, CreatedBy: actor, UpdatedAt: now, UpdatedBy: actor}
	return h
}

func defaultTeams(colors []string) []models.Team {
	teams := make([]models.Team, 0, len(colors))
	for i, name := range colors {
		teams = append(teams, models.Team{
			ID:    fmt.Sprintf("team-%d", i+1),
			Name:  name,
			Color: strings.ToLower(name),
		})
	}
	return teams
}

// UpdateHuntStatus moves a hunt forward through scheduled → active → completed →
// archived. Asking for the status the hunt already has succeeds without a write.
//
// On a retry after a conflict the transition is checked again against the fresh
// document. If a concurrent writer moved the hunt so that the transition is no longer
// valid, the ConcurrencyError is returned instead of overwriting that change.
func (s *Service) UpdateHuntStatus(ctx context.Context, slug, huntID string, status models.HuntStatus) (res EventResult, err error) {
	ctx, span := s.start(ctx, "UpdateHuntStatus",
		attribute.String("org.slug", slug),
		attribute.String("hunt.id", huntID),
		attribute.String("hunt.status", string(status)),
	)
	defer func() { finish(span, err) }()

	if !status.IsValid() {
		return EventResult{}, schema.InvalidField(schema.DocTypeOrg, slug, huntField(huntID, "status"), string(status), "oneof")
	}

	var firstRead models.ETag
	w, err := s.mutateOrg(ctx, "UpdateHuntStatus", slug, false, func(doc *models.OrgDocument, read readState) (*models.OrgDocument, error) {
		if read.Attempt == 0 {
			firstRead = read.ETag
		}
		i := doc.FindHunt(huntID)
		if i < 0 {
			return nil, &ports.NotFoundError{Kind: ports.KindEvent, Key: slug + "/" + huntID}
		}
		h := &doc.Hunts[i]
		if h.Status == status {
			return nil, errNoChange
		}
		if !h.Status.CanTransitionTo(status) {
			if read.Attempt > 0 {
				return nil, &ports.ConcurrencyError{Kind: ports.KindEvent, Key: slug + "/" + huntID, Expected: firstRead}
			}
			return nil, &schema.ValidationError{
				DocType: schema.DocTypeOrg,
				Key:     slug,
				Fields:  []schema.FieldError{transitionField(huntID, h.Status, status)},
			}
		}
		h.Status = status
		stamp(ctx, h)
		return doc, nil
	})
	if err != nil {
		return EventResult{}, err
	}
	return s.eventResult(ctx, w, huntID, true)
}

// RescheduleHunt moves a hunt to new dates and re-indexes it. Completed and archived
// hunts keep their dates.
func (s *Service) RescheduleHunt(ctx context.Context, slug, huntID, startDate, endDate string) (res EventResult, err error) {
	ctx, span := s.start(ctx, "RescheduleHunt", attribute.String("org.slug", slug), attribute.String("hunt.id", huntID))
	defer func() { finish(span, err) }()

	if _, err := indexEntriesFor(models.Hunt{ID: huntID, StartDate: startDate, EndDate: endDate}, s.maxHuntDays); err != nil {
		return EventResult{}, withKey(err, slug)
	}

	w, err := s.mutateOrg(ctx, "RescheduleHunt", slug, false, func(doc *models.OrgDocument, _ readState) (*models.OrgDocument, error) {
		i := doc.FindHunt(huntID)
		if i < 0 {
			return nil, &ports.NotFoundError{Kind: ports.KindEvent, Key: slug + "/" + huntID}
		}
		h := &doc.Hunts[i]
		if h.StartDate == startDate && h.EndDate == endDate {
			return nil, errNoChange
		}
		if h.Status == models.HuntStatusCompleted || h.Status == models.HuntStatusArchived {
			return nil, &schema.ValidationError{
				DocType: schema.DocTypeOrg,
				Key:     slug,
				Fields: []schema.FieldError{{
					Field: huntField(huntID, "status"),
					Value: string(h.Status),
					Rule:  "oneof",
					Param: "scheduled active",
				}},
			}
		}
		h.StartDate, h.EndDate = startDate, endDate
		stamp(ctx, h)
		return doc, nil
	})
	if err != nil {
		return EventResult{}, err
	}
	return s.eventResult(ctx, w, huntID, true)
}

// MediaUpload carries the bytes for AttachStopMedia.
type MediaUpload struct {
	Type    models.MediaType
	Body    io.Reader
	Options ports.UploadOptions
}

// AttachStopMedia uploads media and points the stop at it. The upload happens once,
// before the write cycle; if the write fails the upload is deleted again. Media the
// stop pointed at before is deleted after a successful write.
func (s *Service) AttachStopMedia(ctx context.Context, slug, huntID, stopID string, upload MediaUpload) (res EventResult, err error) {
	ctx, span := s.start(ctx, "AttachStopMedia",
		attribute.String("org.slug", slug),
		attribute.String("hunt.id", huntID),
		attribute.String("stop.id", stopID),
	)
	defer func() { finish(span, err) }()

	if s.media == nil {
		return EventResult{}, ErrNoMedia
	}
	event, _, err := s.store.GetEvent(ctx, slug, huntID)
	if err != nil {
		return EventResult{}, err
	}
	if event.Hunt.FindStop(stopID) < 0 {
		return EventResult{}, &ports.NotFoundError{Kind: ports.KindEvent, Key: slug + "/" + huntID + "/" + stopID}
	}

	opts := upload.Options
	if opts.Folder == "" {
		opts.Folder = slug + "/" + huntID
	}
	var pointer *models.MediaPointer
	switch upload.Type {
	case models.MediaTypeImage:
		pointer, err = s.media.UploadImage(ctx, upload.Body, opts)
	case models.MediaTypeVideo:
		pointer, err = s.media.UploadVideo(ctx, upload.Body, opts)
	default:
		return EventResult{}, schema.InvalidField(schema.DocTypeMedia, "", "mediaType", string(upload.Type), "oneof")
	}
	if err != nil {
		return EventResult{}, err
	}

	var replaced *models.MediaPointer
	w, err := s.mutateOrg(ctx, "AttachStopMedia", slug, false, func(doc *models.OrgDocument, _ readState) (*models.OrgDocument, error) {
		i := doc.FindHunt(huntID)
		if i < 0 {
			return nil, &ports.NotFoundError{Kind: ports.KindEvent, Key: slug + "/" + huntID}
		}
		h := &doc.Hunts[i]
		j := h.FindStop(stopID)
		if j < 0 {
			return nil, &ports.NotFoundError{Kind: ports.KindEvent, Key: slug + "/" + huntID + "/" + stopID}
		}
		replaced = h.Stops[j].Media
		m := *pointer
		h.Stops[j].Media = &m
		stamp(ctx, h)
		return doc, nil
	})
	if err != nil {
		s.deleteMedia(ctx, pointer)
		return EventResult{}, err
	}
	if replaced != nil && replaced.PublicID != pointer.PublicID {
		s.deleteMedia(ctx, replaced)
	}
	return s.eventResult(ctx, w, huntID, false)
}

func (s *Service) deleteMedia(ctx context.Context, m *models.MediaPointer) {
	if err := s.media.DeleteMedia(context.WithoutCancel(ctx), m.PublicID, m.MediaType); err != nil {
		s.logger.WarnContext(ctx, "media cleanup failed", "public_id", m.PublicID, "error", err)
	}
}

// UpsertEvent writes a caller-built hunt conditional on the owning OrgDocument's ETag,
// without retry. A status change must still move forward.
func (s *Service) UpsertEvent(ctx context.Context, event *models.Event, expected models.ETag) (res EventResult, err error) {
	if event == nil {
		return EventResult{}, schema.InvalidField(schema.DocTypeOrg, "", "event", nil, "required")
	}
	ctx, span := s.start(ctx, "UpsertEvent", attribute.String("org.slug", event.OrgSlug))
	defer func() { finish(span, err) }()

	next := *event
	next.Hunt = event.Hunt.Clone()
	if next.Hunt.ID == "" {
		next.Hunt = s.prepareHunt(ctx, next.Hunt)
	} else {
		stamp(ctx, &next.Hunt)
	}
	if _, err := indexEntriesFor(next.Hunt, s.maxHuntDays); err != nil {
		return EventResult{}, withKey(err, next.OrgSlug)
	}

	current, _, err := s.store.GetEvent(ctx, next.OrgSlug, next.Hunt.ID)
	var nf *ports.NotFoundError
	switch {
	case err == nil:
		from, to := current.Hunt.Status, next.Hunt.Status
		if from != to && !from.CanTransitionTo(to) {
			return EventResult{}, &schema.ValidationError{
				DocType: schema.DocTypeOrg,
				Key:     next.OrgSlug,
				Fields:  []schema.FieldError{transitionField(next.Hunt.ID, from, to)},
			}
		}
		next.Hunt.Audit.CreatedAt = current.Hunt.Audit.CreatedAt
		next.Hunt.Audit.CreatedBy = current.Hunt.Audit.CreatedBy
	case errors.As(err, &nf) && nf.Kind == ports.KindEvent:
	default:
		return EventResult{}, err
	}
	if next.Hunt.Audit.CreatedAt.IsZero() {
		next.Hunt.Audit.CreatedAt = next.Hunt.Audit.UpdatedAt
		next.Hunt.Audit.CreatedBy = next.Hunt.Audit.UpdatedBy
	}

	written, etag, err := s.store.UpsertEvent(ctx, &next, expected)
	if err != nil {
		if ports.IsConflict(err) {
			s.metrics.IncrementConflict("UpsertEvent")
		}
		return EventResult{}, err
	}
	res = EventResult{Event: written, ETag: etag}

	doc, _, err := s.store.GetOrg(ctx, next.OrgSlug)
	if err != nil {
		res.Index = IndexOutcome{Err: err}
		s.metrics.IncrementIndexFailure()
		s.scheduleRepair(ctx, next.OrgSlug, err)
		return res, nil
	}
	res.Index = s.syncApp(ctx, doc)
	return res, nil
}

func (s *Service) eventResult(ctx context.Context, w orgWrite, huntID string, sync bool) (EventResult, error) {
	i := w.doc.FindHunt(huntID)
	if i < 0 {
		return EventResult{}, &ports.NotFoundError{Kind: ports.KindEvent, Key: w.doc.Org.OrgSlug + "/" + huntID}
	}
	res := EventResult{
		Event: &models.Event{
			OrgSlug: w.doc.Org.OrgSlug,
			OrgName: w.doc.Org.OrgName,
			Hunt:    w.doc.Hunts[i],
		},
		ETag:   w.etag,
		Mirror: w.mirror,
		Index:  IndexOutcome{Applied: true},
	}
	if sync {
		res.Index = s.syncApp(ctx, w.doc)
	}
	return res, nil
}

func stamp(ctx context.Context, h *models.Hunt) {
	h.Audit.UpdatedAt = requestcontext.Now(ctx).UTC()
	h.Audit.UpdatedBy = requestcontext.Actor(ctx)
}

// withKey fills in the document key on validation errors raised before the document
// was known.
func withKey(err error, key string) error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) && verr.Key == "" {
		verr.Key = key
	}
	return err
}
