package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"trailhead/internal/registry/adapters/adaptertest"
	"trailhead/internal/registry/adapters/blob"
	"trailhead/internal/registry/adapters/media"
	"trailhead/internal/registry/adapters/memory"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/reconcile"
	"trailhead/internal/registry/service"
	"trailhead/pkg/platform/httputil"
	"trailhead/pkg/platform/middleware/admin"
	"trailhead/pkg/platform/middleware/metadata"
	"trailhead/pkg/testutil"
)

const adminToken = "secret-token"

type HandlerSuite struct {
	suite.Suite
	// blob runs the suite over a badger-backed blob store instead of memory.
	blob     bool
	store    *memory.Store
	closer   func() error
	svc      *service.Service
	rebuilds int
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func TestHandlerSuiteOnBlobStore(t *testing.T) {
	suite.Run(t, &HandlerSuite{blob: true})
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var store ports.Store
	if s.blob {
		bucket, err := blob.OpenBadger("", true, logger)
		s.Require().NoError(err)
		s.closer = bucket.Close
		s.store = nil
		store = blob.New(bucket, blob.WithLogger(logger))
	} else {
		s.store = memory.New()
		store = s.store
	}
	s.svc = service.New(store, service.WithMedia(media.NewMemoryMedia("")))
	s.rebuilds = 0
	inline, err := reconcile.NewInline(func(ctx context.Context) error {
		s.rebuilds++
		_, err := s.svc.RebuildDateIndex(ctx)
		return err
	})
	s.Require().NoError(err)

	h := New(s.svc, logger, WithAdminToken(adminToken), WithReconcileScheduler(inline))
	r := chi.NewRouter()
	r.Use(metadata.RequestMetadata)
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	if s.closer != nil {
		s.Require().NoError(s.closer())
		s.closer = nil
	}
}

func (s *HandlerSuite) do(req *http.Request) *testResponse {
	return &testResponse{ResponseRecorder: testutil.DoRequest(s.router, req), t: s.T()}
}

func (s *HandlerSuite) createOrg(slug string) string {
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/orgs", CreateOrgRequest{
		Slug:     slug,
		Name:     "Org " + slug,
		Contacts: []models.Contact{{Name: "Owner", Email: slug + "@example.test", Primary: true}},
	}))
	rr.status(http.StatusCreated)
	return testutil.AssertETag(s.T(), rr.ResponseRecorder)
}

func (s *HandlerSuite) createHunt(slug string, h models.Hunt) *EventResponse {
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/orgs/"+slug+"/hunts", h))
	rr.status(http.StatusCreated)
	return testutil.UnmarshalResponse[EventResponse](s.T(), rr.ResponseRecorder)
}

func (s *HandlerSuite) TestAppLifecycle() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/app"))
	rr.status(http.StatusOK)
	s.Empty(rr.Header().Get("ETag"), "nothing stored yet")

	app := adaptertest.NewApp()
	req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/app", app)
	req.Header.Set("If-None-Match", "*")
	rr = s.do(req)
	rr.status(http.StatusOK)
	etag := testutil.AssertETag(s.T(), rr.ResponseRecorder)

	req = testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/app", app)
	req.Header.Set("If-None-Match", "*")
	s.do(req).status(http.StatusPreconditionFailed)

	req = testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/app", app)
	testutil.IfMatch(req, etag)
	s.do(req).status(http.StatusOK)
}

func (s *HandlerSuite) TestOrgAndHuntFlow() {
	testutil.Given(s.T(), "an org with one hunt", func(t *testing.T) {
		s.createOrg("acme")
		res := s.createHunt("acme", adaptertest.NewHunt("h1", "2025-08-08", "2025-08-09"))
		s.True(res.Index.Applied)
		s.Equal("h1", res.Event.Hunt.ID)
	})

	testutil.When(s.T(), "listing a day the hunt runs", func(t *testing.T) {
		rr := s.do(testutil.NewRequest(t, http.MethodGet, "/v1/events?date=2025-08-09&orgs=ACME,acme"))
		rr.status(http.StatusOK)
		out := testutil.UnmarshalResponse[ListEventsResponse](t, rr.ResponseRecorder)
		s.Require().Len(out.Events, 1)
		s.Equal("h1", out.Events[0].HuntID)
	})

	testutil.When(s.T(), "filtering to another org", func(t *testing.T) {
		rr := s.do(testutil.NewRequest(t, http.MethodGet, "/v1/events?date=2025-08-09&orgs=other"))
		out := testutil.UnmarshalResponse[ListEventsResponse](t, rr.ResponseRecorder)
		s.Empty(out.Events)
	})

	testutil.Then(s.T(), "status moves forward only", func(t *testing.T) {
		rr := s.do(testutil.NewJSONRequest(t, http.MethodPost, "/v1/orgs/acme/hunts/h1/status", StatusRequest{Status: models.HuntStatusActive}))
		rr.status(http.StatusOK)

		rr = s.do(testutil.NewJSONRequest(t, http.MethodPost, "/v1/orgs/acme/hunts/h1/status", StatusRequest{Status: models.HuntStatusScheduled}))
		rr.status(http.StatusUnprocessableEntity)
		out := testutil.UnmarshalResponse[ValidationResponse](t, rr.ResponseRecorder)
		s.Require().Len(out.Fields, 1)
		s.Equal("transition", out.Fields[0].Rule)
	})

	testutil.Then(s.T(), "rescheduling moves the listing", func(t *testing.T) {
		rr := s.do(testutil.NewJSONRequest(t, http.MethodPost, "/v1/orgs/acme/hunts/h1/schedule", ScheduleRequest{StartDate: "2025-08-20", EndDate: "2025-08-20"}))
		rr.status(http.StatusOK)

		rr = s.do(testutil.NewRequest(t, http.MethodGet, "/v1/events?date=2025-08-20"))
		out := testutil.UnmarshalResponse[ListEventsResponse](t, rr.ResponseRecorder)
		s.Len(out.Events, 1)
	})
}

func (s *HandlerSuite) TestOrgPreconditions() {
	etag := s.createOrg("acme")

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/orgs/acme"))
	rr.status(http.StatusOK)
	s.Equal(etag, testutil.AssertETag(s.T(), rr.ResponseRecorder))
	doc := testutil.UnmarshalResponse[models.OrgDocument](s.T(), rr.ResponseRecorder)

	doc.Org.OrgName = "Acme Adventures"
	req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/orgs/acme", doc)
	testutil.IfMatch(req, etag)
	rr = s.do(req)
	rr.status(http.StatusOK)
	s.NotEqual(etag, testutil.AssertETag(s.T(), rr.ResponseRecorder))

	req = testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/orgs/acme", doc)
	testutil.IfMatch(req, etag)
	rr = s.do(req)
	rr.status(http.StatusPreconditionFailed)
	out := testutil.UnmarshalResponse[ConflictResponse](s.T(), rr.ResponseRecorder)
	s.Equal(httputil.CodePreconditionFailed, out.Error)
	s.Equal(testutil.Unquote(etag), out.Expected)

	s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/orgs", CreateOrgRequest{Slug: "acme", Name: "Again"})).
		status(http.StatusPreconditionFailed)
}

func (s *HandlerSuite) TestListOrgs() {
	s.createOrg("acme")
	s.createOrg("beta")

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/orgs?prefix=org%20b"))
	rr.status(http.StatusOK)
	out := testutil.UnmarshalResponse[ListOrgsResponse](s.T(), rr.ResponseRecorder)
	s.Require().Len(out.Organizations, 1)
	s.Equal("beta", out.Organizations[0].OrgSlug)
}

func (s *HandlerSuite) TestErrors() {
	s.createOrg("acme")

	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		code   string
	}{
		{
			name:   "unknown org",
			req:    func(t *testing.T) *http.Request { return testutil.NewRequest(t, http.MethodGet, "/v1/orgs/ghost") },
			status: http.StatusNotFound,
			code:   httputil.CodeNotFound,
		},
		{
			name:   "unknown hunt",
			req:    func(t *testing.T) *http.Request { return testutil.NewRequest(t, http.MethodGet, "/v1/orgs/acme/hunts/nope") },
			status: http.StatusNotFound,
			code:   httputil.CodeNotFound,
		},
		{
			name: "malformed body",
			req: func(t *testing.T) *http.Request {
				return testutil.NewRequestWithBody(t, http.MethodPost, "/v1/orgs/acme/hunts", "{")
			},
			status: http.StatusBadRequest,
			code:   httputil.CodeBadRequest,
		},
		{
			name: "missing slug",
			req: func(t *testing.T) *http.Request {
				return testutil.NewJSONRequest(t, http.MethodPost, "/v1/orgs", CreateOrgRequest{Name: "No slug"})
			},
			status: http.StatusBadRequest,
			code:   httputil.CodeBadRequest,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := s.do(tt.req(s.T()))
			testutil.AssertStatusAndError(s.T(), rr.ResponseRecorder, tt.status, tt.code)
		})
	}

	s.Run("malformed date", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/events?date=08/08/2025"))
		rr.status(http.StatusUnprocessableEntity)
		out := testutil.UnmarshalResponse[ValidationResponse](s.T(), rr.ResponseRecorder)
		s.Equal(httputil.CodeValidationFailed, out.Error)
		s.Equal("date", out.Fields[0].Field)
	})

	s.Run("backend outage", func() {
		if s.store == nil {
			s.T().Skip("fault injection needs the memory store")
		}
		s.store.SetFault(func(op, _ string) error {
			return ports.Unavailable("memory", op, false, io.ErrUnexpectedEOF)
		})
		defer s.store.SetFault(nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/orgs/acme"))
		testutil.AssertStatusAndError(s.T(), rr.ResponseRecorder, http.StatusServiceUnavailable, httputil.CodeUnavailable)
		s.Equal("1", rr.Header().Get("Retry-After"))
	})
}

func (s *HandlerSuite) TestHuntAuditStamps() {
	s.createOrg("acme")
	stamp := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/orgs/acme/hunts", adaptertest.NewHunt("h1", "2025-08-08", "2025-08-08"))
	req = testutil.WithRequestTime(testutil.WithActor(req, "organizer@acme.test"), stamp)
	rr := s.do(req)
	rr.status(http.StatusCreated)
	out := testutil.UnmarshalResponse[EventResponse](s.T(), rr.ResponseRecorder)
	s.Equal("organizer@acme.test", out.Event.Hunt.Audit.CreatedBy)
	s.True(stamp.Equal(out.Event.Hunt.Audit.CreatedAt))

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/orgs/acme/hunts/h1/status", StatusRequest{Status: models.HuntStatusActive})
	req.Header.Set(metadata.HeaderActor, "staff@acme.test")
	rr = s.do(req)
	rr.status(http.StatusOK)
	out = testutil.UnmarshalResponse[EventResponse](s.T(), rr.ResponseRecorder)
	s.Equal("organizer@acme.test", out.Event.Hunt.Audit.CreatedBy)
	s.Equal("staff@acme.test", out.Event.Hunt.Audit.UpdatedBy)
}

func (s *HandlerSuite) TestAttachMedia() {
	s.createOrg("acme")
	s.createHunt("acme", adaptertest.NewHunt("h1", "2025-08-08", "2025-08-08"))

	req := testutil.NewRequestWithBody(s.T(), http.MethodPut, "/v1/orgs/acme/hunts/h1/stops/h1-s1/media?filename=gate.png", "png-bytes")
	req.Header.Set("Content-Type", "image/png")
	rr := s.do(req)
	rr.status(http.StatusOK)
	out := testutil.UnmarshalResponse[EventResponse](s.T(), rr.ResponseRecorder)
	s.Require().NotNil(out.Event.Hunt.Stops[0].Media)
	s.Equal(models.MediaTypeImage, out.Event.Hunt.Stops[0].Media.MediaType)

	req = testutil.NewRequestWithBody(s.T(), http.MethodPut, "/v1/orgs/acme/hunts/h1/stops/h1-s1/media", "?")
	req.Header.Set("Content-Type", "audio/mpeg")
	s.do(req).status(http.StatusUnprocessableEntity)
}

func (s *HandlerSuite) TestReconcileRequiresAdminToken() {
	s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/reconcile")).status(http.StatusUnauthorized)
	s.Zero(s.rebuilds)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/reconcile", ReconcileRequest{Reason: "manual"})
	req.Header.Set(admin.Header, adminToken)
	s.do(req).status(http.StatusAccepted)
	s.Equal(1, s.rebuilds)
}

type testResponse struct {
	*httptest.ResponseRecorder
	t *testing.T
}

func (r *testResponse) status(want int) *testResponse {
	r.t.Helper()
	testutil.AssertStatus(r.t, r.ResponseRecorder, want)
	return r
}
