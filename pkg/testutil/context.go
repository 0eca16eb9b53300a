package testutil

import (
	"net/http"
	"time"

	"trailhead/pkg/requestcontext"
)

// WithActor adds the acting identity to the request context.
// This simulates what the metadata middleware does for X-Actor.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRequestTime pins the request-scoped time, as the requesttime middleware would.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
