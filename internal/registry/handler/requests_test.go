package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"trailhead/internal/registry/models"
	"trailhead/pkg/testutil"
)

func TestExpectedETag(t *testing.T) {
	tests := []struct {
		name        string
		ifMatch     string
		ifNoneMatch string
		expected    models.ETag
	}{
		{name: "no header", expected: models.ETagAny},
		{name: "wildcard", ifMatch: "*", expected: models.ETagAny},
		{name: "create only", ifNoneMatch: "*", expected: models.ETagAbsent},
		{name: "quoted token", ifMatch: `"3f2a"`, expected: "3f2a"},
		{name: "weak token", ifMatch: `W/"3f2a"`, expected: "3f2a"},
		{name: "bare token", ifMatch: "3f2a", expected: "3f2a"},
		// Only one layer is ours to strip; anything inside belongs to the token.
		{name: "doubly quoted token", ifMatch: `""3f2a""`, expected: `"3f2a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewRequest(t, http.MethodPut, "/v1/app")
			if tt.ifMatch != "" {
				req.Header.Set("If-Match", tt.ifMatch)
			}
			if tt.ifNoneMatch != "" {
				req.Header.Set("If-None-Match", tt.ifNoneMatch)
			}
			assert.Equal(t, tt.expected, expectedETag(req))
		})
	}
}

func TestSetETagRoundTrip(t *testing.T) {
	for _, etag := range []models.ETag{"3f2a", "01HZX-7", "42"} {
		rr := testutil.DoRequest(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			setETag(w, etag)
		}), testutil.NewRequest(t, http.MethodGet, "/"))
		header := testutil.AssertETag(t, rr)

		req := testutil.IfMatch(testutil.NewRequest(t, http.MethodPut, "/"), header)
		assert.Equal(t, etag, expectedETag(req), "echoing %s back", header)
	}

	rr := testutil.DoRequest(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		setETag(w, models.ETagAbsent)
	}), testutil.NewRequest(t, http.MethodGet, "/"))
	assert.Empty(t, rr.Header().Get("ETag"))
}
