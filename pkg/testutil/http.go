// Package testutil holds request builders and response assertions shared by the
// handler and middleware tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest builds a request whose body is body marshaled to JSON. A nil body
// sends no payload.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err, "marshal request body")
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// NewRequestWithBody sends body verbatim, for malformed JSON and raw uploads.
func NewRequestWithBody(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// IfMatch sets the write precondition header to etag verbatim, the way clients echo
// a response's ETag header back.
func IfMatch(req *http.Request, etag string) *http.Request {
	req.Header.Set("If-Match", etag)
	return req
}

func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// UnmarshalResponse decodes the recorded body into T without consuming it, so a
// test can decode the same response more than once.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "unmarshal response: %s", rr.Body.String())
	return &out
}

// ErrorBody is the common part of every error payload.
type ErrorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status, body: %s", rr.Body.String())
}

func AssertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	assert.Equal(t, expectedCode, UnmarshalResponse[ErrorBody](t, rr).Error, "unexpected error code")
}

func AssertStatusAndError(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus int, expectedCode string) {
	t.Helper()
	AssertStatus(t, rr, expectedStatus)
	AssertErrorCode(t, rr, expectedCode)
}

// AssertETag checks the response carries a strong ETag quoted exactly once and
// returns the header as sent.
func AssertETag(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	raw := rr.Header().Get("ETag")
	require.NotEmpty(t, raw, "missing ETag header")
	require.True(t, len(raw) > 2 && strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`), "ETag %q is not quoted", raw)
	assert.NotContains(t, raw[1:len(raw)-1], `"`, "ETag %q is quoted more than once", raw)
	return raw
}

// Unquote strips the quotes AssertETag leaves on, for comparing with etags
// reported in response bodies.
func Unquote(etag string) string {
	return strings.TrimSuffix(strings.TrimPrefix(etag, `"`), `"`)
}
