package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailhead/pkg/platform/sentinel"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, CodeInternal, body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok, "internal errors must not leak their message")
	})

	t.Run("integrity errors are internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, fmt.Errorf("migrate org acme: %w", sentinel.ErrIntegrity))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, CodeInternal, decodeBody(t, w)["error"])
	})

	t.Run("bad request includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, BadRequest("invalid input"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, CodeBadRequest, body["error"])
		assert.Equal(t, "invalid input", body["error_description"])
	})

	t.Run("unavailable sets retry-after", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, fmt.Errorf("get app: %w", sentinel.ErrUnavailable))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", sentinel.ErrInvalid, http.StatusUnprocessableEntity, CodeValidationFailed},
		{"conflict", sentinel.ErrConflict, http.StatusPreconditionFailed, CodePreconditionFailed},
		{"not found", sentinel.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"unauthorized", Unauthorized("token required"), http.StatusUnauthorized, CodeUnauthorized},
		{"wrapped", fmt.Errorf("outer: %w", sentinel.ErrNotFound), http.StatusNotFound, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	decode := func(body string, max int64) (*payload, error) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return DecodeJSON[payload](httptest.NewRecorder(), r, max)
	}

	got, err := decode(`{"name":"acme"}`, 0)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Name)

	_, err = decode(`{"name":"acme","extra":1}`, 0)
	status, code := Classify(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeBadRequest, code)

	_, err = decode(`{"name":"`+strings.Repeat("a", 64)+`"}`, 16)
	status, _ = Classify(err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
}
