package admin

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"trailhead/pkg/platform/httputil"
	"trailhead/pkg/testutil"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		expected string
		token    string
		status   int
	}{
		{"matching token", "secret", "secret", http.StatusNoContent},
		{"wrong token", "secret", "guess", http.StatusUnauthorized},
		{"missing token", "secret", "", http.StatusUnauthorized},
		{"unconfigured token rejects everything", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewRequest(t, http.MethodPost, "/admin/reconcile")
			if tt.token != "" {
				req.Header.Set(Header, tt.token)
			}
			rr := testutil.DoRequest(RequireAdminToken(tt.expected, logger)(ok), req)
			testutil.AssertStatus(t, rr, tt.status)
			if tt.status == http.StatusUnauthorized {
				testutil.AssertErrorCode(t, rr, httputil.CodeUnauthorized)
			}
		})
	}
}
