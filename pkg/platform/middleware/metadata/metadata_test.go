package metadata

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"trailhead/internal/platform/metrics"
	"trailhead/pkg/requestcontext"
	ptestutil "trailhead/pkg/testutil"
)

func TestRequestMetadata(t *testing.T) {
	var gotID, gotActor string
	h := RequestMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotID = requestcontext.RequestID(r.Context())
		gotActor = requestcontext.Actor(r.Context())
	}))

	t.Run("propagates supplied values", func(t *testing.T) {
		req := ptestutil.NewRequest(t, http.MethodGet, "/v1/app")
		req.Header.Set(HeaderRequestID, "req-42")
		req.Header.Set(HeaderActor, "ops@example.test")
		rr := ptestutil.DoRequest(h, req)
		assert.Equal(t, "req-42", gotID)
		assert.Equal(t, "ops@example.test", gotActor)
		assert.Equal(t, "req-42", rr.Header().Get(HeaderRequestID))
	})

	t.Run("generates a request id", func(t *testing.T) {
		rr := ptestutil.DoRequest(h, ptestutil.NewRequest(t, http.MethodGet, "/v1/app"))
		assert.NotEmpty(t, gotID)
		assert.Equal(t, gotID, rr.Header().Get(HeaderRequestID))
		assert.Equal(t, "system", gotActor)
	})
}

func TestAccessLogRecoversPanics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := AccessLog(logger, m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := ptestutil.DoRequest(h, ptestutil.NewRequest(t, http.MethodGet, "/explode"))
	ptestutil.AssertStatus(t, rr, http.StatusInternalServerError)
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequests))
}

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.1.1.1:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.3"}, "1.1.1.1:80", "10.0.0.3"},
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"ipv6 remote addr", nil, "[::1]:1234", "[::1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ptestutil.NewRequest(t, http.MethodGet, "/")
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}
