// Package metadata attaches request-scoped metadata (request ID, actor, request
// time) to the context and writes one access log line per request.
package metadata

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trailhead/internal/platform/metrics"
	"trailhead/pkg/platform/httputil"
	"trailhead/pkg/requestcontext"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderActor     = "X-Actor"
)

// RequestMetadata reads or generates the request ID, reads the acting identity and
// echoes the request ID on the response. It should be applied early in the chain.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		if actor := strings.TrimSpace(r.Header.Get(HeaderActor)); actor != "" {
			ctx = requestcontext.WithActor(ctx, actor)
		}
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// AccessLog logs and times every request. Panics are recovered, logged and answered
// with a 500.
func AccessLog(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx := r.Context()

			defer func() {
				if p := recover(); p != nil {
					logger.ErrorContext(ctx, "panic serving request",
						"panic", p,
						"request_id", requestcontext.RequestID(ctx),
					)
					httputil.WriteJSON(rec, http.StatusInternalServerError, httputil.ErrorResponse{Error: httputil.CodeInternal})
				}
				route := r.URL.Path
				if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
					route = rc.RoutePattern()
				}
				m.ObserveHTTPRequest(route, r.Method, rec.status, start)
				logger.InfoContext(ctx, "http request",
					"method", r.Method,
					"route", route,
					"status", rec.status,
					"duration_ms", time.Since(start).Milliseconds(),
					"client_ip", ClientIPFromRequest(r),
					"actor", requestcontext.Actor(ctx),
					"request_id", requestcontext.RequestID(ctx),
				)
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		// For IPv6, format is [::1]:port
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
