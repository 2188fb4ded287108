package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/okian/livebid/pkg/metrics"
)

// RequestMetrics records count and latency per route pattern. Unmatched
// paths share the "unmatched" label so arbitrary URLs cannot blow up
// cardinality.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routeLabel(r)
		code := strconv.Itoa(status)
		metrics.RecordHTTPRequest(route, r.Method, code)
		metrics.RecordHTTPRequestDuration(route, r.Method, code, float64(time.Since(start).Milliseconds()))
		if status >= http.StatusBadRequest {
			metrics.RecordErrorByComponent("http", statusClass(status))
		}
	})
}

func routeLabel(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return "unmatched"
	}
	if p := rc.RoutePattern(); p != "" {
		return p
	}
	return "unmatched"
}

func statusClass(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status == http.StatusConflict:
		return "invalid_transition"
	case status == http.StatusNotFound:
		return "not_found"
	default:
		return "client_error"
	}
}

// acceptsAny reports whether the Accept header names one of the media types.
func acceptsAny(accept string, types ...string) bool {
	for _, t := range types {
		if strings.Contains(accept, t) {
			return true
		}
	}
	return false
}
