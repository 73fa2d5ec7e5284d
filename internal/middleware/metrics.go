package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/metrics"
)

// Metrics records request count and latency per matched route pattern.
// Requests no route matched are grouped under "unmatched".
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" || route == "/" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start))
		})
	}
}
