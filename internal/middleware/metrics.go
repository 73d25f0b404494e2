package middleware

import (
	"net/http"

	"github.com/bryanwahyu/paperscore/internal/telemetry"
)

// MetricsMiddleware counts requests by status class and tracks in-flight
// requests. The status class is taken from the response writer, so it has to
// wrap the logging middleware or sit next to it.
func MetricsMiddleware(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.InFlight.Inc()
			defer m.InFlight.Dec()

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)
			m.HTTPRequests.WithLabelValues(statusClass(wrapped.statusCode)).Inc()
		})
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
