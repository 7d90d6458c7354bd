package mid

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/partlinq/partsearch/pkg/metrics"
)

// Throttle returns middleware that rejects requests with 429 once the
// process-wide token bucket is exhausted. Load shedding happens at the edge;
// the circuit breakers protect the dependencies behind it.
func Throttle(rps float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestMetrics returns middleware that observes request durations into a
// histogram on the given registry.
func RequestMetrics(reg *metrics.Registry) Middleware {
	hist := reg.Histogram("http_request_duration_seconds", "HTTP request latency", nil)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			hist.Since(start)
		})
	}
}
