package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds the request instruments of one registry.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// DefaultHTTPMetrics is registered with the default registry that /metrics
// serves.
var DefaultHTTPMetrics = NewHTTPMetrics(prometheus.DefaultRegisterer)

// NewHTTPMetrics creates the request instruments and registers them with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)

	return &HTTPMetrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by route template",
			},
			[]string{"method", "route", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds, event stream upgrades excluded",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
	}
}

// Metrics records every request into m. An event stream connection is
// counted once it closes, but its lifetime is not observed as latency.
func Metrics(m *HTTPMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)

			m.inFlight.Inc()
			defer m.inFlight.Dec()

			next.ServeHTTP(rec, r)

			route := routeTemplate(r)
			m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.Status())).Inc()
			if !rec.hijacked {
				m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			}
		})
	}
}
