package httpx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// initMetrics registers collectors on the router's own registry so parallel
// routers (tests) never collide.
func (r *Router) initMetrics() {
	r.registry = prometheus.NewRegistry()

	r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskdeck",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	r.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskdeck",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	r.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskdeck",
		Subsystem: "api",
		Name:      "rate_limit_hits_total",
		Help:      "Number of rate-limited responses",
	}, []string{"route"})

	r.registry.MustRegister(r.requestTotal, r.requestLatency, r.rateLimitHits)
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if r.requestTotal == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route string) {
	if r.rateLimitHits == nil {
		return
	}
	r.rateLimitHits.With(prometheus.Labels{"route": route}).Inc()
}
