// Package metrics collects and exposes Prometheus metrics for the auth
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records the service's Prometheus metrics.
type Collector struct {
	loginOutcomes *prometheus.CounterVec
	tokensIssued  *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// Login outcome labels.
const (
	OutcomeSuccess       = "success"
	OutcomeFailed        = "failed"
	OutcomeDenied        = "denied"
	OutcomeThrottled     = "throttled"
	OutcomeUnknownClient = "unknown_client"
)

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_login_outcomes_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_tokens_issued_total",
			Help: "Tokens issued by kind (access, refresh).",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_http_responses_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authcore_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		c.loginOutcomes,
		c.tokensIssued,
		c.httpStatus,
		c.httpDuration,
	)

	return c
}

// RecordLogin records a login attempt outcome.
func (c *Collector) RecordLogin(outcome string) {
	c.loginOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTokenIssued records an issued token of the given kind.
func (c *Collector) RecordTokenIssued(kind string) {
	c.tokensIssued.WithLabelValues(kind).Inc()
}

// RecordHTTPResponse records a response status code.
func (c *Collector) RecordHTTPResponse(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPDuration records the handling latency for a route pattern.
func (c *Collector) RecordHTTPDuration(method, path string, d time.Duration) {
	c.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler for the gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
