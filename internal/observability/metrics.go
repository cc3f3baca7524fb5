package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session validation outcomes
const (
	ValidationValid   = "valid"
	ValidationInvalid = "invalid"
	ValidationError   = "error"
)

// Metrics collects application metrics.
type Metrics interface {
	RecordSessionIssued()
	RecordSessionValidation(result string)
	RecordSessionsRevoked(count int64)
	RecordReconciliation(outcome string)
	RecordRoleRegistrationFailure()
	RecordHTTPRequest(method string, status int, duration time.Duration)
}

// Collector is the Prometheus implementation of Metrics
type Collector struct {
	sessionsIssued        prometheus.Counter
	sessionValidations    *prometheus.CounterVec
	sessionsRevoked       prometheus.Counter
	reconciliations       *prometheus.CounterVec
	roleRegistrationFails prometheus.Counter
	httpRequests          *prometheus.CounterVec
	httpDuration          prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_issued_total",
			Help: "Sessions issued",
		}),
		sessionValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_session_validations_total",
			Help: "Session validations by result",
		}, []string{"result"}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_revoked_total",
			Help: "Sessions revoked or purged",
		}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_reconciliations_total",
			Help: "Identity reconciliations by outcome",
		}, []string{"outcome"}),
		roleRegistrationFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_role_registration_failures_total",
			Help: "Failed role registration notifications",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_http_requests_total",
			Help: "HTTP requests by method and status",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auth_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.sessionsIssued,
		c.sessionValidations,
		c.sessionsRevoked,
		c.reconciliations,
		c.roleRegistrationFails,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

func (c *Collector) RecordSessionIssued() {
	c.sessionsIssued.Inc()
}

func (c *Collector) RecordSessionValidation(result string) {
	c.sessionValidations.WithLabelValues(result).Inc()
}

func (c *Collector) RecordSessionsRevoked(count int64) {
	if count > 0 {
		c.sessionsRevoked.Add(float64(count))
	}
}

func (c *Collector) RecordReconciliation(outcome string) {
	c.reconciliations.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRoleRegistrationFailure() {
	c.roleRegistrationFails.Inc()
}

func (c *Collector) RecordHTTPRequest(method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpDuration.Observe(duration.Seconds())
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RecordSessionIssued() {}
func (NopMetrics) RecordSessionValidation(string) {}
func (NopMetrics) RecordSessionsRevoked(int64) {}
func (NopMetrics) RecordReconciliation(string) {}
func (NopMetrics) RecordRoleRegistrationFailure() {}
func (NopMetrics) RecordHTTPRequest(string, int, time.Duration) {}

// Handler returns the Prometheus scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
