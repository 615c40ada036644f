package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/linkguard/internal/domain/service"
)

var (
	_ service.MetricsRecorder = (*Metrics)(nil)
	_ service.MetricsRecorder = NoopMetrics{}
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	RateLimitDecisions *prometheus.CounterVec
	StoreFailures      *prometheus.CounterVec
	TokenRevocations   *prometheus.CounterVec
	BlacklistHits      prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
	AuditDropped       prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg. Pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkguard_ratelimit_decisions_total",
				Help: "Rate limit decisions by policy and result (allowed, denied, failed_open).",
			},
			[]string{"policy", "result"},
		),
		StoreFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkguard_store_failures_total",
				Help: "Shared store failures that triggered the permissive fallback.",
			},
			[]string{"operation"},
		),
		TokenRevocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkguard_token_revocations_total",
				Help: "Tokens written to the blacklist.",
			},
			[]string{"reason"},
		),
		BlacklistHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linkguard_blacklist_hits_total",
				Help: "Requests rejected because their token was blacklisted.",
			},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkguard_http_requests_total",
				Help: "HTTP requests by route, method and status.",
			},
			[]string{"route", "method", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkguard_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		AuditDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linkguard_audit_events_dropped_total",
				Help: "Audit events dropped because the buffer was full.",
			},
		),
	}
}

func (m *Metrics) RecordRateLimitDecision(policy, result string) {
	m.RateLimitDecisions.WithLabelValues(policy, result).Inc()
}

func (m *Metrics) RecordStoreFailure(operation string) {
	m.StoreFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordTokenRevocation(reason string) {
	m.TokenRevocations.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordBlacklistHit() {
	m.BlacklistHits.Inc()
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(route, method, status string, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPLatency.WithLabelValues(route, method).Observe(d.Seconds())
}

// RecordAuditDropped counts an audit event lost to backpressure.
func (m *Metrics) RecordAuditDropped() {
	m.AuditDropped.Inc()
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordRateLimitDecision(string, string) {}
func (NoopMetrics) RecordStoreFailure(string)              {}
func (NoopMetrics) RecordTokenRevocation(string)           {}
func (NoopMetrics) RecordBlacklistHit()                    {}
func (NoopMetrics) RecordAuditDropped()                    {}

func (NoopMetrics) ObserveHTTPRequest(string, string, string, time.Duration) {}
