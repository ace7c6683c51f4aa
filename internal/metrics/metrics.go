// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tainment"

// Collector owns its own registry so tests can build independent instances.
// Every Record method is safe on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	Transitions      *prometheus.CounterVec
	SweepRuns        *prometheus.CounterVec
	SweepAccounts    *prometheus.CounterVec
	SweepDuration    *prometheus.HistogramVec
	Payments         *prometheus.CounterVec
	CheckoutSessions *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed subscription transitions by kind",
		}, []string{"kind"}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Scanner sweeps by outcome",
		}, []string{"sweep", "outcome"}),
		SweepAccounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_accounts_total",
			Help:      "Accounts visited by scanner sweeps by result",
		}, []string{"sweep", "result"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of scanner sweeps",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment results applied by ledger status",
		}, []string{"status"}),
		CheckoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Checkout sessions by outcome",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "path", "status_code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		c.Transitions,
		c.SweepRuns,
		c.SweepAccounts,
		c.SweepDuration,
		c.Payments,
		c.CheckoutSessions,
		c.HTTPRequests,
		c.HTTPDuration,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) RecordTransition(kind string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordSweep(sweep, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.SweepRuns.WithLabelValues(sweep, outcome).Inc()
	c.SweepDuration.WithLabelValues(sweep).Observe(d.Seconds())
}

func (c *Collector) RecordSweepAccount(sweep, result string) {
	if c == nil {
		return
	}
	c.SweepAccounts.WithLabelValues(sweep, result).Inc()
}

func (c *Collector) RecordPayment(status string) {
	if c == nil {
		return
	}
	c.Payments.WithLabelValues(status).Inc()
}

func (c *Collector) RecordCheckout(outcome string) {
	if c == nil {
		return
	}
	c.CheckoutSessions.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
