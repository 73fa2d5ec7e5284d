// Package metrics holds the Prometheus collectors of the campaign service.
//
// Every recording method is safe on a nil *Metrics, so components can run
// without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "outreach"

// Send kinds.
const (
	KindInitial  = "initial"
	KindRetry    = "retry"
	KindFollowup = "followup"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Campaign
	SendsTotal        *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	RepliesTotal      prometheus.Counter

	// Monitor loop
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
}

// New registers the collectors with reg. A nil reg uses a fresh registry that
// also carries the Go runtime and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		SendsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_sends_total",
				Help:      "Provider send attempts by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		StatusTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Delivery status changes applied from provider polls",
			},
			[]string{"to"},
		),
		RepliesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replies_total",
				Help:      "Replies recorded",
			},
		),

		CyclesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "monitor_cycles_total",
				Help:      "Monitor cycles by result",
			},
			[]string{"result"},
		),
		CycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "monitor_cycle_duration_seconds",
				Help:      "Duration of monitor cycles in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSend counts one provider send of the given kind.
func (m *Metrics) RecordSend(kind string, accepted bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if accepted {
		outcome = "accepted"
	}
	m.SendsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordStatusTransition(to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) RecordReply() {
	if m == nil {
		return
	}
	m.RepliesTotal.Inc()
}

func (m *Metrics) RecordCycle(duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(duration.Seconds())
}
