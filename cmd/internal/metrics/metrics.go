// Package metrics owns the Prometheus collectors exported on /metrics.
//
// All observe methods are safe on a nil *Registry, so components can be
// constructed without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flussauth"

// Registry holds the service collectors on a dedicated prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry

	decisions       *prometheus.CounterVec
	decisionLatency prometheus.Histogram
	decisionErrors  *prometheus.CounterVec
	auditFailures   prometheus.Counter
	expireFailures  prometheus.Counter

	sweeps        *prometheus.CounterVec
	sweptSessions prometheus.Counter
	sweepDuration prometheus.Histogram

	feedClients prometheus.Gauge
	feedDropped prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRegistry builds and registers every collector, plus the Go and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Authorization decisions by result and reason.",
		}, []string{"result", "reason"}),
		decisionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time to reach an authorization decision.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		decisionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_errors_total",
			Help:      "Decisions that failed with an unavailable error, by stage.",
		}, []string{"stage"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Access-log entries that could not be written.",
		}),
		expireFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_expire_failures_total",
			Help:      "Lazy token expiry transitions that could not be persisted.",
		}),

		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_sweeps_total",
			Help:      "Expiry sweeper passes by outcome.",
		}, []string{"outcome"}),
		sweptSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_swept_total",
			Help:      "Expired sessions removed by the sweeper.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_sweep_duration_seconds",
			Help:      "Duration of sweeper passes.",
			Buckets:   prometheus.DefBuckets,
		}),

		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accesslog_feed_clients",
			Help:      "Connected access-log feed clients.",
		}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accesslog_feed_dropped_total",
			Help:      "Feed messages dropped for slow clients.",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.decisions, r.decisionLatency, r.decisionErrors, r.auditFailures, r.expireFailures,
		r.sweeps, r.sweptSessions, r.sweepDuration,
		r.feedClients, r.feedDropped,
		r.httpRequests, r.httpDuration,
	)
	return r
}

// Handler serves the Prometheus exposition for this registry.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry (tests, embedding).
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

func (r *Registry) ObserveDecision(result, reason string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(result, reason).Inc()
	r.decisionLatency.Observe(elapsed.Seconds())
}

func (r *Registry) ObserveDecisionError(stage string) {
	if r == nil {
		return
	}
	r.decisionErrors.WithLabelValues(stage).Inc()
}

func (r *Registry) ObserveAuditFailure() {
	if r == nil {
		return
	}
	r.auditFailures.Inc()
}

func (r *Registry) ObserveExpireFailure() {
	if r == nil {
		return
	}
	r.expireFailures.Inc()
}

// ObserveSweep implements session.SweepObserver.
func (r *Registry) ObserveSweep(removed int64, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.sweepDuration.Observe(elapsed.Seconds())
	if err != nil {
		r.sweeps.WithLabelValues("fail").Inc()
		return
	}
	r.sweeps.WithLabelValues("ok").Inc()
	r.sweptSessions.Add(float64(removed))
}

func (r *Registry) FeedClientJoined() {
	if r == nil {
		return
	}
	r.feedClients.Inc()
}

func (r *Registry) FeedClientLeft() {
	if r == nil {
		return
	}
	r.feedClients.Dec()
}

func (r *Registry) FeedDropped() {
	if r == nil {
		return
	}
	r.feedDropped.Inc()
}

// ObserveHTTP records one request. route should be a route template, not a raw path.
func (r *Registry) ObserveHTTP(route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
