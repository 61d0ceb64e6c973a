// Package metrics exposes Prometheus metrics for the incentive engine.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/incentive-engine/incentive"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for latency histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithRegistry sets the registry metrics are registered on and served from.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Manager owns every collector. Each Manager registers on its own registry
// so tests can build as many as they like.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	// Business
	calculations     *prometheus.CounterVec
	calcLatency      prometheus.Histogram
	events           *prometheus.CounterVec
	netIncentive     *prometheus.CounterVec
	routingFailures  prometheus.Counter
	overdueEscalated prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "incentive",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.calculations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "calculations_total",
		Help:      "Calculation requests by outcome code (ok, below_threshold or an error code)",
	}, []string{"outcome"})

	m.calcLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "calculation_duration_seconds",
		Help:      "Time to load inputs, compute and persist one calculation",
		Buckets:   m.buckets,
	})

	m.events = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "events_total",
		Help:      "Domain events published after commit, by type",
	}, []string{"type"})

	m.netIncentive = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "paid_amount_total",
		Help:      "Net incentive marked paid, by currency",
	}, []string{"currency"})

	m.routingFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "routing_failures_total",
		Help:      "Approvals that could not be routed to any approver",
	})

	m.overdueEscalated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "overdue_escalations_total",
		Help:      "Approvals escalated by the SLA sweep",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route and method",
		Buckets:   m.buckets,
	}, []string{"route", "method"})
}

// Registry returns the registry backing this manager.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCalculation records one calculation attempt. outcome is "ok",
// "below_threshold" or an error code.
func (m *Manager) ObserveCalculation(outcome string, d time.Duration) {
	m.calculations.WithLabelValues(outcome).Inc()
	m.calcLatency.Observe(d.Seconds())
}

func (m *Manager) RoutingFailed() { m.routingFailures.Inc() }

func (m *Manager) OverdueEscalated(n int) { m.overdueEscalated.Add(float64(n)) }

func (m *Manager) ObserveHTTP(route, method string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Publish counts drained domain events. It implements incentive.EventSink.
func (m *Manager) Publish(_ context.Context, events []incentive.Event) error {
	for _, e := range events {
		m.events.WithLabelValues(string(e.Type)).Inc()
		if e.Type == incentive.EventPaid && e.Amount.Currency != "" {
			m.netIncentive.WithLabelValues(e.Amount.Currency).Add(e.Amount.Amount.InexactFloat64())
		}
	}
	return nil
}
