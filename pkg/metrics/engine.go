package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records the hot paths of the checkout engine: shipping quote
// fan-out, order total computation, and payment gateway calls.
type EngineMetrics struct {
	quoteDuration   *prometheus.HistogramVec
	quoteModules    *prometheus.CounterVec
	totalDuration   prometheus.Histogram
	gatewayDuration *prometheus.HistogramVec
	gatewayOutcomes *prometheus.CounterVec
}

// NewEngineMetrics registers engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	quoteDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipping_quote_duration_seconds",
		Help:    "Duration of per-module shipping quote calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"module"})
	quoteModules := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipping_quote_results",
		Help: "Shipping quote module calls by outcome.",
	}, []string{"module", "outcome"})
	totalDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_total_duration_seconds",
		Help:    "Duration of order total pipeline runs in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_duration_seconds",
		Help:    "Duration of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	gatewayOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_results",
		Help: "Payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(quoteDuration, quoteModules, totalDuration, gatewayDuration, gatewayOutcomes)
	return &EngineMetrics{
		quoteDuration:   quoteDuration,
		quoteModules:    quoteModules,
		totalDuration:   totalDuration,
		gatewayDuration: gatewayDuration,
		gatewayOutcomes: gatewayOutcomes,
	}
}

// ObserveQuote records one module's quote call duration and outcome.
func (m *EngineMetrics) ObserveQuote(module, outcome string, duration time.Duration) {
	if m == nil || m.quoteDuration == nil {
		return
	}
	m.quoteDuration.WithLabelValues(normalizeLabel(module)).Observe(duration.Seconds())
	m.quoteModules.WithLabelValues(normalizeLabel(module), normalizeLabel(outcome)).Inc()
}

// ObserveTotal records one order total pipeline run.
func (m *EngineMetrics) ObserveTotal(duration time.Duration) {
	if m == nil || m.totalDuration == nil {
		return
	}
	m.totalDuration.Observe(duration.Seconds())
}

// ObserveGateway records a payment gateway call.
func (m *EngineMetrics) ObserveGateway(operation, outcome string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
	m.gatewayOutcomes.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
