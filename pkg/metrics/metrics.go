package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Booking lifecycle
	BookingOperations *prometheus.CounterVec

	// Availability cache
	AvailabilityCache   *prometheus.CounterVec
	AvailabilityLatency prometheus.Histogram

	// Rate limiting
	RateLimitDecisions *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram

	// HTTP
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BookingOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_operations_total",
			Help:      "Booking lifecycle operations by outcome",
		}, []string{"operation", "status"}),
		AvailabilityCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_cache_total",
			Help:      "Availability cache lookups by result",
		}, []string{"result"}),
		AvailabilityLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_compute_duration_seconds",
			Help:      "Time spent computing one day of availability",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		RateLimitDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limiter decisions by outcome and counter store",
		}, []string{"decision", "store"}),
		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) BookingOp(operation, status string) {
	if m == nil {
		return
	}
	m.BookingOperations.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.AvailabilityCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAvailability(seconds float64) {
	if m == nil {
		return
	}
	m.AvailabilityLatency.Observe(seconds)
}

func (m *Metrics) RateLimit(decision, store string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(decision, store).Inc()
}

func (m *Metrics) OutboxProcessed() {
	if m == nil {
		return
	}
	m.OutboxEventsProcessed.Inc()
}

func (m *Metrics) OutboxFailed() {
	if m == nil {
		return
	}
	m.OutboxEventsFailed.Inc()
}

func (m *Metrics) ObserveOutbox(seconds float64) {
	if m == nil {
		return
	}
	m.OutboxProcessingLatency.Observe(seconds)
}

func (m *Metrics) ObserveRequest(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}
