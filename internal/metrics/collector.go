package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records batch processing metrics.
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	admissionDenied  *prometheus.CounterVec
	chunksTotal      prometheus.Counter
	batchesTotal     prometheus.Counter
	activeRequests   prometheus.Gauge
	tokensReserved   prometheus.Counter
	breakerOpenTotal prometheus.Counter

	logger *zap.Logger
}

// NewCollector creates a Collector registered on the default registry under
// the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests by final status.",
		},
		[]string{"status"},
	)

	c.requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Remote call duration.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	c.admissionDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_denied_total",
			Help:      "Requests denied before dispatch, by reason.",
		},
		[]string{"reason"},
	)

	c.chunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks processed.",
		},
	)

	c.batchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches processed.",
		},
	)

	c.activeRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Requests currently in flight.",
		},
	)

	c.tokensReserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_reserved_total",
			Help:      "Tokens reserved against the rate window.",
		},
	)

	c.breakerOpenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_open_total",
			Help:      "Circuit breaker open transitions.",
		},
	)

	return c
}

// RecordRequest records one completed remote call.
func (c *Collector) RecordRequest(status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(status).Inc()
	c.requestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordAdmissionDenied records a request rejected before dispatch.
func (c *Collector) RecordAdmissionDenied(reason string) {
	c.admissionDenied.WithLabelValues(reason).Inc()
}

// RecordChunk records one processed chunk.
func (c *Collector) RecordChunk() {
	c.chunksTotal.Inc()
}

// RecordBatch records one completed batch.
func (c *Collector) RecordBatch() {
	c.batchesTotal.Inc()
}

// RequestStarted marks a request entering flight.
func (c *Collector) RequestStarted() {
	c.activeRequests.Inc()
}

// RequestFinished marks a request leaving flight.
func (c *Collector) RequestFinished() {
	c.activeRequests.Dec()
}

// RecordTokensReserved adds reserved token volume.
func (c *Collector) RecordTokensReserved(tokens int) {
	if tokens > 0 {
		c.tokensReserved.Add(float64(tokens))
	}
}

// RecordBreakerOpen counts a breaker open transition.
func (c *Collector) RecordBreakerOpen() {
	c.breakerOpenTotal.Inc()
}
