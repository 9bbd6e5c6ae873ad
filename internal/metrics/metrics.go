package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for lead operations.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LeadOperations        *prometheus.CounterVec
	LeadOperationDuration *prometheus.HistogramVec
	LeadsInBucket         *prometheus.GaugeVec

	CountsCacheHits   prometheus.Counter
	CountsCacheMisses prometheus.Counter
}

// New registers all collectors on reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		LeadOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salon_lead_operations_total",
				Help: "Lead engine operations by outcome (ok, rejected, error)",
			},
			[]string{"op", "outcome"},
		),
		LeadOperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "salon_lead_operation_duration_seconds",
				Help:    "Lead engine operation latency in seconds",
				Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"op"},
		),
		LeadsInBucket: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "salon_leads_bucket",
				Help: "Number of leads per dashboard bucket, refreshed on a schedule",
			},
			[]string{"bucket"},
		),
		CountsCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "salon_counts_cache_hits_total",
			Help: "Bucket counts served from cache",
		}),
		CountsCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "salon_counts_cache_misses_total",
			Help: "Bucket counts recomputed from the store",
		}),
	}
}

// ObserveOperation records one engine operation.
func (m *Metrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LeadOperations.WithLabelValues(op, outcome).Inc()
	m.LeadOperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) SetBucket(bucket string, n int) {
	if m == nil {
		return
	}
	m.LeadsInBucket.WithLabelValues(bucket).Set(float64(n))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CountsCacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CountsCacheMisses.Inc()
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
