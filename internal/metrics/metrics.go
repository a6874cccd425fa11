package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "waste_patrol"

// Collector owns a private registry with the HTTP and report metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	reportsCreated      prometheus.Counter
	transitions         *prometheus.CounterVec
	detections          *prometheus.CounterVec
	detectionFailures   prometheus.Counter
	blobCleanupFailures prometheus.Counter
}

func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		reportsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "created_total",
			Help:      "Reports created.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "transitions_total",
			Help:      "Status transitions applied.",
		}, []string{"from", "to"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "detections_total",
			Help:      "Detection results attached, by severity.",
		}, []string{"severity"}),
		detectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "failures_total",
			Help:      "Detector calls that failed during submission.",
		}),
		blobCleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blobstore",
			Name:      "cleanup_failures_total",
			Help:      "Blob deletions that failed or were dropped.",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.requestDuration,
		c.requestTotal,
		c.reportsCreated,
		c.transitions,
		c.detections,
		c.detectionFailures,
		c.blobCleanupFailures,
	} {
		if err := c.registry.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route template.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(ctx.Writer.Status())
		c.requestTotal.WithLabelValues(ctx.Request.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(ctx.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

func (c *Collector) ReportCreated() {
	if c == nil {
		return
	}
	c.reportsCreated.Inc()
}

func (c *Collector) Transition(from, to string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) DetectionAttached(severity string) {
	if c == nil {
		return
	}
	c.detections.WithLabelValues(severity).Inc()
}

func (c *Collector) DetectionFailed() {
	if c == nil {
		return
	}
	c.detectionFailures.Inc()
}

// BlobCleanupFailures is handed to the blob cleaner. Nil on a nil collector.
func (c *Collector) BlobCleanupFailures() prometheus.Counter {
	if c == nil {
		return nil
	}
	return c.blobCleanupFailures
}
