package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geodetect",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path"})

	// Detection metrics
	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "detection",
		Name:      "objects_total",
		Help:      "Objects detected above the confidence threshold",
	}, []string{"class"})

	DetectorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geodetect",
		Subsystem: "detection",
		Name:      "backend_duration_seconds",
		Help:      "Time spent waiting on the detector backend",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"backend"})

	DetectorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "detection",
		Name:      "backend_errors_total",
		Help:      "Detector backend failures",
	}, []string{"backend"})

	LocationResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "geotag",
		Name:      "location_resolved_total",
		Help:      "Images by where their location came from",
	}, []string{"source"})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "geodetect",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of detection stream connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Response().StatusCode())).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

		return err
	}
}

// Handler serves the Prometheus registry.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}
