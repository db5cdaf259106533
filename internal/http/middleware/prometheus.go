package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMiddleware holds the request metrics.
type PrometheusMiddleware struct {
	requestCount   *prometheus.CounterVec
	uploadedBytes  prometheus.Counter
	purgedEntries  prometheus.Counter
}

// NewPrometheusMiddleware creates the middleware and registers its metrics.
func NewPrometheusMiddleware(reg prometheus.Registerer) (*PrometheusMiddleware, error) {
	m := &PrometheusMiddleware{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "documents_uploaded_bytes_total",
			Help: "Total bytes accepted by document uploads.",
		}),
		purgedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "documents_purged_total",
			Help: "Total document entries removed by purge runs.",
		}),
	}

	for _, c := range []prometheus.Collector{m.requestCount, m.uploadedBytes, m.purgedEntries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveUpload records the size of an accepted upload.
func (m *PrometheusMiddleware) ObserveUpload(size int64) {
	if size > 0 {
		m.uploadedBytes.Add(float64(size))
	}
}

// ObservePurge records entries removed by a purge run.
func (m *PrometheusMiddleware) ObservePurge(removed int) {
	if removed > 0 {
		m.purgedEntries.Add(float64(removed))
	}
}

// Handler returns the fiber middleware handler counting requests.
func (m *PrometheusMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Exclude /metrics from being counted
		if c.Path() == "/metrics" {
			return c.Next()
		}

		err := c.Next()

		// Route pattern (e.g. /view/:token) instead of the raw path keeps
		// cardinality bounded.
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}

		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.requestCount.WithLabelValues(
			c.Method(),
			path,
			strconv.Itoa(status),
		).Inc()

		return err
	}
}
