package gateway

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Instrumentation exports per-endpoint request counts and latency to
// prometheus; scraped via /metrics.
func Instrumentation() gin.HandlerFunc {
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lionlink",
		Subsystem: "request",
		Name:      "requests_count",
		Help:      "Number of requests per endpoint",
	}, []string{"code", "method", "handler", "url"})

	resTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lionlink",
		Subsystem: "response",
		Name:      "response_time_hist",
		Help:      "Response duration in milliseconds",
	})

	for _, coll := range []prometheus.Collector{counterVec, resTime} {
		if err := prometheus.Register(coll); err != nil {
			panic(err)
		}
	}

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := float64(time.Since(start)) * 1e-6

		status := strconv.Itoa(c.Writer.Status())
		counterVec.WithLabelValues(status, c.Request.Method, c.HandlerName(), c.Request.URL.Path).Inc()
		resTime.Observe(duration)
	}
}
