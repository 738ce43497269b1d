package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector gathers request and prediction metrics for the API.
type Collector struct {
	httpRequests *prometheus.CounterVec
	httpLatency  prometheus.Histogram
	predictions  *prometheus.CounterVec
}

// NewCollector builds a Collector and registers its metrics on the provided registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskmind_http_requests_total",
			Help: "HTTP requests served, by method, route and status code",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskmind_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskmind_predictions_total",
			Help: "Predictions served, by source (model or heuristic)",
		}, []string{"source"}),
	}

	reg.MustRegister(c.httpRequests, c.httpLatency, c.predictions)
	return c
}

// RecordPrediction counts one served prediction from the given source.
func (c *Collector) RecordPrediction(source string) {
	c.predictions.WithLabelValues(source).Inc()
}

// GinMiddleware records request counts and latency for every handled route.
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.httpRequests.WithLabelValues(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpLatency.Observe(time.Since(start).Seconds())
	}
}
