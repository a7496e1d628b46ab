// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "enquiryflow"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	customerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "customer",
			Name:      "operations_total",
			Help:      "Customer enquiry operations by outcome",
		},
		[]string{"operation", "result"},
	)

	validationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "customer",
			Name:      "validation_failures_total",
			Help:      "Rejected fields on customer writes",
		},
		[]string{"field"},
	)

	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Login and refresh attempts by outcome",
		},
		[]string{"kind", "result"},
	)

	storeUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "store_up",
		Help:      "Store connectivity (1 = reachable, 0 = unreachable)",
	})
)

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if path == "/metrics" || path == "/health" || path == "/ready" {
			return
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// CustomerOperation counts one customer operation; result is "success" or an
// error class such as "invalid" or "not_found".
func CustomerOperation(operation, result string) {
	customerOperations.WithLabelValues(operation, result).Inc()
}

func ValidationFailure(fields ...string) {
	for _, f := range fields {
		validationFailures.WithLabelValues(f).Inc()
	}
}

func AuthAttempt(kind string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	authAttempts.WithLabelValues(kind, result).Inc()
}

func StoreUp(up bool) {
	if up {
		storeUp.Set(1)
		return
	}
	storeUp.Set(0)
}

// StatusClass maps an HTTP status to a short result label.
func StatusClass(status int) string {
	switch {
	case status < http.StatusBadRequest:
		return "success"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	case status < http.StatusInternalServerError:
		return "invalid"
	default:
		return "error"
	}
}
