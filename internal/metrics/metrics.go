// Package metrics provides Prometheus instrumentation for the platform.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facilmilha",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "facilmilha",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// OffersTotal counts offer lifecycle transitions by resulting status.
	OffersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facilmilha",
			Name:      "offers_total",
			Help:      "Total offer state transitions by resulting status.",
		},
		[]string{"status"},
	)

	// PaymentsConfirmedTotal counts gateway payment confirmations by outcome.
	PaymentsConfirmedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facilmilha",
			Name:      "payments_confirmed_total",
			Help:      "Total payment confirmations applied, deduplicated, or unmatched.",
		},
		[]string{"outcome"},
	)

	// PayoutsReleasedTotal counts sweeper payout attempts by result.
	PayoutsReleasedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facilmilha",
			Name:      "payouts_released_total",
			Help:      "Total sweeper payout attempts by result.",
		},
		[]string{"result"},
	)

	// PayoutsReleasedCentavos sums the centavos successfully paid out.
	PayoutsReleasedCentavos = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "facilmilha",
			Name:      "payouts_released_centavos_total",
			Help:      "Total centavos released to sellers by the payout sweeper.",
		},
	)

	// SweepDuration observes the duration of payout sweep runs.
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "facilmilha",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of payout sweep runs in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ActiveWebSocketClients tracks live marketplace feed connections.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "facilmilha",
			Name:      "active_websocket_clients",
			Help:      "Currently connected live feed clients.",
		},
	)

	// WebhookNotificationsTotal counts gateway notifications by disposition.
	WebhookNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facilmilha",
			Name:      "webhook_notifications_total",
			Help:      "Total gateway webhook notifications by disposition.",
		},
		[]string{"disposition"},
	)

	// WithdrawalsTotal counts wallet withdrawals by result.
	WithdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facilmilha",
			Name:      "withdrawals_total",
			Help:      "Total wallet withdrawal requests by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OffersTotal,
		PaymentsConfirmedTotal,
		PayoutsReleasedTotal,
		PayoutsReleasedCentavos,
		SweepDuration,
		ActiveWebSocketClients,
		WebhookNotificationsTotal,
		WithdrawalsTotal,
	)
}

// Middleware records request counts and latency for every route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := statusLabel(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusLabel(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
