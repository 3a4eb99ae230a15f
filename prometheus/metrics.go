package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "geomun_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Organization registration counter
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "geomun_register_total",
			Help: "Total number of organization registrations",
		},
	)

	// Email verification counter by outcome
	VerificationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomun_verifications_total",
			Help: "Total number of email verification attempts by outcome",
		},
		[]string{"outcome"}, // outcome can be "verified", "invalid", "expired"
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomun_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomun_auth_errors_total",
			Help: "Total number of authentication and authorization errors",
		},
		[]string{"type"}, // type can be "invalid_token", "role_denied", "db_error" etc.
	)

	// Plan limit rejection counter
	PlanLimitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomun_plan_limit_rejections_total",
			Help: "Total number of create requests rejected by the plan-limit guard",
		},
		[]string{"resource"}, // resource can be "users", "maps", "layers"
	)

	// Billing webhook counter by event type
	WebhookEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomun_billing_webhook_events_total",
			Help: "Total number of billing webhook events processed",
		},
		[]string{"type"},
	)

	// Object storage operation counter
	StorageOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomun_storage_operations_total",
			Help: "Total number of object storage operations",
		},
		[]string{"operation"}, // operation can be "upload", "list", "delete"
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geomun_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geomun_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // operation can be "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Active tenants
	ActiveTenantsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "geomun_active_tenants",
			Help: "Number of currently active tenants",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geomun_info",
			Help: "Information about the GeoMun API",
		},
		[]string{"version"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(VerificationCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(PlanLimitCounter)
	prometheus.MustRegister(WebhookEventCounter)
	prometheus.MustRegister(StorageOperationCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	// Register gauges
	prometheus.MustRegister(ActiveTenantsGauge)
	prometheus.MustRegister(InfoGauge)

	// Set initial service info
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthError increments the auth error counter for the given type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordPlanLimitRejection increments the plan-limit rejection counter
func RecordPlanLimitRejection(resource string) {
	PlanLimitCounter.With(prometheus.Labels{"resource": resource}).Inc()
}

// RecordWebhookEvent increments the webhook event counter for the given type
func RecordWebhookEvent(eventType string) {
	WebhookEventCounter.With(prometheus.Labels{"type": eventType}).Inc()
}

// RecordStorageOperation increments the storage operation counter
func RecordStorageOperation(operation string) {
	StorageOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Execute the request handler
			err := next(c)

			// Record request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			// Record metrics
			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}
